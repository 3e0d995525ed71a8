package procgroup

import (
	"log/slog"
	"time"

	"github.com/smazurov/svcwrap/internal/logging"
)

// Options configures a new Group. Everything here is applied before any
// member exists.
type Options struct {
	PriorityClass *PriorityClass
	Logger        *slog.Logger
}

const (
	// maxSweeps bounds the kill loop so a fork bomb cannot pin Release forever.
	maxSweeps     = 50
	sweepInterval = 10 * time.Millisecond
)

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.GetLogger("procgroup")
}
