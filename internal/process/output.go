package process

import (
	"fmt"
	"os"

	"github.com/smazurov/svcwrap/internal/config"
)

// OpenOutput resolves a configured stream. The null stream yields a nil file,
// which exec.Cmd connects to the null device. Parent directories are not
// created.
func OpenOutput(stream config.OutputStream) (*os.File, error) {
	switch stream.Type {
	case config.StreamNull, "":
		return nil, nil
	case config.StreamFile:
		flags := os.O_WRONLY | os.O_CREATE
		switch stream.ExistBehavior {
		case config.ExistTruncate:
			flags |= os.O_TRUNC
		case config.ExistAppend, "":
			flags |= os.O_APPEND
		default:
			return nil, fmt.Errorf("unknown exist behavior %q", stream.ExistBehavior)
		}
		return os.OpenFile(stream.Path, flags, 0o644)
	default:
		return nil, fmt.Errorf("unknown stream type %q", stream.Type)
	}
}
