// Package dispatch connects the process to the OS service manager. A
// process binds exactly one service entry and then starts dispatching,
// which blocks until the entry returns.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/smazurov/svcwrap/internal/control"
	"github.com/smazurov/svcwrap/internal/logging"
)

// Entry runs the service against a controller.
type Entry func(ctx context.Context, ctl control.Controller) error

var (
	// ErrAlreadyBound is returned by a second Bind in the same process.
	ErrAlreadyBound = errors.New("dispatch: service already bound")
	// ErrEmptyName rejects a binding without a service name.
	ErrEmptyName = errors.New("dispatch: empty service name")
	// ErrNotBound is returned by Start before Bind.
	ErrNotBound = errors.New("dispatch: no service bound")
)

type binding struct {
	name  string
	entry Entry
}

var (
	mu    sync.Mutex
	bound *binding
)

// Bind registers the single service entry of this process.
func Bind(name string, entry Entry) error {
	if name == "" {
		return ErrEmptyName
	}
	mu.Lock()
	defer mu.Unlock()
	if bound != nil {
		return ErrAlreadyBound
	}
	bound = &binding{name: name, entry: entry}
	return nil
}

// Start hands control to the service manager when running as a service,
// or runs the entry in the foreground with signal handling otherwise.
func Start(ctx context.Context) error {
	mu.Lock()
	b := bound
	mu.Unlock()
	if b == nil {
		return ErrNotBound
	}

	logger := logging.GetLogger("dispatch")
	managed, err := isServiceSession()
	if err != nil {
		logger.Warn("Cannot detect service session, running in foreground", "error", err)
	}
	if managed {
		logger.Info("Dispatching to service manager", "service", b.name)
		return runService(ctx, b)
	}
	logger.Info("Running in foreground", "service", b.name)
	return runForeground(ctx, b)
}

func runForeground(ctx context.Context, b *binding) error {
	ctl := control.NewSignalController(logging.GetLogger("control"))
	defer ctl.Close()
	return b.entry(ctx, ctl)
}
