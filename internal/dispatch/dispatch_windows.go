//go:build windows

package dispatch

import (
	"context"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"

	"github.com/smazurov/svcwrap/internal/control"
	"github.com/smazurov/svcwrap/internal/logging"
)

func isServiceSession() (bool, error) {
	return svc.IsWindowsService()
}

// handler adapts an Entry to svc.Handler. The entry reports every status
// itself, including StartPending.
type handler struct {
	ctx   context.Context
	entry Entry
	err   error
}

func (h *handler) Execute(_ []string, requests <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	ctl := control.NewSCMController(requests, status, logging.GetLogger("control"))
	defer ctl.Close()

	h.err = h.entry(h.ctx, ctl)
	if h.err != nil {
		logging.GetLogger("dispatch").Error("Service failed", "error", h.err)
		return false, uint32(windows.ERROR_SERVICE_SPECIFIC_ERROR)
	}
	// svc reports Stopped once more from these values; repeat the program's
	// exit code so the final status keeps it.
	if code := ctl.ExitCode(); code != 0 {
		return true, code
	}
	return false, 0
}

func runService(ctx context.Context, b *binding) error {
	h := &handler{ctx: ctx, entry: b.entry}
	if err := svc.Run(b.name, h); err != nil {
		return err
	}
	return h.err
}
