//go:build windows

package control

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
)

// SCMController bridges a svc.Handler's request and status channels. It is
// created inside Execute and must be closed before Execute returns.
type SCMController struct {
	requests <-chan svc.ChangeRequest
	status   chan<- svc.Status
	events   slot
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
	exitCode atomic.Uint32
}

// NewSCMController starts forwarding change requests.
func NewSCMController(requests <-chan svc.ChangeRequest, status chan<- svc.Status, logger *slog.Logger) *SCMController {
	c := &SCMController{
		requests: requests,
		status:   status,
		events:   newSlot(),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go c.forward()
	return c
}

func (c *SCMController) forward() {
	for {
		select {
		case <-c.done:
			return
		case req, ok := <-c.requests:
			if !ok {
				return
			}
			switch req.Cmd {
			case svc.Interrogate:
				c.status <- req.CurrentStatus
			case svc.Stop:
				c.logger.Info("Stop requested by service manager")
				c.events.offer(Stop)
			case svc.Shutdown:
				c.logger.Info("System shutdown")
				c.events.offer(Shutdown)
			default:
				c.logger.Warn("Unsupported service control", "cmd", uint32(req.Cmd))
			}
		}
	}
}

// Events implements Controller.
func (c *SCMController) Events() <-chan Event {
	return c.events
}

// SetStatus implements Controller.
func (c *SCMController) SetStatus(s Status) error {
	st := svc.Status{
		State:   toSvcState(s.State),
		Accepts: toSvcAccepted(s.Accepts),
	}
	if s.State == Stopped && s.ExitCode != 0 {
		st.Win32ExitCode = uint32(windows.ERROR_SERVICE_SPECIFIC_ERROR)
		st.ServiceSpecificExitCode = s.ExitCode
	}
	select {
	case c.status <- st:
		if s.State == Stopped {
			c.exitCode.Store(s.ExitCode)
		}
		return nil
	case <-c.done:
		return &Error{Op: "set status", Err: windows.ERROR_SERVICE_NOT_ACTIVE}
	}
}

// ExitCode returns the exit code carried by the Stopped status, or 0 when
// none was sent.
func (c *SCMController) ExitCode() uint32 {
	return c.exitCode.Load()
}

// Close stops forwarding.
func (c *SCMController) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func toSvcState(s State) svc.State {
	switch s {
	case StartPending:
		return svc.StartPending
	case Running:
		return svc.Running
	case StopPending:
		return svc.StopPending
	default:
		return svc.Stopped
	}
}

func toSvcAccepted(a Accept) svc.Accepted {
	var out svc.Accepted
	if a&AcceptStop != 0 {
		out |= svc.AcceptStop
	}
	if a&AcceptShutdown != 0 {
		out |= svc.AcceptShutdown
	}
	return out
}
