package control

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Overridable in tests.
var (
	signalNotify = signal.Notify
	signalStop   = signal.Stop
	sdNotify     = daemon.SdNotify
)

// SignalController drives the runtime from process signals and reports
// status through sd_notify. It serves console runs and systemd units; when
// NOTIFY_SOCKET is unset the reports are skipped.
type SignalController struct {
	signals chan os.Signal
	events  slot
	logger  *slog.Logger
	done    chan struct{}
	once    sync.Once
}

// NewSignalController starts forwarding signals. Call Close when done.
func NewSignalController(logger *slog.Logger) *SignalController {
	c := &SignalController{
		signals: make(chan os.Signal, 4),
		events:  newSlot(),
		logger:  logger,
		done:    make(chan struct{}),
	}
	signalNotify(c.signals, append(stopSignals(), interrogateSignals()...)...)
	go c.forward()
	return c
}

func (c *SignalController) forward() {
	for {
		select {
		case <-c.done:
			return
		case sig := <-c.signals:
			ev := eventForSignal(sig)
			c.logger.Info("Signal received", "signal", sig.String(), "event", ev.String())
			c.events.offer(ev)
		}
	}
}

// Events implements Controller.
func (c *SignalController) Events() <-chan Event {
	return c.events
}

// SetStatus implements Controller.
func (c *SignalController) SetStatus(s Status) error {
	state := notifyState(s, os.Getpid())
	sent, err := sdNotify(false, state)
	if err != nil {
		return &Error{Op: "sd_notify", Err: err}
	}
	c.logger.Debug("Status reported", "state", s.State.String(), "notified", sent)
	return nil
}

// Close stops signal delivery. Signals arriving afterwards get their default
// disposition.
func (c *SignalController) Close() error {
	c.once.Do(func() {
		signalStop(c.signals)
		close(c.done)
	})
	return nil
}

func eventForSignal(sig os.Signal) Event {
	for _, s := range stopSignals() {
		if s == sig {
			return Stop
		}
	}
	for _, s := range interrogateSignals() {
		if s == sig {
			return Interrogate
		}
	}
	return Other
}

// notifyState renders a status as an sd_notify message.
func notifyState(s Status, pid int) string {
	var lines []string
	switch s.State {
	case StartPending:
		lines = append(lines, "STATUS=Starting")
	case Running:
		lines = append(lines, daemon.SdNotifyReady, fmt.Sprintf("MAINPID=%d", pid), "STATUS=Running")
	case StopPending:
		lines = append(lines, daemon.SdNotifyStopping, "STATUS=Stopping")
	case Stopped:
		if s.Unexpected {
			lines = append(lines, fmt.Sprintf("STATUS=Exited unexpectedly with code %d", s.ExitCode))
		} else {
			lines = append(lines, "STATUS=Stopped")
		}
	}
	return strings.Join(lines, "\n")
}
