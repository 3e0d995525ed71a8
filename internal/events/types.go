package events

import (
	"time"

	"github.com/smazurov/svcwrap/internal/control"
)

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeChildStarted
	TypeChildExited
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published after a status report was accepted by the
// service manager.
type StateChangedEvent struct {
	Service    string
	RunID      string
	From       control.State // zero for the first report of a run
	To         control.State
	Unexpected bool
	ExitCode   uint32
	Timestamp  time.Time
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// ChildStartedEvent is published once the supervised program is running.
type ChildStartedEvent struct {
	Service   string
	RunID     string
	PID       int
	Timestamp time.Time
}

// Type returns the event type identifier for ChildStartedEvent.
func (e ChildStartedEvent) Type() uint32 { return TypeChildStarted }

// ChildExitedEvent is published when the supervised program has exited.
// Requested is true when the exit followed a stop request.
type ChildExitedEvent struct {
	Service   string
	RunID     string
	PID       int
	ExitCode  int
	Requested bool
	Timestamp time.Time
}

// Type returns the event type identifier for ChildExitedEvent.
func (e ChildExitedEvent) Type() uint32 { return TypeChildExited }
