// Package control carries stop requests from the OS service manager to the
// runtime and status reports back.
package control

import "fmt"

// Event is a control request delivered to the runtime.
type Event int

// Control events.
const (
	Stop Event = iota + 1
	Interrogate
	Shutdown
	Other
)

func (e Event) String() string {
	switch e {
	case Stop:
		return "stop"
	case Interrogate:
		return "interrogate"
	case Shutdown:
		return "shutdown"
	case Other:
		return "other"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// IsStop reports whether the event asks the service to stop.
func (e Event) IsStop() bool {
	return e == Stop || e == Shutdown
}

// State is the lifecycle state reported to the service manager. States are
// ordered; a run only moves forward.
type State int

// Lifecycle states, in order.
const (
	StartPending State = iota + 1
	Running
	StopPending
	Stopped
)

func (s State) String() string {
	switch s {
	case StartPending:
		return "start_pending"
	case Running:
		return "running"
	case StopPending:
		return "stop_pending"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Accept is the set of controls the service currently honours.
type Accept uint32

// Accepted controls.
const (
	AcceptStop Accept = 1 << iota
	AcceptShutdown
)

// Status is one report to the service manager.
type Status struct {
	State    State
	Accepts  Accept
	ExitCode uint32
	// Unexpected marks a stop the service manager did not ask for.
	Unexpected bool
}

// Controller is the runtime's view of the service manager.
type Controller interface {
	// Events delivers control requests. Stop is never dropped; a Stop
	// arriving while another is pending is coalesced with it.
	Events() <-chan Event
	// SetStatus reports synchronously and returns a *Error on failure.
	SetStatus(Status) error
}

// Error is a failure to talk to the service manager.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("control: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
