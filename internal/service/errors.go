package service

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal runtime error.
type Kind int

// Error kinds.
const (
	// ResourceError: the process group could not be created or joined.
	ResourceError Kind = iota + 1
	// SpawnError: the supervised program could not be started.
	SpawnError
	// ControlError: the service manager rejected a status report.
	ControlError
)

func (k Kind) String() string {
	switch k {
	case ResourceError:
		return "resource error"
	case SpawnError:
		return "spawn error"
	case ControlError:
		return "control error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned by Runtime.Run. Err carries the underlying
// *procgroup.Error, *process.SpawnError or *control.Error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("service: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrStateRegression rejects a report that would move the lifecycle
// backwards or repeat a state.
var ErrStateRegression = errors.New("state must advance")

// IsKind reports whether err is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Kind == k
}
