package procgroup

import "fmt"

// Error is returned when the process-group resource cannot be created,
// configured or joined.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("process group: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
