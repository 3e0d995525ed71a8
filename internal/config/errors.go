package config

import (
	"errors"
	"fmt"
)

// Error is a configuration error: the file could not be read, parsed or
// failed validation. It is always raised before the service runtime starts.
type Error struct {
	Path  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	case e.Path != "":
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrRequired marks a missing mandatory field.
	ErrRequired = errors.New("required")
	// ErrInvalid marks a value outside the accepted set.
	ErrInvalid = errors.New("invalid value")
)

func fieldError(field string, err error) *Error {
	return &Error{Field: field, Err: err}
}
