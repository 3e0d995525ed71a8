//go:build !linux && !windows

package registration

import "context"

// Register is not supported here.
func Register(context.Context, Info) error {
	return ErrUnsupported
}

// Unregister is not supported here.
func Unregister(context.Context, string) error {
	return ErrUnsupported
}

// State is not supported here.
func State(context.Context, string) (string, error) {
	return "", ErrUnsupported
}
