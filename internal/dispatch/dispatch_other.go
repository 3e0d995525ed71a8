//go:build !windows

package dispatch

import "context"

// Outside Windows a service manager starts the wrapper like any other
// process, so every session is a foreground one.
func isServiceSession() (bool, error) {
	return false, nil
}

func runService(ctx context.Context, b *binding) error {
	return runForeground(ctx, b)
}
