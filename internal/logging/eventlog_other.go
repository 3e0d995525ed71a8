//go:build !windows

package logging

import "errors"

func openEventLog(string) (eventSink, error) {
	return nil, errors.ErrUnsupported
}

// InstallEventSource is a no-op outside Windows.
func InstallEventSource(string) error { return nil }

// RemoveEventSource is a no-op outside Windows.
func RemoveEventSource(string) error { return nil }
