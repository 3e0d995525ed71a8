//go:build windows

package logging

import (
	"strings"

	"golang.org/x/sys/windows/svc/eventlog"
)

func openEventLog(source string) (eventSink, error) {
	return eventlog.Open(source)
}

// InstallEventSource registers source with the Application event log.
// An already registered source is not an error.
func InstallEventSource(source string) error {
	err := eventlog.InstallAsEventCreate(source, eventlog.Error|eventlog.Warning|eventlog.Info)
	if err != nil && !isAlreadyExists(err) {
		return err
	}
	return nil
}

// RemoveEventSource deletes the registry entries created by InstallEventSource.
func RemoveEventSource(source string) error {
	return eventlog.Remove(source)
}

// eventlog reports an existing source only through its message text.
func isAlreadyExists(err error) bool {
	return strings.Contains(err.Error(), "already exists")
}
