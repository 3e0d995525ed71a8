//go:build windows

package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/smazurov/svcwrap/internal/logging"
)

// stopWait bounds how long Unregister waits for a running service to stop.
const stopWait = 30 * time.Second

// Register creates an own-process, auto-start service.
func Register(_ context.Context, info Info) error {
	logger := logging.GetLogger("registration")
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("register %s: connect: %w", info.Name, err)
	}
	defer m.Disconnect()

	s, err := m.CreateService(info.Name, info.Executable, mgr.Config{
		ServiceType:  windows.SERVICE_WIN32_OWN_PROCESS,
		StartType:    mgr.StartAutomatic,
		ErrorControl: mgr.ErrorNormal,
		DisplayName:  info.DisplayName,
		Description:  info.Description,
	}, info.Args...)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.Name, err)
	}
	defer s.Close()

	if info.EventLog {
		if err := logging.InstallEventSource(logging.Identifier); err != nil {
			logger.Warn("Failed to install event log source", "error", err)
		}
	}
	logger.Info("Service registered", "service", info.Name)
	return nil
}

// Unregister stops the service if it runs and deletes it.
func Unregister(ctx context.Context, name string) error {
	logger := logging.GetLogger("registration")
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("unregister %s: connect: %w", name, err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("unregister %s: %w", name, err)
	}
	defer s.Close()

	if status, err := s.Control(svc.Stop); err == nil {
		if err := waitStopped(ctx, s, status); err != nil {
			logger.Warn("Service did not stop", "service", name, "error", err)
		}
	} else if !errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
		logger.Warn("Failed to stop service", "service", name, "error", err)
	}

	if err := s.Delete(); err != nil {
		return fmt.Errorf("unregister %s: %w", name, err)
	}
	logger.Info("Service unregistered", "service", name)
	return nil
}

// State reports the service's current state.
func State(_ context.Context, name string) (string, error) {
	m, err := mgr.Connect()
	if err != nil {
		return "", err
	}
	defer m.Disconnect()
	s, err := m.OpenService(name)
	if err != nil {
		return "", err
	}
	defer s.Close()
	status, err := s.Query()
	if err != nil {
		return "", err
	}
	return stateName(status.State), nil
}

func waitStopped(ctx context.Context, s *mgr.Service, status svc.Status) error {
	deadline := time.Now().Add(stopWait)
	for status.State != svc.Stopped {
		if time.Now().After(deadline) {
			return fmt.Errorf("still %s after %s", stateName(status.State), stopWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(300 * time.Millisecond):
		}
		var err error
		if status, err = s.Query(); err != nil {
			return err
		}
	}
	return nil
}

func stateName(s svc.State) string {
	switch s {
	case svc.Stopped:
		return "stopped"
	case svc.StartPending:
		return "start_pending"
	case svc.StopPending:
		return "stop_pending"
	case svc.Running:
		return "running"
	case svc.ContinuePending:
		return "continue_pending"
	case svc.PausePending:
		return "pause_pending"
	case svc.Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}
