//go:build windows

package control

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
)

func TestSCMControllerStoppedExitCode(t *testing.T) {
	requests := make(chan svc.ChangeRequest)
	status := make(chan svc.Status, 4)
	c := NewSCMController(requests, status, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer c.Close()

	require.Zero(t, c.ExitCode())

	require.NoError(t, c.SetStatus(Status{State: Running, Accepts: AcceptStop | AcceptShutdown}))
	running := <-status
	require.Equal(t, svc.Running, running.State)
	require.Equal(t, svc.AcceptStop|svc.AcceptShutdown, running.Accepts)
	require.Zero(t, c.ExitCode())

	require.NoError(t, c.SetStatus(Status{State: Stopped, ExitCode: 7, Unexpected: true}))
	stopped := <-status
	require.Equal(t, svc.Stopped, stopped.State)
	require.Equal(t, uint32(windows.ERROR_SERVICE_SPECIFIC_ERROR), stopped.Win32ExitCode)
	require.Equal(t, uint32(7), stopped.ServiceSpecificExitCode)
	require.Equal(t, uint32(7), c.ExitCode())
}

func TestSCMControllerSetStatusAfterClose(t *testing.T) {
	c := NewSCMController(make(chan svc.ChangeRequest), make(chan svc.Status), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, c.Close())

	var ctlErr *Error
	require.ErrorAs(t, c.SetStatus(Status{State: Stopped}), &ctlErr)
	require.ErrorIs(t, ctlErr, windows.ERROR_SERVICE_NOT_ACTIVE)
}
