package control

import (
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSlotCoalescesStops(t *testing.T) {
	s := newSlot()
	s.offer(Stop)
	s.offer(Stop)
	s.offer(Shutdown)

	require.Equal(t, Stop, <-s)
	require.Empty(t, s)
}

func TestSlotStopDisplacesInterrogate(t *testing.T) {
	s := newSlot()
	s.offer(Interrogate)
	s.offer(Stop)

	require.Equal(t, Stop, <-s)
	require.Empty(t, s)
}

func TestSlotDropsInterrogateBehindStop(t *testing.T) {
	s := newSlot()
	s.offer(Stop)
	s.offer(Interrogate)

	require.Equal(t, Stop, <-s)
	require.Empty(t, s)
}

func TestNotifyState(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Status{State: StartPending}, "STATUS=Starting"},
		{Status{State: Running, Accepts: AcceptStop}, "READY=1\nMAINPID=42\nSTATUS=Running"},
		{Status{State: StopPending}, "STOPPING=1\nSTATUS=Stopping"},
		{Status{State: Stopped}, "STATUS=Stopped"},
		{Status{State: Stopped, Unexpected: true, ExitCode: 3}, "STATUS=Exited unexpectedly with code 3"},
	}
	for _, tt := range tests {
		t.Run(tt.status.State.String(), func(t *testing.T) {
			require.Equal(t, tt.want, notifyState(tt.status, 42))
		})
	}
}

// fakeSignals replaces signal registration so tests can deliver signals
// without touching the test process.
func fakeSignals(t *testing.T) (deliver func(os.Signal), notified *[]string) {
	t.Helper()
	var ch chan<- os.Signal
	var sent []string
	origNotify, origStop, origSd := signalNotify, signalStop, sdNotify
	signalNotify = func(c chan<- os.Signal, _ ...os.Signal) { ch = c }
	signalStop = func(chan<- os.Signal) {}
	sdNotify = func(_ bool, state string) (bool, error) {
		sent = append(sent, state)
		return true, nil
	}
	t.Cleanup(func() {
		signalNotify, signalStop, sdNotify = origNotify, origStop, origSd
	})
	return func(sig os.Signal) { ch <- sig }, &sent
}

func TestSignalControllerDeliversSingleStop(t *testing.T) {
	deliver, _ := fakeSignals(t)
	c := NewSignalController(testLogger())
	defer c.Close()

	deliver(syscall.SIGTERM)
	deliver(syscall.SIGINT)

	select {
	case ev := <-c.Events():
		require.Equal(t, Stop, ev)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stop event")
	}

	// The second signal is coalesced into the first, or arrives after it was
	// consumed; either way at most one more Stop is ever queued.
	select {
	case ev := <-c.Events():
		require.Equal(t, Stop, ev)
	case <-time.After(100 * time.Millisecond):
	}
	require.Empty(t, c.Events())
}

func TestSignalControllerReportsStatus(t *testing.T) {
	_, notified := fakeSignals(t)
	c := NewSignalController(testLogger())
	defer c.Close()

	require.NoError(t, c.SetStatus(Status{State: StartPending}))
	require.NoError(t, c.SetStatus(Status{State: Stopped}))
	require.Equal(t, []string{"STATUS=Starting", "STATUS=Stopped"}, *notified)
}

func TestSignalControllerNotifyFailure(t *testing.T) {
	fakeSignals(t)
	sdNotify = func(bool, string) (bool, error) { return false, syscall.ECONNREFUSED }
	c := NewSignalController(testLogger())
	defer c.Close()

	err := c.SetStatus(Status{State: Running})
	var ctlErr *Error
	require.ErrorAs(t, err, &ctlErr)
	require.ErrorIs(t, err, syscall.ECONNREFUSED)
}

func TestCloseIsIdempotent(t *testing.T) {
	fakeSignals(t)
	c := NewSignalController(testLogger())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
