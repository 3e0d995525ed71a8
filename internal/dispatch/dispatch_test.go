package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/smazurov/svcwrap/internal/control"
)

func TestMain(m *testing.M) {
	// signal.Notify starts a receiver goroutine that lives for the process.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("os/signal.signal_recv"))
}

func reset() {
	mu.Lock()
	bound = nil
	mu.Unlock()
}

func TestStartWithoutBind(t *testing.T) {
	reset()
	require.ErrorIs(t, Start(context.Background()), ErrNotBound)
}

func TestBindEmptyName(t *testing.T) {
	reset()
	require.ErrorIs(t, Bind("", func(context.Context, control.Controller) error { return nil }), ErrEmptyName)
}

func TestBindTwice(t *testing.T) {
	reset()
	entry := func(context.Context, control.Controller) error { return nil }
	require.NoError(t, Bind("svc", entry))
	require.ErrorIs(t, Bind("svc", entry), ErrAlreadyBound)
	require.ErrorIs(t, Bind("other", entry), ErrAlreadyBound)
}

func TestStartRunsEntryInForeground(t *testing.T) {
	reset()
	var got control.Controller
	require.NoError(t, Bind("svc", func(_ context.Context, ctl control.Controller) error {
		got = ctl
		return nil
	}))

	require.NoError(t, Start(context.Background()))
	require.IsType(t, &control.SignalController{}, got)
}

func TestStartReturnsEntryError(t *testing.T) {
	reset()
	want := context.DeadlineExceeded
	require.NoError(t, Bind("svc", func(context.Context, control.Controller) error { return want }))
	require.ErrorIs(t, Start(context.Background()), want)
}
