package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/smazurov/svcwrap/internal/config"
	"github.com/smazurov/svcwrap/internal/control"
	"github.com/smazurov/svcwrap/internal/control/controltest"
	"github.com/smazurov/svcwrap/internal/events"
	"github.com/smazurov/svcwrap/internal/process"
	"github.com/smazurov/svcwrap/internal/procgroup"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Process.Binary = "fake"
	return cfg
}

type fakeChild struct {
	pid        int
	done       chan struct{}
	code       int
	exitOnTerm bool
	terms      atomic.Int32
	closeOnce  sync.Once
}

func newFakeChild(exitOnTerm bool) *fakeChild {
	return &fakeChild{pid: 4242, done: make(chan struct{}), exitOnTerm: exitOnTerm}
}

func (c *fakeChild) Pid() int { return c.pid }
func (c *fakeChild) Done() <-chan struct{} { return c.done }
func (c *fakeChild) ExitCode() int { <-c.done; return c.code }

func (c *fakeChild) Terminate() error {
	c.terms.Add(1)
	if c.exitOnTerm {
		c.exit(0)
	}
	return nil
}

func (c *fakeChild) exit(code int) {
	c.closeOnce.Do(func() {
		c.code = code
		close(c.done)
	})
}

type fakeGroup struct {
	child              *fakeChild
	addErr             error
	tracked            []int
	untracked          []int
	untrackedAtRelease []int
	kills              atomic.Int32
	released           atomic.Int32
}

func (g *fakeGroup) AddSelf() error { return g.addErr }
func (g *fakeGroup) Prepare(*exec.Cmd) {}
func (g *fakeGroup) Track(pid int) { g.tracked = append(g.tracked, pid) }
func (g *fakeGroup) Untrack(pid int) { g.untracked = append(g.untracked, pid) }
func (g *fakeGroup) Kill() error { g.kills.Add(1); g.child.exit(137); return nil }

func (g *fakeGroup) Release() error {
	g.released.Add(1)
	g.untrackedAtRelease = append([]int(nil), g.untracked...)
	g.child.exit(137)
	return nil
}

type harness struct {
	cfg   *config.Config
	ctl   *controltest.Recorder
	group *fakeGroup
	child *fakeChild
	bus   *events.Bus
}

func newHarness(exitOnTerm bool) *harness {
	child := newFakeChild(exitOnTerm)
	return &harness{
		cfg:   testConfig(),
		ctl:   controltest.New(),
		group: &fakeGroup{child: child},
		child: child,
	}
}

func (h *harness) runtime() *Runtime {
	return New(Options{
		Config:     h.cfg,
		Controller: h.ctl,
		Logger:     testLogger(),
		Bus:        h.bus,
		NewGroup: func(procgroup.Options) (ProcessGroup, error) {
			return h.group, nil
		},
		Spawn: func(process.Spec, process.Preparer, *slog.Logger) (Child, error) {
			return h.child, nil
		},
	})
}

func (h *harness) runAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.runtime().Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Run to return")
		return nil
	}
}

func (h *harness) awaitRunning(t *testing.T) {
	t.Helper()
	_, ok := h.ctl.WaitFor(control.Running, 2*time.Second)
	require.True(t, ok, "Running never reported")
}

func TestChildExitFirst(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	done := h.runAsync(context.Background())
	h.awaitRunning(t)

	h.child.exit(3)
	require.NoError(t, waitRun(t, done))

	statuses := h.ctl.Statuses()
	require.Equal(t, []control.State{control.StartPending, control.Running, control.Stopped}, h.ctl.States())
	require.Equal(t, control.AcceptStop|control.AcceptShutdown, statuses[1].Accepts)
	require.True(t, statuses[2].Unexpected)
	require.Equal(t, uint32(3), statuses[2].ExitCode)
	require.Zero(t, h.child.terms.Load(), "exited child must not be terminated")
	require.Equal(t, int32(1), h.group.released.Load())
	require.Equal(t, []int{4242}, h.group.tracked)
	require.Equal(t, []int{4242}, h.group.untrackedAtRelease, "reaped child must be untracked before release")
}

func TestStopFirst(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	done := h.runAsync(context.Background())
	h.awaitRunning(t)

	h.ctl.Send(control.Stop)
	require.NoError(t, waitRun(t, done))

	statuses := h.ctl.Statuses()
	require.Equal(t, []control.State{control.StartPending, control.Running, control.StopPending, control.Stopped}, h.ctl.States())
	require.Zero(t, statuses[2].Accepts, "StopPending must accept nothing")
	require.False(t, statuses[3].Unexpected)
	require.Equal(t, int32(1), h.child.terms.Load())
	require.Equal(t, int32(1), h.group.released.Load())
	require.Equal(t, []int{4242}, h.group.untrackedAtRelease, "reaped child must be untracked before release")
}

func TestShutdownIsStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	done := h.runAsync(context.Background())
	h.awaitRunning(t)

	h.ctl.Send(control.Shutdown)
	require.NoError(t, waitRun(t, done))
	require.Equal(t, control.Stopped, h.ctl.States()[3])
}

func TestRepeatedStopTerminatesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(false)
	done := h.runAsync(context.Background())
	h.awaitRunning(t)

	h.ctl.Send(control.Stop)
	_, ok := h.ctl.WaitFor(control.StopPending, 2*time.Second)
	require.True(t, ok)
	h.ctl.Send(control.Stop)
	h.ctl.Send(control.Shutdown)
	h.ctl.Send(control.Stop)
	time.Sleep(50 * time.Millisecond)

	h.child.exit(0)
	require.NoError(t, waitRun(t, done))
	require.Equal(t, int32(1), h.child.terms.Load())
	require.Equal(t, []control.State{control.StartPending, control.Running, control.StopPending, control.Stopped}, h.ctl.States())
}

func TestInterrogateChangesNothing(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	done := h.runAsync(context.Background())
	h.awaitRunning(t)

	h.ctl.Send(control.Interrogate)
	h.ctl.Send(control.Other)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []control.State{control.StartPending, control.Running}, h.ctl.States())

	h.ctl.Send(control.Stop)
	require.NoError(t, waitRun(t, done))
	require.Equal(t, int32(1), h.child.terms.Load())
}

func TestContextCancelIsStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.runAsync(ctx)
	h.awaitRunning(t)

	cancel()
	require.NoError(t, waitRun(t, done))
	require.Equal(t, []control.State{control.StartPending, control.Running, control.StopPending, control.Stopped}, h.ctl.States())
	require.Equal(t, int32(1), h.child.terms.Load())
}

func TestStopTimeoutKillsGroup(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(false)
	h.cfg.Process.StopTimeout.Duration = 50 * time.Millisecond
	done := h.runAsync(context.Background())
	h.awaitRunning(t)

	h.ctl.Send(control.Stop)
	require.NoError(t, waitRun(t, done))
	require.Equal(t, int32(1), h.group.kills.Load())
	require.Equal(t, control.Stopped, h.ctl.States()[3])
}

func TestNoStopTimeoutWaits(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(false)
	done := h.runAsync(context.Background())
	h.awaitRunning(t)

	h.ctl.Send(control.Stop)
	select {
	case err := <-done:
		t.Fatalf("Run returned %v while the program was still running", err)
	case <-time.After(150 * time.Millisecond):
	}
	require.Zero(t, h.group.kills.Load())

	h.child.exit(0)
	require.NoError(t, waitRun(t, done))
}

func TestSpawnErrorReportsOnlyStartPending(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	spawnErr := &process.SpawnError{Op: "start", Err: exec.ErrNotFound}
	rt := New(Options{
		Config:     h.cfg,
		Controller: h.ctl,
		Logger:     testLogger(),
		NewGroup:   func(procgroup.Options) (ProcessGroup, error) { return h.group, nil },
		Spawn: func(process.Spec, process.Preparer, *slog.Logger) (Child, error) {
			return nil, spawnErr
		},
	})

	err := rt.Run(context.Background())
	require.True(t, IsKind(err, SpawnError), "err = %v", err)
	require.ErrorIs(t, err, exec.ErrNotFound)
	require.Equal(t, []control.State{control.StartPending}, h.ctl.States())
	require.Equal(t, int32(1), h.group.released.Load())
}

func TestGroupCreateFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	groupErr := &procgroup.Error{Op: "create", Err: errors.New("quota")}
	spawned := false
	rt := New(Options{
		Config:     h.cfg,
		Controller: h.ctl,
		Logger:     testLogger(),
		NewGroup:   func(procgroup.Options) (ProcessGroup, error) { return nil, groupErr },
		Spawn: func(process.Spec, process.Preparer, *slog.Logger) (Child, error) {
			spawned = true
			return h.child, nil
		},
	})

	err := rt.Run(context.Background())
	require.True(t, IsKind(err, ResourceError), "err = %v", err)
	var pgErr *procgroup.Error
	require.ErrorAs(t, err, &pgErr)
	require.False(t, spawned)
	require.Equal(t, []control.State{control.StartPending}, h.ctl.States())
}

func TestAddSelfFailureReleasesGroup(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	h.group.addErr = &procgroup.Error{Op: "assign", Err: errors.New("denied")}

	err := h.runtime().Run(context.Background())
	require.True(t, IsKind(err, ResourceError), "err = %v", err)
	require.Equal(t, int32(1), h.group.released.Load())
	require.Equal(t, []control.State{control.StartPending}, h.ctl.States())
}

func TestControlErrorOnRunningKillsTree(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	h.ctl.FailOn(control.Running, errors.New("scm gone"))

	err := h.runtime().Run(context.Background())
	require.True(t, IsKind(err, ControlError), "err = %v", err)
	var ctlErr *control.Error
	require.ErrorAs(t, err, &ctlErr)
	require.Equal(t, int32(1), h.group.released.Load())
	require.Equal(t, []control.State{control.StartPending}, h.ctl.States())
}

func TestControlErrorOnStartPending(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	h.ctl.FailOn(control.StartPending, errors.New("scm gone"))
	created := false
	rt := New(Options{
		Config:     h.cfg,
		Controller: h.ctl,
		Logger:     testLogger(),
		NewGroup: func(procgroup.Options) (ProcessGroup, error) {
			created = true
			return h.group, nil
		},
	})

	err := rt.Run(context.Background())
	require.True(t, IsKind(err, ControlError), "err = %v", err)
	require.False(t, created)
	require.Empty(t, h.ctl.States())
}

func TestReportRejectsRegression(t *testing.T) {
	h := newHarness(true)
	rt := h.runtime()

	require.NoError(t, rt.report(control.Status{State: control.StartPending}))
	require.NoError(t, rt.report(control.Status{State: control.Running}))
	require.ErrorIs(t, rt.report(control.Status{State: control.Running}), ErrStateRegression)
	require.ErrorIs(t, rt.report(control.Status{State: control.StartPending}), ErrStateRegression)
	require.Equal(t, []control.State{control.StartPending, control.Running}, h.ctl.States())
}

func TestPriorityClassPassedToGroup(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(true)
	pc := procgroup.PriorityBelowNormal
	h.cfg.JobObject = &config.JobObject{PriorityClass: &pc}
	var got procgroup.Options
	rt := New(Options{
		Config:     h.cfg,
		Controller: h.ctl,
		Logger:     testLogger(),
		NewGroup: func(o procgroup.Options) (ProcessGroup, error) {
			got = o
			return h.group, nil
		},
		Spawn: func(process.Spec, process.Preparer, *slog.Logger) (Child, error) {
			return h.child, nil
		},
	})

	h.child.exit(0)
	require.NoError(t, rt.Run(context.Background()))
	require.NotNil(t, got.PriorityClass)
	require.Equal(t, procgroup.PriorityBelowNormal, *got.PriorityClass)
}

func TestLifecycleEventsPublished(t *testing.T) {
	h := newHarness(true)
	h.bus = events.New()

	states := make(chan control.State, 8)
	exits := make(chan events.ChildExitedEvent, 1)
	unsubState := h.bus.Subscribe(func(e events.StateChangedEvent) { states <- e.To })
	defer unsubState()
	unsubExit := h.bus.Subscribe(func(e events.ChildExitedEvent) { exits <- e })
	defer unsubExit()

	rt := h.runtime()
	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()
	h.awaitRunning(t)
	h.ctl.Send(control.Stop)
	require.NoError(t, waitRun(t, done))

	for _, want := range []control.State{control.StartPending, control.Running, control.StopPending, control.Stopped} {
		select {
		case got := <-states:
			require.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %v", want)
		}
	}
	select {
	case e := <-exits:
		require.True(t, e.Requested)
		require.Equal(t, rt.RunID(), e.RunID)
		require.Equal(t, 4242, e.PID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for exit event")
	}
}
