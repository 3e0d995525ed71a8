// Package service runs one supervised program as an OS service: it reports
// lifecycle states to the service manager, keeps the program's whole process
// tree in a process group and tears the tree down on every exit path.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/svcwrap/internal/config"
	"github.com/smazurov/svcwrap/internal/control"
	"github.com/smazurov/svcwrap/internal/events"
	"github.com/smazurov/svcwrap/internal/logging"
	"github.com/smazurov/svcwrap/internal/process"
	"github.com/smazurov/svcwrap/internal/procgroup"
)

// ProcessGroup is the subset of *procgroup.Group the runtime drives.
type ProcessGroup interface {
	AddSelf() error
	Prepare(cmd *exec.Cmd)
	Track(pid int)
	Untrack(pid int)
	Kill() error
	Release() error
}

// Child is the subset of *process.Handle the runtime drives.
type Child interface {
	Pid() int
	Done() <-chan struct{}
	ExitCode() int
	Terminate() error
}

// Options configures a Runtime. Config and Controller are required.
type Options struct {
	Config     *config.Config
	Controller control.Controller
	Logger     *slog.Logger
	Bus        *events.Bus

	NewGroup func(procgroup.Options) (ProcessGroup, error)
	Spawn    func(process.Spec, process.Preparer, *slog.Logger) (Child, error)
}

// Runtime executes one run of the service. It is not reusable.
type Runtime struct {
	cfg      *config.Config
	ctl      control.Controller
	logger   *slog.Logger
	bus      *events.Bus
	newGroup func(procgroup.Options) (ProcessGroup, error)
	spawn    func(process.Spec, process.Preparer, *slog.Logger) (Child, error)

	runID string
	state control.State
}

// New creates a Runtime, filling unset hooks with the real process group
// and spawner.
func New(opts Options) *Runtime {
	r := &Runtime{
		cfg:      opts.Config,
		ctl:      opts.Controller,
		logger:   opts.Logger,
		bus:      opts.Bus,
		newGroup: opts.NewGroup,
		spawn:    opts.Spawn,
		runID:    uuid.NewString(),
	}
	if r.logger == nil {
		r.logger = logging.GetLogger("service")
	}
	r.logger = r.logger.With("service", r.cfg.Registration.Name, "run_id", r.runID)
	if r.newGroup == nil {
		r.newGroup = func(o procgroup.Options) (ProcessGroup, error) {
			g, err := procgroup.New(o)
			if err != nil {
				return nil, err
			}
			return g, nil
		}
	}
	if r.spawn == nil {
		r.spawn = func(spec process.Spec, p process.Preparer, l *slog.Logger) (Child, error) {
			h, err := process.Spawn(spec, p, l)
			if err != nil {
				return nil, err
			}
			return h, nil
		}
	}
	return r
}

// RunID identifies this run in logs and events.
func (r *Runtime) RunID() string {
	return r.runID
}

// Run starts the program and blocks until it has exited and Stopped has
// been reported, or until a fatal error. Cancelling ctx is a stop request.
// The process group is released before Run returns.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.report(control.Status{State: control.StartPending}); err != nil {
		return err
	}

	groupOpts := procgroup.Options{Logger: logging.GetLogger("procgroup")}
	if r.cfg.JobObject != nil {
		groupOpts.PriorityClass = r.cfg.JobObject.PriorityClass
	}
	group, err := r.newGroup(groupOpts)
	if err != nil {
		r.logger.Error("Failed to create process group", "error", err)
		return &Error{Kind: ResourceError, Err: err}
	}
	defer func() {
		if relErr := group.Release(); relErr != nil {
			r.logger.Warn("Failed to release process group", "error", relErr)
		}
	}()

	if err := group.AddSelf(); err != nil {
		r.logger.Error("Failed to join process group", "error", err)
		return &Error{Kind: ResourceError, Err: err}
	}

	child, err := r.spawn(process.SpecFromConfig(r.cfg.Process), group, logging.GetLogger("process").With("run_id", r.runID))
	if err != nil {
		r.logger.Error("Failed to start program", "binary", r.cfg.Process.Binary, "error", err)
		return &Error{Kind: SpawnError, Err: err}
	}
	pid := child.Pid()
	group.Track(pid)
	r.bus.Publish(events.ChildStartedEvent{
		Service:   r.cfg.Registration.Name,
		RunID:     r.runID,
		PID:       pid,
		Timestamp: time.Now(),
	})

	if err := r.report(control.Status{
		State:   control.Running,
		Accepts: control.AcceptStop | control.AcceptShutdown,
	}); err != nil {
		return err
	}
	r.logger.Info("Service running", "pid", pid)

	return r.supervise(ctx, group, child)
}

func (r *Runtime) supervise(ctx context.Context, group ProcessGroup, child Child) error {
	for {
		select {
		case <-child.Done():
			group.Untrack(child.Pid())
			code := child.ExitCode()
			r.logger.Warn("Program exited on its own", "exit_code", code)
			r.publishExit(child, code, false)
			return r.report(control.Status{
				State:      control.Stopped,
				ExitCode:   exitCode(code),
				Unexpected: true,
			})

		case ev := <-r.ctl.Events():
			switch {
			case ev.IsStop():
				r.logger.Info("Stop requested", "event", ev.String())
				return r.stop(group, child)
			case ev == control.Interrogate:
				r.logger.Debug("Interrogated", "state", r.state.String())
			default:
				r.logger.Debug("Ignoring control event", "event", ev.String())
			}

		case <-ctx.Done():
			r.logger.Info("Stop requested", "cause", context.Cause(ctx))
			return r.stop(group, child)
		}
	}
}

// stop terminates the program exactly once and waits for it. With a stop
// timeout configured, a program still alive after it is killed together
// with its whole tree.
func (r *Runtime) stop(group ProcessGroup, child Child) error {
	if err := r.report(control.Status{State: control.StopPending}); err != nil {
		return err
	}

	if err := child.Terminate(); err != nil {
		r.logger.Warn("Failed to terminate program", "pid", child.Pid(), "error", err)
	}

	var escalate <-chan time.Time
	if timeout := r.cfg.Process.StopTimeout.Duration; timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		escalate = timer.C
	}

	for {
		select {
		case <-child.Done():
			group.Untrack(child.Pid())
			code := child.ExitCode()
			r.logger.Info("Program stopped", "exit_code", code)
			r.publishExit(child, code, true)
			return r.report(control.Status{State: control.Stopped})

		case ev := <-r.ctl.Events():
			r.logger.Debug("Already stopping", "event", ev.String())

		case <-escalate:
			escalate = nil
			r.logger.Warn("Program ignored stop request, killing process group",
				"timeout", r.cfg.Process.StopTimeout.Duration)
			if err := group.Kill(); err != nil {
				r.logger.Error("Failed to kill process group", "error", err)
			}
		}
	}
}

// report forwards a status after checking that the state advances.
func (r *Runtime) report(status control.Status) error {
	if status.State <= r.state {
		return fmt.Errorf("report %s after %s: %w", status.State, r.state, ErrStateRegression)
	}
	if err := r.ctl.SetStatus(status); err != nil {
		r.logger.Error("Failed to report status", "state", status.State.String(), "error", err)
		return &Error{Kind: ControlError, Err: err}
	}

	from := r.state
	r.state = status.State
	r.logger.Debug("State changed", "from", from.String(), "to", status.State.String())
	r.bus.Publish(events.StateChangedEvent{
		Service:    r.cfg.Registration.Name,
		RunID:      r.runID,
		From:       from,
		To:         status.State,
		Unexpected: status.Unexpected,
		ExitCode:   status.ExitCode,
		Timestamp:  time.Now(),
	})
	return nil
}

func (r *Runtime) publishExit(child Child, code int, requested bool) {
	r.bus.Publish(events.ChildExitedEvent{
		Service:   r.cfg.Registration.Name,
		RunID:     r.runID,
		PID:       child.Pid(),
		ExitCode:  code,
		Requested: requested,
		Timestamp: time.Now(),
	})
}

func exitCode(code int) uint32 {
	if code < 0 || int64(code) > math.MaxUint32 {
		return 1
	}
	return uint32(code)
}
