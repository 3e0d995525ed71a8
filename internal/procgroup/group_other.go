//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package procgroup

import (
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Group is a best-effort process group: only members that stay in the
// supervised program's process group are killed.
type Group struct {
	mu       sync.Mutex
	pgids    map[int]bool
	released bool
	logger   *slog.Logger
}

// New creates a group and applies the priority class to the wrapper, which
// children inherit.
func New(opts Options) (*Group, error) {
	if opts.PriorityClass != nil {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, opts.PriorityClass.niceValue()); err != nil {
			return nil, &Error{Op: "set priority class " + opts.PriorityClass.String(), Err: err}
		}
	}
	return &Group{pgids: make(map[int]bool), logger: opts.logger()}, nil
}

// AddSelf is a no-op on this platform.
func (g *Group) AddSelf() error { return nil }

// Prepare starts cmd in its own process group.
func (g *Group) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Track records the process group led by pid.
func (g *Group) Track(pid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pgids[pid] = true
}

// Untrack forgets the process group led by a reaped member. The group id is
// the only handle on what the member left behind, so the group is killed
// first, while its remaining members still keep the id from being reused.
func (g *Group) Untrack(pid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.pgids[pid] {
		return
	}
	delete(g.pgids, pid)
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		g.logger.Debug("Process group kill failed", "pgid", pid, "error", err)
	}
}

// Kill signals every tracked process group.
func (g *Group) Kill() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for pgid := range g.pgids {
		if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &Error{Op: "kill", Err: err}
	}
	return nil
}

// Release kills the remaining members. Calling it again is a no-op.
func (g *Group) Release() error {
	g.mu.Lock()
	released := g.released
	g.released = true
	g.mu.Unlock()
	if released {
		return nil
	}
	return g.Kill()
}
