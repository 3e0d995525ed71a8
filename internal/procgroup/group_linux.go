//go:build linux

package procgroup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// Group is a Linux process group backed by subreaping and /proc sweeps.
type Group struct {
	mu       sync.Mutex
	fs       procfs.FS
	self     int
	reaper   bool
	tracked  map[int]bool
	released bool
	logger   *slog.Logger
}

// New creates a group and applies the priority class. The class is set on
// the wrapper's own threads so that every child inherits it at fork time.
func New(opts Options) (*Group, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, &Error{Op: "open procfs", Err: err}
	}

	g := &Group{
		fs:      fs,
		self:    os.Getpid(),
		tracked: make(map[int]bool),
		logger:  opts.logger(),
	}

	if opts.PriorityClass != nil {
		if err := setProcessNice(opts.PriorityClass.niceValue()); err != nil {
			return nil, &Error{Op: "set priority class " + opts.PriorityClass.String(), Err: err}
		}
		g.logger.Debug("Priority class applied", "class", opts.PriorityClass.String())
	}
	return g, nil
}

// setProcessNice sets the nice value of every thread of the current process.
// Linux nice values are per thread and new threads inherit from their creator,
// so a second pass catches threads created during the first.
func setProcessNice(nice int) error {
	for range 2 {
		entries, err := os.ReadDir("/proc/self/task")
		if err != nil {
			return err
		}
		for _, e := range entries {
			tid, convErr := strconv.Atoi(e.Name())
			if convErr != nil {
				continue
			}
			if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil && !errors.Is(err, unix.ESRCH) {
				return err
			}
		}
	}
	return nil
}

// AddSelf makes the wrapper a child subreaper so that descendants orphaned by
// the supervised program are reparented to it instead of to init.
func (g *Group) AddSelf() error {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return &Error{Op: "add self", Err: err}
	}
	g.mu.Lock()
	g.reaper = true
	g.mu.Unlock()
	return nil
}

// Prepare starts cmd in a new process group that dies with the wrapper.
// Pdeathsig fires when the forking thread exits, not the process, so cmd
// must not be started from a goroutine locked to a thread that later exits.
func (g *Group) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}

// Track records a member started with Prepare. Its pid is also its process group id.
func (g *Group) Track(pid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracked[pid] = true
}

// Untrack forgets a member once it has been reaped, so that a recycled pid
// or process group id is never mistaken for it. Processes it left behind
// were reparented to the wrapper and are still found as orphans.
func (g *Group) Untrack(pid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tracked, pid)
}

// Kill terminates every living member.
func (g *Group) Kill() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killLocked()
}

// Release kills every remaining member and reaps orphans that were
// reparented to the wrapper. Calling it again is a no-op.
func (g *Group) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true

	err := g.killLocked()
	g.reapOrphansLocked()
	return err
}

func (g *Group) killLocked() error {
	for sweep := 0; sweep < maxSweeps; sweep++ {
		for pgid := range g.tracked {
			if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				g.logger.Debug("Process group kill failed", "pgid", pgid, "error", err)
			}
		}

		live, _, err := g.membersLocked()
		if err != nil {
			return &Error{Op: "list members", Err: err}
		}
		if len(live) == 0 {
			return nil
		}
		for _, pid := range live {
			if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				g.logger.Warn("Failed to kill group member", "pid", pid, "error", err)
			}
		}
		g.logger.Debug("Killed group members", "count", len(live), "sweep", sweep)
		time.Sleep(sweepInterval)
	}

	live, _, err := g.membersLocked()
	if err != nil {
		return &Error{Op: "list members", Err: err}
	}
	if len(live) > 0 {
		return &Error{Op: "kill", Err: fmt.Errorf("%d members still alive after %d sweeps", len(live), maxSweeps)}
	}
	return nil
}

// reapOrphansLocked collects zombies reparented to the wrapper. Tracked
// members are left to the goroutine waiting on them.
func (g *Group) reapOrphansLocked() {
	_, zombies, err := g.membersLocked()
	if err != nil {
		return
	}
	for _, pid := range zombies {
		var ws unix.WaitStatus
		if _, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil); err != nil {
			g.logger.Debug("Failed to reap orphan", "pid", pid, "error", err)
		}
	}
}

type procInfo struct {
	ppid   int
	pgrp   int
	zombie bool
}

// membersLocked returns the live members and the zombie orphans owned by the wrapper.
func (g *Group) membersLocked() (live, zombies []int, err error) {
	procs, err := g.fs.AllProcs()
	if err != nil {
		return nil, nil, err
	}

	infos := make(map[int]procInfo, len(procs))
	for _, p := range procs {
		stat, statErr := p.Stat()
		if statErr != nil {
			// Exited between listing and reading.
			continue
		}
		infos[p.PID] = procInfo{ppid: stat.PPID, pgrp: stat.PGRP, zombie: stat.State == "Z"}
	}

	member := make(map[int]bool)
	for pid, info := range infos {
		if pid == g.self {
			continue
		}
		if g.tracked[pid] || g.tracked[info.pgrp] || (g.reaper && info.ppid == g.self) {
			member[pid] = true
		}
	}

	// Close over descendants; setsid() moves a process out of the group
	// but not out of its parent chain.
	for changed := true; changed; {
		changed = false
		for pid, info := range infos {
			if !member[pid] && pid != g.self && member[info.ppid] {
				member[pid] = true
				changed = true
			}
		}
	}

	for pid := range member {
		info := infos[pid]
		switch {
		case !info.zombie:
			live = append(live, pid)
		case info.ppid == g.self && !g.tracked[pid]:
			zombies = append(zombies, pid)
		}
	}
	return live, zombies, nil
}
