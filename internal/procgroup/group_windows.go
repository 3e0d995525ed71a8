//go:build windows

package procgroup

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Win32 priority class values for JOBOBJECT_BASIC_LIMIT_INFORMATION.PriorityClass.
const (
	idlePriorityClass        = 0x00000040
	belowNormalPriorityClass = 0x00004000
	normalPriorityClass      = 0x00000020
	aboveNormalPriorityClass = 0x00008000
	highPriorityClass        = 0x00000080
	realtimePriorityClass    = 0x00000100
)

const (
	jobObjectBasicProcessIDList = 3
	maxJobProcessIDs            = 1024
)

// jobProcessIDList mirrors JOBOBJECT_BASIC_PROCESS_ID_LIST with a fixed capacity.
type jobProcessIDList struct {
	NumberOfAssignedProcesses uint32
	NumberOfProcessIdsInList  uint32
	ProcessIDList             [maxJobProcessIDs]uintptr
}

// Group is a Windows job object with kill-on-close always set.
type Group struct {
	mu       sync.Mutex
	job      windows.Handle
	limits   windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION
	self     uint32
	list     func() ([]uint32, error)
	released bool
	logger   *slog.Logger
}

// New creates the job object and applies kill-on-close and the priority
// class limit. Limits are not retroactive, so this runs before any member exists.
func New(opts Options) (*Group, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, &Error{Op: "create job object", Err: err}
	}

	g := &Group{
		job:    job,
		self:   windows.GetCurrentProcessId(),
		logger: opts.logger(),
	}
	g.list = g.otherMembers
	g.limits.BasicLimitInformation.LimitFlags = windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
	if opts.PriorityClass != nil {
		g.limits.BasicLimitInformation.LimitFlags |= windows.JOB_OBJECT_LIMIT_PRIORITY_CLASS
		g.limits.BasicLimitInformation.PriorityClass = win32PriorityClass(*opts.PriorityClass)
	}
	if err := g.applyLimits(); err != nil {
		_ = windows.CloseHandle(job)
		return nil, &Error{Op: "set job limits", Err: err}
	}
	return g, nil
}

func (g *Group) applyLimits() error {
	_, err := windows.SetInformationJobObject(
		g.job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&g.limits)),
		uint32(unsafe.Sizeof(g.limits)),
	)
	return err
}

func win32PriorityClass(p PriorityClass) uint32 {
	switch p {
	case PriorityIdle:
		return idlePriorityClass
	case PriorityBelowNormal:
		return belowNormalPriorityClass
	case PriorityAboveNormal:
		return aboveNormalPriorityClass
	case PriorityHigh:
		return highPriorityClass
	case PriorityRealtime:
		return realtimePriorityClass
	default:
		return normalPriorityClass
	}
}

// AddSelf assigns the wrapper to the job. Membership is inherited only by
// processes created by a member, so this must precede the spawn.
func (g *Group) AddSelf() error {
	if err := windows.AssignProcessToJobObject(g.job, windows.CurrentProcess()); err != nil {
		return &Error{Op: "add self", Err: err}
	}
	return nil
}

// Prepare is a no-op: children inherit the wrapper's job.
func (g *Group) Prepare(*exec.Cmd) {}

// Track is a no-op: the job itself knows its members.
func (g *Group) Track(int) {}

// Untrack is a no-op: the job drops exited members on its own.
func (g *Group) Untrack(int) {}

// Kill terminates every member except the wrapper itself.
func (g *Group) Kill() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killLocked()
}

// Release terminates every other member and closes the job. Kill-on-close
// is cleared right before the close because the wrapper is a member too.
// When members may have survived, the job is left open with kill-on-close
// set, so the kernel kills them once the wrapper exits.
func (g *Group) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true

	if err := g.killLocked(); err != nil {
		g.logger.Error("Job members may have survived, keeping job open until exit", "error", err)
		return err
	}

	g.limits.BasicLimitInformation.LimitFlags &^= windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
	if err := g.applyLimits(); err != nil {
		// Closing now would take the wrapper down with the job.
		return &Error{Op: "clear kill-on-close", Err: err}
	}
	if err := windows.CloseHandle(g.job); err != nil {
		return &Error{Op: "close job object", Err: err}
	}
	return nil
}

func (g *Group) killLocked() error {
	for sweep := 0; sweep < maxSweeps; sweep++ {
		pids, err := g.list()
		if err != nil {
			return &Error{Op: "list members", Err: err}
		}
		if len(pids) == 0 {
			return nil
		}
		for _, pid := range pids {
			if err := terminatePID(pid); err != nil {
				g.logger.Warn("Failed to terminate job member", "pid", pid, "error", err)
			}
		}
		time.Sleep(sweepInterval)
	}
	return &Error{Op: "kill", Err: fmt.Errorf("members still alive after %d sweeps", maxSweeps)}
}

func (g *Group) otherMembers() ([]uint32, error) {
	var list jobProcessIDList
	err := windows.QueryInformationJobObject(
		g.job,
		jobObjectBasicProcessIDList,
		uintptr(unsafe.Pointer(&list)),
		uint32(unsafe.Sizeof(list)),
		nil,
	)
	return list.others(g.self, err)
}

// others returns the listed members except self. ERROR_MORE_DATA means the
// job holds more processes than the list has room for; the listed prefix is
// still valid and the rest are found by a later sweep.
func (l *jobProcessIDList) others(self uint32, queryErr error) ([]uint32, error) {
	if queryErr != nil && !errors.Is(queryErr, windows.ERROR_MORE_DATA) {
		return nil, queryErr
	}

	n := min(l.NumberOfProcessIdsInList, maxJobProcessIDs)
	pids := make([]uint32, 0, n)
	for i := range n {
		if pid := uint32(l.ProcessIDList[i]); pid != self {
			pids = append(pids, pid)
		}
	}
	if queryErr != nil && len(pids) == 0 {
		return nil, queryErr
	}
	return pids, nil
}

func terminatePID(pid uint32) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		// Already gone.
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return nil
		}
		return err
	}
	defer windows.CloseHandle(h)
	return windows.TerminateProcess(h, 1)
}
