package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/smazurov/svcwrap/internal/config"
	"github.com/smazurov/svcwrap/internal/logging"
)

// Spec describes one launch of the supervised program.
type Spec struct {
	Binary           string
	Args             []string
	WorkingDirectory string
	Environment      map[string]string
	Stdout           config.OutputStream
	Stderr           config.OutputStream
}

// SpecFromConfig builds a Spec from the [process] section.
func SpecFromConfig(p config.Process) Spec {
	return Spec{
		Binary:           p.Binary,
		Args:             p.Args,
		WorkingDirectory: p.WorkingDirectory,
		Environment:      p.Environment,
		Stdout:           p.Stdout,
		Stderr:           p.Stderr,
	}
}

// Preparer adjusts a command before it is started, typically to place the
// child into a process group.
type Preparer interface {
	Prepare(cmd *exec.Cmd)
}

// SpawnError reports why the child could not be started.
type SpawnError struct {
	Op  string // "mkdir", "open stdout", "open stderr" or "start"
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn: %s: %v", e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Handle is a running (or exited) child.
type Handle struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	done     chan struct{}
	err      error
	exitCode int

	termOnce sync.Once
	termErr  error
}

// Spawn starts the program described by spec. group may be nil.
// The parent's copies of output files are closed once the child holds them.
func Spawn(spec Spec, group Preparer, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = logging.GetLogger("process")
	}

	if spec.WorkingDirectory != "" {
		if err := os.MkdirAll(spec.WorkingDirectory, 0o755); err != nil {
			return nil, &SpawnError{Op: "mkdir", Err: err}
		}
	}

	stdout, err := OpenOutput(spec.Stdout)
	if err != nil {
		return nil, &SpawnError{Op: "open stdout", Err: err}
	}
	stderr, err := OpenOutput(spec.Stderr)
	if err != nil {
		closeFile(stdout)
		return nil, &SpawnError{Op: "open stderr", Err: err}
	}

	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.WorkingDirectory
	cmd.Env = mergeEnv(os.Environ(), spec.Environment)
	// A nil *os.File must not reach exec.Cmd as a non-nil io.Writer.
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}
	if group != nil {
		group.Prepare(cmd)
	}

	startErr := cmd.Start()
	closeFile(stdout)
	closeFile(stderr)
	if startErr != nil {
		logger.Error("Failed to start process", "binary", spec.Binary, "error", startErr)
		return nil, &SpawnError{Op: "start", Err: startErr}
	}

	h := &Handle{
		cmd:    cmd,
		logger: logger.With("pid", cmd.Process.Pid),
		done:   make(chan struct{}),
	}
	h.logger.Info("Process started", "binary", spec.Binary, "args", spec.Args)

	go h.wait()
	return h, nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.err = err
	h.exitCode = exitCodeFromError(err)
	if err != nil && !isExitError(err) {
		h.logger.Error("Waiting for process failed", "error", err)
	}
	h.logger.Info("Process exited", "exit_code", h.exitCode)
	close(h.done)
}

// Pid returns the child's process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Done is closed once the child has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode is valid after Done is closed. A child killed by a signal
// reports 128 plus the signal number.
func (h *Handle) ExitCode() int {
	<-h.done
	return h.exitCode
}

// Err returns the error from waiting on the child, nil for a zero exit.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Terminate requests a graceful stop. Only the first call signals the child;
// later calls return the first result.
func (h *Handle) Terminate() error {
	h.termOnce.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		h.logger.Debug("Terminating process")
		if err := terminate(h.cmd); err != nil && !isGone(err) {
			h.termErr = fmt.Errorf("terminate pid %d: %w", h.Pid(), err)
		}
	})
	return h.termErr
}

// Kill stops the child immediately.
func (h *Handle) Kill() error {
	if err := h.cmd.Process.Kill(); err != nil && !isGone(err) {
		return fmt.Errorf("kill pid %d: %w", h.Pid(), err)
	}
	return nil
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return signaledExitCode(exitErr)
	}
	return 1
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

func closeFile(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}
