//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sys/windows"
)

// terminate has no graceful form for an arbitrary console-less program;
// TerminateProcess is the request.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, windows.ERROR_ACCESS_DENIED)
}

func signaledExitCode(*exec.ExitError) int {
	return 1
}
