//go:build linux

package procgroup

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gone reports whether pid no longer runs. Zombies count as gone.
func gone(pid int) bool {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return true
	}
	stat, err := p.Stat()
	if err != nil {
		return true
	}
	return stat.State == "Z"
}

// startMember spawns script through g and returns the command plus the pid
// the script wrote to $1.
func startMember(t *testing.T, g *Group, script string) (*exec.Cmd, <-chan struct{}, int) {
	t.Helper()

	pidFile := filepath.Join(t.TempDir(), "descendant.pid")
	cmd := exec.Command("sh", "-c", script, "sh", pidFile)
	g.Prepare(cmd)
	require.NoError(t, cmd.Start())
	g.Track(cmd.Process.Pid)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	var descendant int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		descendant, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "descendant never reported its pid")

	return cmd, done, descendant
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for member to be reaped")
	}
}

func TestReleaseKillsGrandchild(t *testing.T) {
	g, err := New(Options{Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, g.AddSelf())

	cmd, done, grandchild := startMember(t, g, `sleep 300 & echo $! > "$1"; wait`)
	require.False(t, gone(grandchild))

	require.NoError(t, g.Release())
	waitClosed(t, done)

	require.Eventually(t, func() bool {
		return gone(cmd.Process.Pid) && gone(grandchild)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReleaseKillsDescendantThatLeftProcessGroup(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}

	g, err := New(Options{Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, g.AddSelf())

	// The grandchild gets its own session, so only the parent chain ties it to the group.
	_, done, escaped := startMember(t, g, `setsid sleep 300 & echo $! > "$1"; wait`)

	require.NoError(t, g.Release())
	waitClosed(t, done)

	require.Eventually(t, func() bool { return gone(escaped) }, 2*time.Second, 10*time.Millisecond)
}

func TestReleaseKillsOrphan(t *testing.T) {
	g, err := New(Options{Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, g.AddSelf())

	// The member exits at once, leaving its background child to be
	// reparented to the wrapper.
	cmd, done, orphan := startMember(t, g, `sleep 300 & echo $! > "$1"`)
	waitClosed(t, done)
	g.Untrack(cmd.Process.Pid)
	require.False(t, gone(orphan))

	require.NoError(t, g.Release())
	require.Eventually(t, func() bool { return gone(orphan) }, 2*time.Second, 10*time.Millisecond)
}

func TestUntrackedPidIsNotKilled(t *testing.T) {
	// No AddSelf: only tracked pids are members of this group.
	g, err := New(Options{Logger: testLogger()})
	require.NoError(t, err)

	// Stands in for an unrelated process that reused a reaped member's pid.
	bystander := exec.Command("sleep", "300")
	bystander.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, bystander.Start())
	t.Cleanup(func() {
		_ = bystander.Process.Kill()
		_ = bystander.Wait()
	})

	pid := bystander.Process.Pid
	g.Track(pid)
	g.Untrack(pid)
	require.NotContains(t, g.tracked, pid)

	require.NoError(t, g.Release())
	require.False(t, gone(pid))
}

func TestPrepareSetsProcessAttributes(t *testing.T) {
	g, err := New(Options{Logger: testLogger()})
	require.NoError(t, err)

	cmd := exec.Command("true")
	cmd.SysProcAttr = &syscall.SysProcAttr{Noctty: true}
	g.Prepare(cmd)

	require.True(t, cmd.SysProcAttr.Setpgid)
	require.Equal(t, syscall.SIGKILL, cmd.SysProcAttr.Pdeathsig)
	require.True(t, cmd.SysProcAttr.Noctty, "existing attributes must be kept")
}

func TestKillThenReleaseIsIdempotent(t *testing.T) {
	g, err := New(Options{Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, g.AddSelf())

	cmd, done, _ := startMember(t, g, `echo $$ > "$1"; exec sleep 300`)

	require.NoError(t, g.Kill())
	waitClosed(t, done)
	require.True(t, gone(cmd.Process.Pid))

	require.NoError(t, g.Release())
	require.NoError(t, g.Release())
}

func TestNormalPriorityNeedsNoPrivilege(t *testing.T) {
	p, err := procfs.Self()
	require.NoError(t, err)
	stat, err := p.Stat()
	require.NoError(t, err)
	if stat.Nice != 0 {
		t.Skipf("test process already runs at nice %d", stat.Nice)
	}

	normal := PriorityNormal
	_, err = New(Options{PriorityClass: &normal, Logger: testLogger()})
	require.NoError(t, err)
}
