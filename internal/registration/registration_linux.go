//go:build linux

package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"

	"github.com/smazurov/svcwrap/internal/logging"
	"github.com/smazurov/svcwrap/internal/systemd"
)

// unitDir is where administrator units live.
var unitDir = "/etc/systemd/system"

func unitName(name string) string {
	return name + ".service"
}

// Register writes the unit file, reloads systemd and enables the unit.
func Register(ctx context.Context, info Info) error {
	logger := logging.GetLogger("registration")
	path := filepath.Join(unitDir, unitName(info.Name))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("register %s: unit %s already exists", info.Name, path)
	}

	data, err := renderUnit(info)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("register %s: %w", info.Name, err)
	}
	logger.Info("Unit written", "path", path)

	m, err := systemd.NewManager(ctx)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.Name, err)
	}
	defer m.Close()
	if err := m.Reload(ctx); err != nil {
		return fmt.Errorf("register %s: reload: %w", info.Name, err)
	}
	if err := m.Enable(ctx, path); err != nil {
		return fmt.Errorf("register %s: enable: %w", info.Name, err)
	}
	logger.Info("Service registered", "service", info.Name)
	return nil
}

// Unregister stops and disables the unit, removes its file and reloads.
func Unregister(ctx context.Context, name string) error {
	logger := logging.GetLogger("registration")
	path := filepath.Join(unitDir, unitName(name))

	m, err := systemd.NewManager(ctx)
	if err != nil {
		return fmt.Errorf("unregister %s: %w", name, err)
	}
	defer m.Close()

	if err := m.StopUnit(ctx, unitName(name)); err != nil {
		logger.Warn("Failed to stop unit", "unit", unitName(name), "error", err)
	}
	if err := m.Disable(ctx, unitName(name)); err != nil {
		return fmt.Errorf("unregister %s: disable: %w", name, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unregister %s: %w", name, err)
	}
	if err := m.Reload(ctx); err != nil {
		return fmt.Errorf("unregister %s: reload: %w", name, err)
	}
	logger.Info("Service unregistered", "service", name)
	return nil
}

// State reports the unit's ActiveState.
func State(ctx context.Context, name string) (string, error) {
	m, err := systemd.NewManager(ctx)
	if err != nil {
		return "", err
	}
	defer m.Close()
	return m.ActiveState(ctx, unitName(name))
}

// renderUnit produces the unit file. The wrapper signals readiness with
// sd_notify and stops the program itself, so systemd only signals the main
// process first and restarts nothing.
func renderUnit(info Info) ([]byte, error) {
	description := info.DisplayName
	if info.Description != "" {
		description = info.DisplayName + " - " + info.Description
	}

	execStart := make([]string, 0, len(info.Args)+1)
	for _, arg := range append([]string{info.Executable}, info.Args...) {
		execStart = append(execStart, quoteExecArg(arg))
	}

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", description),
		unit.NewUnitOption("Unit", "After", "network.target"),
		unit.NewUnitOption("Service", "Type", "notify"),
		unit.NewUnitOption("Service", "NotifyAccess", "main"),
		unit.NewUnitOption("Service", "ExecStart", strings.Join(execStart, " ")),
		unit.NewUnitOption("Service", "KillMode", "mixed"),
		unit.NewUnitOption("Service", "Restart", "no"),
		unit.NewUnitOption("Install", "WantedBy", "multi-user.target"),
	}
	return io.ReadAll(unit.Serialize(opts))
}

// quoteExecArg quotes an ExecStart word when systemd would otherwise split
// or expand it.
func quoteExecArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"'\\$%;") {
		return arg
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `$$`, `%`, `%%`)
	return `"` + r.Replace(arg) + `"`
}
