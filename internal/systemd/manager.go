//go:build linux

// Package systemd talks to the system instance of systemd over D-Bus.
package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager handles systemd unit lifecycle operations via D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the system bus. Unit file changes need root.
func NewManager(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

// Reload makes systemd re-read unit files.
func (m *Manager) Reload(ctx context.Context) error {
	return m.conn.ReloadContext(ctx)
}

// Enable links a unit file into its install targets.
func (m *Manager) Enable(ctx context.Context, unitPath string) error {
	_, _, err := m.conn.EnableUnitFilesContext(ctx, []string{unitPath}, false, true)
	return err
}

// Disable removes the install links of a unit.
func (m *Manager) Disable(ctx context.Context, unitName string) error {
	_, err := m.conn.DisableUnitFilesContext(ctx, []string{unitName}, false)
	return err
}

// StopUnit stops a unit and waits for the job to finish.
func (m *Manager) StopUnit(ctx context.Context, unitName string) error {
	done := make(chan string, 1)
	if _, err := m.conn.StopUnitContext(ctx, unitName, "replace", done); err != nil {
		return err
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("stop %s: job %s", unitName, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveState retrieves the ActiveState property of a unit.
func (m *Manager) ActiveState(ctx context.Context, unitName string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unitName, "ActiveState")
	if err != nil {
		return "", err
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return prop.Value.String(), nil
	}
	return state, nil
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
