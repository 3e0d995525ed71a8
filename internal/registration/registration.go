// Package registration installs and removes the wrapper as an OS service.
package registration

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/smazurov/svcwrap/internal/config"
	"github.com/smazurov/svcwrap/internal/logging"
)

// ErrUnsupported is returned on platforms without a supported service manager.
var ErrUnsupported = errors.New("registration: no supported service manager on this platform")

// Info describes the service to register.
type Info struct {
	Name        string
	DisplayName string
	Description string
	// Executable and Args are what the service manager launches.
	Executable string
	Args       []string
	// EventLog installs the Windows event log source for the wrapper.
	EventLog bool
}

// FromConfig builds the registration for the config at configPath, launched
// through executable's hidden run command.
func FromConfig(cfg *config.Config, configPath, executable string) (Info, error) {
	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		return Info{}, fmt.Errorf("resolve config path: %w", err)
	}
	absExe, err := filepath.Abs(executable)
	if err != nil {
		return Info{}, fmt.Errorf("resolve executable: %w", err)
	}
	return Info{
		Name:        cfg.Registration.Name,
		DisplayName: cfg.Registration.DisplayName,
		Description: cfg.Registration.Description,
		Executable:  absExe,
		Args:        []string{"run", absConfig},
		EventLog:    cfg.Logging.Sink == logging.SinkEventLog,
	}, nil
}
