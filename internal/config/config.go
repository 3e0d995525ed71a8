package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/smazurov/svcwrap/internal/logging"
)

// EnvPrefix prefixes environment variables that override logging settings,
// e.g. SVCWRAP_LOG_LEVEL=debug.
const EnvPrefix = "SVCWRAP_"

// Load reads, normalizes and validates the configuration at path. The format
// follows the extension: .yaml and .yml are YAML, everything else TOML.
// Unknown keys are rejected. Every failure is a *Error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		var cfgErr *Error
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
			return nil, cfgErr
		}
		return nil, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Parse decodes data in the given format, applies environment overrides and
// validates the result.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, &Error{Err: fmt.Errorf("parse yaml: %w", err)}
		}
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, &Error{Err: fmt.Errorf("unknown keys:\n%s", strict.String())}
			}
			return nil, &Error{Err: fmt.Errorf("parse toml: %w", err)}
		}
	}

	cfg.normalize()
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Process.Args == nil {
		c.Process.Args = []string{}
	}
	c.Process.Stdout.normalize()
	c.Process.Stderr.normalize()

	if c.Restart.Policy == "" {
		c.Restart.Policy = RestartNever
	} else {
		key := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(string(c.Restart.Policy)))
		switch key {
		case "never":
			c.Restart.Policy = RestartNever
		case "onfailure":
			c.Restart.Policy = RestartOnFailure
		case "always":
			c.Restart.Policy = RestartAlways
		}
	}

	if c.Wrapper.LogSink != "" {
		c.Logging.Sink = c.Wrapper.LogSink
	}
	c.Logging.Sink = strings.ToLower(c.Logging.Sink)
	if c.Logging.Sink == "stderr" {
		c.Logging.Sink = logging.SinkStdout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// applyEnv lets the environment override logging settings so a service can
// be debugged without editing its registered config.
func applyEnv(c *Config, getenv func(string) string) {
	if v := getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate reports the first invalid field as a *Error.
func (c *Config) Validate() error {
	if c.Registration.Name == "" {
		return fieldError("registration.name", ErrRequired)
	}
	if c.Registration.DisplayName == "" {
		return fieldError("registration.display_name", ErrRequired)
	}
	if c.Process.Binary == "" {
		return fieldError("process.binary", ErrRequired)
	}
	if c.Process.StopTimeout.Duration < 0 {
		return fieldError("process.stop_timeout", fmt.Errorf("%w: must not be negative", ErrInvalid))
	}
	if err := c.Process.Stdout.validate("process.stdout"); err != nil {
		return err
	}
	if err := c.Process.Stderr.validate("process.stderr"); err != nil {
		return err
	}

	switch c.Restart.Policy {
	case RestartNever, RestartOnFailure, RestartAlways:
	default:
		return fieldError("restart.policy", fmt.Errorf("%w %q", ErrInvalid, c.Restart.Policy))
	}
	if c.Restart.Delay.Duration < 0 {
		return fieldError("restart.delay", fmt.Errorf("%w: must not be negative", ErrInvalid))
	}

	switch c.Logging.Sink {
	case logging.SinkAuto, logging.SinkStdout, logging.SinkJournal, logging.SinkEventLog:
	default:
		return fieldError("logging.sink", fmt.Errorf("%w %q", ErrInvalid, c.Logging.Sink))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fieldError("logging.level", fmt.Errorf("%w %q", ErrInvalid, c.Logging.Level))
	}
	for module, level := range c.Logging.Modules {
		if !logging.ValidLevel(level) {
			return fieldError("logging.modules."+module, fmt.Errorf("%w %q", ErrInvalid, level))
		}
	}
	return nil
}

// Default returns a complete example configuration that passes validation.
func Default() *Config {
	return &Config{
		Registration: Registration{
			Name:        "my-service",
			DisplayName: "My Service",
			Description: "Runs my-app as a system service",
		},
		Process: Process{
			Binary:           "/usr/local/bin/my-app",
			Args:             []string{"--serve"},
			WorkingDirectory: "/var/lib/my-app",
			Environment:      map[string]string{"MY_APP_MODE": "service"},
			Stdout:           File("/var/log/my-app/stdout.log", ExistAppend),
			Stderr:           File("/var/log/my-app/stderr.log", ExistTruncate),
		},
		Restart: Restart{Policy: RestartNever},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Marshal renders cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
