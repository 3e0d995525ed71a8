package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/svcwrap/internal/logging"
	"github.com/smazurov/svcwrap/internal/procgroup"
)

// Config is the complete service configuration. It is loaded once before the
// runtime starts and never modified afterwards.
type Config struct {
	Registration Registration   `toml:"registration" yaml:"registration"`
	Process      Process        `toml:"process" yaml:"process"`
	JobObject    *JobObject     `toml:"job_object,omitempty" yaml:"job_object,omitempty"`
	Restart      Restart        `toml:"restart,omitempty" yaml:"restart,omitempty"`
	Wrapper      Wrapper        `toml:"wrapper" yaml:"wrapper"`
	Logging      logging.Config `toml:"logging" yaml:"logging"`
}

// Registration identifies the service to the OS service manager.
type Registration struct {
	Name        string `toml:"name" yaml:"name"`
	DisplayName string `toml:"display_name" yaml:"display_name"`
	Description string `toml:"description,omitempty" yaml:"description,omitempty"`
}

// Process describes the supervised program.
type Process struct {
	Binary           string            `toml:"binary" yaml:"binary"`
	Args             []string          `toml:"args" yaml:"args"`
	WorkingDirectory string            `toml:"working_directory,omitempty" yaml:"working_directory,omitempty"`
	Environment      map[string]string `toml:"environment,omitempty" yaml:"environment,omitempty"`
	Stdout           OutputStream      `toml:"stdout" yaml:"stdout"`
	Stderr           OutputStream      `toml:"stderr" yaml:"stderr"`

	// StopTimeout bounds the wait for exit after a stop request before every
	// member of the process group is killed. Zero waits indefinitely.
	StopTimeout Duration `toml:"stop_timeout,omitempty" yaml:"stop_timeout,omitempty"`
}

// JobObject holds the resource policy applied to the whole process tree.
type JobObject struct {
	PriorityClass *procgroup.PriorityClass `toml:"priority_class,omitempty" yaml:"priority_class,omitempty"`
}

// Restart is parsed and validated but not acted upon: the runtime never
// restarts the program.
type Restart struct {
	Policy RestartPolicy `toml:"policy,omitempty" yaml:"policy,omitempty"`
	Delay  Duration      `toml:"delay,omitempty" yaml:"delay,omitempty"`
}

// Wrapper configures the wrapper process itself.
type Wrapper struct {
	// LogSink overrides logging.sink; kept for configs written for the
	// original [winsvc] section layout.
	LogSink         string `toml:"log_sink,omitempty" yaml:"log_sink,omitempty"`
	MetricsTextfile string `toml:"metrics_textfile,omitempty" yaml:"metrics_textfile,omitempty"`
}

// StreamType selects where a child output stream goes.
type StreamType string

// Stream types.
const (
	StreamNull StreamType = "null"
	StreamFile StreamType = "file"
)

// ExistBehavior decides what happens to an existing output file.
type ExistBehavior string

// Exist behaviors.
const (
	ExistAppend   ExistBehavior = "append"
	ExistTruncate ExistBehavior = "truncate"
)

// OutputStream is either the null device or a file.
type OutputStream struct {
	Type          StreamType    `toml:"type" yaml:"type"`
	Path          string        `toml:"path,omitempty" yaml:"path,omitempty"`
	ExistBehavior ExistBehavior `toml:"exist_behavior,omitempty" yaml:"exist_behavior,omitempty"`
}

// Discard returns the null output stream.
func Discard() OutputStream {
	return OutputStream{Type: StreamNull}
}

// File returns a file output stream.
func File(path string, behavior ExistBehavior) OutputStream {
	return OutputStream{Type: StreamFile, Path: path, ExistBehavior: behavior}
}

// normalize folds accepted spellings ("Null", "discard", "Truncate") into
// the canonical lowercase values and fills defaults.
func (o *OutputStream) normalize() {
	switch strings.ToLower(string(o.Type)) {
	case "", "null", "discard":
		o.Type = StreamNull
	default:
		o.Type = StreamType(strings.ToLower(string(o.Type)))
	}
	if o.Type == StreamFile {
		if o.ExistBehavior == "" {
			o.ExistBehavior = ExistAppend
		}
		o.ExistBehavior = ExistBehavior(strings.ToLower(string(o.ExistBehavior)))
	}
}

func (o OutputStream) validate(field string) error {
	switch o.Type {
	case StreamNull:
		return nil
	case StreamFile:
		if o.Path == "" {
			return fieldError(field+".path", ErrRequired)
		}
		if o.ExistBehavior != ExistAppend && o.ExistBehavior != ExistTruncate {
			return fieldError(field+".exist_behavior", fmt.Errorf("%w %q", ErrInvalid, o.ExistBehavior))
		}
		return nil
	default:
		return fieldError(field+".type", fmt.Errorf("%w %q", ErrInvalid, o.Type))
	}
}

// RestartPolicy is the declared restart behaviour.
type RestartPolicy string

// Restart policies.
const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on_failure"
	RestartAlways    RestartPolicy = "always"
)

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// IsZero lets encoders honour omitempty.
func (d Duration) IsZero() bool {
	return d.Duration == 0
}
