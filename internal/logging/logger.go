package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Identifier is the syslog identifier and event log source used for the wrapper's own logs.
const Identifier = "svcwrap"

// Sink names accepted in Config.Sink.
const (
	SinkAuto     = ""
	SinkStdout   = "stdout"
	SinkJournal  = "journal"
	SinkEventLog = "eventlog"
)

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{} // default level
	isInitialized   bool
	mutex           sync.RWMutex
	eventLog        eventSink
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level" yaml:"level"`
	Format  string            `toml:"format" yaml:"format"`
	Sink    string            `toml:"sink,omitempty" yaml:"sink,omitempty"`
	Modules map[string]string `toml:"modules,omitempty" yaml:"modules,omitempty"`
}

// Initialize sets up the logging system.
// An event log sink that cannot be opened is reported as an error; stdout
// and journal output are still configured in that case.
func Initialize(config Config) error {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	var sinkErr error
	switch strings.ToLower(config.Sink) {
	case SinkAuto, SinkStdout, SinkJournal:
	case SinkEventLog:
		if eventLog == nil {
			sink, err := openEventLog(Identifier)
			if err != nil {
				sinkErr = fmt.Errorf("open event log: %w", err)
			} else {
				eventLog = sink
			}
		}
	default:
		sinkErr = fmt.Errorf("unknown log sink %q", config.Sink)
	}

	globalLevel := parseLevel(config.Level)
	if globalLevel == nil {
		defaultLevel := slog.LevelInfo
		globalLevel = &defaultLevel
	}
	globalLevelVar.Set(*globalLevel)

	// Loggers handed out before Initialize share the LevelVar, so their
	// level follows; the cached entries get the full handler chain.
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module, *globalLevel))
		moduleLoggers[module] = slog.New(createHandler(config, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config, globalLevelVar)))
	return sinkErr
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	cfg := Config{Format: "text"}
	if isInitialized {
		cfg = globalConfig
		base := parseLevel(globalConfig.Level)
		if base == nil {
			l := slog.LevelInfo
			base = &l
		}
		levelVar.Set(moduleLevel(module, *base))
	} else {
		levelVar.Set(slog.LevelInfo)
	}

	logger := slog.New(createHandler(cfg, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// moduleLevel resolves the effective level of a module. Caller holds mutex.
func moduleLevel(module string, fallback slog.Level) slog.Level {
	if levelStr, exists := globalConfig.Modules[module]; exists {
		if parsed := parseLevel(levelStr); parsed != nil {
			return *parsed
		}
	}
	return fallback
}

// createHandler builds the handler chain for the configured sink.
// Auto routing logs to stdout when it is attached and to the journal when
// journald is listening. Caller holds mutex.
func createHandler(config Config, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if config.Format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	switch strings.ToLower(config.Sink) {
	case SinkStdout:
		handlers = append(handlers, stdoutHandler)
	case SinkJournal:
		handlers = append(handlers, NewJournalHandler(level))
	case SinkEventLog:
		if eventLog != nil {
			handlers = append(handlers, NewEventLogHandler(eventLog, level))
		}
	default:
		if isStdoutAvailable() {
			handlers = append(handlers, stdoutHandler)
		}
		if IsJournalAvailable() {
			handlers = append(handlers, NewJournalHandler(level))
		}
	}

	switch len(handlers) {
	case 0:
		return stdoutHandler // Fallback
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
// A service started by the SCM has no usable stdout.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	switch strings.ToLower(level) {
	case "debug", "trace":
		l := slog.LevelDebug
		return &l
	case "info":
		l := slog.LevelInfo
		return &l
	case "warn", "warning":
		l := slog.LevelWarn
		return &l
	case "error":
		l := slog.LevelError
		return &l
	default:
		return nil
	}
}

// ValidLevel reports whether level is a recognised level name. Empty means the default.
func ValidLevel(level string) bool {
	return level == "" || parseLevel(level) != nil
}
