// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package. Where records go depends on the
// configured sink:
//
//	""         stdout when attached, plus the systemd journal when journald is listening
//	"stdout"   stdout only
//	"journal"  systemd journal only
//	"eventlog" Windows Application event log (source "svcwrap")
//
// A service started by the Windows SCM has no console, so "eventlog" is the
// useful choice there.
//
// # Usage
//
//	if err := logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Sink:   "eventlog",
//		Modules: map[string]string{
//			"service": "debug",
//		},
//	}); err != nil {
//		slog.Warn("Log sink unavailable", "error", err)
//	}
//
//	logger := logging.GetLogger("service")
//	logger.Info("Child started", "pid", pid)
//
// Loggers obtained before Initialize keep working; their level follows the
// configuration once it is applied.
//
// # Configuration
//
// The [logging] table of the service config:
//
//	[logging]
//	level = "info"
//	format = "text"
//	sink = "journal"
//
//	[logging.modules]
//	service = "debug"
//	procgroup = "warn"
//
// When running under systemd, filter by module:
//
//	journalctl -t svcwrap MODULE=service
package logging
