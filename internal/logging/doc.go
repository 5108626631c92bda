// Package logging provides slog loggers with per-module levels.
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"camera": "debug"},
//	})
//	logger := logging.GetLogger("camera")
//	logger.Info("Capture started", "path", "/dev/video0")
//
// Every logger writes to stdout (unless it points at /dev/null), to the
// systemd journal when journald is running, and to an in-memory ring
// buffer served by the HTTP API. Levels live in a slog.LevelVar per
// module, so loggers obtained before Initialize or before SetModuleLevel
// follow later changes.
//
// Journal entries carry SYSLOG_IDENTIFIER=camnode and one upper-case
// field per attribute:
//
//	journalctl -t camnode -f
//	journalctl -t camnode MODULE=camera -p warning
//
// TOML form:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	camera = "debug"
//	api = "warn"
package logging
