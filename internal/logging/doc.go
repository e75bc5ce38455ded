// Package logging provides structured logging with per-module log level configuration.
//
// Loggers are plain *slog.Logger values tagged with a "module" attribute.
// Each module owns a slog.LevelVar so levels can be changed at runtime,
// which the config watcher uses to apply edits to the [logging] table
// without a restart.
//
// Records fan out to stdout (text or json), the systemd journal when
// [github.com/coreos/go-systemd/v22/journal.Enabled] reports it, and an
// in-memory ring buffer that backs the /api/logs/stream endpoint.
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"capture": "debug",
//			"api":     "warn",
//		},
//	})
//
//	logger := logging.GetLogger("capture")
//	logger.Debug("Frame converted", "width", 800, "height", 600)
//
// Journal records carry SYSLOG_IDENTIFIER=qrgrabber and upper-cased
// attribute fields, so they can be filtered with
//
//	journalctl -t qrgrabber MODULE=scan
package logging
