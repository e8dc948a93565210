// Package logging wraps log/slog with per-module levels for streamlab.
//
// Call Initialize once from the CLI root, then fetch loggers by module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"viewer": "debug"},
//	})
//	logger := logging.GetLogger("viewer")
//	logger.Info("Stream opened", "url", url)
//
// Records fan out to stdout (text or json), to the systemd journal when
// journald is reachable, and to an in-memory ring buffer served by the
// control API at /api/logs.
//
// Journal entries carry SYSLOG_IDENTIFIER=streamlab and upper-cased
// attribute fields, so they can be filtered with:
//
//	journalctl -t streamlab MODULE=viewer
package logging
