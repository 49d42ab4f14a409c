package api

import "log/slog"

// accessLogger receives gorilla/handlers' Apache-style access log lines.
// Defaults to the global slog logger; cmd/sentinel-worker replaces it at
// startup with a line/file-scoped one via SetLogger.
var accessLogger = slog.Default()

// SetLogger overrides the logger used for HTTP access log lines.
func SetLogger(l *slog.Logger) { accessLogger = l }
