package worker

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// InitLogging configures slog to write structured records to both stdout
// and a per-line log file, grounded on GVCUTV-NRG-CHAMP's
// services/mape/internal/logging.Init (io.MultiWriter over stdout + a
// single append-mode log file, slog.NewTextHandler). No structured
// logging library appears anywhere in the example corpus, so this stays
// on log/slog rather than importing one (e.g. zerolog, zap).
func InitLogging(logDir, lineID string) (*slog.Logger, *os.File, error) {
	if logDir == "" {
		return slog.Default(), nil, nil
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(logDir, lineID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
		logger.Error("failed to open log file, falling back to stdout only", "error", err, "line_id", lineID)
		return logger, nil, nil
	}

	mw := io.MultiWriter(f, os.Stdout)
	handler := slog.NewTextHandler(mw, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("line_id", lineID), f, nil
}
