package app

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger builds the process-wide JSON logger. Every record carries a
// "service" attribute so gate's lines stay filterable when several
// services share one log stream.
func NewLogger(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	})

	log := slog.New(h).With(slog.String("service", "gate"))
	slog.SetDefault(log)
	return log
}

// parseLevel maps a level name to a slog.Level. Unknown names mean info:
// a typo in GATE_LOG_LEVEL must not silence the logs.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
