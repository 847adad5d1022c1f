package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a structured JSON logger using slog at the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination, used by tests.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	handler := slog.NewJSONHandler(w, opts)
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
