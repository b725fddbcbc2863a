// Package log wraps slog with component tagging so every line carries which
// part of the service produced it.
package log

import (
	"log/slog"
	"os"
)

// New creates a slog logger writing text to stdout at the given level.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// Setup configures the process-wide default logger and returns it. Level is
// read from LOG_LEVEL (debug, info, warn, error), defaulting to info.
func Setup() *slog.Logger {
	logger := New(levelFromEnv())
	slog.SetDefault(logger)
	return logger
}

// WithComponent returns a logger tagging every record with the component
// name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

func levelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
