package logging

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger so packages can take a concrete dependency.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger writing to stdout at the given level.
// Unknown levels fall back to info.
func New(level string) *Logger {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns a logger with default settings.
func Default() *Logger {
	return New("info")
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return Default().Named(component)
	}
	return &Logger{Logger: l.With("component", component)}
}
