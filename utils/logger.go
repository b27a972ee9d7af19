package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with dispatch-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// ParseLevel converts debug, info, warn or error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// NewLoggerFor builds a logger from a format name ("text" or "json")
func NewLoggerFor(w io.Writer, format string, level slog.Level) (*Logger, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return NewTextLogger(w, level), nil
	case "json":
		return NewJSONLogger(w, level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// WithDispatch tags every record with a dispatch ID
func (l *Logger) WithDispatch(id string) *Logger {
	return &Logger{Logger: l.Logger.With("dispatch", id)}
}

// WithStep adds the pipeline step
func (l *Logger) WithStep(step string) *Logger {
	return &Logger{Logger: l.Logger.With("step", step)}
}

// WithDevice adds the device name and type.
func (l *Logger) WithDevice(name, kind string) *Logger {
	return &Logger{Logger: l.Logger.With("device", name, "device_type", kind)}
}

// LogStep logs the outcome of a pipeline step.
func (l *Logger) LogStep(ctx context.Context, step string, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "step failed",
			"step", step,
			"elapsed", elapsed,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "step completed",
			"step", step,
			"elapsed", elapsed,
		)
	}
}
