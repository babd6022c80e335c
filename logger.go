package runtimefilter

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with runtime-filter-specific context.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithQueryID adds a query id field to the logger.
func (l *Logger) WithQueryID(queryID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("query_id", queryID),
	}
}

// WithUnitID adds an execution unit id field to the logger.
func (l *Logger) WithUnitID(unitID uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("unit_id", unitID),
	}
}

// WithFilterID adds a filter id field to the logger.
func (l *Logger) WithFilterID(filterID uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("filter_id", filterID),
	}
}

// LogFilterArrival logs a filter becoming usable, with its delay since
// registration.
func (l *Logger) LogFilterArrival(filterID uint32, delay time.Duration, alwaysTrue bool) {
	l.Debug("filter arrived",
		"filter_id", filterID,
		"delay_ms", delay.Milliseconds(),
		"always_true", alwaysTrue,
	)
}

// LogBudgetRefusal logs a memory reservation the budget rejected.
func (l *Logger) LogBudgetRefusal(filterID uint32, bytes int64) {
	l.Warn("no memory for filter, degrading to always-true",
		"filter_id", filterID,
		"bytes", bytes,
	)
}

// LogDispatchFailure logs a failed or dropped coordinator update.
func (l *Logger) LogDispatchFailure(filterID uint32, err error) {
	l.Warn("could not send filter update to coordinator",
		"filter_id", filterID,
		"error", err,
	)
}
