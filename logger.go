package kvlite

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with kvlite-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithStore tags the logger with a store id.
func (l *Logger) WithStore(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("store", id),
	}
}

// WithShard tags the logger with a shard index.
func (l *Logger) WithShard(shard int) *Logger {
	return &Logger{
		Logger: l.Logger.With("shard", shard),
	}
}

// LogOpen logs the outcome of opening a store.
func (l *Logger) LogOpen(ctx context.Context, mode Mode, shards int, dir string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"mode", mode.String(),
			"shards", shards,
			"dir", dir,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "store opened",
		"mode", mode.String(),
		"shards", shards,
		"dir", dir,
	)
}

// LogLayoutOverride logs an option that was replaced by the persisted layout.
func (l *Logger) LogLayoutOverride(ctx context.Context, setting string, requested, persisted any) {
	l.WarnContext(ctx, "option overridden by persisted layout",
		"setting", setting,
		"requested", requested,
		"persisted", persisted,
	)
}

// LogBulk logs a bulk fan-out.
func (l *Logger) LogBulk(ctx context.Context, op string, records, groups int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "bulk operation failed",
			"op", op,
			"records", records,
			"groups", groups,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "bulk operation completed",
		"op", op,
		"records", records,
		"groups", groups,
		"elapsed", elapsed,
	)
}

// LogTransaction logs the end of a transaction.
func (l *Logger) LogTransaction(ctx context.Context, id string, shard int, outcome string, err error) {
	sl := l.WithShard(shard)
	if err != nil {
		sl.ErrorContext(ctx, "transaction failed",
			"tx", id,
			"outcome", outcome,
			"error", err,
		)
		return
	}
	sl.DebugContext(ctx, "transaction finished",
		"tx", id,
		"outcome", outcome,
	)
}

// LogBulkGroup logs a shard group of a bulk fan-out starting on a worker slot.
func (l *Logger) LogBulkGroup(ctx context.Context, op string, shard, records int, inFlight, maxWorkers int64) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	l.WithShard(shard).DebugContext(ctx, "bulk group started",
		"op", op,
		"records", records,
		"workers_in_flight", inFlight,
		"max_workers", maxWorkers,
	)
}

// LogClean logs a WAL checkpoint pass over all shards.
func (l *Logger) LogClean(ctx context.Context, shards int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "clean failed",
			"shards", shards,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "clean completed",
		"shards", shards,
	)
}
