package pg

import "context"

// logger is the subset of slog.Logger the migration path needs. Any
// structured logger with context-aware methods satisfies it.
type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
