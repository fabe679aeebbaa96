package logger

import (
	"context"
	"log/slog"
	"sort"
)

type ctxKey struct{}

// Fields are string attributes for a log line. Empty values are dropped.
type Fields map[string]string

// Args flattens the non-empty fields into slog key/value pairs, sorted by key.
func (f Fields) Args() []any {
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, f[k])
	}
	return args
}

// With returns a context whose logger carries the extra fields.
func With(ctx context.Context, fields ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, From(ctx).With(fields...))
}

// WithFields is With for a Fields set.
func WithFields(ctx context.Context, f Fields) context.Context {
	args := f.Args()
	if len(args) == 0 {
		return ctx
	}
	return With(ctx, args...)
}

// From returns the context logger, or the process logger.
func From(ctx context.Context) *slog.Logger {
	return FromOr(ctx, LoggerWrapper())
}

// FromOr returns the context logger, or fallback when none was attached.
func FromOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
