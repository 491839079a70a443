package logging

import (
	"context"
	"log/slog"
)

// fanout duplicates every record to a set of slog handlers. Nil entries
// are dropped at construction so callers can pass optional sinks
// unconditionally. A failing sink never blocks the others.
type fanout []slog.Handler

func newFanout(sinks ...slog.Handler) fanout {
	f := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			f = append(f, s)
		}
	}
	return f
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, s := range f {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		// Errors from one sink are swallowed so the rest still log.
		_ = s.Handle(ctx, r.Clone())
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, s := range f {
		next[i] = s.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	next := make(fanout, len(f))
	for i, s := range f {
		next[i] = s.WithGroup(name)
	}
	return next
}
