package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor extracts a slog attribute from context.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

type scopeKey struct{}

// WithScope returns a copy of ctx whose log records carry attrs. Scopes nest;
// an inner attribute replaces an outer one with the same key.
func WithScope(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	outer := Scope(ctx)
	merged := make([]slog.Attr, 0, len(outer)+len(attrs))
	for _, a := range outer {
		if !hasKey(attrs, a.Key) {
			merged = append(merged, a)
		}
	}
	for _, a := range attrs {
		if a.Key != "" {
			merged = append(merged, a)
		}
	}
	return context.WithValue(ctx, scopeKey{}, merged)
}

// Scope returns the attributes scoped on ctx.
func Scope(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(scopeKey{}).([]slog.Attr)
	return attrs
}

// ContextHandler adds scoped and extracted attributes to every record before
// delegating. Attributes logged explicitly on the record win over both.
type ContextHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

// NewContextHandler wraps next. Nil extractors are dropped.
func NewContextHandler(next slog.Handler, extractors ...ContextExtractor) *ContextHandler {
	h := &ContextHandler{next: next}
	for _, ex := range extractors {
		if ex != nil {
			h.extractors = append(h.extractors, ex)
		}
	}
	return h
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	scoped := Scope(ctx)
	if len(scoped) == 0 && len(h.extractors) == 0 {
		return h.next.Handle(ctx, rec)
	}

	seen := make(map[string]struct{}, rec.NumAttrs()+len(scoped))
	rec.Attrs(func(a slog.Attr) bool {
		seen[a.Key] = struct{}{}
		return true
	})
	add := func(a slog.Attr) {
		if _, dup := seen[a.Key]; dup || a.Key == "" {
			return
		}
		seen[a.Key] = struct{}{}
		rec.AddAttrs(a)
	}

	for _, a := range scoped {
		add(a)
	}
	for _, ex := range h.extractors {
		if a, ok := ex(ctx); ok {
			add(a)
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}

func hasKey(attrs []slog.Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}
