package logging

import (
	"context"
	"log/slog"
	"strings"
)

// CapturingHandler copies every record into a LogCollector under a fixed
// component key, then passes it to the wrapped handler.
type CapturingHandler struct {
	next      slog.Handler
	collector *LogCollector
	key       string
	attrs     []slog.Attr
	groups    []string
}

// NewCapturingHandler wraps next so that records are also stored in collector
// under key.
func NewCapturingHandler(next slog.Handler, collector *LogCollector, key string) *CapturingHandler {
	return &CapturingHandler{
		next:      next,
		collector: collector,
		key:       key,
	}
}

// Enabled reports true for every level so that debug records are captured
// even when the wrapped handler drops them.
func (h *CapturingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle captures r and forwards it if the wrapped handler accepts its level.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:       r.Time,
		Level:      strings.ToLower(r.Level.String()),
		Message:    r.Message,
		Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}
	for _, a := range h.attrs {
		entry.Attributes[a.Key] = resolveValue(a.Value)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		entry.Attributes[key] = resolveValue(a.Value)
		return true
	})
	h.collector.AddLog(h.key, entry)

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs keeps capturing through logger.With chains.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup keeps capturing through logger.WithGroup chains. Captured
// attribute keys are prefixed with the dotted group path.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// resolveValue converts v into something encoding/json can serialise.
func resolveValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, a := range attrs {
			group[a.Key] = resolveValue(a.Value)
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
