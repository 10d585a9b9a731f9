package logging

import (
	"log/slog"
)

// LoggerHook derives the logger handed to a component. The injector calls it
// once per activation with the component's id.
type LoggerHook interface {
	LoggerForComponent(base *slog.Logger, componentID string) *slog.Logger
}

// LoggerHookFunc adapts a function to the LoggerHook interface.
type LoggerHookFunc func(base *slog.Logger, componentID string) *slog.Logger

// LoggerForComponent calls f(base, componentID).
func (f LoggerHookFunc) LoggerForComponent(base *slog.Logger, componentID string) *slog.Logger {
	return f(base, componentID)
}

// TaggingLoggerHook adds a "component_id" attribute and nothing else.
var TaggingLoggerHook LoggerHook = LoggerHookFunc(func(base *slog.Logger, componentID string) *slog.Logger {
	return base.With("component_id", componentID)
})

// CapturingLoggerHook gives each component a logger whose records are also
// kept in a LogCollector.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures into collector.
func NewCapturingLoggerHook(collector *LogCollector) *CapturingLoggerHook {
	return &CapturingLoggerHook{collector: collector}
}

// Collector returns the collector records are captured into.
func (h *CapturingLoggerHook) Collector() *LogCollector {
	return h.collector
}

// LoggerForComponent wraps base with a CapturingHandler keyed by componentID.
func (h *CapturingLoggerHook) LoggerForComponent(base *slog.Logger, componentID string) *slog.Logger {
	handler := NewCapturingHandler(base.Handler(), h.collector, componentID)
	return slog.New(handler).With("component_id", componentID)
}
