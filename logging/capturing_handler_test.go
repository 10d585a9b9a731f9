package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(level slog.Level) (*CapturingHandler, *LogCollector, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	collector := NewLogCollector(0)
	next := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return NewCapturingHandler(next, collector, "steps.Charge"), collector, buf
}

func TestCapturingHandler_CapturesAllLevels(t *testing.T) {
	handler, collector, buf := newTestHandler(slog.LevelWarn)
	logger := slog.New(handler)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	logs := collector.GetLogs("steps.Charge")
	require.Len(t, logs, 4, "every level is captured")
	assert.Equal(t, "debug", logs[0].Level)
	assert.Equal(t, "error", logs[3].Level)

	assert.NotContains(t, buf.String(), "info message", "wrapped handler still filters output")
	assert.Contains(t, buf.String(), "warn message")
}

func TestCapturingHandler_Attributes(t *testing.T) {
	handler, collector, _ := newTestHandler(slog.LevelInfo)
	logger := slog.New(handler).With("pipeline", "orders")

	logger.Info("charged",
		"amount", 42,
		"ratio", 0.5,
		"ok", true,
		"elapsed", 1500*time.Millisecond,
		"error", errors.New("card declined"),
		slog.Group("card", "last4", "4242"),
	)

	logs := collector.GetLogs("steps.Charge")
	require.Len(t, logs, 1)
	attrs := logs[0].Attributes
	assert.Equal(t, "orders", attrs["pipeline"])
	assert.Equal(t, int64(42), attrs["amount"])
	assert.Equal(t, 0.5, attrs["ratio"])
	assert.Equal(t, true, attrs["ok"])
	assert.Equal(t, "1.5s", attrs["elapsed"])
	assert.Equal(t, "card declined", attrs["error"])
	assert.Equal(t, map[string]any{"last4": "4242"}, attrs["card"])
}

func TestCapturingHandler_WithGroup(t *testing.T) {
	handler, collector, buf := newTestHandler(slog.LevelInfo)
	logger := slog.New(handler).WithGroup("request").With("id", "r-1")

	logger.Info("handled", "status", 200)

	_, ok := logger.Handler().(*CapturingHandler)
	assert.True(t, ok, "WithGroup keeps the capturing handler")

	logs := collector.GetLogs("steps.Charge")
	require.Len(t, logs, 1)
	assert.Equal(t, "r-1", logs[0].Attributes["request.id"])
	assert.Equal(t, int64(200), logs[0].Attributes["request.status"])
	assert.Contains(t, buf.String(), `"request":{"id":"r-1","status":200}`)
}

func TestCapturingHandler_WithAttrsDoesNotLeak(t *testing.T) {
	handler, collector, _ := newTestHandler(slog.LevelInfo)
	base := slog.New(handler)
	a := base.With("branch", "a")
	b := base.With("branch", "b")

	a.Info("one")
	b.Info("two")
	base.Info("three")

	logs := collector.GetLogs("steps.Charge")
	require.Len(t, logs, 3)
	assert.Equal(t, "a", logs[0].Attributes["branch"])
	assert.Equal(t, "b", logs[1].Attributes["branch"])
	assert.NotContains(t, logs[2].Attributes, "branch")
}

func TestCapturingHandler_Concurrent(t *testing.T) {
	handler, collector, _ := newTestHandler(slog.LevelInfo)
	logger := slog.New(handler)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("tick", "n", i)
		}()
	}
	wg.Wait()

	assert.Len(t, collector.GetLogs("steps.Charge"), 20)
}

func TestCapturingHandler_EmptyGroupIsNoop(t *testing.T) {
	handler, _, _ := newTestHandler(slog.LevelInfo)
	assert.Same(t, handler, handler.WithGroup(""))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelDebug))
}
