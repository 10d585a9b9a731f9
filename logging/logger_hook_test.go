package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturingLoggerHook(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, nil))
	hook := NewCapturingLoggerHook(NewLogCollector(0))

	charge := hook.LoggerForComponent(base, "steps.Charge")
	refund := hook.LoggerForComponent(base, "steps.Refund")
	charge.Info("charged")
	refund.Info("refunded")
	charge.With("attempt", 2).Warn("retrying")

	logs := hook.Collector().GetLogs("steps.Charge")
	require.Len(t, logs, 2)
	assert.Equal(t, "charged", logs[0].Message)
	assert.Equal(t, "steps.Charge", logs[0].Attributes["component_id"])
	assert.Equal(t, int64(2), logs[1].Attributes["attempt"])
	assert.Len(t, hook.Collector().GetLogs("steps.Refund"), 1)

	assert.Contains(t, buf.String(), "component_id=steps.Charge")
}

func TestTaggingLoggerHook(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, nil))

	TaggingLoggerHook.LoggerForComponent(base, "steps.Charge").Info("hello")
	assert.Contains(t, buf.String(), "component_id=steps.Charge")
}
