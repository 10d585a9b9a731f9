package runner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nomis52/gopipeline/history"
	"github.com/nomis52/gopipeline/injector"
	"github.com/nomis52/gopipeline/metrics"
	"github.com/nomis52/gopipeline/observe"
	"github.com/nomis52/gopipeline/pipeline"
	"github.com/nomis52/gopipeline/registry"
	"github.com/nomis52/gopipeline/state"
	"github.com/nomis52/gopipeline/steps"
)

var errBroken = errors.New("broken")

type Mark struct{}

func (Mark) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	bag.Set("marked", true)
	return next(ctx, bag)
}

type Broken struct{}

func (Broken) Process(context.Context, *state.Bag, pipeline.Next[*state.Bag]) error {
	return errBroken
}

// Gate blocks until released or the context ends.
type Gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *Gate {
	return &Gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *Gate) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return next(ctx, bag)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newRegistry(t *testing.T, gate *Gate) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.WithLogger(discard()))
	require.NoError(t, registry.Register(reg, "ok", func(b *pipeline.Builder[*state.Bag]) {
		pipeline.UseComponent[Mark](b)
	}))
	require.NoError(t, registry.Register(reg, "broken", func(b *pipeline.Builder[*state.Bag]) {
		pipeline.UseComponent[Mark](b)
		pipeline.UseComponent[Broken](b)
	}))
	if gate != nil {
		require.NoError(t, registry.Register(reg, "gated", func(b *pipeline.Builder[*state.Bag]) {
			b.UseInstance(gate)
			pipeline.UseComponent[Mark](b)
		}))
	}
	return reg
}

func TestRunner_RunSuccess(t *testing.T) {
	store := history.NewMemoryStore(10)
	r := New(newRegistry(t, nil), WithStore(store), WithLogger(discard()))

	run, err := r.Run(context.Background(), "ok")
	require.NoError(t, err)

	assert.True(t, run.Succeeded())
	assert.Equal(t, "ok", run.Pipeline)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.NotEmpty(t, run.CorrelationID)
	require.Len(t, run.Steps, 1)
	step := run.Steps[0]
	assert.Equal(t, "Mark", step.Type)
	assert.Equal(t, observe.StatusSucceeded, step.Status)
	require.NotNil(t, step.EndedAt)
	require.NotEmpty(t, step.Logs)
	assert.Equal(t, "step started", step.Logs[0].Message)
	assert.Equal(t, "debug", step.Logs[0].Level)

	saved, err := store.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, saved.ID)

	status := r.Status("ok")
	assert.Equal(t, RunStateIdle, status.State)
	assert.Equal(t, run.ID, status.RunID)
	assert.Empty(t, status.Error)
}

func TestRunner_RunFailure(t *testing.T) {
	store := history.NewMemoryStore(10)
	r := New(newRegistry(t, nil), WithStore(store), WithLogger(discard()))

	run, err := r.Run(context.Background(), "broken")
	require.ErrorIs(t, err, errBroken)
	assert.False(t, run.Succeeded())
	assert.Equal(t, "broken", run.Error)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "Mark", run.Steps[0].Type)
	assert.Equal(t, "broken", run.Steps[0].Error, "outer step sees the downstream error")
	assert.Equal(t, "Broken", run.Steps[1].Type)
	assert.Equal(t, "failed: broken", run.Steps[1].Status)

	runs, err := r.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "broken", runs[0].Error)
	assert.Equal(t, "broken", r.Status("broken").Error)
}

func TestRunner_UnknownPipeline(t *testing.T) {
	r := New(newRegistry(t, nil), WithLogger(discard()))
	_, err := r.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.ErrorIs(t, r.Start(context.Background(), "missing"), registry.ErrNotFound)
}

func TestRunner_StartInProgress(t *testing.T) {
	gate := newGate()
	r := New(newRegistry(t, gate), WithLogger(discard()))

	ctx := WithTrigger(context.Background(), TriggerAPI)
	require.NoError(t, r.Start(ctx, "gated"))
	<-gate.entered

	assert.True(t, r.IsRunning("gated"))
	assert.ErrorIs(t, r.Start(ctx, "gated"), ErrRunInProgress)
	_, err := r.Run(ctx, "gated")
	assert.ErrorIs(t, err, ErrRunInProgress)

	_, err = r.Run(context.Background(), "ok")
	assert.NoError(t, err, "other pipelines may run")

	status := r.Status("gated")
	assert.Equal(t, RunStateRunning, status.State)
	require.Len(t, status.Steps, 1)
	assert.Equal(t, observe.StatusRunning, status.Steps[0].Status)
	assert.Nil(t, status.Steps[0].EndedAt)

	close(gate.release)
	r.Wait()

	assert.False(t, r.IsRunning("gated"))
	status = r.Status("gated")
	assert.Equal(t, RunStateIdle, status.State)
	assert.Len(t, status.Steps, 2)

	runs, err := r.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	triggers := map[string]string{}
	for _, run := range runs {
		triggers[run.Pipeline] = run.Trigger
	}
	assert.Equal(t, map[string]string{"gated": TriggerAPI, "ok": TriggerManual}, triggers)
}

func TestRunner_StatusDuringBackgroundRuns(t *testing.T) {
	r := New(newRegistry(t, nil), WithLogger(discard()))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = r.Status("ok")
			}
		}
	}()

	for range 20 {
		require.NoError(t, r.Start(context.Background(), "ok"))
		r.Wait()
	}
	close(done)
	wg.Wait()

	runs, err := r.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 20)
	for _, run := range runs {
		assert.NotEmpty(t, run.CorrelationID)
	}
	assert.Equal(t, runs[0].CorrelationID, r.Status("ok").CorrelationID)
}

func TestRunner_ComponentStatus(t *testing.T) {
	inj := injector.New(injector.WithLogger(discard()))
	require.NoError(t, injector.Register[*steps.Correlate](inj))

	reg := registry.New(registry.WithActivator(inj), registry.WithLogger(discard()))
	require.NoError(t, registry.Register(reg, "correlated", func(b *pipeline.Builder[*state.Bag]) {
		pipeline.UseComponent[*steps.Correlate](b)
		pipeline.UseComponent[Mark](b)
	}))

	r := New(reg, WithLogger(discard()))
	run, err := r.Run(context.Background(), "correlated")
	require.NoError(t, err)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "Correlate", run.Steps[0].Type)
	assert.Equal(t, "correlation "+run.CorrelationID, run.Steps[0].Status, "component detail survives success")
	assert.Equal(t, "Mark", run.Steps[1].Type)
	assert.Equal(t, observe.StatusSucceeded, run.Steps[1].Status)
}

func TestRunner_StartDetachedFromCancel(t *testing.T) {
	gate := newGate()
	r := New(newRegistry(t, gate), WithLogger(discard()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx, "gated"))
	<-gate.entered
	cancel()
	close(gate.release)
	r.Wait()

	assert.Empty(t, r.Status("gated").Error)
}

func TestRunner_Timeout(t *testing.T) {
	gate := newGate()
	r := New(newRegistry(t, gate), WithLogger(discard()), WithTimeout("gated", 20*time.Millisecond))

	_, err := r.Run(context.Background(), "gated")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_Statuses(t *testing.T) {
	r := New(newRegistry(t, nil), WithLogger(discard()))
	_, err := r.Run(context.Background(), "ok")
	require.NoError(t, err)

	statuses := r.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "broken", statuses[0].Pipeline)
	assert.Empty(t, statuses[0].RunID, "never run")
	assert.Equal(t, "ok", statuses[1].Pipeline)
	assert.NotEmpty(t, statuses[1].RunID)

	data, err := json.Marshal(statuses[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"idle"`)
}

func TestRunner_MetricsAndTracing(t *testing.T) {
	reg, err := metrics.NewScrapeRegistry(metrics.ScrapeConfig{Namespace: "test"})
	require.NoError(t, err)
	stepMetrics, err := observe.NewStepMetrics(reg)
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	r := New(newRegistry(t, nil),
		WithLogger(discard()),
		WithStepMetrics(stepMetrics),
		WithTracer(tp.Tracer("runner-test")),
	)
	_, err = r.Run(context.Background(), "broken")
	require.Error(t, err)

	spans := exporter.GetSpans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"pipeline broken", "runner.Mark", "runner.Broken"}, names)

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() == "test_steps_total" {
			for _, m := range f.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), total)
}

func TestRunState_String(t *testing.T) {
	assert.Equal(t, "idle", RunStateIdle.String())
	assert.Equal(t, "running", RunStateRunning.String())
	assert.Equal(t, "unknown", RunState(7).String())
}

func TestRunState_JSON(t *testing.T) {
	var s RunState
	require.NoError(t, json.Unmarshal([]byte(`"running"`), &s))
	assert.Equal(t, RunStateRunning, s)
	assert.Error(t, json.Unmarshal([]byte(`"paused"`), &s))
}
