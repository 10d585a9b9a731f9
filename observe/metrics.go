package observe

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/gopipeline/metrics"
	"github.com/nomis52/gopipeline/pipeline"
)

// Step outcomes used as the "outcome" label.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// StepMetrics holds the collectors shared by every Metrics observer created
// from it. Create it once per registry.
type StepMetrics struct {
	steps    metrics.CounterVec
	duration metrics.GaugeVec
}

// NewStepMetrics registers:
//   - steps_total{pipeline,component,outcome}
//   - step_duration_seconds{pipeline,component}, the duration of the latest run
func NewStepMetrics(reg metrics.Registry) (*StepMetrics, error) {
	steps, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "steps_total",
		Help: "Number of pipeline steps executed, by outcome.",
	}, []string{"pipeline", "component", "outcome"})
	if err != nil {
		return nil, fmt.Errorf("creating steps counter: %w", err)
	}
	duration, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "step_duration_seconds",
		Help: "Duration of the most recent execution of a pipeline step, including downstream steps.",
	}, []string{"pipeline", "component"})
	if err != nil {
		return nil, fmt.Errorf("creating duration gauge: %w", err)
	}
	return &StepMetrics{steps: steps, duration: duration}, nil
}

// Metrics returns an observer that records outcomes and durations for the
// named pipeline.
func Metrics[T any](m *StepMetrics, pipelineName string) pipeline.Observer[T] {
	t := newTimings[*pipeline.Event[T]]()
	return pipeline.ObserverFunc[T](func(_ context.Context, ev *pipeline.Event[T]) error {
		component := ev.ID.ShortString()
		switch ev.Kind {
		case pipeline.BeforeInvoked:
			t.start(ev)
		case pipeline.AfterSucceeded, pipeline.AfterFailed:
			outcome := OutcomeSucceeded
			if ev.Kind == pipeline.AfterFailed {
				outcome = OutcomeFailed
			}
			m.steps.With(prometheus.Labels{"pipeline": pipelineName, "component": component, "outcome": outcome}).Inc()
			if d, ok := t.elapsed(ev); ok {
				m.duration.With(prometheus.Labels{"pipeline": pipelineName, "component": component}).Set(d.Seconds())
			}
		case pipeline.AfterInvoked:
			t.forget(ev)
		}
		return nil
	})
}
