package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nomis52/gopipeline/config"
	"github.com/nomis52/gopipeline/runner"
)

// Runnable starts a named pipeline in the background.
type Runnable interface {
	Start(ctx context.Context, name string) error
}

// Manager owns one Trigger per TriggerSpec.
type Manager struct {
	triggers []*Trigger
	logger   *slog.Logger
}

// SpecsFromConfig returns one TriggerSpec per pipeline that has a schedule.
func SpecsFromConfig(pipelines []config.PipelineConfig) []TriggerSpec {
	var specs []TriggerSpec
	for _, p := range pipelines {
		if p.Schedule == "" {
			continue
		}
		specs = append(specs, TriggerSpec{Pipelines: []string{p.Name}, CronSpec: p.Schedule})
	}
	return specs
}

// NewManager creates a Trigger for every spec. Each tick starts the spec's
// pipelines, recording the "schedule" trigger on their runs.
func NewManager(specs []TriggerSpec, runnable Runnable, logger *slog.Logger) (*Manager, error) {
	triggers := make([]*Trigger, 0, len(specs))
	for _, spec := range specs {
		pipelines := spec.Pipelines
		job := func(ctx context.Context) error {
			ctx = runner.WithTrigger(ctx, runner.TriggerSchedule)
			var errs []error
			for _, name := range pipelines {
				if err := runnable.Start(ctx, name); err != nil {
					errs = append(errs, fmt.Errorf("starting %s: %w", name, err))
				}
			}
			return errors.Join(errs...)
		}

		trigger, err := NewTrigger(spec.CronSpec, job, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				strings.Join(spec.Pipelines, ","), spec.CronSpec, err)
		}
		triggers = append(triggers, trigger)
		logger.Info("trigger registered",
			"pipelines", spec.Pipelines,
			"schedule", spec.CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &Manager{triggers: triggers, logger: logger}, nil
}

// Start launches all triggers. Returns immediately. All goroutines exit
// when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// Len returns the number of triggers.
func (m *Manager) Len() int {
	return len(m.triggers)
}

// NextRun returns the earliest scheduled run time across all triggers, or
// the zero time if there are none.
func (m *Manager) NextRun() time.Time {
	var earliest time.Time
	for _, trigger := range m.triggers {
		next := trigger.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
