// Package schedule runs pipelines on cron schedules.
//
// A Trigger calls a job according to a 5 field cron spec. A Manager owns one
// Trigger per schedule and starts the pipelines bound to it.
//
// Example usage:
//
//	trigger, err := schedule.NewTrigger("0 2 * * *", job, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is called on every tick.
type Job func(ctx context.Context) error

// Trigger executes a Job according to a cron schedule.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

// NewTrigger creates a Trigger for spec, which uses the standard 5 field
// format (minute, hour, day, month, weekday).
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewTrigger(spec string, job Job, logger *slog.Logger) (*Trigger, error) {
	schedule, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	return &Trigger{
		spec:     spec,
		schedule: schedule,
		job:      job,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}, nil
}

// ParseSpec parses a 5 field cron spec.
func ParseSpec(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	return schedule, nil
}

// Spec returns the cron spec the trigger was created with.
func (t *Trigger) Spec() string {
	return t.spec
}

// Start launches a goroutine that calls the job on schedule. Returns
// immediately. The goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(t.now())
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		nextRun := t.schedule.Next(t.now())
		wait := nextRun.Sub(t.now())

		t.logger.Debug("waiting for next scheduled run",
			"spec", t.spec,
			"next_run", nextRun,
			"wait_duration", wait,
		)

		select {
		case <-ctx.Done():
			t.logger.Info("schedule trigger shutting down", "spec", t.spec)
			return
		case <-t.after(wait):
			t.execute(ctx)
		}
	}
}

func (t *Trigger) execute(ctx context.Context) {
	t.logger.Info("starting scheduled run", "spec", t.spec)
	if err := t.job(ctx); err != nil {
		t.logger.Warn("scheduled run completed with error", "spec", t.spec, "error", err)
	}
}
