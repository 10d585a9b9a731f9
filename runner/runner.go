// Package runner executes named pipelines and records their history.
//
// The runner handles:
//   - Running a pipeline synchronously or in the background
//   - Preventing concurrent runs of the same pipeline
//   - Tracking live step status and logs
//   - Saving every finished run to a history.Store
//
// Each run gets a fresh state.Bag and a freshly built pipeline, so changes
// to the registry take effect on the next run.
//
// # Example
//
//	r := runner.New(reg, runner.WithStore(store), runner.WithLogger(logger))
//
//	if err := r.Start(ctx, "nightly"); err != nil {
//	    if errors.Is(err, runner.ErrRunInProgress) {
//	        // Handle concurrent run attempt
//	    }
//	}
//
//	status := r.Status("nightly")
//	for _, step := range status.Steps {
//	    fmt.Printf("%s.%s: %s\n", step.Module, step.Type, step.Status)
//	}
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nomis52/gopipeline/history"
	"github.com/nomis52/gopipeline/logging"
	"github.com/nomis52/gopipeline/observe"
	"github.com/nomis52/gopipeline/pipeline"
	"github.com/nomis52/gopipeline/registry"
	"github.com/nomis52/gopipeline/state"
	"github.com/nomis52/gopipeline/statusreporter"
)

// Triggers recorded on runs.
const (
	TriggerManual   = "manual"
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

// ErrRunInProgress is returned when the pipeline is already running.
var ErrRunInProgress = errors.New("pipeline run already in progress")

type triggerKey struct{}

// WithTrigger records how a run was started. Run and Start read it from ctx.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger recorded by WithTrigger, or TriggerManual.
func TriggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return TriggerManual
}

// Runner executes pipelines registered over *state.Bag.
type Runner struct {
	registry    *registry.Registry
	store       history.Store
	logger      *slog.Logger
	stepMetrics *observe.StepMetrics
	tracer      trace.Tracer
	timeouts    map[string]time.Duration
	now         func() time.Time

	mu     sync.Mutex
	active map[string]*activeRun
	last   map[string]history.Run
	wg     sync.WaitGroup
}

// activeRun is the live view of a run in progress.
type activeRun struct {
	run      history.Run
	bag      *state.Bag
	recorder *observe.Recorder[*state.Bag]
	reporter *statusreporter.StatusReporter
	logs     *logging.LogCollector
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore configures where finished runs are saved.
func WithStore(store history.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithLogger sets the logger for the runner and for step lifecycle logs.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStepMetrics records step outcomes and durations for every run.
func WithStepMetrics(m *observe.StepMetrics) Option {
	return func(r *Runner) {
		r.stepMetrics = m
	}
}

// WithTracer opens a span per run and per step.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithTimeout bounds every run of the named pipeline.
func WithTimeout(name string, d time.Duration) Option {
	return func(r *Runner) {
		r.timeouts[name] = d
	}
}

// New creates a Runner for the pipelines in reg.
func New(reg *registry.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry: reg,
		store:    history.NewMemoryStore(history.DefaultMaxRuns),
		logger:   slog.Default(),
		timeouts: make(map[string]time.Duration),
		now:      time.Now,
		active:   make(map[string]*activeRun),
		last:     make(map[string]history.Run),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the named pipeline and waits for it to finish. The returned
// Run is saved to the store even when the pipeline fails.
func (r *Runner) Run(ctx context.Context, name string) (history.Run, error) {
	active, err := r.tryStart(name, TriggerFrom(ctx))
	if err != nil {
		return history.Run{}, err
	}
	return r.execute(ctx, name, active)
}

// Start executes the named pipeline in the background. The run is detached
// from ctx cancellation but keeps its values.
func (r *Runner) Start(ctx context.Context, name string) error {
	active, err := r.tryStart(name, TriggerFrom(ctx))
	if err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(context.WithoutCancel(ctx), name, active)
	}()
	return nil
}

// Wait blocks until all background runs have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// IsRunning reports whether the named pipeline has a run in progress.
func (r *Runner) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[name]
	return ok
}

// Status returns the live status of a running pipeline, or the last run
// since startup if idle.
func (r *Runner) Status(name string) RunStatus {
	r.mu.Lock()
	active, running := r.active[name]
	last, hasLast := r.last[name]
	r.mu.Unlock()

	if running {
		run := active.run
		return RunStatus{
			Pipeline:      name,
			State:         RunStateRunning,
			RunID:         run.ID,
			CorrelationID: run.CorrelationID,
			StartedAt:     &run.StartedAt,
			Steps:         active.steps(),
		}
	}
	status := RunStatus{Pipeline: name, State: RunStateIdle}
	if hasLast {
		status.RunID = last.ID
		status.CorrelationID = last.CorrelationID
		status.StartedAt = &last.StartedAt
		status.EndedAt = last.EndedAt
		status.Error = last.Error
		status.Steps = last.Steps
	}
	return status
}

// Statuses returns the status of every registered pipeline, sorted by name.
func (r *Runner) Statuses() []RunStatus {
	names := r.registry.Names()
	out := make([]RunStatus, 0, len(names))
	for _, name := range names {
		out = append(out, r.Status(name))
	}
	return out
}

// History returns up to limit finished runs, most recent first.
func (r *Runner) History(ctx context.Context, limit int) ([]history.Run, error) {
	return r.store.Runs(ctx, limit)
}

// tryStart claims the pipeline name. The pipeline must be registered.
func (r *Runner) tryStart(name, trigger string) (*activeRun, error) {
	if !r.registry.Has(name) {
		return nil, fmt.Errorf("%w: %q", registry.ErrNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.active[name]; running {
		return nil, fmt.Errorf("%w: %q", ErrRunInProgress, name)
	}

	bag := state.New()
	run := history.NewRun(name, trigger, r.now())
	run.CorrelationID = bag.CorrelationID()
	active := &activeRun{
		run:      run,
		bag:      bag,
		recorder: observe.NewRecorder[*state.Bag](),
		reporter: statusreporter.New(r.logger),
		logs:     logging.NewLogCollector(0),
	}
	r.active[name] = active
	return active, nil
}

func (r *Runner) execute(ctx context.Context, name string, active *activeRun) (history.Run, error) {
	bag := active.bag
	logger := r.logger.With("pipeline", name, "run_id", active.run.ID, "correlation_id", bag.CorrelationID())
	logger.Info("pipeline run started", "trigger", active.run.Trigger)

	err := r.invoke(ctx, name, bag, active, logger)

	endedAt := r.now()
	run := active.run
	run.EndedAt = &endedAt
	run.Steps = active.steps()
	if err != nil {
		run.Error = err.Error()
		logger.Error("pipeline run failed", "error", err, "duration", run.Duration())
	} else {
		logger.Info("pipeline run completed", "duration", run.Duration())
	}

	if saveErr := r.store.Save(context.WithoutCancel(ctx), run); saveErr != nil {
		logger.Error("failed to save run to store", "error", saveErr)
	}

	r.mu.Lock()
	delete(r.active, name)
	r.last[name] = run
	r.mu.Unlock()

	return run, err
}

func (r *Runner) invoke(ctx context.Context, name string, bag *state.Bag, active *activeRun, logger *slog.Logger) error {
	b, err := registry.Builder[*state.Bag](r.registry, name)
	if err != nil {
		return err
	}

	b.AddObserver(active.recorder).
		AddObserver(observe.Status[*state.Bag](active.reporter)).
		AddObserver(captureLogs(logger, active.logs))
	if r.stepMetrics != nil {
		b.AddObserver(observe.Metrics[*state.Bag](r.stepMetrics, name))
	}
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "pipeline "+name, trace.WithAttributes(
			attribute.String("pipeline.name", name),
			attribute.String("pipeline.run_id", active.run.ID),
			attribute.String("pipeline.correlation_id", bag.CorrelationID()),
		))
		defer span.End()
		b.AddObserver(observe.Tracing[*state.Bag](r.tracer))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}()
	}

	if timeout, ok := r.timeouts[name]; ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx = statusreporter.NewContext(ctx, active.reporter)
	err = b.Build().Invoke(ctx, bag)
	return err
}

// captureLogs logs step lifecycle events into the run's collector, keyed by
// component id, while passing them on to logger.
func captureLogs(logger *slog.Logger, logs *logging.LogCollector) pipeline.Observer[*state.Bag] {
	return pipeline.ObserverFunc[*state.Bag](func(ctx context.Context, ev *pipeline.Event[*state.Bag]) error {
		stepLogger := slog.New(logging.NewCapturingHandler(logger.Handler(), logs, ev.ID.String()))
		switch ev.Kind {
		case pipeline.BeforeInvoked:
			stepLogger.DebugContext(ctx, "step started", "component_id", ev.ID.ShortString())
		case pipeline.AfterSucceeded:
			stepLogger.DebugContext(ctx, "step succeeded", "component_id", ev.ID.ShortString())
		case pipeline.AfterFailed:
			stepLogger.ErrorContext(ctx, "step failed", "component_id", ev.ID.ShortString(), "error", ev.Err)
		}
		return nil
	})
}

// steps combines recorder results, status lines and captured logs.
func (a *activeRun) steps() []history.StepRecord {
	results := a.recorder.Steps()
	statuses := a.reporter.CurrentStatuses()
	records := make([]history.StepRecord, 0, len(results))
	for _, res := range results {
		rec := history.StepRecord{
			Module:    res.ID.Module,
			Type:      res.ID.Type,
			StartedAt: res.StartedAt,
			Status:    statuses[res.ID.String()],
			Logs:      a.logs.GetLogs(res.ID.String()),
		}
		if !res.EndedAt.IsZero() {
			endedAt := res.EndedAt
			rec.EndedAt = &endedAt
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		records = append(records, rec)
	}
	return records
}
