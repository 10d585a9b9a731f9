package observe

import (
	"context"
	"log/slog"

	"github.com/nomis52/gopipeline/pipeline"
)

// LoggingOptions tunes the Logging observer. A nil field keeps its default.
type LoggingOptions struct {
	// StepLevel is used for BeforeInvoked and AfterSucceeded. Defaults to debug.
	StepLevel slog.Leveler
	// FailureLevel is used for AfterFailed. Defaults to error.
	FailureLevel slog.Leveler
}

// Logging returns an observer that logs step starts, successes and failures.
// AfterInvoked is not logged.
func Logging[T any](logger *slog.Logger, opts *LoggingOptions) pipeline.Observer[T] {
	stepLevel, failureLevel := slog.LevelDebug, slog.LevelError
	if opts != nil {
		if opts.StepLevel != nil {
			stepLevel = opts.StepLevel.Level()
		}
		if opts.FailureLevel != nil {
			failureLevel = opts.FailureLevel.Level()
		}
	}
	return pipeline.ObserverFunc[T](func(ctx context.Context, ev *pipeline.Event[T]) error {
		switch ev.Kind {
		case pipeline.BeforeInvoked:
			logger.Log(ctx, stepLevel, "step started", "component_id", ev.ID.ShortString())
		case pipeline.AfterSucceeded:
			logger.Log(ctx, stepLevel, "step succeeded", "component_id", ev.ID.ShortString())
		case pipeline.AfterFailed:
			logger.Log(ctx, failureLevel, "step failed", "component_id", ev.ID.ShortString(), "error", ev.Err)
		}
		return nil
	})
}
