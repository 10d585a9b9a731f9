package steps

import (
	"context"
	"log/slog"

	"github.com/nomis52/gopipeline/pipeline"
	"github.com/nomis52/gopipeline/state"
	"github.com/nomis52/gopipeline/statusreporter"
)

// CorrelationKey holds the correlation id once Correlate has run.
const CorrelationKey = "correlation_id"

// Correlate publishes the run's correlation id into the bag, the logs and
// the run's status reporter. It is activated through the injector, which
// fills Logger.
type Correlate struct {
	Logger *slog.Logger
}

// Process implements pipeline.Component.
func (c *Correlate) Process(ctx context.Context, bag *state.Bag, next pipeline.Next[*state.Bag]) error {
	id := bag.CorrelationID()
	bag.Set(CorrelationKey, id)
	c.Logger.InfoContext(ctx, "run correlated", "correlation_id", id)
	if reporter, ok := statusreporter.FromContext(ctx); ok {
		reporter.SetStatus(c, "correlation "+id)
	}
	return next(ctx, bag)
}
