package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nomis52/gopipeline/pipeline"
)

// Tracing returns an observer that opens a span when a step starts and ends
// it after AfterInvoked. Spans are children of whatever span the invocation
// context carries. Failed steps record the error and an Error status.
func Tracing[T any](tracer trace.Tracer) pipeline.Observer[T] {
	var mu sync.Mutex
	spans := make(map[*pipeline.Event[T]]trace.Span)

	return pipeline.ObserverFunc[T](func(ctx context.Context, ev *pipeline.Event[T]) error {
		if ev.Kind == pipeline.BeforeInvoked {
			_, span := tracer.Start(ctx, ev.ID.ShortString(),
				trace.WithAttributes(
					attribute.String("pipeline.component.module", ev.ID.Module),
					attribute.String("pipeline.component.type", ev.ID.Type),
				),
			)
			mu.Lock()
			spans[ev] = span
			mu.Unlock()
			return nil
		}

		mu.Lock()
		span, ok := spans[ev]
		if ev.Kind == pipeline.AfterInvoked {
			delete(spans, ev)
		}
		mu.Unlock()
		if !ok {
			return nil
		}

		switch ev.Kind {
		case pipeline.AfterFailed:
			span.RecordError(ev.Err)
			span.SetStatus(codes.Error, ev.Err.Error())
		case pipeline.AfterSucceeded:
			span.SetStatus(codes.Ok, "")
		case pipeline.AfterInvoked:
			span.End()
		}
		return nil
	})
}
