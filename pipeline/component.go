package pipeline

import "context"

// Next is the continuation handed to every step. Calling it runs the rest of
// the pipeline; not calling it short-circuits everything registered after the
// current step.
type Next[T any] func(ctx context.Context, state T) error

// Component is a single unit of work in a pipeline.
//
// IMPLEMENTATION CONTRACT:
// - Process receives the shared state and the continuation for the remaining steps
// - Call next to continue the pipeline, or return without calling it to stop
// - Return an error to fail the invocation; the error reaches the caller unchanged
// - Components built by the default activator are fresh per traversal, so
// per-invocation fields are safe; shared instances must be made safe by their owner
type Component[T any] interface {
	Process(ctx context.Context, state T, next Next[T]) error
}

// HandlerFunc is an inline step. It satisfies Component so that inline steps
// and component steps share the same instrumentation.
type HandlerFunc[T any] func(ctx context.Context, state T, next Next[T]) error

// Process calls f(ctx, state, next).
func (f HandlerFunc[T]) Process(ctx context.Context, state T, next Next[T]) error {
	return f(ctx, state, next)
}

// Installer turns "everything after this step" into "this step plus
// everything after it". Builders store installers and fold them at Build time.
type Installer[T any] func(next Next[T]) Next[T]

// Verify HandlerFunc implements Component.
var _ Component[struct{}] = HandlerFunc[struct{}](nil)
