package pipeline

import "context"

// Pipeline is a compiled, immutable chain of steps.
type Pipeline[T any] struct {
	run   Next[T]
	steps int
}

// Invoke runs the pipeline against state. A nil ctx is treated as
// context.Background(). The returned error is whatever a step, an observer,
// or activation produced; nothing is retried or swallowed.
//
// Invoke may be called concurrently as long as the steps do not share
// mutable state across calls. The state value itself is shared, not copied.
func (p *Pipeline[T]) Invoke(ctx context.Context, state T) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.run(ctx, state)
}

// Steps returns the number of steps compiled into the pipeline.
func (p *Pipeline[T]) Steps() int {
	return p.steps
}
