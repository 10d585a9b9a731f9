package observe

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/nomis52/gopipeline/pipeline"
)

// Entry is one observed event.
type Entry struct {
	ID   pipeline.ComponentID
	Kind pipeline.EventKind
	Err  error
	At   time.Time
}

// StepResult summarises one executed step.
type StepResult struct {
	ID        pipeline.ComponentID
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}

// Recorder keeps every event it observes, in order.
type Recorder[T any] struct {
	mu      sync.Mutex
	entries []Entry
	open    map[*pipeline.Event[T]]int
	steps   []StepResult
	now     func() time.Time
}

// NewRecorder creates an empty Recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{
		open: make(map[*pipeline.Event[T]]int),
		now:  time.Now,
	}
}

// Observe implements pipeline.Observer.
func (r *Recorder[T]) Observe(_ context.Context, ev *pipeline.Event[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	r.entries = append(r.entries, Entry{ID: ev.ID, Kind: ev.Kind, Err: ev.Err, At: at})

	switch ev.Kind {
	case pipeline.BeforeInvoked:
		r.open[ev] = len(r.steps)
		r.steps = append(r.steps, StepResult{ID: ev.ID, StartedAt: at})
	case pipeline.AfterInvoked:
		if i, ok := r.open[ev]; ok {
			r.steps[i].EndedAt = at
			r.steps[i].Err = ev.Err
			delete(r.open, ev)
		}
	}
	return nil
}

// Entries returns the observed events in order.
func (r *Recorder[T]) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// Kinds returns just the kinds of the observed events.
func (r *Recorder[T]) Kinds() []pipeline.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]pipeline.EventKind, len(r.entries))
	for i, e := range r.entries {
		kinds[i] = e.Kind
	}
	return kinds
}

// Steps returns one result per executed step, in the order the steps
// started. Steps still running have a zero EndedAt.
func (r *Recorder[T]) Steps() []StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.steps)
}

// Reset forgets everything recorded so far.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.steps = nil
	clear(r.open)
}

// Verify Recorder implements pipeline.Observer.
var _ pipeline.Observer[struct{}] = (*Recorder[struct{}])(nil)
