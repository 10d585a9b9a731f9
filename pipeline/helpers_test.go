package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Test Helpers
// ---------------------------------------------------------------------

// testState collects a trace of the steps that ran.
type testState struct {
	mu  sync.Mutex
	log strings.Builder
}

func (s *testState) write(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.WriteString(v)
}

func (s *testState) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.String()
}

// appendStep returns an inline handler that writes v and continues.
func appendStep(v string) HandlerFunc[*testState] {
	return func(ctx context.Context, s *testState, next Next[*testState]) error {
		s.write(v)
		return next(ctx, s)
	}
}

type C1 struct{}

func (c *C1) Process(ctx context.Context, s *testState, next Next[*testState]) error {
	s.write("c1")
	return next(ctx, s)
}

type C2 struct{}

func (c *C2) Process(ctx context.Context, s *testState, next Next[*testState]) error {
	s.write("c2")
	return next(ctx, s)
}

type C3 struct{}

func (c *C3) Process(ctx context.Context, s *testState, next Next[*testState]) error {
	s.write("c3")
	return next(ctx, s)
}

// Stop never calls next.
type Stop struct{}

func (c *Stop) Process(ctx context.Context, s *testState, next Next[*testState]) error {
	s.write("stop")
	return nil
}

var errBoom = errors.New("boom")

// Failing returns errBoom without continuing.
type Failing struct{}

func (c *Failing) Process(ctx context.Context, s *testState, next Next[*testState]) error {
	return errBoom
}

// Counter records the number of times Process ran on this instance.
type Counter struct {
	calls int
}

func (c *Counter) Process(ctx context.Context, s *testState, next Next[*testState]) error {
	c.calls++
	s.write("n")
	return next(ctx, s)
}

// recording collects the kinds it observes.
type recording struct {
	mu     sync.Mutex
	kinds  []EventKind
	ids    []ComponentID
	events []*Event[*testState]
	errs   []error
}

func (r *recording) Observe(_ context.Context, ev *Event[*testState]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, ev.Kind)
	r.ids = append(r.ids, ev.ID)
	r.events = append(r.events, ev)
	r.errs = append(r.errs, ev.Err)
	return nil
}

func (r *recording) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventKind(nil), r.kinds...)
}

// failingObserver returns err for events of kind on.
func failingObserver(on EventKind, err error) ObserverFunc[*testState] {
	return func(_ context.Context, ev *Event[*testState]) error {
		if ev.Kind == on {
			return err
		}
		return nil
	}
}
