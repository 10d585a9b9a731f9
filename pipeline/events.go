package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"slices"
)

// EventKind is a point in a step's lifecycle.
type EventKind int

const (
	// BeforeInvoked fires immediately before a step runs.
	// It never fires for a component that could not be activated.
	BeforeInvoked EventKind = iota

	// AfterInvoked fires after a step returns, whether it failed or not.
	// It always follows AfterFailed or AfterSucceeded.
	AfterInvoked

	// AfterFailed fires when a step returns an error or panics.
	AfterFailed

	// AfterSucceeded fires when a step returns without error.
	AfterSucceeded
)

// String returns a human-readable representation of the EventKind
func (k EventKind) String() string {
	switch k {
	case BeforeInvoked:
		return "before_invoked"
	case AfterInvoked:
		return "after_invoked"
	case AfterFailed:
		return "after_failed"
	case AfterSucceeded:
		return "after_succeeded"
	default:
		return "unknown"
	}
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range AllEventKinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// AllEventKinds returns every kind in declaration order.
func AllEventKinds() []EventKind {
	return []EventKind{BeforeInvoked, AfterInvoked, AfterFailed, AfterSucceeded}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event describes a step at one point of its lifecycle.
//
// LIFECYCLE:
// - One Event is allocated per executed step per invocation
// - The same pointer is passed to observers for every phase of that step;
// only Kind advances, and Err is filled in on failure
// - Observers that need the values after Observe returns must copy them
type Event[T any] struct {
	// ID identifies the component or inline handler.
	ID ComponentID

	// Type is the runtime type of the instance, or the handler's func type.
	Type reflect.Type

	// Instance is the activated component. Nil for inline handlers.
	Instance Component[T]

	// Err is the last error observed for the step. Nil unless the step failed.
	Err error

	// Kind is the current lifecycle phase.
	Kind EventKind

	// State is the value passed to Invoke.
	State T
}

// Observer receives lifecycle events. Observers run synchronously on the
// invoking goroutine, in registration order.
type Observer[T any] interface {
	Observe(ctx context.Context, ev *Event[T]) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc[T any] func(ctx context.Context, ev *Event[T]) error

// Observe calls f(ctx, ev).
func (f ObserverFunc[T]) Observe(ctx context.Context, ev *Event[T]) error {
	return f(ctx, ev)
}

// registration pairs an observer with its kind filter. An empty filter
// matches every kind.
type registration[T any] struct {
	observer Observer[T]
	kinds    []EventKind
}

func (r registration[T]) matches(k EventKind) bool {
	return len(r.kinds) == 0 || slices.Contains(r.kinds, k)
}

// dispatcher delivers events to a fixed list of observers.
type dispatcher[T any] struct {
	observers []registration[T]
}

// dispatch stops at the first observer error.
func (d *dispatcher[T]) dispatch(ctx context.Context, ev *Event[T]) error {
	_, err := dispatchTo(ctx, ev, d.observers)
	return err
}

// dispatchTo delivers ev to observers in order. On error it also returns
// the index of the failing observer.
func dispatchTo[T any](ctx context.Context, ev *Event[T], observers []registration[T]) (int, error) {
	for i, r := range observers {
		if !r.matches(ev.Kind) {
			continue
		}
		if err := r.observer.Observe(ctx, ev); err != nil {
			return i, &ObserverError{Kind: ev.Kind, Component: ev.ID, Err: err}
		}
	}
	return len(observers), nil
}
