package pipeline

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
)

// Option configures a Builder.
type Option func(*settings)

type settings struct {
	activator Activator
	logger    *slog.Logger
}

// WithActivator sets the activator used for component steps.
func WithActivator(a Activator) Option {
	return func(s *settings) {
		if a != nil {
			s.activator = a
		}
	}
}

// WithLogger sets a custom logger for the builder and the pipelines it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger.With("component", "pipeline")
		}
	}
}

// stepFactory produces the installer for one step from the settings captured
// at Build time.
type stepFactory[T any] func(c *compiler[T]) Installer[T]

// compiler is the immutable snapshot a Build call hands to every step.
type compiler[T any] struct {
	dispatcher[T]
	activator Activator
	logger    *slog.Logger
}

// Builder accumulates steps and observers and compiles them into Pipelines.
// A Builder is not safe for concurrent configuration; the Pipelines it
// builds are.
type Builder[T any] struct {
	steps     []stepFactory[T]
	observers []registration[T]
	settings
}

// NewBuilder creates an empty Builder with optional configuration.
func NewBuilder[T any](opts ...Option) *Builder[T] {
	b := &Builder[T]{
		settings: settings{
			activator: DefaultActivator(),
			logger:    slog.Default().With("component", "pipeline"),
		},
	}
	for _, opt := range opts {
		opt(&b.settings)
	}
	return b
}

// Use appends a raw installer. Raw installers are not instrumented: no
// events are dispatched around them.
func (b *Builder[T]) Use(installer Installer[T]) *Builder[T] {
	if installer == nil {
		panic("pipeline: nil installer")
	}
	b.steps = append(b.steps, func(*compiler[T]) Installer[T] {
		return installer
	})
	return b
}

// UseFunc appends an inline handler wrapped with event instrumentation.
func (b *Builder[T]) UseFunc(handler HandlerFunc[T]) *Builder[T] {
	if handler == nil {
		panic("pipeline: nil handler")
	}
	id := funcID(handler)
	handlerType := reflect.TypeOf(handler)
	b.steps = append(b.steps, func(c *compiler[T]) Installer[T] {
		return func(next Next[T]) Next[T] {
			return func(ctx context.Context, state T) error {
				ev := &Event[T]{ID: id, Type: handlerType, Kind: BeforeInvoked, State: state}
				return c.instrument(ctx, ev, func() error {
					return handler(ctx, state, next)
				})
			}
		}
	})
	return b
}

// UseInstance appends an already constructed component. The same instance
// serves every invocation, so it must be safe for concurrent use if the
// pipeline is invoked concurrently.
func (b *Builder[T]) UseInstance(component Component[T]) *Builder[T] {
	if isNil(component) {
		panic("pipeline: nil component")
	}
	componentType := reflect.TypeOf(component)
	id := IDOf(componentType)
	b.steps = append(b.steps, func(c *compiler[T]) Installer[T] {
		return func(next Next[T]) Next[T] {
			return func(ctx context.Context, state T) error {
				ev := &Event[T]{ID: id, Type: componentType, Instance: component, Kind: BeforeInvoked, State: state}
				return c.instrument(ctx, ev, func() error {
					return component.Process(ctx, state, next)
				})
			}
		}
	})
	return b
}

// UseComponent appends a component step. Each time the step is reached the
// builder's activator is asked for a new instance of C.
//
//	b := pipeline.NewBuilder[*Order]()
//	pipeline.UseComponent[*Validate](b)
//	pipeline.UseComponent[*Charge](b)
func UseComponent[C Component[T], T any](b *Builder[T]) *Builder[T] {
	declared := reflect.TypeFor[C]()
	b.steps = append(b.steps, func(c *compiler[T]) Installer[T] {
		return func(next Next[T]) Next[T] {
			return func(ctx context.Context, state T) error {
				component, err := activate[T](c.activator, declared)
				if err != nil {
					c.logger.Error("component activation failed", "component_type", typeName(declared), "error", err)
					return err
				}
				componentType := reflect.TypeOf(component)
				ev := &Event[T]{
					ID:       IDOf(componentType),
					Type:     componentType,
					Instance: component,
					Kind:     BeforeInvoked,
					State:    state,
				}
				return c.instrument(ctx, ev, func() error {
					return component.Process(ctx, state, next)
				})
			}
		}
	})
	return b
}

// SetActivator replaces the activator. It must be called before any step is
// added; afterwards it returns a *ConfigurationError wrapping
// ErrActivatorAfterUse and leaves the builder unchanged.
func (b *Builder[T]) SetActivator(a Activator) error {
	if len(b.steps) > 0 {
		return &ConfigurationError{Op: "SetActivator", Err: ErrActivatorAfterUse}
	}
	if a == nil {
		return &ConfigurationError{Op: "SetActivator", Err: ErrNilActivator}
	}
	b.activator = a
	return nil
}

// AddObserver registers an observer. With no kinds the observer receives
// every event; otherwise only events of the listed kinds.
func (b *Builder[T]) AddObserver(o Observer[T], kinds ...EventKind) *Builder[T] {
	if o == nil {
		panic("pipeline: nil observer")
	}
	b.observers = append(b.observers, registration[T]{
		observer: o,
		kinds:    slices.Clone(kinds),
	})
	return b
}

// Len returns the number of steps added so far.
func (b *Builder[T]) Len() int {
	return len(b.steps)
}

// Build compiles the configured steps into a new Pipeline. The builder is
// not modified, so Build may be called repeatedly; later changes to the
// builder do not affect pipelines already built.
func (b *Builder[T]) Build() *Pipeline[T] {
	c := &compiler[T]{
		dispatcher: dispatcher[T]{observers: slices.Clone(b.observers)},
		activator:  b.activator,
		logger:     b.logger,
	}
	if c.activator == nil {
		c.activator = DefaultActivator()
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "pipeline")
	}

	// Fold right to left so the first step added is the outermost and runs first.
	next := Next[T](func(context.Context, T) error { return nil })
	for i := len(b.steps) - 1; i >= 0; i-- {
		next = b.steps[i](c)(next)
	}

	c.logger.Debug("pipeline built", "steps", len(b.steps), "observers", len(c.observers))
	return &Pipeline[T]{run: next, steps: len(b.steps)}
}

// BuildAndInvoke builds a pipeline and invokes it once.
func (b *Builder[T]) BuildAndInvoke(ctx context.Context, state T) error {
	return b.Build().Invoke(ctx, state)
}
