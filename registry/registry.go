// Package registry keeps named pipeline definitions so that hosts can build
// pipelines by name.
//
// A definition is a function that configures a fresh builder. Every lookup
// runs it again, so each caller gets its own pipeline.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/nomis52/gopipeline/pipeline"
)

var (
	// ErrNotFound is returned for names that were never registered.
	ErrNotFound = errors.New("pipeline not registered")

	// ErrTypeMismatch is returned when a pipeline is requested with a state
	// type other than the one it was registered with.
	ErrTypeMismatch = errors.New("pipeline state type mismatch")

	// ErrDuplicate is returned when a name is registered twice.
	ErrDuplicate = errors.New("pipeline already registered")
)

// Registry maps names to pipeline definitions. It is safe for concurrent use.
type Registry struct {
	activator pipeline.Activator
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	stateType reflect.Type
	configure any // func(*pipeline.Builder[T])
}

// Option configures a Registry.
type Option func(*Registry)

// WithActivator sets the activator every builder is created with.
func WithActivator(a pipeline.Activator) Option {
	return func(r *Registry) {
		r.activator = a
	}
}

// WithLogger sets the logger handed to every builder.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		activator: pipeline.DefaultActivator(),
		logger:    slog.Default(),
		entries:   make(map[string]entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a named definition for pipelines over state type T.
func Register[T any](r *Registry, name string, configure func(b *pipeline.Builder[T])) error {
	if name == "" {
		return errors.New("pipeline name must not be empty")
	}
	if configure == nil {
		return fmt.Errorf("pipeline %q: nil configure function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	r.entries[name] = entry{
		stateType: reflect.TypeFor[T](),
		configure: configure,
	}
	r.logger.Debug("pipeline registered", "component", "registry", "pipeline", name, "state_type", reflect.TypeFor[T]().String())
	return nil
}

// Builder returns a new builder configured by the definition registered
// under name. Callers may add further steps or observers before building.
func Builder[T any](r *Registry, name string) (*pipeline.Builder[T], error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	configure, ok := e.configure.(func(*pipeline.Builder[T]))
	if !ok {
		return nil, fmt.Errorf("%w: %q has state type %s, requested %s", ErrTypeMismatch, name, e.stateType, reflect.TypeFor[T]())
	}

	b := pipeline.NewBuilder[T](
		pipeline.WithActivator(r.activator),
		pipeline.WithLogger(r.logger.With("pipeline", name)),
	)
	configure(b)
	return b, nil
}

// Get builds a new pipeline from the definition registered under name.
func Get[T any](r *Registry, name string) (*pipeline.Pipeline[T], error) {
	b, err := Builder[T](r, name)
	if err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// StateType returns the state type name was registered with.
func (r *Registry) StateType(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.stateType, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.StateType(name)
	return ok
}
