package pipeline

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrActivation matches every *ActivationError via errors.Is.
	ErrActivation = errors.New("component activation failed")

	// ErrActivatorAfterUse is returned by SetActivator once a step was added.
	ErrActivatorAfterUse = errors.New("activator must be set before any step is added")

	// ErrNilActivator is returned by SetActivator when given nil.
	ErrNilActivator = errors.New("activator must not be nil")

	errNoInstance = errors.New("activator returned no instance")
)

// ActivationError is returned when a component step could not obtain an
// instance of its declared type. No events are dispatched for such a step.
type ActivationError struct {
	// Type is the declared component type.
	Type reflect.Type
	// Err is the underlying cause.
	Err error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("failed to activate %q: %v; if a registry-backed activator is in use, make sure the component is registered", typeName(e.Type), e.Err)
}

func (e *ActivationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrActivation) hold for any ActivationError.
func (e *ActivationError) Is(target error) bool {
	return target == ErrActivation
}

// ConfigurationError reports misuse of a Builder at configuration time.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pipeline configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ObserverError wraps an error returned by an observer.
type ObserverError struct {
	Kind      EventKind
	Component ComponentID
	Err       error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer failed on %s for %s: %v", e.Kind, e.Component.ShortString(), e.Err)
}

func (e *ObserverError) Unwrap() error {
	return e.Err
}

// PanicError is recorded on the event when a step panics. The panic itself
// is re-raised after the failure events are dispatched.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("step panicked: %v", e.Value)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer && t.Elem().Name() != "" {
		return "*" + t.Elem().PkgPath() + "." + t.Elem().Name()
	}
	if t.Name() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
