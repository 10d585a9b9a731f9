package pipeline

import (
	"fmt"
	"reflect"
)

// Activator produces component instances on demand. It is called exactly
// once per component step per traversal; the core never caches or pools the
// result.
//
// Returning an error, a nil instance, or a value that does not implement
// Component for the pipeline's state type fails the invocation with an
// *ActivationError.
type Activator interface {
	Activate(t reflect.Type) (any, error)
}

// ActivatorFunc adapts a function to the Activator interface.
type ActivatorFunc func(t reflect.Type) (any, error)

// Activate calls f(t).
func (f ActivatorFunc) Activate(t reflect.Type) (any, error) {
	return f(t)
}

// DefaultActivator returns the activator used when none is configured. It
// allocates a new zero value for pointer types and returns the zero value for
// everything else, so every traversal gets a fresh instance.
func DefaultActivator() Activator {
	return defaultActivator{}
}

type defaultActivator struct{}

func (defaultActivator) Activate(t reflect.Type) (any, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot activate nil type")
	}
	switch t.Kind() {
	case reflect.Pointer:
		return reflect.New(t.Elem()).Interface(), nil
	case reflect.Interface:
		return nil, fmt.Errorf("cannot construct interface type %s", t)
	default:
		return reflect.Zero(t).Interface(), nil
	}
}

// activate asks a for an instance of declared and checks it against the
// component contract. Panics raised by the activator count as failures.
func activate[T any](a Activator, declared reflect.Type) (component Component[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			component = nil
			err = &ActivationError{Type: declared, Err: fmt.Errorf("activator panicked: %v", r)}
		}
	}()

	v, err := a.Activate(declared)
	if err != nil {
		return nil, &ActivationError{Type: declared, Err: err}
	}
	if isNil(v) {
		return nil, &ActivationError{Type: declared, Err: errNoInstance}
	}
	component, ok := v.(Component[T])
	if !ok {
		return nil, &ActivationError{
			Type: declared,
			Err:  fmt.Errorf("%T does not implement the component contract", v),
		}
	}
	return component, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
