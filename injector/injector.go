package injector

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/nomis52/gopipeline/logging"
	"github.com/nomis52/gopipeline/pipeline"
)

// ErrComponentNotFound matches every *ComponentNotFoundError.
var ErrComponentNotFound = errors.New("component not registered")

// ComponentNotFoundError is returned by Activate for unregistered types.
type ComponentNotFoundError struct {
	Type reflect.Type
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component %s not registered with the injector", e.Type)
}

func (e *ComponentNotFoundError) Is(target error) bool {
	return target == ErrComponentNotFound
}

// Initializer is implemented by components that validate their injected
// fields before use.
type Initializer interface {
	Init() error
}

// Factory constructs a component.
type Factory func(inj *Injector) (any, error)

var loggerType = reflect.TypeFor[*slog.Logger]()

// Injector resolves component types to instances. It is safe for concurrent
// use once registration is complete.
type Injector struct {
	config any
	logger *slog.Logger
	hook   logging.LoggerHook

	mu        sync.RWMutex
	deps      map[reflect.Type]any
	factories map[reflect.Type]Factory
}

// Option configures an Injector.
type Option func(*Injector)

// WithConfig sets the value `config` tags are resolved against.
func WithConfig(config any) Option {
	return func(inj *Injector) {
		inj.config = config
	}
}

// WithLogger sets the base logger. Component loggers are derived from it.
func WithLogger(logger *slog.Logger) Option {
	return func(inj *Injector) {
		inj.logger = logger
	}
}

// WithLoggerHook sets how component loggers are derived from the base logger.
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(inj *Injector) {
		inj.hook = hook
	}
}

// New creates an empty Injector.
func New(opts ...Option) *Injector {
	inj := &Injector{
		logger:    slog.Default(),
		hook:      logging.TaggingLoggerHook,
		deps:      make(map[reflect.Type]any),
		factories: make(map[reflect.Type]Factory),
	}
	for _, opt := range opts {
		opt(inj)
	}
	return inj
}

// Inject adds typed dependencies. Each type may be injected once; nil values
// are skipped with a warning.
func (inj *Injector) Inject(deps ...any) error {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	for _, dep := range deps {
		if dep == nil {
			inj.log().Warn("attempted to inject nil dependency")
			continue
		}
		depType := reflect.TypeOf(dep)
		if _, exists := inj.deps[depType]; exists {
			return fmt.Errorf("dependency type %s already injected", depType)
		}
		inj.deps[depType] = dep
		inj.log().Debug("dependency injected", "type", depType.String())
	}
	return nil
}

// Dependency returns the injected value of type D.
func Dependency[D any](inj *Injector) (D, bool) {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	v, ok := inj.deps[reflect.TypeFor[D]()]
	if !ok {
		var zero D
		return zero, false
	}
	return v.(D), true
}

// Register makes C activatable. Each activation builds a new C and injects
// its fields.
func Register[C any](inj *Injector) error {
	t := reflect.TypeFor[C]()
	return inj.register(t, func(inj *Injector) (any, error) {
		return inj.construct(t)
	})
}

// Provide makes C activatable through factory. The returned value is used
// as is: no field injection, but Init is still called.
func Provide[C any](inj *Injector, factory func(inj *Injector) (C, error)) error {
	if factory == nil {
		return errors.New("nil factory")
	}
	return inj.register(reflect.TypeFor[C](), func(inj *Injector) (any, error) {
		return factory(inj)
	})
}

func (inj *Injector) register(t reflect.Type, f Factory) error {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	if _, exists := inj.factories[t]; exists {
		return fmt.Errorf("component type %s already registered", t)
	}
	inj.factories[t] = f
	inj.log().Debug("component registered", "type", t.String())
	return nil
}

// Registered returns the registered component types, sorted by name.
func (inj *Injector) Registered() []reflect.Type {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	return slices.SortedFunc(maps.Keys(inj.factories), func(a, b reflect.Type) int {
		return strings.Compare(a.String(), b.String())
	})
}

// Activate implements pipeline.Activator.
func (inj *Injector) Activate(t reflect.Type) (any, error) {
	inj.mu.RLock()
	factory, ok := inj.factories[t]
	inj.mu.RUnlock()
	if !ok {
		return nil, &ComponentNotFoundError{Type: t}
	}

	v, err := factory(inj)
	if err != nil {
		return nil, err
	}
	if initializer, ok := v.(Initializer); ok {
		if err := initializer.Init(); err != nil {
			return nil, fmt.Errorf("init %s: %w", pipeline.IDOf(t).ShortString(), err)
		}
	}
	return v, nil
}

// construct allocates a t and injects its fields. t must be a struct or a
// pointer to a struct.
func (inj *Injector) construct(t reflect.Type) (any, error) {
	switch {
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		ptr := reflect.New(t.Elem())
		if err := inj.injectFields(ptr.Elem(), pipeline.IDOf(t)); err != nil {
			return nil, err
		}
		return ptr.Interface(), nil
	case t.Kind() == reflect.Struct:
		v := reflect.New(t).Elem()
		if err := inj.injectFields(v, pipeline.IDOf(t)); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	default:
		return nil, fmt.Errorf("cannot construct %s: not a struct", t)
	}
}

// injectFields handles config and type injection for a single component.
func (inj *Injector) injectFields(v reflect.Value, id pipeline.ComponentID) error {
	t := v.Type()
	inj.mu.RLock()
	defer inj.mu.RUnlock()

	for i := range t.NumField() {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if !fieldValue.CanSet() || field.Tag.Get("inject") == "-" {
			continue
		}

		if configTag := field.Tag.Get("config"); configTag != "" {
			inj.log().Debug("injecting config", "component_id", id.String(), "field", field.Name, "config_path", configTag)
			if err := inj.injectConfigValue(fieldValue, configTag); err != nil {
				return fmt.Errorf("config injection failed for field %s: %w", field.Name, err)
			}
			continue
		}

		if dep, exists := inj.deps[field.Type]; exists {
			fieldValue.Set(reflect.ValueOf(dep))
			continue
		}

		if field.Type.Kind() == reflect.Pointer {
			if dep, exists := inj.deps[field.Type.Elem()]; exists {
				ptr := reflect.New(field.Type.Elem())
				ptr.Elem().Set(reflect.ValueOf(dep))
				fieldValue.Set(ptr)
				continue
			}
		}

		if field.Type == loggerType {
			fieldValue.Set(reflect.ValueOf(inj.hook.LoggerForComponent(inj.logger, id.ShortString())))
		}
	}
	return nil
}

// injectConfigValue resolves a dot-separated path against the config.
func (inj *Injector) injectConfigValue(fieldValue reflect.Value, path string) error {
	if inj.config == nil {
		return fmt.Errorf("config path %s: no config provided", path)
	}

	value := reflect.ValueOf(inj.config)
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return fmt.Errorf("config path %s: empty element", path)
		}
		for value.Kind() == reflect.Pointer || value.Kind() == reflect.Interface {
			if value.IsNil() {
				return fmt.Errorf("config path %s: nil value before %q", path, part)
			}
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Struct:
			fieldVal := lookupField(value, part)
			if !fieldVal.IsValid() {
				return fmt.Errorf("config path %s: field for %q not found", path, part)
			}
			value = fieldVal
		case reflect.Map:
			if value.Type().Key().Kind() != reflect.String {
				return fmt.Errorf("config path %s: map key must be a string", path)
			}
			entry := value.MapIndex(reflect.ValueOf(part).Convert(value.Type().Key()))
			if !entry.IsValid() {
				return fmt.Errorf("config path %s: key %q not found", path, part)
			}
			value = entry
		default:
			return fmt.Errorf("config path %s: expected struct or map, got %s", path, value.Kind())
		}
	}

	if value.Kind() == reflect.Interface && !value.IsNil() {
		value = value.Elem()
	}
	switch {
	case value.Type().AssignableTo(fieldValue.Type()):
		fieldValue.Set(value)
	case value.Type().ConvertibleTo(fieldValue.Type()) && value.Kind() != reflect.String && fieldValue.Kind() != reflect.String:
		fieldValue.Set(value.Convert(fieldValue.Type()))
	default:
		return fmt.Errorf("config path %s: type %s not assignable to %s", path, value.Type(), fieldValue.Type())
	}
	return nil
}

// lookupField tries the exact name, the capitalised name, the upper-case name
// (for acronyms like API) and finally yaml tags.
func lookupField(value reflect.Value, part string) reflect.Value {
	if f := value.FieldByName(part); f.IsValid() {
		return f
	}
	if f := value.FieldByName(strings.ToUpper(part[:1]) + part[1:]); f.IsValid() {
		return f
	}
	if f := value.FieldByName(strings.ToUpper(part)); f.IsValid() {
		return f
	}
	typ := value.Type()
	for i := range typ.NumField() {
		yamlName, _, _ := strings.Cut(typ.Field(i).Tag.Get("yaml"), ",")
		if yamlName == part {
			return value.Field(i)
		}
	}
	return reflect.Value{}
}

func (inj *Injector) log() *slog.Logger {
	return inj.logger.With("component", "injector")
}

// Verify Injector implements pipeline.Activator.
var _ pipeline.Activator = (*Injector)(nil)
