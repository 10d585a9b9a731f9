package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type valueComponent struct{}

func (valueComponent) Process(ctx context.Context, s *testState, next Next[*testState]) error {
	s.write("v")
	return next(ctx, s)
}

func TestDefaultActivator(t *testing.T) {
	a := DefaultActivator()

	t.Run("Pointer", func(t *testing.T) {
		v1, err := a.Activate(reflect.TypeFor[*Counter]())
		require.NoError(t, err)
		v2, err := a.Activate(reflect.TypeFor[*Counter]())
		require.NoError(t, err)

		require.IsType(t, &Counter{}, v1)
		require.IsType(t, &Counter{}, v2)
		assert.NotSame(t, v1, v2, "never cached")

		v1.(*Counter).calls = 3
		assert.Zero(t, v2.(*Counter).calls, "instances do not share state")
	})

	t.Run("Value", func(t *testing.T) {
		v, err := a.Activate(reflect.TypeFor[valueComponent]())
		require.NoError(t, err)
		assert.IsType(t, valueComponent{}, v)
	})

	t.Run("Interface", func(t *testing.T) {
		_, err := a.Activate(reflect.TypeFor[Component[*testState]]())
		assert.Error(t, err)
	})

	t.Run("Nil", func(t *testing.T) {
		_, err := a.Activate(nil)
		assert.Error(t, err)
	})
}

func TestUseComponent_ValueType(t *testing.T) {
	b := NewBuilder[*testState]()
	UseComponent[valueComponent](b)

	s := &testState{}
	require.NoError(t, b.BuildAndInvoke(context.Background(), s))
	assert.Equal(t, "v", s.String())
}

func TestActivationFailure(t *testing.T) {
	errMissing := errors.New("not registered")

	tests := []struct {
		name      string
		activator Activator
		cause     error
	}{
		{
			name: "Error",
			activator: ActivatorFunc(func(reflect.Type) (any, error) {
				return nil, errMissing
			}),
			cause: errMissing,
		},
		{
			name: "NilInstance",
			activator: ActivatorFunc(func(reflect.Type) (any, error) {
				return nil, nil
			}),
			cause: errNoInstance,
		},
		{
			name: "TypedNilInstance",
			activator: ActivatorFunc(func(reflect.Type) (any, error) {
				return (*C1)(nil), nil
			}),
			cause: errNoInstance,
		},
		{
			name: "NotAComponent",
			activator: ActivatorFunc(func(reflect.Type) (any, error) {
				return "hello", nil
			}),
		},
		{
			name: "Panic",
			activator: ActivatorFunc(func(reflect.Type) (any, error) {
				panic("activator exploded")
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recording{}
			s := &testState{}
			b := NewBuilder[*testState](WithActivator(tt.activator)).AddObserver(rec)
			b.UseFunc(appendStep("d1"))
			UseComponent[*C1](b)
			b.UseFunc(appendStep("d2"))

			err := b.BuildAndInvoke(context.Background(), s)

			var actErr *ActivationError
			require.ErrorAs(t, err, &actErr)
			assert.ErrorIs(t, err, ErrActivation)
			assert.Equal(t, reflect.TypeFor[*C1](), actErr.Type, "names the declared type")
			assert.Contains(t, err.Error(), "C1")
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}

			assert.Equal(t, "d1", s.String(), "later steps do not run")

			// Only the inline d1 step produced events: Before, Failed, Invoked.
			require.Len(t, rec.ids, 3)
			for _, id := range rec.ids {
				assert.NotEqual(t, IDFor[*C1](), id, "no events for the failed component")
			}
		})
	}
}

func TestActivationError_Is(t *testing.T) {
	err := &ActivationError{Type: reflect.TypeFor[*C1](), Err: errors.New("x")}
	assert.True(t, errors.Is(err, ErrActivation))
	assert.False(t, errors.Is(err, ErrActivatorAfterUse))
	assert.Equal(t, `failed to activate "*github.com/nomis52/gopipeline/pipeline.C1": x; if a registry-backed activator is in use, make sure the component is registered`, err.Error())
}
