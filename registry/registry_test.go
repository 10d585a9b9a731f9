package registry

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/gopipeline/pipeline"
)

type doc struct {
	steps []string
}

type Stamp struct{}

func (Stamp) Process(ctx context.Context, d *doc, next pipeline.Next[*doc]) error {
	d.steps = append(d.steps, "stamp")
	return next(ctx, d)
}

func write(v string) pipeline.HandlerFunc[*doc] {
	return func(ctx context.Context, d *doc, next pipeline.Next[*doc]) error {
		d.steps = append(d.steps, v)
		return next(ctx, d)
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, Register(r, "publish", func(b *pipeline.Builder[*doc]) {
		b.UseFunc(write("lint"))
		pipeline.UseComponent[Stamp](b)
	}))

	p, err := Get[*doc](r, "publish")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Steps())

	d := &doc{}
	require.NoError(t, p.Invoke(context.Background(), d))
	assert.Equal(t, []string{"lint", "stamp"}, d.steps)
}

func TestRegistry_Transient(t *testing.T) {
	r := New()
	calls := 0
	require.NoError(t, Register(r, "publish", func(b *pipeline.Builder[*doc]) {
		calls++
		b.UseFunc(write("lint"))
	}))

	p1, err := Get[*doc](r, "publish")
	require.NoError(t, err)
	p2, err := Get[*doc](r, "publish")
	require.NoError(t, err)

	assert.NotSame(t, p1, p2)
	assert.Equal(t, 2, calls, "definition runs for every lookup")
}

func TestRegistry_BuilderCanBeExtended(t *testing.T) {
	r := New()
	require.NoError(t, Register(r, "publish", func(b *pipeline.Builder[*doc]) {
		b.UseFunc(write("lint"))
	}))

	b, err := Builder[*doc](r, "publish")
	require.NoError(t, err)
	b.UseFunc(write("extra"))

	d := &doc{}
	require.NoError(t, b.BuildAndInvoke(context.Background(), d))
	assert.Equal(t, []string{"lint", "extra"}, d.steps)

	d2 := &doc{}
	p, err := Get[*doc](r, "publish")
	require.NoError(t, err)
	require.NoError(t, p.Invoke(context.Background(), d2))
	assert.Equal(t, []string{"lint"}, d2.steps, "extensions do not leak into the definition")
}

func TestRegistry_Errors(t *testing.T) {
	r := New()
	require.NoError(t, Register(r, "publish", func(b *pipeline.Builder[*doc]) {}))

	t.Run("Duplicate", func(t *testing.T) {
		err := Register(r, "publish", func(b *pipeline.Builder[*doc]) {})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := Get[*doc](r, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		_, err := Get[string](r, "publish")
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("EmptyName", func(t *testing.T) {
		assert.Error(t, Register(r, "", func(b *pipeline.Builder[*doc]) {}))
	})

	t.Run("NilConfigure", func(t *testing.T) {
		assert.Error(t, Register[*doc](r, "nil", nil))
	})
}

func TestRegistry_UsesActivator(t *testing.T) {
	activated := 0
	a := pipeline.ActivatorFunc(func(typ reflect.Type) (any, error) {
		activated++
		return pipeline.DefaultActivator().Activate(typ)
	})

	r := New(WithActivator(a))
	require.NoError(t, Register(r, "publish", func(b *pipeline.Builder[*doc]) {
		pipeline.UseComponent[Stamp](b)
	}))

	p, err := Get[*doc](r, "publish")
	require.NoError(t, err)
	require.NoError(t, p.Invoke(context.Background(), &doc{}))
	assert.Equal(t, 1, activated)
}

func TestRegistry_Names(t *testing.T) {
	r := New()
	require.NoError(t, Register(r, "b", func(*pipeline.Builder[*doc]) {}))
	require.NoError(t, Register(r, "a", func(*pipeline.Builder[string]) {}))

	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))

	typ, ok := r.StateType("a")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[string](), typ)
}
