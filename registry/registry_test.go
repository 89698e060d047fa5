package registry_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/contrib/cache"
	"github.com/raillogistic/autogql/dialect/memory"
	"github.com/raillogistic/autogql/graphql"
	"github.com/raillogistic/autogql/registry"
	"github.com/raillogistic/autogql/schema/field"
	"github.com/raillogistic/autogql/settings"
)

type Note struct{ autogql.Schema }

func (Note) Fields() []autogql.Field {
	return []autogql.Field{field.String("text")}
}

// counter builds a schema of Note on every call and counts the builds.
type counter struct {
	builds atomic.Int32
	delay  time.Duration
	hook   func(*registry.Registration)
}

func (c *counter) Build(ctx context.Context, reg *registry.Registration) (*graphql.Schema, error) {
	c.builds.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.hook != nil {
		c.hook(reg)
	}
	m, err := load.NewIntrospector().Introspect(Note{})
	if err != nil {
		return nil, err
	}
	g, err := gen.NewGraph([]*load.EntityMetadata{m})
	if err != nil {
		return nil, err
	}
	p := memory.New()
	if err := p.Migrate(ctx, g.Entities()...); err != nil {
		return nil, err
	}
	return graphql.New(reg.Name(), g, p)
}

func notes() registry.Config {
	return registry.Config{Entities: []string{"Note"}}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	r := registry.New(&counter{})
	reg, err := r.Register("blog", registry.Config{
		Entities: []string{"Note"},
		Settings: map[string]any{settings.MaxPageSize: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, "blog", reg.Name())
	assert.True(t, reg.Enabled())
	assert.Equal(t, 50, r.Settings().For("blog").Int(settings.MaxPageSize, 0))

	_, err = r.Register("blog", notes())
	assert.ErrorIs(t, err, autogql.ErrSchemaExists)

	replaced, err := r.Register("blog", notes(), registry.Replace())
	require.NoError(t, err)
	assert.NotSame(t, reg, replaced)
	assert.Equal(t, 100, r.Settings().For("blog").Int(settings.MaxPageSize, 0), "overrides of the replaced registration are dropped")

	_, err = r.Register("", notes())
	assert.True(t, autogql.IsConfigError(err))
	_, err = r.Register("empty", registry.Config{})
	assert.True(t, autogql.IsConfigError(err))
	_, err = r.Register("bad", registry.Config{Entities: []string{"Note"}, Settings: map[string]any{settings.MaxPageSize: "many"}})
	assert.True(t, autogql.IsConfigError(err))
	_, err = r.Get("bad")
	assert.ErrorIs(t, err, autogql.ErrSchemaNotFound)

	_, err = r.Register("admin", registry.Config{AutoDiscover: true, Disabled: true})
	require.NoError(t, err)
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "admin", list[0].Name())
	assert.False(t, list[0].Enabled())
	assert.Equal(t, "blog", list[1].Name())
}

func TestBuildOrGetCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := &counter{}
	r := registry.New(b)
	_, err := r.BuildOrGetCached(ctx, "blog")
	assert.ErrorIs(t, err, autogql.ErrSchemaNotFound)

	reg, err := r.Register("blog", notes())
	require.NoError(t, err)
	s1, err := r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)
	s2, err := r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.EqualValues(t, 1, b.builds.Load())
	built, ok := reg.Built()
	assert.True(t, ok)
	assert.Same(t, s1, built)
	assert.False(t, reg.BuiltAt().IsZero())

	require.NoError(t, r.Invalidate("blog"))
	_, ok = reg.Built()
	assert.False(t, ok)
	s3, err := r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
	assert.EqualValues(t, 2, b.builds.Load())

	require.NoError(t, r.SetEntities("blog", []string{"Note"}))
	_, ok = reg.Built()
	assert.False(t, ok, "entity changes clear the built schema")
	_, err = r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)

	require.NoError(t, r.SetOverrides("blog", map[string]any{settings.DefaultPageSize: 10}))
	_, ok = reg.Built()
	assert.False(t, ok, "override changes clear the built schema")
	assert.Equal(t, map[string]any{settings.DefaultPageSize: 10}, reg.Config().Settings)
	_, err = r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)

	require.NoError(t, r.Settings().SetGlobalOverride(settings.DefaultPageSize, 20))
	_, ok = reg.Built()
	assert.False(t, ok, "global changes clear every built schema")
	assert.EqualValues(t, 4, b.builds.Load())

	assert.ErrorIs(t, r.Invalidate("nope"), autogql.ErrSchemaNotFound)
	assert.ErrorIs(t, r.SetEntities("nope", []string{"Note"}), autogql.ErrSchemaNotFound)
	assert.True(t, autogql.IsConfigError(r.SetEntities("blog", nil)))
}

func TestEnableDisable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := registry.New(&counter{})
	_, err := r.Register("blog", notes())
	require.NoError(t, err)
	s, err := r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)

	require.NoError(t, r.Disable("blog"))
	_, err = r.BuildOrGetCached(ctx, "blog")
	assert.ErrorIs(t, err, autogql.ErrSchemaDisabled)
	reg, err := r.Get("blog")
	require.NoError(t, err)
	assert.False(t, reg.Enabled())
	assert.True(t, reg.Config().Disabled)
	assert.Len(t, r.List(), 1, "disabled schemas are listed")

	require.NoError(t, r.Enable("blog"))
	again, err := r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.ErrorIs(t, r.Enable("nope"), autogql.ErrSchemaNotFound)
	assert.ErrorIs(t, r.Disable("nope"), autogql.ErrSchemaNotFound)
}

func TestUnregister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := registry.New(&counter{})
	reg, err := r.Register("blog", registry.Config{Entities: []string{"Note"}, Settings: map[string]any{settings.DefaultPageSize: 5}})
	require.NoError(t, err)
	_, err = r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)

	require.NoError(t, r.Unregister("blog"))
	_, ok := reg.Built()
	assert.False(t, ok)
	assert.Empty(t, r.Settings().SchemaOverrides("blog"))
	_, err = r.BuildOrGetCached(ctx, "blog")
	assert.ErrorIs(t, err, autogql.ErrSchemaNotFound)
	assert.ErrorIs(t, r.Unregister("blog"), autogql.ErrSchemaNotFound)
}

func TestConcurrentBuild(t *testing.T) {
	t.Parallel()
	b := &counter{delay: 20 * time.Millisecond}
	r := registry.New(b)
	_, err := r.Register("blog", notes())
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		schemas = make([]*graphql.Schema, 16)
	)
	for i := range schemas {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.BuildOrGetCached(context.Background(), "blog")
			assert.NoError(t, err)
			schemas[i] = s
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, b.builds.Load())
	for _, s := range schemas[1:] {
		assert.Same(t, schemas[0], s)
	}
}

func TestBuildNotBlockedByOtherSchema(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	started, release := make(chan struct{}), make(chan struct{})
	b := &counter{hook: func(reg *registry.Registration) {
		if reg.Name() == "slow" {
			close(started)
			<-release
		}
	}}
	r := registry.New(b)
	for _, name := range []string{"slow", "fast"} {
		_, err := r.Register(name, notes())
		require.NoError(t, err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := r.BuildOrGetCached(ctx, "slow")
		done <- err
	}()
	<-started
	_, err := r.BuildOrGetCached(ctx, "fast")
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)
}

func TestStaleBuildNotCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var r *registry.Registry
	once := sync.Once{}
	b := &counter{hook: func(reg *registry.Registration) {
		once.Do(func() { require.NoError(t, r.Invalidate(reg.Name())) })
	}}
	r = registry.New(b)
	reg, err := r.Register("blog", notes())
	require.NoError(t, err)
	s, err := r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)
	require.NotNil(t, s)
	_, ok := reg.Built()
	assert.False(t, ok, "a schema invalidated while building is not cached")
	_, err = r.BuildOrGetCached(ctx, "blog")
	require.NoError(t, err)
	_, ok = reg.Built()
	assert.True(t, ok)
}

func TestBuildError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	r := registry.New(registry.BuilderFunc(func(context.Context, *registry.Registration) (*graphql.Schema, error) {
		return nil, boom
	}))
	reg, err := r.Register("blog", notes())
	require.NoError(t, err)
	_, err = r.BuildOrGetCached(context.Background(), "blog")
	assert.ErrorIs(t, err, boom)
	_, ok := reg.Built()
	assert.False(t, ok)

	_, err = registry.New(nil).Register("blog", notes())
	require.NoError(t, err)
}

func TestWarmUp(t *testing.T) {
	t.Parallel()
	b := &counter{}
	r := registry.New(b, registry.WithWorkers(2))
	for _, name := range []string{"a", "b", "c"} {
		_, err := r.Register(name, notes())
		require.NoError(t, err)
	}
	require.NoError(t, r.Disable("c"))
	require.NoError(t, r.WarmUp(context.Background()))
	assert.EqualValues(t, 2, b.builds.Load())
	for _, name := range []string{"a", "b"} {
		reg, err := r.Get(name)
		require.NoError(t, err)
		_, ok := reg.Built()
		assert.True(t, ok, name)
	}
	err := r.WarmUp(context.Background(), "c")
	assert.ErrorIs(t, err, autogql.ErrSchemaDisabled)
}

func TestInvalidateDropsCachedResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := cache.NewMemory()
	r := registry.New(&counter{}, registry.WithCache(c))
	for _, name := range []string{"blog", "shop"} {
		_, err := r.Register(name, notes())
		require.NoError(t, err)
	}
	blog := autogql.CacheKey{Schema: "blog", Entity: "Note", Operation: "notes", Args: "x"}.String()
	shop := autogql.CacheKey{Schema: "shop", Entity: "Note", Operation: "notes", Args: "x"}.String()
	require.NoError(t, c.Set(ctx, blog, []byte("1"), 0))
	require.NoError(t, c.Set(ctx, shop, []byte("1"), 0))

	require.NoError(t, r.Invalidate("blog"))
	v, err := c.Get(ctx, blog)
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = c.Get(ctx, shop)
	require.NoError(t, err)
	assert.NotNil(t, v)

	r.InvalidateAll()
	assert.Zero(t, c.Len())
}
