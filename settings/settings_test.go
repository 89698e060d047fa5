package settings_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/settings"
)

func TestLayering(t *testing.T) {
	t.Parallel()

	r := settings.New(settings.WithDefaults(map[string]any{"theme": "plain"}))

	// Defaults only: every schema sees the default.
	for _, s := range []string{"", "blog", "shop"} {
		assert.Equal(t, "plain", r.ResolveOr(s, "theme", nil))
	}

	// Global override applies to every schema without its own override.
	require.NoError(t, r.SetGlobalOverride("theme", "dark"))
	for _, s := range []string{"", "blog", "shop"} {
		assert.Equal(t, "dark", r.ResolveOr(s, "theme", nil))
	}

	// Schema override applies to that schema only.
	require.NoError(t, r.SetSchemaOverride("blog", "theme", "solarized"))
	assert.Equal(t, "solarized", r.ResolveOr("blog", "theme", nil))
	assert.Equal(t, "dark", r.ResolveOr("shop", "theme", nil))
	assert.Equal(t, "dark", r.ResolveOr("", "theme", nil))

	r.ClearSchemaOverrides("blog")
	assert.Equal(t, "dark", r.ResolveOr("blog", "theme", nil))

	r.DeleteGlobalOverride("theme")
	assert.Equal(t, "plain", r.ResolveOr("blog", "theme", nil))
}

func TestUnknownKeyFallback(t *testing.T) {
	t.Parallel()

	r := settings.New()
	v, ok := r.Resolve("blog", "doesNotExist")
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 42, r.ResolveOr("blog", "doesNotExist", 42))
	assert.Equal(t, 7, r.For("blog").Int("doesNotExist", 7))
}

func TestCompoundKeysAreNotMerged(t *testing.T) {
	t.Parallel()

	r := settings.New(settings.WithDefaults(map[string]any{
		"pagination": map[string]any{"style": "pages", "size": 10},
	}))
	require.NoError(t, r.SetGlobalOverride("pagination", map[string]any{"size": 20}))

	v, ok := r.Resolve("blog", "pagination")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"size": 20}, v, "sibling keys must not leak from lower layers")
}

func TestResolvedValuesAreCopies(t *testing.T) {
	t.Parallel()

	r := settings.New()
	require.NoError(t, r.SetGlobalOverride(settings.ExcludedFields, map[string]any{"Post": []any{"secret"}}))

	v, ok := r.Resolve("blog", settings.ExcludedFields)
	require.True(t, ok)
	m := v.(map[string][]string)
	m["Post"][0] = "mutated"
	m["Category"] = []string{"x"}

	assert.Equal(t, []string{"secret"}, r.For("blog").ExcludedFields("Post"))
	assert.Empty(t, r.For("blog").ExcludedFields("Category"))
}

func TestCacheInvalidation(t *testing.T) {
	t.Parallel()

	r := settings.New()
	var (
		mu      sync.Mutex
		changed []string
	)
	r.OnChange(func(schema string) {
		mu.Lock()
		changed = append(changed, schema)
		mu.Unlock()
	})

	assert.Equal(t, 25, r.For("blog").Int(settings.DefaultPageSize, 0))
	assert.Equal(t, 25, r.For("shop").Int(settings.DefaultPageSize, 0))

	require.NoError(t, r.SetSchemaOverride("blog", settings.DefaultPageSize, 10))
	assert.Equal(t, 10, r.For("blog").Int(settings.DefaultPageSize, 0))
	assert.Equal(t, 25, r.For("shop").Int(settings.DefaultPageSize, 0))

	require.NoError(t, r.SetGlobalOverride(settings.DefaultPageSize, 20))
	assert.Equal(t, 10, r.For("blog").Int(settings.DefaultPageSize, 0))
	assert.Equal(t, 20, r.For("shop").Int(settings.DefaultPageSize, 0))

	r.Invalidate("shop")
	r.InvalidateAll()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"blog", "", "shop", ""}, changed)
}

func TestShapeValidation(t *testing.T) {
	t.Parallel()

	r := settings.New()
	tests := []struct {
		key   string
		value any
	}{
		{settings.MaxPageSize, 0},
		{settings.MaxPageSize, "ten"},
		{settings.BulkBatchSize, 1.5},
		{settings.TxRetryBudget, -1},
		{settings.BulkAtomic, "yes"},
		{settings.MethodDenylist, []any{1}},
		{settings.ExcludedFields, []string{"x"}},
		{settings.ExcludedFields, map[string]any{"Post": "secret"}},
		{settings.Models, map[string]any{"Post": 1}},
		{settings.QueryCacheTTL, "soon"},
	}
	for _, tt := range tests {
		err := r.SetGlobalOverride(tt.key, tt.value)
		require.Error(t, err, tt.key)
		assert.True(t, autogql.IsConfigError(err), tt.key)
	}
	assert.Error(t, r.SetSchemaOverride("", settings.MaxPageSize, 10))
	assert.Error(t, r.SetSchemaOverrides("blog", map[string]any{settings.MaxPageSize: -5}))
	assert.Empty(t, r.SchemaOverrides("blog"))

	// Decoded numbers are normalized.
	require.NoError(t, r.SetGlobalOverride(settings.MaxPageSize, float64(50)))
	assert.Equal(t, 50, r.ResolveOr("", settings.MaxPageSize, nil))
	require.NoError(t, r.SetGlobalOverride(settings.QueryCacheTTL, "1m"))
	assert.Equal(t, time.Minute, r.For("").Duration(settings.QueryCacheTTL, 0))
}

func TestModelSettings(t *testing.T) {
	t.Parallel()

	r := settings.New()
	require.NoError(t, r.SetGlobalOverride(settings.Models, map[string]any{
		"Post": map[string]any{settings.MaxPageSize: 10},
	}))
	v := r.For("blog")
	assert.Equal(t, 10, v.ModelInt("Post", settings.MaxPageSize, 0))
	assert.Equal(t, 100, v.ModelInt("Category", settings.MaxPageSize, 0))
	assert.True(t, v.ModelBool("Post", settings.ExposeReverseRelations, false))

	// A schema-level "models" replaces the global one wholesale.
	require.NoError(t, r.SetSchemaOverride("blog", settings.Models, map[string]any{
		"Category": map[string]any{settings.MaxPageSize: 5},
	}))
	assert.Equal(t, 100, v.ModelInt("Post", settings.MaxPageSize, 0))
	assert.Equal(t, 5, v.ModelInt("Category", settings.MaxPageSize, 0))
}

func TestViewAccessors(t *testing.T) {
	t.Parallel()

	r := settings.New()
	v := r.For("blog")
	assert.Equal(t, "blog", v.Schema())
	assert.Equal(t, 100, v.Int(settings.MaxPageSize, 0))
	assert.True(t, v.Bool(settings.ExposeReverseRelations, false))
	assert.Contains(t, v.Strings(settings.MethodDenylist), "save")
	assert.False(t, v.IsExcluded("Post", "title"))
	assert.Equal(t, 3, v.Int(settings.ExposeReverseRelations, 3), "type mismatch falls back")

	var zero settings.View
	_, ok := zero.Get(settings.MaxPageSize)
	assert.False(t, ok)

	eff := r.Effective("blog")
	assert.Equal(t, 100, eff[settings.MaxPageSize])
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := settings.New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = r.For("blog").Int(settings.DefaultPageSize, 0)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.SetSchemaOverride("blog", settings.DefaultPageSize, 1+(i+j)%50)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, r.SetSchemaOverride("blog", settings.DefaultPageSize, 33))
	assert.Equal(t, 33, r.For("blog").Int(settings.DefaultPageSize, 0))
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "autogql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
global:
  defaultPageSize: 20
schemas:
  - name: blog
    description: Blog API
    entities: [Post, Category]
    settings:
      maxPageSize: 50
      excludedFields:
        Post: [secret]
  - name: admin
    autoDiscover: true
    group: shop
    enabled: false
`), 0o600))

	f, err := settings.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 20, f.Global[settings.DefaultPageSize])
	require.Len(t, f.Schemas, 2)
	assert.Equal(t, []string{"Post", "Category"}, f.Schemas[0].Entities)
	assert.True(t, f.Schemas[0].IsEnabled())
	assert.False(t, f.Schemas[1].IsEnabled())
	assert.True(t, f.Schemas[1].AutoDiscover)

	_, err = settings.Parse([]byte("global:\n  maxPageSize: -1\n"))
	assert.True(t, autogql.IsConfigError(err))
	_, err = settings.Parse([]byte("schemas:\n  - name: a\n  - name: a\n"))
	assert.True(t, autogql.IsConfigError(err))
	_, err = settings.Parse([]byte("schemas:\n  - description: nameless\n"))
	assert.True(t, autogql.IsConfigError(err))
	_, err = settings.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFromDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTOGQLT_MAX_PAGE_SIZE=40\nAUTOGQLT_BULK_ATOMIC=true\nAUTOGQLT_THEME=dark\n"), 0o600))
	t.Setenv("AUTOGQLT_MAX_PAGE_SIZE", "60")

	values, err := settings.FromDotenv("AUTOGQLT_", path)
	require.NoError(t, err)
	assert.Equal(t, 60, values[settings.MaxPageSize], "process environment wins")
	assert.Equal(t, true, values[settings.BulkAtomic])
	assert.Equal(t, "dark", values["theme"])

	t.Setenv("AUTOGQLT_BULK_BATCH_SIZE", "0")
	_, err = settings.FromDotenv("AUTOGQLT_")
	assert.True(t, autogql.IsConfigError(err))
}
