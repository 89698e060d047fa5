// Package settings implements the three-tier settings resolver.
//
// A key K is resolved for schema S from the first layer defining it:
//
//	schemaOverrides[S][K] > globalOverrides[K] > libraryDefaults[K]
//
// Values of compound keys (maps) are taken whole from the most specific layer
// that defines the key; sibling entries are never merged across layers.
package settings

import (
	"log/slog"
	"slices"
	"sync"
)

// Resolver resolves settings for schema instances. It is safe for
// concurrent use; reads only take a shared lock.
type Resolver struct {
	mu        sync.RWMutex
	defaults  map[string]any
	global    map[string]any
	schemas   map[string]map[string]any
	cache     sync.Map // cacheKey -> entry
	listeners []func(schema string)
	logger    *slog.Logger
}

type (
	cacheKey struct {
		schema string
		key    string
	}
	entry struct {
		value any
		ok    bool
	}
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used by the resolver.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithDefaults replaces entries of the library defaults layer. The layer is
// frozen once the resolver is created.
func WithDefaults(values map[string]any) Option {
	return func(r *Resolver) {
		for k, v := range values {
			r.defaults[k] = clone(v)
		}
	}
}

// New returns a Resolver whose defaults layer holds Defaults().
func New(opts ...Option) *Resolver {
	r := &Resolver{
		defaults: Defaults(),
		global:   make(map[string]any),
		schemas:  make(map[string]map[string]any),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the value of key for the given schema. An empty schema
// name skips the schema layer. The returned value is a private copy.
func (r *Resolver) Resolve(schema, key string) (any, bool) {
	k := cacheKey{schema: schema, key: key}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.cache.Load(k); ok {
		e := e.(entry)
		return clone(e.value), e.ok
	}
	v, ok := r.lookup(schema, key)
	// Stored under the read lock: invalidation takes the write lock, so an
	// entry computed from a stale layer can never survive it.
	r.cache.Store(k, entry{value: v, ok: ok})
	return clone(v), ok
}

// ResolveOr is like Resolve, but returns fallback for keys that are not
// defined in any layer.
func (r *Resolver) ResolveOr(schema, key string, fallback any) any {
	if v, ok := r.Resolve(schema, key); ok {
		return v
	}
	return fallback
}

func (r *Resolver) lookup(schema, key string) (any, bool) {
	if schema != "" {
		if v, ok := r.schemas[schema][key]; ok {
			return v, true
		}
	}
	if v, ok := r.global[key]; ok {
		return v, true
	}
	v, ok := r.defaults[key]
	return v, ok
}

// SetGlobalOverride sets key in the global overrides layer. It affects every
// schema that does not override key itself.
func (r *Resolver) SetGlobalOverride(key string, value any) error {
	v, err := normalize(key, value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.global[key] = clone(v)
	r.cache.Clear()
	r.mu.Unlock()
	r.logger.Info("global setting override", "key", key)
	r.notify("")
	return nil
}

// SetGlobalOverrides sets multiple global overrides at once. Either all
// values are applied or none.
func (r *Resolver) SetGlobalOverrides(values map[string]any) error {
	normalized, err := normalizeAll(values)
	if err != nil {
		return err
	}
	r.mu.Lock()
	for k, v := range normalized {
		r.global[k] = v
	}
	r.cache.Clear()
	r.mu.Unlock()
	r.notify("")
	return nil
}

// DeleteGlobalOverride removes key from the global overrides layer.
func (r *Resolver) DeleteGlobalOverride(key string) {
	r.mu.Lock()
	_, ok := r.global[key]
	delete(r.global, key)
	if ok {
		r.cache.Clear()
	}
	r.mu.Unlock()
	if ok {
		r.notify("")
	}
}

// SetSchemaOverride sets key in the overrides layer of one schema. Only the
// cached values of that schema are invalidated.
func (r *Resolver) SetSchemaOverride(schema, key string, value any) error {
	if schema == "" {
		return errEmptySchema
	}
	v, err := normalize(key, value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	layer, ok := r.schemas[schema]
	if !ok {
		layer = make(map[string]any)
		r.schemas[schema] = layer
	}
	layer[key] = clone(v)
	r.invalidateLocked(schema)
	r.mu.Unlock()
	r.logger.Debug("schema setting override", "schema", schema, "key", key)
	r.notify(schema)
	return nil
}

// SetSchemaOverrides replaces the whole overrides layer of a schema.
func (r *Resolver) SetSchemaOverrides(schema string, values map[string]any) error {
	if schema == "" {
		return errEmptySchema
	}
	normalized, err := normalizeAll(values)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.schemas[schema] = normalized
	r.invalidateLocked(schema)
	r.mu.Unlock()
	r.notify(schema)
	return nil
}

// ClearSchemaOverrides drops the overrides layer of a schema.
func (r *Resolver) ClearSchemaOverrides(schema string) {
	r.mu.Lock()
	delete(r.schemas, schema)
	r.invalidateLocked(schema)
	r.mu.Unlock()
	r.notify(schema)
}

// SchemaOverrides returns a copy of the overrides layer of a schema.
func (r *Resolver) SchemaOverrides(schema string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.schemas[schema]).(map[string]any)
}

// Invalidate drops the cached values of one schema and notifies listeners,
// e.g. after entity definitions changed.
func (r *Resolver) Invalidate(schema string) {
	r.mu.Lock()
	r.invalidateLocked(schema)
	r.mu.Unlock()
	r.notify(schema)
}

// InvalidateAll drops every cached value and notifies listeners.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache.Clear()
	r.mu.Unlock()
	r.notify("")
}

// OnChange registers a listener called after any layer changes or an
// invalidation is requested. schema is empty when all schemas are affected.
// Listeners are called without holding the resolver locks.
func (r *Resolver) OnChange(fn func(schema string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// For returns a typed view of the settings of one schema.
func (r *Resolver) For(schema string) View {
	return View{r: r, schema: schema}
}

// Effective returns the top-level keys as resolved for schema.
func (r *Resolver) Effective(schema string) map[string]any {
	r.mu.RLock()
	keys := make(map[string]struct{}, len(r.defaults))
	for k := range r.defaults {
		keys[k] = struct{}{}
	}
	for k := range r.global {
		keys[k] = struct{}{}
	}
	for k := range r.schemas[schema] {
		keys[k] = struct{}{}
	}
	r.mu.RUnlock()
	out := make(map[string]any, len(keys))
	for k := range keys {
		if v, ok := r.Resolve(schema, k); ok {
			out[k] = v
		}
	}
	return out
}

func (r *Resolver) invalidateLocked(schema string) {
	r.cache.Range(func(k, _ any) bool {
		if k.(cacheKey).schema == schema {
			r.cache.Delete(k)
		}
		return true
	})
}

func (r *Resolver) notify(schema string) {
	r.mu.RLock()
	listeners := slices.Clone(r.listeners)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(schema)
	}
}

func normalizeAll(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		n, err := normalize(k, v)
		if err != nil {
			return nil, err
		}
		out[k] = clone(n)
	}
	return out, nil
}
