// Package registry keeps the named schema registrations of a process and
// the schemas built for them.
//
// Each registration is either enabled or disabled and carries a cached,
// built schema once BuildOrGetCached succeeded for it:
//
//	r := registry.New(builder, registry.WithSettings(resolver))
//	_, err := r.Register("blog", registry.Config{
//	    Entities: []string{"Post", "Category"},
//	    Settings: map[string]any{"maxPageSize": 50},
//	})
//	s, err := r.BuildOrGetCached(ctx, "blog")
//
// The cached schema is dropped when the entity set or the settings of the
// registration change, and when the registration is removed. Builds are
// serialized per registration, so building one schema never blocks requests
// served by another.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/graphql"
	"github.com/raillogistic/autogql/settings"
)

// Builder builds the schema of a registration.
type Builder interface {
	Build(context.Context, *Registration) (*graphql.Schema, error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(context.Context, *Registration) (*graphql.Schema, error)

// Build implements Builder.
func (f BuilderFunc) Build(ctx context.Context, r *Registration) (*graphql.Schema, error) {
	return f(ctx, r)
}

// Registry holds schema registrations. It is safe for concurrent use.
type Registry struct {
	builder  Builder
	settings *settings.Resolver
	cache    autogql.Cache
	logger   *slog.Logger
	workers  int

	// write serializes mutations of the registration set, so that settings
	// overrides are applied in the same order as registrations.
	write sync.Mutex
	mu    sync.RWMutex
	regs  map[string]*Registration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger of the registry.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSettings sets the resolver holding the settings overrides of the
// registered schemas. Changes made to the resolver directly invalidate the
// affected schemas as well.
func WithSettings(s *settings.Resolver) Option {
	return func(r *Registry) {
		r.settings = s
	}
}

// WithCache sets the query-result cache whose entries of a schema are
// deleted when the schema is invalidated.
func WithCache(c autogql.Cache) Option {
	return func(r *Registry) {
		r.cache = c
	}
}

// WithWorkers limits the number of concurrent builds run by WarmUp.
func WithWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New returns an empty registry building schemas with b.
func New(b Builder, opts ...Option) *Registry {
	r := &Registry{
		builder: b,
		logger:  slog.Default(),
		workers: runtime.GOMAXPROCS(0),
		regs:    make(map[string]*Registration),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.settings == nil {
		r.settings = settings.New(settings.WithLogger(r.logger))
	}
	r.settings.OnChange(func(schema string) {
		if schema == "" {
			r.InvalidateAll()
			return
		}
		_ = r.Invalidate(schema)
	})
	return r
}

// Settings returns the resolver of the registry.
func (r *Registry) Settings() *settings.Resolver {
	return r.settings
}

// RegisterOption configures a single Register call.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	replace bool
}

// Replace allows Register to replace an existing registration of the same
// name. The replaced registration loses its cached schema.
func Replace() RegisterOption {
	return func(o *registerOptions) {
		o.replace = true
	}
}

// Register adds a schema registration. Registering an existing name fails
// with autogql.ErrSchemaExists unless Replace is given.
func (r *Registry) Register(name string, cfg Config, opts ...RegisterOption) (*Registration, error) {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if name == "" {
		return nil, autogql.NewConfigError("name", name, "schema name is required")
	}
	if !cfg.AutoDiscover && len(cfg.Entities) == 0 {
		return nil, autogql.NewConfigError("entities", name, "schema needs an entity set or auto-discovery")
	}
	r.write.Lock()
	defer r.write.Unlock()
	r.mu.RLock()
	old, exists := r.regs[name]
	r.mu.RUnlock()
	if exists && !o.replace {
		return nil, fmt.Errorf("%w: %q", autogql.ErrSchemaExists, name)
	}
	if len(cfg.Settings) > 0 {
		if err := r.settings.SetSchemaOverrides(name, cfg.Settings); err != nil {
			return nil, err
		}
	} else if exists {
		r.settings.ClearSchemaOverrides(name)
	}
	reg := newRegistration(name, cfg)
	r.mu.Lock()
	r.regs[name] = reg
	r.mu.Unlock()
	if exists {
		old.clear()
		r.dropCache(name)
	}
	r.logger.Info("schema registered", "schema", name, "enabled", reg.enabled, "replaced", exists)
	return reg, nil
}

// Get returns the registration of a schema.
func (r *Registry) Get(name string) (*Registration, error) {
	r.mu.RLock()
	reg, ok := r.regs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", autogql.ErrSchemaNotFound, name)
	}
	return reg, nil
}

// List returns all registrations, enabled or not, sorted by name.
func (r *Registry) List() []*Registration {
	r.mu.RLock()
	regs := make([]*Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		regs = append(regs, reg)
	}
	r.mu.RUnlock()
	slices.SortFunc(regs, func(a, b *Registration) int {
		return strings.Compare(a.name, b.name)
	})
	return regs
}

// Enable enables a schema. Its cached schema, if any, is served again.
func (r *Registry) Enable(name string) error {
	reg, err := r.Get(name)
	if err != nil {
		return err
	}
	if reg.setEnabled(true) {
		r.logger.Info("schema enabled", "schema", name)
	}
	return nil
}

// Disable disables a schema. A disabled schema is still listed, but
// BuildOrGetCached fails with autogql.ErrSchemaDisabled.
func (r *Registry) Disable(name string) error {
	reg, err := r.Get(name)
	if err != nil {
		return err
	}
	if reg.setEnabled(false) {
		r.logger.Info("schema disabled", "schema", name)
	}
	return nil
}

// Unregister removes a schema registration and its settings overrides.
func (r *Registry) Unregister(name string) error {
	r.write.Lock()
	defer r.write.Unlock()
	r.mu.Lock()
	reg, ok := r.regs[name]
	delete(r.regs, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", autogql.ErrSchemaNotFound, name)
	}
	reg.clear()
	r.settings.ClearSchemaOverrides(name)
	r.dropCache(name)
	r.logger.Info("schema unregistered", "schema", name)
	return nil
}

// SetEntities replaces the explicit entity set of a schema and turns
// auto-discovery off.
func (r *Registry) SetEntities(name string, entities []string) error {
	if len(entities) == 0 {
		return autogql.NewConfigError("entities", name, "entity set is empty")
	}
	r.write.Lock()
	defer r.write.Unlock()
	reg, err := r.Get(name)
	if err != nil {
		return err
	}
	reg.update(func(c *Config) {
		c.Entities = slices.Clone(entities)
		c.AutoDiscover = false
	})
	r.dropCache(name)
	r.logger.Info("schema entities changed", "schema", name, "entities", len(entities))
	return nil
}

// SetOverrides replaces the settings overrides of a schema.
func (r *Registry) SetOverrides(name string, values map[string]any) error {
	r.write.Lock()
	defer r.write.Unlock()
	reg, err := r.Get(name)
	if err != nil {
		return err
	}
	if err := r.settings.SetSchemaOverrides(name, values); err != nil {
		return err
	}
	reg.update(func(c *Config) {
		c.Settings = r.settings.SchemaOverrides(name)
	})
	return nil
}

// Invalidate drops the cached schema of a registration, forcing the next
// BuildOrGetCached to build it again.
func (r *Registry) Invalidate(name string) error {
	reg, err := r.Get(name)
	if err != nil {
		return err
	}
	if reg.clear() {
		r.logger.Info("schema invalidated", "schema", name)
	}
	r.dropCache(name)
	return nil
}

// InvalidateAll drops the cached schemas of all registrations.
func (r *Registry) InvalidateAll() {
	for _, reg := range r.List() {
		reg.clear()
		r.dropCache(reg.name)
	}
	r.logger.Info("all schemas invalidated")
}

func (r *Registry) dropCache(name string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.DeletePrefix(context.Background(), autogql.SchemaPrefix(name)); err != nil {
		r.logger.Warn("dropping cached query results", "schema", name, "error", err)
	}
}

// BuildOrGetCached returns the cached schema of a registration, building
// it on a cache miss. Concurrent calls for the same schema build it once.
func (r *Registry) BuildOrGetCached(ctx context.Context, name string) (*graphql.Schema, error) {
	reg, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	s, enabled, _ := reg.cached()
	switch {
	case !enabled:
		return nil, fmt.Errorf("%w: %q", autogql.ErrSchemaDisabled, name)
	case s != nil:
		return s, nil
	}
	reg.build.Lock()
	defer reg.build.Unlock()
	// Another caller may have built it meanwhile.
	s, enabled, gen := reg.cached()
	switch {
	case !enabled:
		return nil, fmt.Errorf("%w: %q", autogql.ErrSchemaDisabled, name)
	case s != nil:
		r.logger.Debug("schema built by concurrent caller", "schema", name)
		return s, nil
	case r.builder == nil:
		return nil, autogql.NewConfigError("builder", name, "registry has no builder")
	}
	start := time.Now()
	s, err = r.builder.Build(ctx, reg)
	if err != nil {
		return nil, err
	}
	if reg.publish(s, gen) {
		r.logger.Info("schema built", "schema", name, "took", time.Since(start))
	} else {
		r.logger.Debug("schema changed during build, result not cached", "schema", name)
	}
	return s, nil
}

// WarmUp builds the given schemas concurrently, or every enabled schema
// when no name is given. It returns the first build error.
func (r *Registry) WarmUp(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		for _, reg := range r.List() {
			if reg.Enabled() {
				names = append(names, reg.name)
			}
		}
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, name := range names {
		g.Go(func() error {
			_, err := r.BuildOrGetCached(ctx, name)
			return err
		})
	}
	return g.Wait()
}
