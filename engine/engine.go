// Package engine is the entry point of autogql. An Engine ties the entity
// catalog, the settings resolver, the schema registry and a persistence
// provider together and routes executions to the schema they target.
//
//	e, err := engine.New(provider,
//	    engine.WithEntities(Post{}, Category{}),
//	    engine.WithConfigFiles("autogql.yaml"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := e.Reload(); err != nil {
//	    return err
//	}
//	res, err := e.Do(ctx, "blog", `{ paginatedPosts { items { title } } }`, nil)
//
// Configuration files and YAML entity files given to the engine are
// re-applied by Watch whenever they change on disk.
package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/graphql"
	"github.com/raillogistic/autogql/registry"
	"github.com/raillogistic/autogql/settings"
)

// Engine serves the registered schemas of a process. It is safe for
// concurrent use.
type Engine struct {
	catalog  *load.Catalog
	settings *settings.Resolver
	provider dialect.Provider
	cache    autogql.Cache
	registry *registry.Registry
	logger   *slog.Logger
	timeout  time.Duration
	builds   singleflight.Group

	typeMap  *gen.TypeMap
	validate *validator.Validate
	defs     []autogql.Interface

	configFiles []string
	entityFiles []string

	// mu serializes file applications.
	mu          sync.Mutex
	fileSchemas map[string][]string
	fileGlobals map[string][]string
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the logger of the engine and its components.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return autogql.NewConfigError("logger", nil, "logger cannot be nil")
		}
		e.logger = l
		return nil
	}
}

// WithCatalog sets the entity catalog. Defaults to an empty catalog.
func WithCatalog(c *load.Catalog) Option {
	return func(e *Engine) error {
		if c == nil {
			return autogql.NewConfigError("catalog", nil, "catalog cannot be nil")
		}
		e.catalog = c
		return nil
	}
}

// WithEntities registers entity definitions in the catalog.
func WithEntities(defs ...autogql.Interface) Option {
	return func(e *Engine) error {
		e.defs = append(e.defs, defs...)
		return nil
	}
}

// WithSettings sets the settings resolver. Defaults to a resolver holding
// the library defaults.
func WithSettings(r *settings.Resolver) Option {
	return func(e *Engine) error {
		if r == nil {
			return autogql.NewConfigError("settings", nil, "resolver cannot be nil")
		}
		e.settings = r
		return nil
	}
}

// WithDotenv applies the settings found in the environment and the given
// dotenv files as global overrides. See settings.FromDotenv.
func WithDotenv(prefix string, files ...string) Option {
	return func(e *Engine) error {
		values, err := settings.FromDotenv(prefix, files...)
		if err != nil {
			return err
		}
		if e.settings == nil {
			e.settings = settings.New()
		}
		return e.settings.SetGlobalOverrides(values)
	}
}

// WithCache enables the query-result cache of the built schemas.
func WithCache(c autogql.Cache) Option {
	return func(e *Engine) error {
		e.cache = c
		return nil
	}
}

// WithTypeMap sets the scalar mapping table of the built schemas.
func WithTypeMap(m *gen.TypeMap) Option {
	return func(e *Engine) error {
		e.typeMap = m
		return nil
	}
}

// WithValidator sets the validator evaluating field format tags.
func WithValidator(v *validator.Validate) Option {
	return func(e *Engine) error {
		e.validate = v
		return nil
	}
}

// WithTimeout sets the deadline applied to executions whose context has
// none.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d < 0 {
			return autogql.NewConfigError("timeout", d, "timeout cannot be negative")
		}
		e.timeout = d
		return nil
	}
}

// WithConfigFiles sets the configuration documents applied by Reload and
// watched by Watch. See settings.File for their shape.
func WithConfigFiles(paths ...string) Option {
	return func(e *Engine) error {
		e.configFiles = append(e.configFiles, paths...)
		return nil
	}
}

// WithEntityFiles sets the YAML entity files loaded by Reload and watched
// by Watch. See load.EntityFile for their shape.
func WithEntityFiles(paths ...string) Option {
	return func(e *Engine) error {
		e.entityFiles = append(e.entityFiles, paths...)
		return nil
	}
}

// New returns an engine executing against p.
func New(p dialect.Provider, opts ...Option) (*Engine, error) {
	if p == nil {
		return nil, autogql.NewConfigError("provider", nil, "provider is required")
	}
	e := &Engine{
		provider:    p,
		logger:      slog.Default(),
		fileSchemas: make(map[string][]string),
		fileGlobals: make(map[string][]string),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.settings == nil {
		e.settings = settings.New(settings.WithLogger(e.logger))
	}
	if e.catalog == nil {
		c, err := load.NewCatalog()
		if err != nil {
			return nil, err
		}
		e.catalog = c
	}
	if err := e.catalog.Register(e.defs...); err != nil {
		return nil, err
	}
	e.defs = nil
	copts := []compiler.Option{compiler.WithSettings(e.settings), compiler.WithLogger(e.logger)}
	ropts := []registry.Option{registry.WithSettings(e.settings), registry.WithLogger(e.logger)}
	if e.cache != nil {
		copts = append(copts, compiler.WithCache(e.cache))
		ropts = append(ropts, registry.WithCache(e.cache))
	}
	if e.typeMap != nil {
		copts = append(copts, compiler.WithTypeMap(e.typeMap))
	}
	if e.validate != nil {
		copts = append(copts, compiler.WithValidator(e.validate))
	}
	e.registry = registry.New(compiler.New(e.catalog, p, copts...), ropts...)
	e.catalog.OnChange(e.entitiesChanged)
	return e, nil
}

// Catalog returns the entity catalog of the engine.
func (e *Engine) Catalog() *load.Catalog { return e.catalog }

// Settings returns the settings resolver of the engine.
func (e *Engine) Settings() *settings.Resolver { return e.settings }

// Registry returns the schema registry of the engine.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Provider returns the persistence provider of the engine.
func (e *Engine) Provider() dialect.Provider { return e.provider }

// Close closes the provider.
func (e *Engine) Close() error {
	return e.provider.Close()
}

// RegisterEntities adds entity definitions to the catalog.
func (e *Engine) RegisterEntities(defs ...autogql.Interface) error {
	return e.catalog.Register(defs...)
}

// RegisterSchema registers a schema. See registry.Registry.Register.
func (e *Engine) RegisterSchema(name string, cfg registry.Config, opts ...registry.RegisterOption) error {
	_, err := e.registry.Register(name, cfg, opts...)
	return err
}

// UnregisterSchema removes a schema.
func (e *Engine) UnregisterSchema(name string) error {
	return e.registry.Unregister(name)
}

// SetGlobalOverride sets a global settings override. Every schema not
// overriding key itself is rebuilt on its next use.
func (e *Engine) SetGlobalOverride(key string, value any) error {
	return e.settings.SetGlobalOverride(key, value)
}

// Enable enables a schema.
func (e *Engine) Enable(name string) error {
	return e.registry.Enable(name)
}

// Disable disables a schema. Executions against it fail with
// autogql.ErrSchemaDisabled.
func (e *Engine) Disable(name string) error {
	return e.registry.Disable(name)
}

// Schema returns the built schema of a registration, building it on first
// use. Concurrent first uses share one build, also across registrations
// replaced meanwhile by a reload.
func (e *Engine) Schema(ctx context.Context, name string) (*graphql.Schema, error) {
	reg, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if s, ok := reg.Built(); ok && reg.Enabled() {
		return s, nil
	}
	v, err, shared := e.builds.Do(name, func() (any, error) {
		return e.registry.BuildOrGetCached(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.logger.Debug("schema build shared", "schema", name)
	}
	return v.(*graphql.Schema), nil
}

// Execute runs an operation of a schema with an explicit selection. See
// graphql.Schema.Execute.
func (e *Engine) Execute(ctx context.Context, schema, op string, args map[string]any, sel []graphql.Field) (any, error) {
	ctx, cancel := e.deadline(ctx)
	defer cancel()
	s, err := e.Schema(ctx, schema)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, op, args, sel)
}

// Do runs a GraphQL document against a schema. See graphql.Schema.Do.
func (e *Engine) Do(ctx context.Context, schema, query string, vars map[string]any) (*graphql.Response, error) {
	ctx, cancel := e.deadline(ctx)
	defer cancel()
	s, err := e.Schema(ctx, schema)
	if err != nil {
		return nil, err
	}
	return s.Do(ctx, query, vars)
}

func (e *Engine) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || e.timeout == 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

// entitiesChanged invalidates the schemas built from changed entities.
func (e *Engine) entitiesChanged(names []string) {
	for _, reg := range e.registry.List() {
		cfg := reg.Config()
		if !cfg.AutoDiscover && !slices.ContainsFunc(cfg.Entities, func(n string) bool {
			return slices.Contains(names, n)
		}) {
			continue
		}
		if err := e.registry.Invalidate(reg.Name()); err != nil {
			e.logger.Debug("invalidating schema", "schema", reg.Name(), "error", err)
		}
	}
}
