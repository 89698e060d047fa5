// Package compiler builds the GraphQL schemas of registrations: it selects
// the entity set of a registration from the catalog, introspects the
// entities, assembles their graph, prepares the storage of the provider and
// generates the schema under the settings of the registration.
//
//	b := compiler.New(catalog, provider, compiler.WithSettings(resolver))
//	reg := registry.New(b, registry.WithSettings(resolver))
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/graphql"
	"github.com/raillogistic/autogql/registry"
	"github.com/raillogistic/autogql/settings"
)

// Builder builds schemas from a catalog of entity definitions, executing
// against one provider. It implements registry.Builder.
type Builder struct {
	catalog  *load.Catalog
	provider dialect.Provider
	settings *settings.Resolver
	cache    autogql.Cache
	typeMap  *gen.TypeMap
	validate *validator.Validate
	logger   *slog.Logger
	workers  int
	migrate  bool
}

var _ registry.Builder = (*Builder)(nil)

// Option configures a Builder.
type Option func(*Builder)

// WithSettings sets the settings resolver schemas are generated under.
// It should be the resolver of the registry using the builder.
func WithSettings(s *settings.Resolver) Option {
	return func(b *Builder) {
		b.settings = s
	}
}

// WithLogger sets the logger of the builder and of the built schemas.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithCache sets the query-result cache of the built schemas.
func WithCache(c autogql.Cache) Option {
	return func(b *Builder) {
		b.cache = c
	}
}

// WithTypeMap sets the scalar mapping table of the built graphs.
func WithTypeMap(m *gen.TypeMap) Option {
	return func(b *Builder) {
		b.typeMap = m
	}
}

// WithValidator sets the validator evaluating field format tags.
func WithValidator(v *validator.Validate) Option {
	return func(b *Builder) {
		b.validate = v
	}
}

// WithWorkers limits the number of entities introspected concurrently.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithoutMigration skips preparing the provider storage on build, for
// providers whose storage is managed elsewhere.
func WithoutMigration() Option {
	return func(b *Builder) {
		b.migrate = false
	}
}

// New returns a Builder reading definitions from c and executing the
// built schemas against p.
func New(c *load.Catalog, p dialect.Provider, opts ...Option) *Builder {
	b := &Builder{
		catalog:  c,
		provider: p,
		logger:   slog.Default(),
		workers:  runtime.GOMAXPROCS(0),
		migrate:  true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.settings == nil {
		b.settings = settings.New(settings.WithLogger(b.logger))
	}
	return b
}

// Entities returns the entity names selected by a registration config, in
// catalog order for auto-discovered schemas and in declaration order
// otherwise. Unknown explicit entities are a configuration error.
func (b *Builder) Entities(name string, cfg registry.Config) ([]string, error) {
	if !cfg.AutoDiscover {
		for _, e := range cfg.Entities {
			if _, ok := b.catalog.Lookup(e); !ok {
				return nil, autogql.NewConfigError("entities", e, fmt.Sprintf("unknown entity in schema %q", name))
			}
		}
		return slices.Compact(slices.Clone(cfg.Entities)), nil
	}
	names := slices.DeleteFunc(b.catalog.Entities(cfg.Group), func(e string) bool {
		return slices.Contains(cfg.ExcludedEntities, e)
	})
	if len(names) == 0 {
		return nil, autogql.NewConfigError("group", cfg.Group, fmt.Sprintf("no entities discovered for schema %q", name))
	}
	return names, nil
}

// Build builds the schema of a registration.
func (b *Builder) Build(ctx context.Context, reg *registry.Registration) (*graphql.Schema, error) {
	name := reg.Name()
	logger := b.logger.With("schema", name)
	start := time.Now()
	names, err := b.Entities(name, reg.Config())
	if err != nil {
		return nil, err
	}
	view := b.settings.For(name)
	metas, err := b.introspect(ctx, names, load.WithDenylist(view.Strings(settings.MethodDenylist)...), load.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	opts := []gen.Option{gen.WithLogger(logger)}
	if b.typeMap != nil {
		opts = append(opts, gen.WithTypeMap(b.typeMap))
	}
	g, err := gen.NewGraph(metas, opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("graph built", "types", len(g.Types))
	if b.migrate {
		if err := b.provider.Migrate(ctx, g.Entities()...); err != nil {
			return nil, fmt.Errorf("compiler: preparing storage of schema %q: %w", name, err)
		}
	}
	sopts := []graphql.Option{graphql.WithSettings(view), graphql.WithLogger(b.logger)}
	if b.cache != nil {
		sopts = append(sopts, graphql.WithCache(b.cache))
	}
	if b.validate != nil {
		sopts = append(sopts, graphql.WithValidator(b.validate))
	}
	s, err := graphql.New(name, g, b.provider, sopts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("schema compiled", "entities", len(names), "took", time.Since(start))
	return s, nil
}

// introspect introspects the named entities concurrently, keeping their
// order.
func (b *Builder) introspect(ctx context.Context, names []string, opts ...load.IntrospectorOption) ([]*load.EntityMetadata, error) {
	in := load.NewIntrospector(opts...)
	metas := make([]*load.EntityMetadata, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			def, ok := b.catalog.Lookup(name)
			if !ok {
				return autogql.NewConfigError("entities", name, "entity removed from catalog")
			}
			m, err := in.Introspect(def)
			if err != nil {
				return err
			}
			metas[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return metas, nil
}
