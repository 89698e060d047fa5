package graphql

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/nested"
	"github.com/raillogistic/autogql/settings"
)

// Schema is a generated GraphQL schema bound to a provider. Operations run
// through Execute, with an explicit selection, or through Do, with a
// GraphQL document. A Schema is immutable and safe for concurrent use.
type Schema struct {
	name     string
	graph    *gen.Graph
	gen      *Generator
	provider *tracked
	handler  *nested.Handler
	cache    autogql.Cache
	ttl      time.Duration
	retries  int
	logger   *slog.Logger

	doc    *ast.Schema
	sdl    string
	ops    []*Operation
	byName map[string]*Operation
	// loose holds the input types whose content is checked when composed,
	// not against their definition.
	loose map[string]bool
}

type config struct {
	view     settings.View
	viewSet  bool
	logger   *slog.Logger
	cache    autogql.Cache
	retries  int
	validate *validator.Validate
}

// Option configures a Schema.
type Option func(*config)

// WithSettings sets the settings view the schema is generated under.
// Without it, the library defaults apply.
func WithSettings(v settings.View) Option {
	return func(c *config) {
		c.view, c.viewSet = v, true
	}
}

// WithLogger sets the logger of the schema.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCache enables caching of list and paginated query results, for the
// duration given by the queryCacheTTL setting.
func WithCache(cache autogql.Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithRetries sets how many times a transaction failing with a retryable
// provider error is run again. It overrides the txRetryBudget setting.
func WithRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithValidator sets the validator evaluating the format tags of fields.
func WithValidator(v *validator.Validate) Option {
	return func(c *config) {
		c.validate = v
	}
}

// New generates the schema called name for the types of g, executing
// against p.
func New(name string, g *gen.Graph, p dialect.Provider, opts ...Option) (*Schema, error) {
	if name == "" {
		return nil, autogql.NewConfigError("name", name, "schema name is required")
	}
	if g == nil || p == nil {
		return nil, autogql.NewConfigError("schema", name, "graph and provider are required")
	}
	cfg := config{logger: slog.Default(), retries: -1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.viewSet {
		cfg.view = settings.New().For(name)
	}
	if cfg.retries < 0 {
		cfg.retries = max(0, cfg.view.Int(settings.TxRetryBudget, 2))
	}
	logger := cfg.logger.With("schema", name)
	s := &Schema{
		name:     name,
		graph:    g,
		gen:      NewGenerator(g, cfg.view),
		provider: track(p, g),
		cache:    cfg.cache,
		ttl:      cfg.view.Duration(settings.QueryCacheTTL, 0),
		retries:  cfg.retries,
		logger:   logger,
		byName:   make(map[string]*Operation),
		loose:    make(map[string]bool),
	}
	hopts := []nested.Option{nested.WithLogger(logger), nested.WithRetries(cfg.retries)}
	if cfg.validate != nil {
		hopts = append(hopts, nested.WithValidator(cfg.validate))
	}
	s.handler = nested.New(g, s.provider, hopts...)
	doc, ops, err := s.gen.Generate()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	s.sdl = buf.String()
	schema, gerr := gqlparser.LoadSchema(&ast.Source{Name: name + ".graphql", Input: s.sdl})
	if gerr != nil {
		return nil, fmt.Errorf("graphql: loading generated schema %q: %w", name, gerr)
	}
	s.doc, s.ops = schema, ops
	for _, op := range ops {
		s.byName[op.Name] = op
	}
	for _, e := range s.gen.entities {
		s.loose[e.names.WhereInput] = true
	}
	for _, f := range s.gen.filters {
		s.loose[f.Name] = true
	}
	logger.Info("schema generated",
		"entities", len(s.gen.entities),
		"operations", len(ops),
		"types", len(schema.Types),
	)
	return s, nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Graph returns the graph the schema was generated from.
func (s *Schema) Graph() *gen.Graph { return s.graph }

// SDL returns the schema definition language rendering of the schema.
func (s *Schema) SDL() string { return s.sdl }

// AST returns the validated schema.
func (s *Schema) AST() *ast.Schema { return s.doc }

// Operations returns the root operations, queries first.
func (s *Schema) Operations() []*Operation { return slices.Clone(s.ops) }

// Operation returns the root operation with the given name.
func (s *Schema) Operation(name string) (*Operation, bool) {
	op, ok := s.byName[name]
	return op, ok
}

// Catalogue describes the generated surface of a schema for documentation
// and tooling.
type Catalogue struct {
	Schema     string                        `json:"schema"`
	Entities   []CatalogueEntity             `json:"entities"`
	Operations []CatalogueOperation          `json:"operations"`
	Types      map[string]ast.DefinitionKind `json:"types"`
}

// CatalogueEntity lists the names generated for one entity.
type CatalogueEntity struct {
	Entity string `json:"entity"`
	Names  Names  `json:"names"`
}

// CatalogueOperation describes one root operation.
type CatalogueOperation struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Entity      string `json:"entity"`
	Method      string `json:"method,omitempty"`
	Mutation    bool   `json:"mutation"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Catalogue returns the full type and operation catalogue of the schema.
func (s *Schema) Catalogue() *Catalogue {
	c := &Catalogue{Schema: s.name, Types: make(map[string]ast.DefinitionKind)}
	for _, e := range s.gen.entities {
		c.Entities = append(c.Entities, CatalogueEntity{Entity: e.Name, Names: e.names})
	}
	for _, op := range s.ops {
		c.Operations = append(c.Operations, CatalogueOperation{
			Name:        op.Name,
			Kind:        op.Kind.String(),
			Entity:      op.Entity,
			Method:      op.Method,
			Mutation:    op.Kind.Mutation(),
			Type:        op.Definition.Type.String(),
			Description: op.Definition.Description,
		})
	}
	for name, def := range s.doc.Types {
		if !def.BuiltIn {
			c.Types[name] = def.Kind
		}
	}
	return c
}

// Execute runs the root operation called name with the given arguments and
// returns its result shaped by sel. A nil selection returns the scalar
// fields of objects.
//
// Queries report malformed arguments and denied reads as errors, before
// touching the provider. Mutations report every business failure inside
// their payload. Infrastructure failures are logged and returned as an
// autogql.InternalError.
func (s *Schema) Execute(ctx context.Context, name string, args map[string]any, sel []Field) (any, error) {
	op, ok := s.byName[name]
	if !ok {
		return nil, autogql.NewConfigError("operation", name, fmt.Sprintf("not defined by schema %q", s.name))
	}
	args = plainArgs(args)
	if err := s.checkArgs(op, args); err != nil {
		if op.Kind.Mutation() {
			return s.project(ctx, failure(op, err), sel)
		}
		return nil, err
	}
	if op.Kind.Mutation() {
		ctx = withWrites(ctx)
		defer s.invalidateWrites(ctx)
	}
	key, cacheable := s.cacheKey(op, args, sel)
	if cacheable {
		if v, ok := s.cached(ctx, key); ok {
			return v, nil
		}
	}
	out, err := op.resolve(ctx, s, args)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	res, err := s.project(ctx, out, sel)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if cacheable {
		s.store(ctx, key, res)
	}
	return res, nil
}

// fail returns business errors unchanged and wraps the others.
func (s *Schema) fail(ctx context.Context, op *Operation, err error) error {
	if autogql.IsBusiness(err) || autogql.IsConfigError(err) {
		return err
	}
	s.logger.ErrorContext(ctx, "operation failed", "operation", op.Name, "error", err)
	return autogql.Internal(op.Name, err)
}

// checkArgs rejects unknown and missing arguments, and input keys not
// defined by the input types.
func (s *Schema) checkArgs(op *Operation, args map[string]any) error {
	var errs autogql.ValidationErrors
	for _, name := range slices.Sorted(maps.Keys(args)) {
		if op.Definition.Arguments.ForName(name) == nil {
			errs = append(errs, autogql.Invalidf(name, "unknown argument"))
		}
	}
	for _, arg := range op.Definition.Arguments {
		v, ok := args[arg.Name]
		if !ok || v == nil {
			if arg.Type.NonNull {
				errs = append(errs, autogql.Invalidf(arg.Name, "is required"))
			}
			continue
		}
		root := ""
		if arg.Type.Elem != nil {
			root = arg.Name
			if items, ok := v.([]any); ok && len(items) == 0 && op.Kind.Bulk() {
				errs = append(errs, autogql.Invalidf(arg.Name, "must hold at least one item"))
				continue
			}
		}
		errs = append(errs, s.checkInput(root, arg.Type, v)...)
	}
	return errs.Err()
}

// checkInput reports the keys of input objects that are not fields of
// their type. Paths are relative to the argument.
func (s *Schema) checkInput(path string, typ *ast.Type, v any) autogql.ValidationErrors {
	if v == nil {
		return nil
	}
	if typ.Elem != nil {
		items, ok := v.([]any)
		if !ok {
			return autogql.ValidationErrors{autogql.Invalidf(path, "expects a list")}
		}
		var errs autogql.ValidationErrors
		for i, item := range items {
			errs = append(errs, s.checkInput(fmt.Sprintf("%s[%d]", path, i), typ.Elem, item)...)
		}
		return errs
	}
	def := s.doc.Types[typ.NamedType]
	if def == nil || def.Kind != ast.InputObject || s.loose[def.Name] {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return autogql.ValidationErrors{autogql.Invalidf(path, "expects an object")}
	}
	var errs autogql.ValidationErrors
	for _, name := range slices.Sorted(maps.Keys(obj)) {
		fd := def.Fields.ForName(name)
		if fd == nil {
			errs = append(errs, autogql.Invalidf(join(path, name), "unknown input"))
			continue
		}
		errs = append(errs, s.checkInput(join(path, name), fd.Type, obj[name])...)
	}
	return errs
}

// plainArgs returns a copy of args in which typed slices and string-keyed
// maps are converted to []any and map[string]any, at any depth.
func plainArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch v := v.(type) {
	case nil, []byte, string, bool, int, int64, float64, time.Time:
		return v
	case map[string]any:
		return plainArgs(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		if rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plain(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = plain(iter.Value().Interface())
		}
		return out
	}
	return v
}

// Invalidate drops the cached results of the given entities, or of the
// whole schema when none is given.
func (s *Schema) Invalidate(ctx context.Context, entities ...string) error {
	if s.cache == nil {
		return nil
	}
	if len(entities) == 0 {
		return s.cache.DeletePrefix(ctx, autogql.SchemaPrefix(s.name))
	}
	var errs []error
	for _, e := range entities {
		errs = append(errs, s.cache.DeletePrefix(ctx, autogql.EntityPrefix(s.name, e)))
	}
	return errors.Join(errs...)
}

func (s *Schema) tx(ctx context.Context, fn func(context.Context, dialect.Tx) error) error {
	return dialect.RunInTx(ctx, s.provider, fn, dialect.WithRetries(s.retries), dialect.WithTxLogger(s.logger))
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
