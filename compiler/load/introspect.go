package load

import (
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/schema/field"
)

// Introspector turns entity definitions into EntityMetadata. Results are
// cached per entity name for the lifetime of the Introspector; builders
// create one per schema build so that redefined entities are picked up.
type Introspector struct {
	denylist []string
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]*EntityMetadata
}

// IntrospectorOption configures an Introspector.
type IntrospectorOption func(*Introspector)

// WithDenylist sets the glob patterns of method names that are never
// exposed, even when marked with Expose. Patterns follow path.Match.
func WithDenylist(patterns ...string) IntrospectorOption {
	return func(i *Introspector) {
		i.denylist = append([]string(nil), patterns...)
	}
}

// WithLogger sets the logger of the introspector.
func WithLogger(l *slog.Logger) IntrospectorOption {
	return func(i *Introspector) {
		i.logger = l
	}
}

// NewIntrospector returns a new Introspector.
func NewIntrospector(opts ...IntrospectorOption) *Introspector {
	i := &Introspector{
		logger: slog.Default(),
		cache:  make(map[string]*EntityMetadata),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Denied reports if name matches one of the denylist patterns. Matching is
// case-insensitive; malformed patterns never match.
func (i *Introspector) Denied(name string) bool {
	return matchAny(i.denylist, name)
}

func matchAny(patterns []string, name string) bool {
	name = strings.ToLower(name)
	for _, p := range patterns {
		if ok, err := path.Match(strings.ToLower(p), name); err == nil && ok {
			return true
		}
	}
	return false
}

// Introspect classifies every attribute of def into a scalar field, a
// relationship, an exposed behavior method or an ignored attribute.
// Definition errors are returned as *autogql.ConfigError.
func (i *Introspector) Introspect(def autogql.Interface) (*EntityMetadata, error) {
	name := Name(def)
	i.mu.Lock()
	if m, ok := i.cache[name]; ok {
		i.mu.Unlock()
		return m, nil
	}
	i.mu.Unlock()

	m, err := i.introspect(name, def)
	if err != nil {
		return nil, autogql.NewConfigError("entity", name, err.Error())
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if cached, ok := i.cache[name]; ok {
		return cached, nil
	}
	i.cache[name] = m
	i.logger.Debug("entity introspected", "entity", name, "fields", len(m.Fields), "edges", len(m.Edges), "methods", len(m.Methods))
	return m, nil
}

// Cached returns the metadata of an entity introspected earlier.
func (i *Introspector) Cached(name string) (*EntityMetadata, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	m, ok := i.cache[name]
	return m, ok
}

func (i *Introspector) introspect(name string, def autogql.Interface) (*EntityMetadata, error) {
	if name == "" {
		return nil, fmt.Errorf("missing entity name for %T", def)
	}
	cfg := def.Config()
	m := &EntityMetadata{
		Name:        name,
		Table:       cfg.Table,
		Group:       cfg.Group,
		Comment:     cfg.Comment,
		Annotations: make(map[string]any),
	}
	if err := i.loadMixin(m, def); err != nil {
		return nil, err
	}
	// Schema annotations override mixed-in annotations.
	for _, at := range def.Annotations() {
		addAnnotation(m.Annotations, at)
	}
	fields, err := safeFields(def)
	if err != nil {
		return nil, err
	}
	for j, f := range fields {
		sf, err := NewField(f.Descriptor())
		if err != nil {
			return nil, err
		}
		sf.Position = &Position{Index: j}
		m.Fields = append(m.Fields, sf)
	}
	edges, err := safeEdges(def)
	if err != nil {
		return nil, err
	}
	for j, e := range edges {
		ne, err := NewEdge(e.Descriptor())
		if err != nil {
			return nil, err
		}
		ne.Position = &Position{Index: j}
		m.Edges = append(m.Edges, ne)
	}
	methods, err := safeMethods(def)
	if err != nil {
		return nil, err
	}
	for _, md := range methods {
		if err := i.addMethod(m, md); err != nil {
			return nil, err
		}
	}
	policy, err := safePolicy(def)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		m.Policies = append(m.Policies, policy)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return m, nil
}

func (i *Introspector) loadMixin(m *EntityMetadata, def autogql.Interface) error {
	mixin, err := safeMixin(def)
	if err != nil {
		return err
	}
	for k, mx := range mixin {
		name := indirect(reflect.TypeOf(mx)).Name()
		fields, err := safeFields(mx)
		if err != nil {
			return fmt.Errorf("mixin %q: %w", name, err)
		}
		for j, f := range fields {
			sf, err := NewField(f.Descriptor())
			if err != nil {
				return fmt.Errorf("mixin %q: %w", name, err)
			}
			sf.Position = &Position{Index: j, MixedIn: true, MixinIndex: k}
			m.Fields = append(m.Fields, sf)
		}
		edges, err := safeEdges(mx)
		if err != nil {
			return fmt.Errorf("mixin %q: %w", name, err)
		}
		for j, e := range edges {
			ne, err := NewEdge(e.Descriptor())
			if err != nil {
				return fmt.Errorf("mixin %q: %w", name, err)
			}
			ne.Position = &Position{Index: j, MixedIn: true, MixinIndex: k}
			m.Edges = append(m.Edges, ne)
		}
		methods, err := safeMethods(mx)
		if err != nil {
			return fmt.Errorf("mixin %q: %w", name, err)
		}
		for _, md := range methods {
			if err := i.addMethod(m, md); err != nil {
				return fmt.Errorf("mixin %q: %w", name, err)
			}
		}
		policy, err := safePolicy(mx)
		if err != nil {
			return fmt.Errorf("mixin %q: %w", name, err)
		}
		if policy != nil {
			m.Policies = append(m.Policies, policy)
		}
		for _, at := range mx.Annotations() {
			addAnnotation(m.Annotations, at)
		}
	}
	return nil
}

// addMethod keeps a method only when it is explicitly exposed and does not
// match the denylist.
func (i *Introspector) addMethod(m *EntityMetadata, md autogql.Method) error {
	d := md.Descriptor()
	switch {
	case !d.Exposed:
		m.Ignored = append(m.Ignored, &Ignored{Name: d.Name, Reason: "not exposed"})
		return nil
	case i.Denied(d.Name):
		i.logger.Warn("exposed method matches the method denylist", "entity", m.Name, "method", d.Name)
		m.Ignored = append(m.Ignored, &Ignored{Name: d.Name, Reason: "denylisted"})
		return nil
	}
	lm, err := NewMethod(d)
	if err != nil {
		return err
	}
	m.Methods = append(m.Methods, lm)
	return nil
}

// check enforces the structural invariants of the metadata. An entity
// without a declared primary key gets an auto-generated integer id.
func (m *EntityMetadata) check() error {
	names := make(map[string]string)
	var pks []string
	for _, f := range m.Fields {
		if prev, ok := names[f.Name]; ok {
			return fmt.Errorf("duplicate field %q (already declared as %s)", f.Name, prev)
		}
		names[f.Name] = "field"
		if f.PrimaryKey {
			pks = append(pks, f.Name)
		}
		if f.Type == field.TypeEnum && len(f.Choices) == 0 {
			return fmt.Errorf("enum field %q has no values", f.Name)
		}
	}
	switch len(pks) {
	case 0:
		if _, ok := names["id"]; ok {
			return fmt.Errorf(`field "id" must be the primary key when no other primary key is declared`)
		}
		m.Fields = append([]*Field{{
			Name:          "id",
			Type:          field.TypeInt,
			PrimaryKey:    true,
			Unique:        true,
			Immutable:     true,
			AutoGenerated: true,
			ServerDefault: true,
			Annotations:   make(map[string]any),
		}}, m.Fields...)
		names["id"] = "field"
	case 1:
	default:
		return fmt.Errorf("multiple primary keys: %s", strings.Join(pks, ", "))
	}
	for _, e := range m.Edges {
		if prev, ok := names[e.Name]; ok {
			return fmt.Errorf("edge %q conflicts with %s of the same name", e.Name, prev)
		}
		names[e.Name] = "edge"
		if e.Target == "" {
			return fmt.Errorf("edge %q: missing target", e.Name)
		}
	}
	for _, md := range m.Methods {
		if prev, ok := names[md.Name]; ok {
			return fmt.Errorf("method %q conflicts with %s of the same name", md.Name, prev)
		}
		names[md.Name] = "method"
	}
	return nil
}
