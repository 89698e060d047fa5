package gen

import (
	"fmt"
	"log/slog"

	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/dialect/sqlschema"
	"github.com/raillogistic/autogql/schema"
	"github.com/raillogistic/autogql/schema/edge"
	"github.com/raillogistic/autogql/schema/field"
)

// Graph holds the types of one schema build and the relations between them.
// It is immutable once built.
type Graph struct {
	// Types holds the types in the order their metadata was given.
	Types []*Type

	types     map[string]*Type
	entities  map[string]*dialect.Entity
	typeMap   *TypeMap
	joinTable func(owner, edge string) string
	logger    *slog.Logger
}

// NewGraph creates a graph from the introspected metadata of a set of
// entities. Every edge must point to an entity of the set.
func NewGraph(metas []*load.EntityMetadata, opts ...Option) (*Graph, error) {
	g := &Graph{
		types:     make(map[string]*Type, len(metas)),
		entities:  make(map[string]*dialect.Entity, len(metas)),
		typeMap:   NewTypeMap(),
		joinTable: DefaultJoinTable,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	for _, m := range metas {
		t, err := g.newType(m)
		if err != nil {
			return nil, err
		}
		if _, ok := g.types[t.Name]; ok {
			return nil, entityError(t.Name, "", "duplicate entity", nil)
		}
		g.Types = append(g.Types, t)
		g.types[t.Name] = t
	}
	// Declared edges first, so reverse accessors can be checked against all
	// names of their owner.
	for _, t := range g.Types {
		for _, e := range t.meta.Edges {
			if err := g.addEdge(t, e); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range g.Types {
		for _, e := range t.Edges {
			if e.Reverse {
				continue
			}
			if err := g.addReverse(e, t.meta); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range g.Types {
		if err := g.checkMethods(t); err != nil {
			return nil, err
		}
		ent := g.entity(t)
		if err := ent.Validate(); err != nil {
			return nil, entityError(t.Name, "", "invalid storage layout", err)
		}
		g.entities[t.Name] = ent
	}
	g.logger.Debug("graph built", "types", len(g.Types))
	return g, nil
}

// Type returns the type with the given name.
func (g *Graph) Type(name string) (*Type, bool) {
	t, ok := g.types[name]
	return t, ok
}

// TypeMap returns the scalar mapping table of the graph.
func (g *Graph) TypeMap() *TypeMap { return g.typeMap }

// Entity returns the storage layout of a type.
func (g *Graph) Entity(name string) (*dialect.Entity, bool) {
	e, ok := g.entities[name]
	return e, ok
}

// Entities returns the storage layouts of all types, in graph order.
func (g *Graph) Entities() []*dialect.Entity {
	ents := make([]*dialect.Entity, 0, len(g.Types))
	for _, t := range g.Types {
		ents = append(ents, g.entities[t.Name])
	}
	return ents
}

func (g *Graph) newType(m *load.EntityMetadata) (*Type, error) {
	t := &Type{
		Name:        m.Name,
		Table:       m.Table,
		Comment:     m.Comment,
		Methods:     m.Methods,
		Policies:    m.Policies,
		Annotations: m.Annotations,
		fields:      make(map[string]*Field, len(m.Fields)),
		edges:       make(map[string]*Edge, len(m.Edges)),
		meta:        m,
	}
	if a, ok := sqlschema.From(m.Annotations); ok && t.Table == "" {
		t.Table = a.Table
	}
	if t.Table == "" {
		t.Table = TableName(t.Name)
	}
	if t.Comment == "" {
		if c, ok := m.Annotations["Comment"].(*schema.CommentAnnotation); ok {
			t.Comment = c.Text
		}
	}
	for _, lf := range m.Fields {
		s, ok := g.typeMap.Lookup(lf.Type)
		if !ok {
			return nil, entityError(t.Name, lf.Name, fmt.Sprintf("unsupported field kind %q", lf.Type), nil)
		}
		f := &Field{Field: lf, Owner: t, Scalar: s}
		if f.ServerDefault && !f.PrimaryKey && f.DefaultFunc() == nil {
			return nil, entityError(t.Name, f.Name, fmt.Sprintf("server default of kind %q requires a function", f.Type), nil)
		}
		t.addField(f)
	}
	if t.ID == nil {
		return nil, entityError(t.Name, "", "missing primary key", nil)
	}
	return t, nil
}

func (g *Graph) addEdge(t *Type, le *load.Edge) error {
	target, ok := g.types[le.Target]
	if !ok {
		return edgeError(t.Name, le.Target, le.Name, fmt.Sprintf("unknown target %q", le.Target))
	}
	if t.taken(le.Name) {
		return edgeError(t.Name, target.Name, le.Name, "name conflicts with another field or edge")
	}
	e := &Edge{
		Name:        le.Name,
		Owner:       t,
		Type:        target,
		Cardinality: le.Cardinality,
		Required:    le.Required,
		OnDelete:    le.OnDelete,
		Immutable:   le.Immutable,
		Comment:     le.Comment,
		Annotations: le.Annotations,
	}
	switch le.Cardinality {
	case edge.ToOne:
		fk, err := g.foreignKey(t, target, le)
		if err != nil {
			return err
		}
		e.FK = fk
		fk.fk = e
		e.Rel = dialect.Relation{Name: e.Name, Target: target.Name, Kind: dialect.OwnerFK, Column: fk.Name, Unique: true}
		target.Dependents = append(target.Dependents, e)
	case edge.ManyToManyRel:
		table := le.Through
		if table == "" {
			table = g.joinTable(t.Name, le.Name)
		}
		column, ref := Snake(t.Name)+"_id", Snake(target.Name)+"_id"
		if column == ref {
			ref = Snake(Singular(le.Name)) + "_id"
		}
		e.Rel = dialect.Relation{
			Name:   e.Name,
			Target: target.Name,
			Kind:   dialect.JoinRel,
			Join:   &dialect.JoinTable{Table: table, Column: column, RefColumn: ref},
		}
	default:
		return edgeError(t.Name, target.Name, le.Name, fmt.Sprintf("unsupported cardinality %s", le.Cardinality))
	}
	t.addEdge(e)
	return nil
}

// foreignKey returns the column holding a to-one edge. A user-declared field
// with the column name is bound to the edge; otherwise the column is added.
func (g *Graph) foreignKey(t, target *Type, le *load.Edge) (*Field, error) {
	if f, ok := t.fields[le.Field]; ok {
		switch {
		case f.PrimaryKey:
			return nil, edgeError(t.Name, target.Name, le.Name, fmt.Sprintf("column %q is the primary key", le.Field))
		case f.IsEdgeField():
			return nil, edgeError(t.Name, target.Name, le.Name, fmt.Sprintf("column %q is already used by edge %q", le.Field, f.fk.Name))
		case f.Type != target.ID.Type:
			return nil, edgeError(t.Name, target.Name, le.Name, fmt.Sprintf("column %q has kind %s, expect %s", le.Field, f.Type, target.ID.Type))
		}
		return f, nil
	}
	if _, ok := t.edges[le.Field]; ok {
		return nil, edgeError(t.Name, target.Name, le.Name, fmt.Sprintf("column %q conflicts with an edge", le.Field))
	}
	f := &Field{
		Field: &load.Field{
			Name:        le.Field,
			Type:        target.ID.Type,
			Nullable:    !le.Required,
			Unique:      le.Unique,
			Immutable:   le.Immutable,
			Annotations: make(map[string]any),
		},
		Owner:  t,
		Scalar: target.ID.Scalar,
	}
	t.addField(f)
	return f, nil
}

// addReverse adds the accessor named by the RefName of a declared edge to
// its target.
func (g *Graph) addReverse(e *Edge, m *load.EntityMetadata) error {
	le, ok := m.Edge(e.Name)
	if !ok || le.RefName == "" {
		return nil
	}
	target := e.Type
	if target.taken(le.RefName) {
		return edgeError(target.Name, e.Owner.Name, le.RefName, "reverse accessor conflicts with another field or edge")
	}
	r := &Edge{
		Name:        le.RefName,
		Owner:       target,
		Type:        e.Owner,
		Reverse:     true,
		Ref:         e,
		Immutable:   e.Immutable,
		Annotations: make(map[string]any),
	}
	switch {
	case e.M2M():
		r.Cardinality = edge.ManyToManyRel
		r.Rel = dialect.Relation{Name: r.Name, Target: e.Owner.Name, Kind: dialect.JoinRel, Join: e.Rel.Join.Inverse()}
	case le.Unique:
		r.Cardinality = edge.ToOne
		r.Rel = dialect.Relation{Name: r.Name, Target: e.Owner.Name, Kind: dialect.InverseFK, Column: e.Rel.Column, Unique: true}
	default:
		r.Cardinality = edge.ToMany
		r.Rel = dialect.Relation{Name: r.Name, Target: e.Owner.Name, Kind: dialect.InverseFK, Column: e.Rel.Column}
	}
	e.Ref = r
	target.addEdge(r)
	return nil
}

func (g *Graph) checkMethods(t *Type) error {
	for _, m := range t.Methods {
		if m.ReturnsEntity != "" {
			if _, ok := g.types[m.ReturnsEntity]; !ok {
				return entityError(t.Name, m.Name, fmt.Sprintf("method returns unknown entity %q", m.ReturnsEntity), nil)
			}
		}
		if m.Returns.Valid() {
			if _, ok := g.typeMap.Lookup(m.Returns); !ok {
				return entityError(t.Name, m.Name, fmt.Sprintf("unsupported return kind %q", m.Returns), nil)
			}
		}
		for _, p := range m.Params {
			if _, ok := g.typeMap.Lookup(p.Type); !ok {
				return entityError(t.Name, m.Name, fmt.Sprintf("unsupported kind %q of parameter %q", p.Type, p.Name), nil)
			}
		}
		if m.Func == nil {
			return entityError(t.Name, m.Name, "method has no implementation", nil)
		}
	}
	return nil
}

func (g *Graph) entity(t *Type) *dialect.Entity {
	ent := &dialect.Entity{Name: t.Name, Table: t.Table}
	for _, f := range t.Fields {
		c := &dialect.Column{
			Name:          f.Name,
			Type:          f.Type,
			Nullable:      f.Nullable,
			Unique:        f.Unique,
			PrimaryKey:    f.PrimaryKey,
			AutoIncrement: f.PrimaryKey && f.AutoGenerated && f.Type == field.TypeInt,
			Size:          f.MaxLen,
			StorageKey:    f.StorageKey,
		}
		if a, ok := sqlschema.From(f.Annotations); ok {
			if a.Size > 0 {
				c.Size = a.Size
			}
			c.SQLType = a.Types()
			c.Check = a.Check
		}
		ent.Columns = append(ent.Columns, c)
	}
	for _, e := range t.Edges {
		ent.Relations = append(ent.Relations, e.Relation())
	}
	return ent
}
