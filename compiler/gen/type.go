package gen

import (
	"slices"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/load"
)

// Type represents one entity of the graph, its fields and relations.
type Type struct {
	// Name holds the entity name.
	Name string
	// Table is the storage table of the entity.
	Table string
	// Comment describes the entity.
	Comment string
	// ID holds the primary key field.
	ID *Field
	// Fields holds all scalar fields, including the primary key and the
	// foreign-key columns of to-one edges.
	Fields []*Field
	fields map[string]*Field
	// Edges holds the declared edges followed by the reverse accessors
	// derived from other entities.
	Edges []*Edge
	edges map[string]*Edge
	// Dependents holds the to-one edges of other entities (or of this one)
	// that point to this type. Their delete policies apply when a record of
	// this type is deleted.
	Dependents []*Edge
	// Methods holds the exposed behavior methods.
	Methods []*load.Method
	// Policies holds the privacy policies of the entity and its mixins.
	Policies []autogql.Policy
	// Annotations that were defined for the entity.
	Annotations map[string]any

	meta *load.EntityMetadata
}

// Metadata returns the introspected metadata the type was built from.
func (t *Type) Metadata() *load.EntityMetadata { return t.meta }

// Field returns the field with the given name.
func (t *Type) Field(name string) (*Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// Edge returns the edge with the given name.
func (t *Type) Edge(name string) (*Edge, bool) {
	e, ok := t.edges[name]
	return e, ok
}

// Method returns the exposed method with the given name.
func (t *Type) Method(name string) (*load.Method, bool) {
	i := slices.IndexFunc(t.Methods, func(m *load.Method) bool { return m.Name == name })
	if i < 0 {
		return nil, false
	}
	return t.Methods[i], true
}

// UserFields returns the scalar fields exposed as inputs and outputs: the
// primary key and every field that is not a foreign-key column.
func (t *Type) UserFields() []*Field {
	fields := make([]*Field, 0, len(t.Fields))
	for _, f := range t.Fields {
		if !f.IsEdgeField() {
			fields = append(fields, f)
		}
	}
	return fields
}

// UniqueFields returns the unique fields besides the primary key, in
// declaration order. They serve as alternative single-item lookups.
func (t *Type) UniqueFields() []*Field {
	var fields []*Field
	for _, f := range t.UserFields() {
		if f.Unique && !f.PrimaryKey {
			fields = append(fields, f)
		}
	}
	return fields
}

func (t *Type) addField(f *Field) {
	t.Fields = append(t.Fields, f)
	t.fields[f.Name] = f
	if f.PrimaryKey {
		t.ID = f
	}
}

func (t *Type) addEdge(e *Edge) {
	t.Edges = append(t.Edges, e)
	t.edges[e.Name] = e
}

// taken reports if name is used by a field, an edge or a method of t.
func (t *Type) taken(name string) bool {
	if _, ok := t.fields[name]; ok {
		return true
	}
	if _, ok := t.edges[name]; ok {
		return true
	}
	_, ok := t.Method(name)
	return ok
}

// InputForm tells which mutation input of an edge a name refers to.
type InputForm uint8

// Edge input forms.
const (
	InputDirect InputForm = iota + 1
	InputNested
	InputAdd
	InputRemove
)

// Input returns the edge a mutation input name of t refers to, and the
// form of the input. It returns a nil edge for names that are not edge
// inputs.
func (t *Type) Input(name string) (*Edge, InputForm) {
	for _, e := range t.Edges {
		switch {
		case name == e.Name:
			return e, InputDirect
		case name == e.NestedName():
			return e, InputNested
		case e.Many() && name == e.AddName():
			return e, InputAdd
		case e.Many() && name == e.RemoveName():
			return e, InputRemove
		}
	}
	return nil, 0
}
