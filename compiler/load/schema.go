package load

import (
	"fmt"
	"reflect"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/schema"
	"github.com/raillogistic/autogql/schema/edge"
	"github.com/raillogistic/autogql/schema/field"
	"github.com/raillogistic/autogql/schema/method"
)

// EntityMetadata is the introspected form of an entity definition. It is
// rebuilt for every schema build and never mutated afterwards.
type EntityMetadata struct {
	Name        string
	Table       string
	Group       string
	Comment     string
	Fields      []*Field
	Edges       []*Edge
	Methods     []*Method
	Ignored     []*Ignored
	Policies    []autogql.Policy
	Annotations map[string]any
}

// Position describes a position in the entity definition.
type Position struct {
	Index      int  // Index in the field/edge list.
	MixedIn    bool // Indicates if the schema object was mixed-in.
	MixinIndex int  // Mixin index in the mixin list.
}

// Field is a scalar field of an introspected entity.
type Field struct {
	Name              string
	Type              field.Type
	Nullable          bool
	ServerDefault     bool
	ServerDefaultFunc func() any
	Default           bool
	DefaultValue      any
	AutoGenerated     bool
	UpdateFunc        func() any
	PrimaryKey        bool
	Unique            bool
	Immutable         bool
	MaxLen            int
	Choices           []field.Choice
	Tags              []string
	Validators        []func(any) error
	StorageKey        string
	Comment           string
	Position          *Position
	// UserDefined is false for the primary key added when the definition
	// declares none.
	UserDefined bool
	Annotations map[string]any
}

// Column returns the storage column of the field.
func (f *Field) Column() string {
	if f.StorageKey != "" {
		return f.StorageKey
	}
	return f.Name
}

// Edge is a relationship declared by an introspected entity. Reverse
// accessors are not part of the metadata; the graph derives them from RefName.
type Edge struct {
	Name        string
	Target      string
	Cardinality edge.Cardinality
	Unique      bool
	RefName     string
	Field       string
	Through     string
	Required    bool
	OnDelete    edge.Action
	Immutable   bool
	Comment     string
	Position    *Position
	Annotations map[string]any
}

// Method is a behavior method that passed the exposure checks.
type Method struct {
	Name          string
	Params        []method.Param
	Returns       field.Type
	ReturnsEntity string
	Func          method.Func
	Comment       string
}

// Ignored records an attribute of the definition that was filtered out,
// together with the reason.
type Ignored struct {
	Name   string
	Reason string
}

// Field returns the field with the given name.
func (m *EntityMetadata) Field(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Edge returns the edge with the given name.
func (m *EntityMetadata) Edge(name string) (*Edge, bool) {
	for _, e := range m.Edges {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// PK returns the primary key field.
func (m *EntityMetadata) PK() *Field {
	for _, f := range m.Fields {
		if f.PrimaryKey {
			return f
		}
	}
	return nil
}

// NewField creates a loaded field from field descriptor.
func NewField(fd *field.Descriptor) (*Field, error) {
	if fd.Err != nil {
		return nil, fmt.Errorf("field %q: %w", fd.Name, fd.Err)
	}
	if fd.Name == "" {
		return nil, fmt.Errorf("missing field name")
	}
	if !fd.Type.Valid() {
		return nil, fmt.Errorf("missing type info for field %q", fd.Name)
	}
	sf := &Field{
		Name:              fd.Name,
		Type:              fd.Type,
		Nullable:          fd.Nullable,
		ServerDefault:     fd.ServerDefault,
		ServerDefaultFunc: fd.ServerDefaultFunc,
		Default:           fd.Default,
		DefaultValue:      fd.DefaultValue,
		AutoGenerated:     fd.AutoGenerated,
		UpdateFunc:        fd.UpdateFunc,
		PrimaryKey:        fd.PrimaryKey,
		Unique:            fd.Unique,
		Immutable:         fd.Immutable,
		MaxLen:            fd.MaxLen,
		Choices:           append([]field.Choice(nil), fd.Choices...),
		Tags:              append([]string(nil), fd.Tags...),
		Validators:        append([]func(any) error(nil), fd.Validators...),
		StorageKey:        fd.StorageKey,
		Comment:           fd.Comment,
		UserDefined:       true,
		Annotations:       make(map[string]any),
	}
	for _, at := range fd.Annotations {
		addAnnotation(sf.Annotations, at)
	}
	return sf, nil
}

// NewEdge creates a loaded edge from edge descriptor.
// It returns an error if the descriptor contains an error.
func NewEdge(ed *edge.Descriptor) (*Edge, error) {
	if ed.Err != nil {
		return nil, ed.Err
	}
	if ed.Name == "" {
		return nil, fmt.Errorf("missing edge name")
	}
	if ed.Reverse {
		return nil, fmt.Errorf("edge %q: reverse accessors are derived from Ref on the declaring entity", ed.Name)
	}
	ne := &Edge{
		Name:        ed.Name,
		Target:      ed.Type,
		Cardinality: ed.Cardinality,
		Unique:      ed.Unique,
		RefName:     ed.RefName,
		Field:       ed.Field,
		Through:     ed.Through,
		Required:    ed.Required,
		OnDelete:    ed.OnDelete,
		Immutable:   ed.Immutable,
		Comment:     ed.Comment,
		Annotations: make(map[string]any),
	}
	for _, at := range ed.Annotations {
		addAnnotation(ne.Annotations, at)
	}
	return ne, nil
}

// NewMethod creates a loaded method from method descriptor.
func NewMethod(md *method.Descriptor) (*Method, error) {
	if md.Err != nil {
		return nil, md.Err
	}
	params := make(map[string]struct{}, len(md.Params))
	for _, p := range md.Params {
		if _, ok := params[p.Name]; ok {
			return nil, fmt.Errorf("method %q: duplicate parameter %q", md.Name, p.Name)
		}
		params[p.Name] = struct{}{}
	}
	return &Method{
		Name:          md.Name,
		Params:        append([]method.Param(nil), md.Params...),
		Returns:       md.Returns,
		ReturnsEntity: md.ReturnsEntity,
		Func:          md.Func,
		Comment:       md.Comment,
	}, nil
}

func addAnnotation(annotations map[string]any, an schema.Annotation) {
	if an == nil {
		return
	}
	curr, ok := annotations[an.Name()]
	if !ok {
		annotations[an.Name()] = an
		return
	}
	if m, ok := curr.(schema.Merger); ok {
		annotations[an.Name()] = m.Merge(an)
		return
	}
	annotations[an.Name()] = an
}

// safeFields wraps the schema.Fields and mixin.Fields method with recover to ensure no panics in introspection.
func safeFields(fd interface{ Fields() []autogql.Field }) (fields []autogql.Field, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%T.Fields panics: %v", fd, v)
			fields = nil
		}
	}()
	return fd.Fields(), nil
}

// safeEdges wraps the schema.Edges method with recover to ensure no panics in introspection.
func safeEdges(schema interface{ Edges() []autogql.Edge }) (edges []autogql.Edge, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%T.Edges panics: %v", schema, v)
			edges = nil
		}
	}()
	return schema.Edges(), nil
}

// safeMethods wraps the schema.Methods method with recover to ensure no panics in introspection.
func safeMethods(schema interface{ Methods() []autogql.Method }) (methods []autogql.Method, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%T.Methods panics: %v", schema, v)
			methods = nil
		}
	}()
	return schema.Methods(), nil
}

// safeMixin wraps the schema.Mixin method with recover to ensure no panics in introspection.
func safeMixin(schema autogql.Interface) (mixin []autogql.Mixin, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("schema.Mixin panics: %v", v)
			mixin = nil
		}
	}()
	return schema.Mixin(), nil
}

// safePolicy wraps the schema.Policy method with recover to ensure no panics in introspection.
func safePolicy(schema interface{ Policy() autogql.Policy }) (policy autogql.Policy, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%T.Policy panics: %v", schema, v)
			policy = nil
		}
	}()
	return schema.Policy(), nil
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// Name returns the entity name of a definition: Config().Name when set and
// the Go type name otherwise.
func Name(def autogql.Interface) string {
	if n := def.Config().Name; n != "" {
		return n
	}
	return indirect(reflect.TypeOf(def)).Name()
}
