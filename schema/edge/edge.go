package edge

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/raillogistic/autogql/schema"
)

// Cardinality of a relationship.
type Cardinality uint8

// Relationship cardinalities.
const (
	ToOne Cardinality = iota + 1
	ToMany
	ManyToManyRel
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	switch c {
	case ToOne:
		return "to-one"
	case ToMany:
		return "to-many"
	case ManyToManyRel:
		return "many-to-many"
	default:
		return fmt.Sprintf("Cardinality(%d)", c)
	}
}

// Many reports if the relationship holds a list of targets.
func (c Cardinality) Many() bool { return c == ToMany || c == ManyToManyRel }

// Action is the policy applied to dependent records when the target of a
// to-one relationship is deleted.
type Action string

// Delete policies.
const (
	NoAction   Action = ""
	Cascade    Action = "CASCADE"
	Restrict   Action = "RESTRICT"
	SetNull    Action = "SET NULL"
	SetDefault Action = "SET DEFAULT"
)

// A Descriptor for edge configuration.
type Descriptor struct {
	Name        string              // edge name.
	Type        string              // target entity name.
	Cardinality Cardinality         // relationship cardinality.
	Reverse     bool                // reverse accessor of a relationship declared on the target.
	Unique      bool                // one-to-one; the reverse accessor is to-one as well.
	RefName     string              // name of the reverse accessor created on the target.
	Inverse     string              // for reverse edges, the name of the forward edge.
	Field       string              // foreign-key column on the owner (to-one).
	Through     string              // join table (many-to-many).
	Required    bool                // to-one relationship must always be set.
	OnDelete    Action              // policy applied when the target is deleted.
	Immutable   bool                // edge cannot be changed by updates.
	Comment     string              // edge comment.
	Annotations []schema.Annotation // edge annotations.
	Err         error
}

// Builder is the fluent builder for relationships.
type Builder struct {
	desc *Descriptor
}

// To declares a forward to-one relationship (a foreign key held by the
// declaring entity) to the target entity. t is either the target name or a
// method value of the target definition, e.g. Category.Type.
//
//	edge.To("category", Category.Type).Required().Ref("posts")
func To(name string, t any) *Builder {
	return newBuilder(name, t, ToOne)
}

// ManyToMany declares a forward many-to-many relationship stored in a join table.
//
//	edge.ManyToMany("tags", Tag.Type).Ref("posts")
func ManyToMany(name string, t any) *Builder {
	return newBuilder(name, t, ManyToManyRel)
}

func newBuilder(name string, t any, c Cardinality) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, Cardinality: c}}
	typ, err := typeName(t)
	if err != nil {
		b.desc.Err = fmt.Errorf("edge %q: %w", name, err)
	}
	b.desc.Type = typ
	return b
}

// Unique turns a to-one relationship into a one-to-one relationship.
func (b *Builder) Unique() *Builder {
	if b.desc.Cardinality != ToOne {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("edge %q: Unique is only supported on to-one edges", b.desc.Name))
		return b
	}
	b.desc.Unique = true
	return b
}

// Required marks a to-one relationship as mandatory. To-many relationships
// cannot be required; cardinality constraints on them belong to validation.
func (b *Builder) Required() *Builder {
	if b.desc.Cardinality != ToOne {
		b.desc.Err = errors.Join(b.desc.Err, fmt.Errorf("edge %q: only to-one edges can be required", b.desc.Name))
		return b
	}
	b.desc.Required = true
	return b
}

// Ref names the reverse accessor generated on the target entity.
func (b *Builder) Ref(name string) *Builder {
	b.desc.RefName = name
	return b
}

// Field sets the foreign-key column of a to-one relationship.
// Defaults to "<name>_id".
func (b *Builder) Field(column string) *Builder {
	b.desc.Field = column
	return b
}

// Through sets the join table of a many-to-many relationship.
func (b *Builder) Through(table string) *Builder {
	b.desc.Through = table
	return b
}

// OnDelete sets the policy applied to the declaring records when the target
// is deleted. Defaults to Cascade for required edges and SetNull otherwise.
func (b *Builder) OnDelete(a Action) *Builder {
	b.desc.OnDelete = a
	return b
}

// Immutable excludes the edge from update inputs.
func (b *Builder) Immutable() *Builder {
	b.desc.Immutable = true
	return b
}

// Comment sets the comment of the edge.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Annotations adds a list of annotations to the edge.
func (b *Builder) Annotations(annotations ...schema.Annotation) *Builder {
	b.desc.Annotations = append(b.desc.Annotations, annotations...)
	return b
}

// Descriptor implements the autogql.Edge interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	d := b.desc
	if d.Cardinality == ToOne {
		if d.Field == "" {
			d.Field = d.Name + "_id"
		}
		if d.OnDelete == NoAction {
			d.OnDelete = SetNull
			if d.Required {
				d.OnDelete = Cascade
			}
		}
		if d.OnDelete == SetNull && d.Required && d.Err == nil {
			d.Err = fmt.Errorf("edge %q: SetNull requires an optional edge", d.Name)
		}
	}
	return d
}

// typeName extracts the entity name from a name string, a method value
// such as Post.Type, or a definition value.
func typeName(t any) (string, error) {
	switch t := t.(type) {
	case nil:
		return "", errors.New("missing target type")
	case string:
		if t == "" {
			return "", errors.New("missing target type")
		}
		return t, nil
	}
	rt := reflect.TypeOf(t)
	if rt.Kind() == reflect.Func {
		if rt.NumIn() == 0 {
			return "", fmt.Errorf("invalid target %s", rt)
		}
		rt = rt.In(0)
	}
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Name() == "" {
		return "", fmt.Errorf("invalid target %s", rt)
	}
	return rt.Name(), nil
}
