// Package autogql derives a complete, queryable API surface (object types,
// create/update inputs, read queries, mutations, filters) from entity
// definitions at runtime.
//
// Entities are declared the same way for every schema instance:
//
//	type Post struct {
//	    autogql.Schema
//	}
//
//	func (Post) Fields() []autogql.Field {
//	    return []autogql.Field{
//	        field.String("title").MaxLen(200),
//	        field.Time("created_at").ServerDefault(time.Now),
//	    }
//	}
//
//	func (Post) Edges() []autogql.Edge {
//	    return []autogql.Edge{
//	        edge.To("category", Category.Type).Required().Ref("posts"),
//	    }
//	}
//
// The engine package wires the settings resolver, the schema registry and the
// builder together; most callers only need that package.
package autogql

import (
	"context"
	"fmt"
	"strings"

	"github.com/raillogistic/autogql/schema"
	"github.com/raillogistic/autogql/schema/edge"
	"github.com/raillogistic/autogql/schema/field"
	"github.com/raillogistic/autogql/schema/method"
)

type (
	// Value represents a dynamic value stored in a record or passed as an argument.
	Value = any

	// Interface is the entity-model definition consumed by the introspector.
	// Implementations embed Schema and override the methods they need.
	Interface interface {
		// Type is a dummy method used by edge builders to resolve
		// target entity names from method values (e.g. Post.Type).
		Type()
		Fields() []Field
		Edges() []Edge
		Methods() []Method
		Mixin() []Mixin
		Config() Config
		Policy() Policy
		Annotations() []schema.Annotation
	}

	// Field is the interface implemented by field builders.
	Field interface {
		Descriptor() *field.Descriptor
	}

	// Edge is the interface implemented by relationship builders.
	Edge interface {
		Descriptor() *edge.Descriptor
	}

	// Method is the interface implemented by behavior-method builders.
	Method interface {
		Descriptor() *method.Descriptor
	}

	// Mixin is a reusable set of fields, edges and methods that can be
	// mixed into multiple entity definitions.
	Mixin interface {
		Fields() []Field
		Edges() []Edge
		Methods() []Method
		Policy() Policy
		Annotations() []schema.Annotation
	}

	// Config holds entity-level configuration.
	Config struct {
		// Name overrides the entity name derived from the Go type name.
		Name string
		// Table is the storage table name. Defaults to the snake-cased plural of Name.
		Table string
		// Group is the logical group used by schema auto-discovery.
		Group string
		// Comment is used as the description of the generated object type.
		Comment string
	}
)

// Schema is the default implementation for Interface.
// It should be embedded in entity definitions.
type Schema struct{}

// Type implements Interface.
func (Schema) Type() {}

// Fields of the entity.
func (Schema) Fields() []Field { return nil }

// Edges of the entity.
func (Schema) Edges() []Edge { return nil }

// Methods of the entity. Only methods marked with Expose are turned into mutations.
func (Schema) Methods() []Method { return nil }

// Mixin of the entity.
func (Schema) Mixin() []Mixin { return nil }

// Config of the entity.
func (Schema) Config() Config { return Config{} }

// Policy of the entity.
func (Schema) Policy() Policy { return nil }

// Annotations of the entity.
func (Schema) Annotations() []schema.Annotation { return nil }

var _ Interface = (*Schema)(nil)

// Op represents the operation of a mutation.
type Op uint

// Mutation operations.
const (
	OpCreate Op = 1 << iota
	OpUpdate
	OpDelete
	OpMethod
)

// Is reports whether o matches the given operation.
func (i Op) Is(o Op) bool { return i&o != 0 }

var opNames = []string{
	"OpCreate",
	"OpUpdate",
	"OpDelete",
	"OpMethod",
}

// String implements the fmt.Stringer interface.
func (i Op) String() string {
	var names []string
	for n := 0; n < len(opNames); n++ {
		if i&(1<<n) != 0 {
			names = append(names, opNames[n])
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Op(%d)", i)
	}
	return strings.Join(names, "|")
}

type (
	// Query describes a read operation evaluated by query policies.
	Query interface {
		// Type returns the entity name.
		Type() string
		// Operation returns the generated operation name.
		Operation() string
	}

	// Mutation describes a write operation evaluated by mutation policies.
	Mutation interface {
		Op() Op
		// Type returns the entity name.
		Type() string
		// Fields returns the names of the fields present in the payload.
		Fields() []string
		// Field returns the value of a field in the payload.
		Field(name string) (Value, bool)
	}

	// Policy defines the privacy policy of an entity.
	Policy interface {
		EvalQuery(context.Context, Query) error
		EvalMutation(context.Context, Mutation) error
	}
)
