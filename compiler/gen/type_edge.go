package gen

import (
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/schema/edge"
)

// Edge of a graph between two types.
type Edge struct {
	// Name holds the name of the edge.
	Name string
	// Owner is the type holding the edge.
	Owner *Type
	// Type holds a reference to the type this edge is directed to.
	Type *Type
	// Cardinality of the edge as seen from its owner.
	Cardinality edge.Cardinality
	// Required indicates a mandatory to-one relationship.
	Required bool
	// Reverse indicates an accessor derived from an edge declared on the
	// target (see Ref).
	Reverse bool
	// Ref points to the other side of the relationship, if any.
	Ref *Edge
	// OnDelete is the policy applied to the owner records when the target
	// record is deleted. Only set on declared to-one edges.
	OnDelete edge.Action
	// Immutable indicates is this edge cannot be updated.
	Immutable bool
	// Comment of the edge.
	Comment string
	// Annotations that were defined for the edge.
	Annotations map[string]any
	// Rel holds the storage layout of the edge.
	Rel dialect.Relation
	// FK is the foreign-key column held by the owner for OwnerFK edges.
	FK *Field
}

// Unique reports if the edge holds at most one target.
func (e *Edge) Unique() bool { return e.Cardinality == edge.ToOne }

// Many reports if the edge holds a list of targets.
func (e *Edge) Many() bool { return e.Cardinality.Many() }

// OwnFK reports if the owner holds the foreign-key column of the edge.
func (e *Edge) OwnFK() bool { return e.Rel.Kind == dialect.OwnerFK }

// M2M reports if the edge is stored in a join table.
func (e *Edge) M2M() bool { return e.Rel.Kind == dialect.JoinRel }

// Mandatory reports if a create input must reference a target through
// either form of the dual pair.
func (e *Edge) Mandatory() bool {
	return !e.Reverse && e.Cardinality == edge.ToOne && e.Required
}

// NestedName returns the name of the nested-object input of the edge,
// e.g. "nestedCategory".
func (e *Edge) NestedName() string { return "nested" + Pascal(e.Name) }

// AddName returns the name of the update input connecting targets of a
// to-many edge, e.g. "addTags".
func (e *Edge) AddName() string { return "add" + Pascal(e.Name) }

// RemoveName returns the name of the update input disconnecting targets of
// a to-many edge, e.g. "removeTags".
func (e *Edge) RemoveName() string { return "remove" + Pascal(e.Name) }

// DualPair names the two inputs through which a relationship can be set:
// the direct form taking primary keys and the nested form taking objects.
type DualPair struct {
	Edge   *Edge
	Direct string
	Nested string
	// Mandatory pairs require at least one of the two forms on create.
	Mandatory bool
}

// DualPair returns the dual-reference pair of the edge.
func (e *Edge) DualPair() DualPair {
	return DualPair{
		Edge:      e,
		Direct:    e.Name,
		Nested:    e.NestedName(),
		Mandatory: e.Mandatory(),
	}
}

// Relation returns the storage relation of the edge.
func (e *Edge) Relation() *dialect.Relation {
	r := e.Rel
	if r.Join != nil {
		j := *r.Join
		r.Join = &j
	}
	return &r
}
