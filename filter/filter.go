// Package filter provides the predicate language used by generated list
// queries: leaves comparing one field with a value, edge predicates over
// relationships and the logical connectives AND, OR and NOT.
//
// Predicates are plain values. They can be rendered with String, evaluated
// against in-memory records with Eval, or compiled by a storage dialect.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// P is a predicate node.
type P interface {
	fmt.Stringer
	// Negate returns the negation of the predicate.
	Negate() P
	predicate()
}

// Conj is the connective of an n-ary node.
type Conj string

// Connectives.
const (
	OpAnd Conj = "&&"
	OpOr  Conj = "||"
)

type (
	// Leaf compares the value of a record field using an operator.
	Leaf struct {
		Field string
		Op    Op
		Value any
	}
	// Nary joins predicates with a connective. An empty AND holds for every
	// record and an empty OR holds for none.
	Nary struct {
		Conj Conj
		Ps   []P
	}
	// Unary negates a predicate.
	Unary struct {
		P P
	}
	// Edge holds when at least one record related through the named edge
	// satisfies P. A nil P only requires a related record to exist.
	Edge struct {
		Name string
		P    P
	}
)

func (*Leaf) predicate()  {}
func (*Nary) predicate()  {}
func (*Unary) predicate() {}
func (*Edge) predicate()  {}

// Negate implements P.
func (l *Leaf) Negate() P { return Not(l) }

// Negate implements P.
func (n *Nary) Negate() P { return Not(n) }

// Negate implements P.
func (u *Unary) Negate() P { return Not(u) }

// Negate implements P.
func (e *Edge) Negate() P { return Not(e) }

// String implements fmt.Stringer.
func (l *Leaf) String() string {
	v := encode(l.Value)
	switch l.Op {
	case Exact:
		return l.Field + " == " + v
	case IExact:
		return fmt.Sprintf("equal_fold(%s, %s)", l.Field, v)
	case Contains:
		return fmt.Sprintf("contains(%s, %s)", l.Field, v)
	case IContains:
		return fmt.Sprintf("contains_fold(%s, %s)", l.Field, v)
	case StartsWith:
		return fmt.Sprintf("has_prefix(%s, %s)", l.Field, v)
	case EndsWith:
		return fmt.Sprintf("has_suffix(%s, %s)", l.Field, v)
	case GT:
		return l.Field + " > " + v
	case GTE:
		return l.Field + " >= " + v
	case LT:
		return l.Field + " < " + v
	case LTE:
		return l.Field + " <= " + v
	case In:
		return l.Field + " in " + v
	case NotIn:
		return l.Field + " not in " + v
	case Range:
		return fmt.Sprintf("range(%s, %s)", l.Field, strings.Trim(v, "[]"))
	case Year, Month, Day:
		return fmt.Sprintf("%s(%s) == %s", l.Op, l.Field, v)
	case IsNull:
		if b, ok := l.Value.(bool); ok && !b {
			return l.Field + " != nil"
		}
		return l.Field + " == nil"
	}
	return fmt.Sprintf("%s(%s, %s)", l.Op, l.Field, v)
}

// String implements fmt.Stringer.
func (n *Nary) String() string {
	switch len(n.Ps) {
	case 0:
		if n.Conj == OpOr {
			return "false"
		}
		return "true"
	case 1:
		return n.Ps[0].String()
	}
	parts := make([]string, len(n.Ps))
	for i, p := range n.Ps {
		parts[i] = p.String()
	}
	s := strings.Join(parts, " "+string(n.Conj)+" ")
	if len(n.Ps) > 2 {
		s = "(" + s + ")"
	}
	return s
}

// String implements fmt.Stringer.
func (u *Unary) String() string {
	return "!(" + u.P.String() + ")"
}

// String implements fmt.Stringer.
func (e *Edge) String() string {
	if e.P == nil {
		return "has_edge(" + e.Name + ")"
	}
	return "has_edge(" + e.Name + ", " + e.P.String() + ")"
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// And returns a predicate that holds when all ps hold.
func And(ps ...P) P {
	return &Nary{Conj: OpAnd, Ps: ps}
}

// Or returns a predicate that holds when any of ps holds.
func Or(ps ...P) P {
	return &Nary{Conj: OpOr, Ps: ps}
}

// Not negates p.
func Not(p P) P {
	return &Unary{P: p}
}

// True holds for every record.
func True() P { return And() }

// False holds for no record.
func False() P { return Or() }

// Field returns a leaf applying op to the field.
func Field(name string, op Op, v any) P {
	return &Leaf{Field: name, Op: op, Value: v}
}

// FieldEQ returns a predicate that checks if the field equals v.
func FieldEQ(name string, v any) P { return Field(name, Exact, v) }

// FieldNEQ returns a predicate that checks if the field does not equal v.
func FieldNEQ(name string, v any) P { return Not(FieldEQ(name, v)) }

// FieldGT returns a predicate that checks if the field is greater than v.
func FieldGT(name string, v any) P { return Field(name, GT, v) }

// FieldGTE returns a predicate that checks if the field is greater than or equal to v.
func FieldGTE(name string, v any) P { return Field(name, GTE, v) }

// FieldLT returns a predicate that checks if the field is less than v.
func FieldLT(name string, v any) P { return Field(name, LT, v) }

// FieldLTE returns a predicate that checks if the field is less than or equal to v.
func FieldLTE(name string, v any) P { return Field(name, LTE, v) }

// FieldIn returns a predicate that checks if the field value is in vs.
func FieldIn(name string, vs ...any) P { return Field(name, In, vs) }

// FieldNotIn returns a predicate that checks if the field value is not in vs.
func FieldNotIn(name string, vs ...any) P { return Field(name, NotIn, vs) }

// FieldContains returns a predicate that checks if the field contains the substring.
func FieldContains(name, v string) P { return Field(name, Contains, v) }

// FieldContainsFold returns a predicate that checks if the field contains the substring, ignoring case.
func FieldContainsFold(name, v string) P { return Field(name, IContains, v) }

// FieldEqualFold returns a predicate that checks if the field equals v, ignoring case.
func FieldEqualFold(name, v string) P { return Field(name, IExact, v) }

// FieldHasPrefix returns a predicate that checks if the field has the prefix.
func FieldHasPrefix(name, v string) P { return Field(name, StartsWith, v) }

// FieldHasSuffix returns a predicate that checks if the field has the suffix.
func FieldHasSuffix(name, v string) P { return Field(name, EndsWith, v) }

// FieldNil returns a predicate that checks if the field is null.
func FieldNil(name string) P { return Field(name, IsNull, true) }

// FieldNotNil returns a predicate that checks if the field is not null.
func FieldNotNil(name string) P { return Field(name, IsNull, false) }

// HasEdge returns a predicate that checks if a related record exists.
func HasEdge(name string) P { return &Edge{Name: name} }

// HasEdgeWith returns a predicate that checks if a related record matching p exists.
func HasEdgeWith(name string, p P) P { return &Edge{Name: name, P: p} }

// Walk calls fn for every node of p in depth-first order. It stops
// descending into a node when fn returns false.
func Walk(p P, fn func(P) bool) {
	if p == nil || !fn(p) {
		return
	}
	switch n := p.(type) {
	case *Nary:
		for _, c := range n.Ps {
			Walk(c, fn)
		}
	case *Unary:
		Walk(n.P, fn)
	}
}
