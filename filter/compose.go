package filter

import (
	"fmt"
	"reflect"
	"slices"
	"sort"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/schema/field"
)

// Logical keys of a filter tree.
const (
	KeyAnd = "AND"
	KeyOr  = "OR"
	KeyNot = "NOT"
)

// Input is a filterable input field of an entity.
type Input struct {
	// Name of the input field, e.g. "title" or "category".
	Name string
	// Column is the record key leaves apply to. For to-many relationships
	// it is the key of the target entity.
	Column string
	// Edge is set for to-many relationships; leaves are wrapped in an edge
	// predicate over it.
	Edge string
	Kind Kind
	Type field.Type
	Ops  []Op
	// Coerce converts an operand to the type stored in records.
	Coerce func(any) (any, error)
}

// Allows reports if the input accepts op.
func (in *Input) Allows(op Op) bool {
	return slices.Contains(in.Ops, op)
}

// Target describes the filterable inputs of one entity.
type Target struct {
	Entity string
	inputs []*Input
	byName map[string]*Input
}

// NewTarget returns a Target for entity.
func NewTarget(entity string, inputs ...*Input) *Target {
	t := &Target{Entity: entity, byName: make(map[string]*Input, len(inputs))}
	for _, in := range inputs {
		t.Add(in)
	}
	return t
}

// Add adds or replaces an input.
func (t *Target) Add(in *Input) {
	if _, ok := t.byName[in.Name]; !ok {
		t.inputs = append(t.inputs, in)
	} else {
		for i := range t.inputs {
			if t.inputs[i].Name == in.Name {
				t.inputs[i] = in
			}
		}
	}
	t.byName[in.Name] = in
}

// Input returns the input with the given name.
func (t *Target) Input(name string) (*Input, bool) {
	in, ok := t.byName[name]
	return in, ok
}

// Inputs returns the inputs in declaration order.
func (t *Target) Inputs() []*Input {
	return slices.Clone(t.inputs)
}

// Compose converts a filter tree into a predicate. The tree is a map of
// input names to operator maps, e.g. {"title": {"icontains": "go"}}, with
// the logical keys AND, OR (lists of trees) and NOT (a tree). A leaf may
// also be given as a triple {"field": "title", "op": "icontains", "value": "go"}.
// Sibling entries of a node are joined with AND.
//
// Unknown inputs, unknown operators and malformed operands are reported as
// validation errors scoped to their path in the tree.
func Compose(tree map[string]any, t *Target) (P, error) {
	c := &composer{target: t}
	p := c.node(tree, "where")
	if len(c.errs) > 0 {
		return nil, c.errs
	}
	return p, nil
}

type composer struct {
	target *Target
	errs   autogql.ValidationErrors
}

func (c *composer) fail(path, format string, args ...any) {
	c.errs = append(c.errs, autogql.Invalidf(path, format, args...))
}

func (c *composer) node(tree map[string]any, path string) P {
	if isTriple(tree) {
		return c.triple(tree, path)
	}
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var ps []P
	for _, k := range keys {
		v := tree[k]
		kpath := path + "." + k
		switch k {
		case KeyAnd, KeyOr:
			children, ok := trees(v)
			if !ok {
				c.fail(kpath, "expect a list of filters")
				continue
			}
			cps := make([]P, 0, len(children))
			for i, child := range children {
				cps = append(cps, c.node(child, fmt.Sprintf("%s[%d]", kpath, i)))
			}
			if k == KeyAnd {
				ps = append(ps, And(cps...))
			} else {
				ps = append(ps, Or(cps...))
			}
		case KeyNot:
			if v == nil {
				continue
			}
			child, ok := v.(map[string]any)
			if !ok {
				c.fail(kpath, "expect a filter")
				continue
			}
			ps = append(ps, Not(c.node(child, kpath)))
		default:
			if v == nil {
				continue
			}
			in, ok := c.target.Input(k)
			if !ok {
				c.fail(kpath, "unknown filter field %q on %s", k, c.target.Entity)
				continue
			}
			ops, ok := v.(map[string]any)
			if !ok {
				c.fail(kpath, "expect an operator map")
				continue
			}
			ps = append(ps, c.input(in, ops, kpath)...)
		}
	}
	if len(ps) == 1 {
		return ps[0]
	}
	return And(ps...)
}

func isTriple(tree map[string]any) bool {
	f, ok1 := tree["field"].(string)
	_, ok2 := tree["op"].(string)
	return ok1 && ok2 && f != "" && len(tree) <= 3
}

func (c *composer) triple(tree map[string]any, path string) P {
	name := tree["field"].(string)
	in, ok := c.target.Input(name)
	if !ok {
		c.fail(path+"."+name, "unknown filter field %q on %s", name, c.target.Entity)
		return nil
	}
	ps := c.input(in, map[string]any{tree["op"].(string): tree["value"]}, path+"."+name)
	if len(ps) == 0 {
		return nil
	}
	return ps[0]
}

func (c *composer) input(in *Input, ops map[string]any, path string) []P {
	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)
	var ps []P
	for _, name := range names {
		op, v := Op(name), ops[name]
		opath := path + "." + name
		if !in.Allows(op) {
			c.fail(opath, "operator %q is not supported for %s", name, in.Name)
			continue
		}
		if v == nil && op != Exact {
			continue
		}
		v, ok := c.operand(in, op, v, opath)
		if !ok {
			continue
		}
		ps = append(ps, leaf(in, op, v))
	}
	return ps
}

func (c *composer) operand(in *Input, op Op, v any, path string) (any, bool) {
	switch {
	case op == IsNull:
		b, ok := v.(bool)
		if !ok {
			c.fail(path, "expect a boolean")
		}
		return b, ok
	case op == Year || op == Month || op == Day:
		n, ok := integer(v)
		if !ok {
			c.fail(path, "expect an integer")
		}
		return n, ok
	case op.List():
		list, ok := values(v)
		if !ok {
			c.fail(path, "expect a list")
			return nil, false
		}
		if op == Range && len(list) != 2 {
			c.fail(path, "expect a list of two bounds")
			return nil, false
		}
		for i, e := range list {
			e, ok := c.coerce(in, e, path)
			if !ok {
				return nil, false
			}
			list[i] = e
		}
		return list, true
	case v == nil:
		return nil, true
	}
	return c.coerce(in, v, path)
}

func (c *composer) coerce(in *Input, v any, path string) (any, bool) {
	if in.Coerce == nil {
		return v, true
	}
	cv, err := in.Coerce(v)
	if err != nil {
		c.fail(path, "%v", err)
		return nil, false
	}
	return cv, true
}

func leaf(in *Input, op Op, v any) P {
	if op == Exact && v == nil {
		op, v = IsNull, true
	}
	if in.Edge == "" {
		return Field(in.Column, op, v)
	}
	if op == IsNull {
		if v.(bool) {
			return Not(HasEdge(in.Edge))
		}
		return HasEdge(in.Edge)
	}
	return HasEdgeWith(in.Edge, Field(in.Column, op, v))
}

func trees(v any) ([]map[string]any, bool) {
	switch v := v.(type) {
	case []map[string]any:
		return v, true
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	case nil:
		return nil, true
	}
	return nil, false
}

func values(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return slices.Clone(l), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func integer(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// Validate checks that the leaves of p only use operators offered by the
// inputs of t. Edge predicates are checked for their edge only.
func Validate(p P, t *Target) error {
	columns := make(map[string]*Input)
	edges := make(map[string]*Input)
	for _, in := range t.inputs {
		if in.Edge != "" {
			edges[in.Edge] = in
		} else {
			columns[in.Column] = in
		}
	}
	var errs autogql.ValidationErrors
	Walk(p, func(n P) bool {
		switch n := n.(type) {
		case *Leaf:
			in, ok := columns[n.Field]
			switch {
			case !ok:
				errs = append(errs, autogql.Invalidf(n.Field, "unknown filter field %q on %s", n.Field, t.Entity))
			case n.Op == NotIn && in.Allows(In):
			case n.Op == IsNull && in.Kind == KindRelation:
			case !in.Allows(n.Op):
				errs = append(errs, autogql.Invalidf(n.Field, "operator %q is not supported for %s", n.Op, in.Name))
			}
		case *Edge:
			if _, ok := edges[n.Name]; !ok {
				errs = append(errs, autogql.Invalidf(n.Name, "unknown relationship %q on %s", n.Name, t.Entity))
			}
			return false
		}
		return true
	})
	return errs.Err()
}
