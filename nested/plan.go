package nested

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/privacy"
)

// Plan is a validated nested mutation. Nothing is written until Apply.
type Plan struct {
	h     *Handler
	root  *node
	nodes []*node
	done  bool
}

// node is one record written by a plan.
type node struct {
	typ   *gen.Type
	op    autogql.Op
	path  string
	key   any
	input map[string]any
	// values holds the coerced scalar inputs.
	values dialect.Record
	links  []*link
	// fixed is the to-one edge of this record set by the parent it is nested
	// under. It is satisfied without an input.
	fixed  *gen.Edge
	record dialect.Record
	done   bool
}

// link holds the inputs given for one relationship of a node.
type link struct {
	edge *gen.Edge
	// name of the input the direct form was given with.
	name string
	// To-one inputs.
	ref    any
	hasRef bool
	clear  bool
	child  *node
	// To-many inputs.
	replace  bool
	set      []any
	add      []any
	remove   []any
	children []*node
}

// Plan parses and validates payload as a create (key is nil) or update of
// the record of entity. Reads go through ex so that a plan built inside a
// transaction sees its earlier writes.
//
// Validation runs in steps: input shape, required fields, relationship
// pairs, scalar values and referenced records. The errors of the first
// failing step are returned as autogql.ValidationErrors. A payload nesting
// itself is rejected with an autogql.CycleError, and a policy denial with
// an autogql.PermissionError.
func (h *Handler) Plan(ctx context.Context, ex dialect.Executor, entity string, mode gen.Mode, key any, payload map[string]any) (*Plan, error) {
	t, err := h.typ(entity)
	if err != nil {
		return nil, err
	}
	root := newNode(t, autogql.OpCreate, "")
	if mode == gen.ModeUpdate {
		k := refKey(t, key)
		if k == nil {
			return nil, autogql.ValidationErrors{autogql.Invalidf(t.ID.Name, "is required")}
		}
		if k, err = t.ID.Coerce(k); err != nil {
			return nil, autogql.ValidationErrors{autogql.NewValidationError(t.ID.Name, err)}
		}
		if _, err := ex.Get(ctx, t.Name, k); err != nil {
			return nil, err
		}
		root.op, root.key = autogql.OpUpdate, k
	}
	p := &Plan{h: h, root: root}
	b := &builder{
		ctx:   ctx,
		ex:    ex,
		plan:  p,
		seen:  make(map[uintptr]*node),
		stack: make(map[uintptr]bool),
	}
	if err := b.parse(root, payload); err != nil {
		return nil, err
	}
	if len(b.errs) > 0 {
		return nil, b.errs
	}
	steps := []func(*node) (autogql.ValidationErrors, error){
		p.required,
		p.pairs,
		p.scalars,
		func(n *node) (autogql.ValidationErrors, error) { return p.exists(ctx, ex, n) },
	}
	for _, step := range steps {
		var errs autogql.ValidationErrors
		for _, n := range p.nodes {
			es, err := step(n)
			if err != nil {
				return nil, err
			}
			errs = append(errs, es...)
		}
		if len(errs) > 0 {
			return nil, errs
		}
	}
	for _, n := range p.nodes {
		if err := privacy.CheckMutation(ctx, n.typ.Policies, n); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newNode(t *gen.Type, op autogql.Op, path string) *node {
	return &node{typ: t, op: op, path: path, input: make(map[string]any), values: make(dialect.Record)}
}

type builder struct {
	ctx  context.Context
	ex   dialect.Executor
	plan *Plan
	errs autogql.ValidationErrors
	// seen maps payload objects to their nodes; stack holds the objects on
	// the current nesting path.
	seen  map[uintptr]*node
	stack map[uintptr]bool
	trail []string
}

func (b *builder) fail(n *node, name, format string, args ...any) {
	b.errs = append(b.errs, autogql.Invalidf(join(n.path, name), format, args...))
}

func (b *builder) parse(n *node, payload map[string]any) error {
	id := identity(payload)
	if id != 0 {
		b.seen[id] = n
		b.stack[id] = true
		defer delete(b.stack, id)
	}
	b.plan.nodes = append(b.plan.nodes, n)
	mode := n.mode()
	for _, name := range slices.Sorted(maps.Keys(payload)) {
		v := payload[name]
		var (
			e    *gen.Edge
			form gen.InputForm
		)
		if f, ok := n.typ.Field(name); ok {
			fe, isFK := f.Edge()
			switch {
			case isFK:
				e, form = fe, gen.InputDirect
			case mode == gen.ModeUpdate && f.PrimaryKey:
				if k, err := f.Coerce(refKey(n.typ, v)); err != nil || !keyEqual(k, n.key) {
					b.fail(n, name, "primary key cannot be changed")
				}
				continue
			case !f.InputOn(mode):
				b.fail(n, name, "is immutable")
				continue
			default:
				n.input[name] = v
				continue
			}
		} else {
			e, form = n.typ.Input(name)
		}
		if e == nil {
			b.fail(n, name, "unknown input")
			continue
		}
		if mode == gen.ModeUpdate && e.Immutable {
			b.fail(n, name, "is immutable")
			continue
		}
		if n.fixed != nil && n.fixed == e {
			b.fail(n, name, "is set by the enclosing payload")
			continue
		}
		var err error
		switch form {
		case gen.InputDirect:
			err = b.direct(n, e, name, v)
		case gen.InputNested:
			err = b.nested(n, e, name, v)
		case gen.InputAdd, gen.InputRemove:
			if mode != gen.ModeUpdate {
				b.fail(n, name, "is only accepted on update")
				continue
			}
			keys, ok := list(v)
			if !ok {
				b.fail(n, name, "expects a list of identifiers")
				continue
			}
			l := n.link(e)
			if form == gen.InputAdd {
				l.add = append(l.add, keys...)
			} else {
				l.remove = append(l.remove, keys...)
			}
		}
		if err != nil {
			return err
		}
	}
	// The nested form wins over the direct form of the same relationship.
	for _, l := range n.links {
		if l.child != nil {
			l.ref, l.hasRef, l.clear = nil, false, false
		}
	}
	return nil
}

// direct handles the identifier form of a relationship.
func (b *builder) direct(n *node, e *gen.Edge, name string, v any) error {
	l := n.link(e)
	l.name = name
	if e.Unique() {
		if v == nil {
			l.clear = true
			return nil
		}
		l.ref, l.hasRef = v, true
		return nil
	}
	if v == nil {
		if n.op == autogql.OpUpdate {
			l.replace, l.set = true, nil
		}
		return nil
	}
	keys, ok := list(v)
	if !ok {
		b.fail(n, name, "expects a list of identifiers")
		return nil
	}
	if n.op == autogql.OpUpdate {
		l.replace, l.set = true, keys
	} else {
		l.add = append(l.add, keys...)
	}
	return nil
}

// nested handles the object form of a relationship.
func (b *builder) nested(n *node, e *gen.Edge, name string, v any) error {
	l := n.link(e)
	if e.Unique() {
		if v == nil {
			l.clear = true
			return nil
		}
		obj, ok := object(v)
		if !ok {
			b.fail(n, name, "expects an object")
			return nil
		}
		c, err := b.child(n, e, join(n.path, name), obj)
		if err != nil || c == nil {
			return err
		}
		l.child = c
		return nil
	}
	if v == nil {
		return nil
	}
	items, ok := list(v)
	if !ok {
		b.fail(n, name, "expects a list of objects")
		return nil
	}
	for i, item := range items {
		obj, ok := object(item)
		if !ok {
			b.fail(n, fmt.Sprintf("%s[%d]", name, i), "expects an object")
			continue
		}
		c, err := b.child(n, e, fmt.Sprintf("%s[%d]", join(n.path, name), i), obj)
		if err != nil {
			return err
		}
		if c != nil {
			l.children = append(l.children, c)
		}
	}
	return nil
}

// child returns the node of a nested payload object. An object already on
// the nesting path closes a cycle; an object seen elsewhere in the payload
// is the same provisional record and is written once.
func (b *builder) child(n *node, e *gen.Edge, path string, obj map[string]any) (*node, error) {
	step := n.typ.Name + "." + e.NestedName()
	id := identity(obj)
	if b.stack[id] {
		return nil, &autogql.CycleError{Path: append(slices.Clone(b.trail), step, e.Type.Name)}
	}
	if c, ok := b.seen[id]; ok {
		if c.typ != e.Type {
			b.errs = append(b.errs, autogql.Invalidf(path, "payload is already used for %s", c.typ.Name))
			return nil, nil
		}
		return c, nil
	}
	t := e.Type
	c := newNode(t, autogql.OpCreate, path)
	if v := obj[t.ID.Name]; v != nil {
		k, err := t.ID.Coerce(refKey(t, v))
		if err != nil {
			b.errs = append(b.errs, autogql.NewValidationError(join(path, t.ID.Name), err))
			return nil, nil
		}
		switch _, err := b.ex.Get(b.ctx, t.Name, k); {
		case err == nil:
			c.op, c.key = autogql.OpUpdate, k
		case !autogql.IsNotFound(err):
			return nil, err
		}
	}
	if !e.OwnFK() && !e.M2M() && e.Ref != nil {
		c.fixed = e.Ref
	}
	b.trail = append(b.trail, step)
	defer func() { b.trail = b.trail[:len(b.trail)-1] }()
	if err := b.parse(c, obj); err != nil {
		return nil, err
	}
	return c, nil
}

func (n *node) mode() gen.Mode {
	if n.op == autogql.OpUpdate {
		return gen.ModeUpdate
	}
	return gen.ModeCreate
}

func (n *node) link(e *gen.Edge) *link {
	for _, l := range n.links {
		if l.edge == e {
			return l
		}
	}
	l := &link{edge: e, name: e.Name}
	n.links = append(n.links, l)
	return l
}

func (n *node) linkOf(e *gen.Edge) (*link, bool) {
	for _, l := range n.links {
		if l.edge == e {
			return l, true
		}
	}
	return nil, false
}

// Op implements autogql.Mutation.
func (n *node) Op() autogql.Op { return n.op }

// Type implements autogql.Mutation.
func (n *node) Type() string { return n.typ.Name }

// Fields implements autogql.Mutation.
func (n *node) Fields() []string {
	names := slices.Collect(maps.Keys(n.values))
	for _, l := range n.links {
		if l.edge.OwnFK() && l.hasRef {
			names = append(names, l.edge.FK.Name)
		}
	}
	slices.Sort(names)
	return names
}

// Field implements autogql.Mutation.
func (n *node) Field(name string) (autogql.Value, bool) {
	if v, ok := n.values[name]; ok {
		return v, true
	}
	for _, l := range n.links {
		if l.edge.OwnFK() && l.hasRef && l.edge.FK.Name == name {
			return l.ref, true
		}
	}
	if n.key != nil && name == n.typ.ID.Name {
		return n.key, true
	}
	return nil, false
}

// refKey returns the primary key of a live instance given where an
// identifier is expected, or v itself.
func refKey(t *gen.Type, v any) any {
	switch v := v.(type) {
	case dialect.Keyer:
		return v.Key()
	case dialect.Record:
		return v[t.ID.Name]
	case map[string]any:
		return v[t.ID.Name]
	}
	return v
}

func keyEqual(a, b any) bool {
	return a != nil && b != nil && fmt.Sprint(a) == fmt.Sprint(b)
}

func object(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case map[string]any:
		return v, true
	case dialect.Record:
		return v, true
	}
	return nil, false
}

func list(v any) ([]any, bool) {
	if vs, ok := v.([]any); ok {
		return vs, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func identity(m map[string]any) uintptr {
	if m == nil {
		return 0
	}
	return reflect.ValueOf(m).Pointer()
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
