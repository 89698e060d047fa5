package nested

import (
	"context"
	"errors"
	"fmt"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/filter"
)

var errApplied = errors.New("nested: plan already applied")

// Apply writes the records of the plan through ex and returns the root
// record as stored. A related record referenced by a foreign key of another
// record is written first. Apply does not open a transaction: callers run it
// inside one so that a failing write leaves nothing behind.
func (p *Plan) Apply(ctx context.Context, ex dialect.Executor) (dialect.Record, error) {
	if p.done {
		return nil, errApplied
	}
	p.done = true
	if err := p.apply(ctx, ex, p.root); err != nil {
		return nil, err
	}
	p.h.logger.DebugContext(ctx, "nested mutation applied",
		"entity", p.root.typ.Name,
		"op", p.root.op,
		"records", len(p.nodes),
	)
	return p.root.record, nil
}

func (p *Plan) apply(ctx context.Context, ex dialect.Executor, n *node) error {
	if n.done {
		return nil
	}
	n.done = true
	values := n.values.Clone()
	for _, l := range n.links {
		e := l.edge
		if !e.OwnFK() {
			continue
		}
		switch {
		case l.child != nil:
			if err := p.apply(ctx, ex, l.child); err != nil {
				return err
			}
			values[e.FK.Name] = l.child.key
		case l.hasRef:
			values[e.FK.Name] = l.ref
		case l.clear:
			values[e.FK.Name] = nil
		}
	}
	if err := p.write(ctx, ex, n, values); err != nil {
		return err
	}
	for _, l := range n.links {
		var err error
		switch {
		case l.edge.M2M():
			err = p.join(ctx, ex, n, l)
		case !l.edge.OwnFK():
			err = p.inverse(ctx, ex, n, l)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// write inserts or updates the row of n, filling the generated values of
// omitted fields.
func (p *Plan) write(ctx context.Context, ex dialect.Executor, n *node, values dialect.Record) (err error) {
	t := n.typ
	switch n.op {
	case autogql.OpCreate:
		for _, f := range t.Fields {
			if _, ok := values[f.Name]; ok || f.IsEdgeField() {
				continue
			}
			if fn := f.DefaultFunc(); fn != nil {
				values[f.Name] = fn()
			}
		}
		n.record, err = ex.Insert(ctx, t.Name, values)
	default:
		for _, f := range t.Fields {
			if _, ok := values[f.Name]; !ok && f.UpdateFunc != nil {
				values[f.Name] = f.UpdateFunc()
			}
		}
		n.record, err = ex.Update(ctx, t.Name, n.key, values)
	}
	if err != nil {
		return err
	}
	n.key = n.record[t.ID.Name]
	return nil
}

// inverse writes a relationship whose foreign key is held by the target.
func (p *Plan) inverse(ctx context.Context, ex dialect.Executor, n *node, l *link) error {
	e := l.edge
	fk := e.Ref.FK
	var (
		refs     []any
		children = l.children
	)
	if e.Unique() {
		if l.hasRef {
			refs = []any{l.ref}
		}
		if l.child != nil {
			children = []*node{l.child}
		}
	} else {
		refs = append(append(refs, l.set...), l.add...)
	}
	if n.op == autogql.OpUpdate {
		if l.replace || (e.Unique() && (l.hasRef || l.child != nil || l.clear)) {
			keep := make(map[string]bool)
			for _, k := range refs {
				keep[fmt.Sprint(k)] = true
			}
			for _, c := range children {
				if c.key != nil {
					keep[fmt.Sprint(c.key)] = true
				}
			}
			rows, err := ex.Find(ctx, e.Type.Name, &dialect.Query{Where: filter.FieldEQ(fk.Name, n.key)})
			if err != nil {
				return err
			}
			for _, r := range rows {
				if k := r[e.Type.ID.Name]; !keep[fmt.Sprint(k)] {
					if err := p.detach(ctx, ex, e, k); err != nil {
						return err
					}
				}
			}
		}
		for _, k := range l.remove {
			r, err := ex.Get(ctx, e.Type.Name, k)
			if err != nil {
				return err
			}
			if keyEqual(r[fk.Name], n.key) {
				if err := p.detach(ctx, ex, e, k); err != nil {
					return err
				}
			}
		}
	}
	for _, k := range refs {
		if _, err := ex.Update(ctx, e.Type.Name, k, dialect.Record{fk.Name: n.key}); err != nil {
			return err
		}
	}
	for _, c := range children {
		if c.done {
			if _, err := ex.Update(ctx, c.typ.Name, c.key, dialect.Record{fk.Name: n.key}); err != nil {
				return err
			}
			continue
		}
		c.values[fk.Name] = n.key
		if err := p.apply(ctx, ex, c); err != nil {
			return err
		}
	}
	return nil
}

// detach clears the foreign key of the target record k of e.
func (p *Plan) detach(ctx context.Context, ex dialect.Executor, e *gen.Edge, k any) error {
	fk := e.Ref.FK
	if !fk.Nullable {
		return &autogql.IntegrityError{
			Entity: e.Type.Name,
			Msg:    fmt.Sprintf("%s %v cannot be detached from %s: %s is required", e.Type.Name, k, e.Owner.Name, e.Ref.Name),
		}
	}
	_, err := ex.Update(ctx, e.Type.Name, k, dialect.Record{fk.Name: nil})
	return err
}

// join writes a relationship stored in a join table.
func (p *Plan) join(ctx context.Context, ex dialect.Executor, n *node, l *link) error {
	jt := l.edge.Rel.Join
	children := make([]any, 0, len(l.children))
	for _, c := range l.children {
		if err := p.apply(ctx, ex, c); err != nil {
			return err
		}
		children = append(children, c.key)
	}
	present := make(map[string]bool)
	if n.op == autogql.OpUpdate {
		pairs, err := ex.Pairs(ctx, jt, []any{n.key})
		if err != nil {
			return err
		}
		keep := make(map[string]bool)
		if l.replace {
			for _, k := range append(append([]any{}, l.set...), children...) {
				keep[fmt.Sprint(k)] = true
			}
		}
		for _, pr := range pairs {
			ref := fmt.Sprint(pr[1])
			if l.replace && !keep[ref] {
				if err := ex.Unlink(ctx, jt, n.key, pr[1]); err != nil {
					return err
				}
				continue
			}
			present[ref] = true
		}
	}
	for _, k := range append(append(append([]any{}, l.set...), l.add...), children...) {
		if present[fmt.Sprint(k)] {
			continue
		}
		if err := ex.Link(ctx, jt, n.key, k); err != nil {
			return err
		}
		present[fmt.Sprint(k)] = true
	}
	for _, k := range l.remove {
		if !present[fmt.Sprint(k)] {
			continue
		}
		if err := ex.Unlink(ctx, jt, n.key, k); err != nil {
			return err
		}
		delete(present, fmt.Sprint(k))
	}
	return nil
}
