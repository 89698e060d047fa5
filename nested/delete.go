package nested

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/privacy"
	"github.com/raillogistic/autogql/schema/edge"
)

// DeleteIn deletes the record of entity with the given key through ex and
// returns it. Records pointing to it are handled by the delete policy of
// their edge: cascade deletes them, set null and set default rewrite their
// foreign key, restrict fails the whole delete. Join rows of the record are
// removed.
func (h *Handler) DeleteIn(ctx context.Context, ex dialect.Executor, entity string, key any) (dialect.Record, error) {
	t, err := h.typ(entity)
	if err != nil {
		return nil, err
	}
	k, err := t.ID.Coerce(refKey(t, key))
	if err != nil {
		return nil, autogql.ValidationErrors{autogql.NewValidationError(t.ID.Name, err)}
	}
	if k == nil {
		return nil, autogql.ValidationErrors{autogql.Invalidf(t.ID.Name, "is required")}
	}
	d := &deleter{h: h, ex: ex, seen: make(map[string]bool)}
	return d.delete(ctx, t, k)
}

type deleter struct {
	h    *Handler
	ex   dialect.Executor
	seen map[string]bool
}

func (d *deleter) delete(ctx context.Context, t *gen.Type, key any) (dialect.Record, error) {
	id := t.Name + ":" + fmt.Sprint(key)
	if d.seen[id] {
		return nil, nil
	}
	d.seen[id] = true
	rec, err := d.ex.Get(ctx, t.Name, key)
	if err != nil {
		return nil, err
	}
	if err := privacy.CheckMutation(ctx, t.Policies, &deletion{typ: t, rec: rec}); err != nil {
		return nil, err
	}
	for _, e := range t.Dependents {
		if err := d.dependents(ctx, t, e, key); err != nil {
			return nil, err
		}
	}
	if err := d.unlink(ctx, t, key); err != nil {
		return nil, err
	}
	if err := d.ex.Delete(ctx, t.Name, key); err != nil {
		return nil, err
	}
	d.h.logger.DebugContext(ctx, "record deleted", "entity", t.Name, "key", key)
	return rec, nil
}

// dependents applies the delete policy of e to the records of its owner
// pointing to the deleted record of t.
func (d *deleter) dependents(ctx context.Context, t *gen.Type, e *gen.Edge, key any) error {
	owner := e.Owner
	rows, err := d.ex.Find(ctx, owner.Name, &dialect.Query{Where: filter.FieldEQ(e.FK.Name, key)})
	if err != nil {
		return err
	}
	for _, r := range rows {
		k := r[owner.ID.Name]
		if owner == t && keyEqual(k, key) {
			continue
		}
		switch e.OnDelete {
		case edge.Cascade:
			if _, err := d.delete(ctx, owner, k); err != nil {
				return err
			}
		case edge.SetNull, edge.SetDefault:
			var v any
			if e.OnDelete == edge.SetDefault {
				if fn := e.FK.DefaultFunc(); fn != nil {
					v = fn()
				}
			}
			if v == nil && !e.FK.Nullable {
				return &autogql.IntegrityError{
					Entity: t.Name,
					Msg:    fmt.Sprintf("%s %v of %s %v cannot be cleared", e.Name, key, owner.Name, k),
				}
			}
			if _, err := d.ex.Update(ctx, owner.Name, k, dialect.Record{e.FK.Name: v}); err != nil {
				return err
			}
		default:
			return &autogql.IntegrityError{
				Entity: t.Name,
				Msg:    fmt.Sprintf("%s %v is referenced by %s %v through %s", t.Name, key, owner.Name, k, e.Name),
				Err:    autogql.ErrRestricted,
			}
		}
	}
	return nil
}

// unlink removes the join rows holding the deleted record on either side.
func (d *deleter) unlink(ctx context.Context, t *gen.Type, key any) error {
	for _, other := range d.h.graph.Types {
		for _, e := range other.Edges {
			if !e.M2M() || e.Reverse {
				continue
			}
			var joins []*dialect.JoinTable
			if e.Owner == t {
				joins = append(joins, e.Rel.Join)
			}
			if e.Type == t {
				joins = append(joins, e.Rel.Join.Inverse())
			}
			for _, jt := range joins {
				pairs, err := d.ex.Pairs(ctx, jt, []any{key})
				if err != nil {
					return err
				}
				for _, pr := range pairs {
					if err := d.ex.Unlink(ctx, jt, key, pr[1]); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// deletion is the mutation view of a deleted record seen by policies.
type deletion struct {
	typ *gen.Type
	rec dialect.Record
}

func (m *deletion) Op() autogql.Op { return autogql.OpDelete }

func (m *deletion) Type() string { return m.typ.Name }

func (m *deletion) Fields() []string { return slices.Sorted(maps.Keys(m.rec)) }

func (m *deletion) Field(name string) (autogql.Value, bool) {
	v, ok := m.rec[name]
	return v, ok
}
