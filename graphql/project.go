package graphql

import (
	"context"
	"maps"
	"slices"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/contrib/dataloader"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/privacy"
)

const typename = "__typename"

// Field is a selected field of an operation result, with the fields
// selected on its value.
type Field struct {
	Name      string
	Alias     string  `msgpack:",omitempty"`
	Selection []Field `msgpack:",omitempty"`
}

// Key returns the key the field is returned under.
func (f Field) Key() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Select returns a selection of scalar fields.
func Select(names ...string) []Field {
	sel := make([]Field, len(names))
	for i, n := range names {
		sel[i] = Field{Name: n}
	}
	return sel
}

// Sub returns a field selecting sel on its value.
func Sub(name string, sel ...Field) Field {
	return Field{Name: name, Selection: sel}
}

// object is a record of an entity returned by a resolver.
type object struct {
	e   *entity
	rec dialect.Record
}

func objects(e *entity, recs []dialect.Record) []*object {
	out := make([]*object, len(recs))
	for i, r := range recs {
		out[i] = &object{e: e, rec: r}
	}
	return out
}

// project shapes a resolver result by sel. Objects become maps of their
// selected fields; payload maps keep their selected keys.
func (s *Schema) project(ctx context.Context, v any, sel []Field) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case *object:
		if v == nil {
			return nil, nil
		}
		out, err := s.objects(ctx, v.e, []dialect.Record{v.rec}, sel)
		if err != nil {
			return nil, err
		}
		return out[0], nil
	case []*object:
		if v == nil {
			return nil, nil
		}
		list := make([]any, 0, len(v))
		if len(v) == 0 {
			return list, nil
		}
		recs := make([]dialect.Record, len(v))
		for i, o := range v {
			recs[i] = o.rec
		}
		out, err := s.objects(ctx, v[0].e, recs, sel)
		if err != nil {
			return nil, err
		}
		for _, m := range out {
			list = append(list, m)
		}
		return list, nil
	case map[string]any:
		return s.payload(ctx, v, sel)
	case []map[string]any:
		list := make([]any, len(v))
		for i, m := range v {
			p, err := s.payload(ctx, m, sel)
			if err != nil {
				return nil, err
			}
			list[i] = p
		}
		return list, nil
	}
	return v, nil
}

// payload projects a result map. A nil selection keeps every key.
func (s *Schema) payload(ctx context.Context, m map[string]any, sel []Field) (map[string]any, error) {
	name, _ := m[typename].(string)
	if sel == nil {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if k != typename {
				sel = append(sel, Field{Name: k})
			}
		}
	}
	out := make(map[string]any, len(sel))
	for _, f := range sel {
		if f.Name == typename {
			out[f.Key()] = name
			continue
		}
		v, ok := m[f.Name]
		if !ok {
			return nil, autogql.ValidationErrors{autogql.Invalidf(f.Name, "unknown field on %s", name)}
		}
		p, err := s.project(ctx, v, f.Selection)
		if err != nil {
			return nil, err
		}
		out[f.Key()] = p
	}
	return out, nil
}

// objects projects records of e. Edges are resolved once per selected
// edge for all records, level by level.
func (s *Schema) objects(ctx context.Context, e *entity, recs []dialect.Record, sel []Field) ([]map[string]any, error) {
	if sel == nil {
		sel = make([]Field, len(e.fields))
		for i, f := range e.fields {
			sel[i] = Field{Name: f.Name}
		}
	}
	out := make([]map[string]any, len(recs))
	for i := range out {
		out[i] = make(map[string]any, len(sel))
	}
	for _, f := range sel {
		key := f.Key()
		if f.Name == typename {
			for i := range out {
				out[i][key] = e.names.Object
			}
			continue
		}
		if fd := e.field(f.Name); fd != nil {
			if len(f.Selection) > 0 {
				return nil, autogql.ValidationErrors{autogql.Invalidf(f.Name, "is a scalar field of %s", e.names.Object)}
			}
			for i, r := range recs {
				out[i][key] = fd.Serialize(r[fd.Name])
			}
			continue
		}
		ed := e.edge(f.Name)
		if ed == nil {
			return nil, autogql.ValidationErrors{autogql.Invalidf(f.Name, "unknown field on %s", e.names.Object)}
		}
		target := s.gen.byType[ed.Type.Name]
		r := &read{entity: target.Name, op: e.names.Object + "." + ed.Name}
		if err := privacy.CheckQuery(ctx, target.Policies, r); err != nil {
			return nil, err
		}
		groups, err := s.related(ctx, e, ed, target, recs, r)
		if err != nil {
			return nil, err
		}
		var flat []dialect.Record
		for _, g := range groups {
			flat = append(flat, g...)
		}
		projected, err := s.objects(ctx, target, flat, f.Selection)
		if err != nil {
			return nil, err
		}
		j := 0
		for i, g := range groups {
			if ed.Unique() {
				var v any
				if len(g) > 0 {
					v = projected[j]
				}
				out[i][key] = v
			} else {
				list := make([]any, len(g))
				for k := range g {
					list[k] = projected[j+k]
				}
				out[i][key] = list
			}
			j += len(g)
		}
	}
	return out, nil
}

// related loads the records reached through ed from each of recs, in one
// batch. The result is aligned with recs; to-many lists are capped at the
// listMaxItems setting of the target. Targets are narrowed by the filters
// their policies added to r.
func (s *Schema) related(ctx context.Context, e *entity, ed *gen.Edge, target *entity, recs []dialect.Record, r *read) ([][]dialect.Record, error) {
	groups := make([][]dialect.Record, len(recs))
	limit := target.listMaxItems
	if ed.Unique() {
		limit = 1
	}
	pk := target.ID.Name
	byPK := func(r dialect.Record) any { return mapKey(r[pk]) }
	order := []dialect.OrderTerm{{Field: pk}}
	switch ed.Rel.Kind {
	case dialect.OwnerFK:
		fk := ed.FK.Name
		keys := distinct(recs, fk)
		if len(keys) == 0 {
			return groups, nil
		}
		found, err := s.provider.Find(ctx, target.Name, &dialect.Query{Where: r.narrow(filter.FieldIn(pk, keys...))})
		if err != nil {
			return nil, err
		}
		groups = dataloader.Align(recs, func(r dialect.Record) any { return mapKey(r[fk]) }, dataloader.GroupByKey(found, byPK))
	case dialect.InverseFK:
		col := ed.Rel.Column
		keys := distinct(recs, e.ID.Name)
		if len(keys) == 0 {
			return groups, nil
		}
		found, err := s.provider.Find(ctx, target.Name, &dialect.Query{Where: r.narrow(filter.FieldIn(col, keys...)), Order: order})
		if err != nil {
			return nil, err
		}
		index := dataloader.GroupByKey(found, func(r dialect.Record) any { return mapKey(r[col]) })
		groups = dataloader.Align(recs, func(r dialect.Record) any { return mapKey(r[e.ID.Name]) }, index)
	case dialect.JoinRel:
		keys := distinct(recs, e.ID.Name)
		if len(keys) == 0 {
			return groups, nil
		}
		pairs, err := s.provider.Pairs(ctx, ed.Rel.Join, keys)
		if err != nil {
			return nil, err
		}
		if len(pairs) == 0 {
			return groups, nil
		}
		refs := dataloader.Keys(pairs, func(p [2]any) (any, bool) { return p[1], p[1] != nil }, mapKey)
		found, err := s.provider.Find(ctx, target.Name, &dialect.Query{Where: r.narrow(filter.FieldIn(pk, refs...)), Order: order})
		if err != nil {
			return nil, err
		}
		linked := dataloader.Links(pairs,
			func(p [2]any) any { return mapKey(p[0]) },
			func(p [2]any) any { return mapKey(p[1]) })
		for i, rec := range recs {
			own := linked[mapKey(rec[e.ID.Name])]
			for _, t := range found {
				if own[mapKey(t[pk])] {
					groups[i] = append(groups[i], t)
				}
			}
		}
	}
	for i, g := range groups {
		groups[i] = capped(g, limit)
	}
	return groups, nil
}

// distinct returns the distinct non-nil values of column among recs.
func distinct(recs []dialect.Record, column string) []any {
	return dataloader.Keys(recs, func(r dialect.Record) (any, bool) { return r[column], r[column] != nil }, mapKey)
}

func capped(recs []dialect.Record, limit int) []dialect.Record {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}

// mapKey returns a comparable form of a key value.
func mapKey(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case int64:
		return int(v)
	case int32:
		return int(v)
	}
	return v
}

// field returns the visible scalar field called name.
func (e *entity) field(name string) *gen.Field {
	for _, f := range e.fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// edge returns the visible edge called name.
func (e *entity) edge(name string) *gen.Edge {
	for _, ed := range e.edges {
		if ed.Name == name {
			return ed
		}
	}
	return nil
}

// read describes a read operation to query policies. Policies may narrow
// the records it returns through privacy.FilterFunc rules.
type read struct {
	entity string
	op     string
	where  []filter.P
}

func (r *read) Type() string           { return r.entity }
func (r *read) Operation() string      { return r.op }
func (r *read) Filter() privacy.Filter { return r }
func (r *read) Where(ps ...filter.P)   { r.where = append(r.where, ps...) }
func (r *read) narrowed() bool         { return len(r.where) > 0 }

// narrow restricts p with the predicates added by policies.
func (r *read) narrow(p filter.P) filter.P {
	if len(r.where) == 0 {
		return p
	}
	if p == nil {
		return filter.And(r.where...)
	}
	return filter.And(append([]filter.P{p}, r.where...)...)
}

var (
	_ autogql.Query      = (*read)(nil)
	_ privacy.Filterable = (*read)(nil)
)
