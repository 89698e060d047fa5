package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/privacy"
)

// single fetches one record by exactly one of its unique fields. A missing
// record is a null result.
func (s *Schema) single(ctx context.Context, e *entity, args map[string]any) (any, error) {
	lookups := []string{e.ID.Name}
	for _, f := range e.fields {
		if f.Unique && !f.PrimaryKey {
			lookups = append(lookups, f.Name)
		}
	}
	var given []string
	for _, name := range lookups {
		if args[name] != nil {
			given = append(given, name)
		}
	}
	if len(given) != 1 {
		return nil, autogql.ValidationErrors{autogql.Invalidf("", "exactly one of %s is required", strings.Join(lookups, ", "))}
	}
	f, _ := e.Field(given[0])
	v, err := f.Coerce(args[f.Name])
	if err != nil {
		return nil, autogql.ValidationErrors{autogql.NewValidationError(f.Name, err)}
	}
	r := &read{entity: e.Name, op: e.names.Single}
	if err := privacy.CheckQuery(ctx, e.Policies, r); err != nil {
		return nil, err
	}
	var rec dialect.Record
	if f.PrimaryKey && !r.narrowed() {
		rec, err = s.provider.Get(ctx, e.Name, v)
		if autogql.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	} else {
		recs, err := s.provider.Find(ctx, e.Name, &dialect.Query{Where: r.narrow(filter.FieldEQ(f.Name, v)), Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, nil
		}
		rec = recs[0]
	}
	return &object{e: e, rec: rec}, nil
}

// list returns the records matching the filter, at most listMaxItems.
func (s *Schema) list(ctx context.Context, e *entity, args map[string]any) (any, error) {
	q, errs := s.query(e, args)
	q.Limit = e.listMaxItems
	if v := args[argLimit]; v != nil {
		switch n, ok := integer(v); {
		case !ok || n < 0:
			errs = append(errs, autogql.Invalidf(argLimit, "expects a non-negative integer"))
		case n == 0:
			q.Limit = -1
		default:
			q.Limit = min(n, e.listMaxItems)
		}
	}
	if v := args[argOffset]; v != nil {
		n, ok := integer(v)
		if !ok || n < 0 {
			errs = append(errs, autogql.Invalidf(argOffset, "expects a non-negative integer"))
		}
		q.Offset = n
	}
	if len(errs) > 0 {
		return nil, errs
	}
	r := &read{entity: e.Name, op: e.names.List}
	if err := privacy.CheckQuery(ctx, e.Policies, r); err != nil {
		return nil, err
	}
	q.Where = r.narrow(q.Where)
	if q.Limit < 0 {
		return []*object{}, nil
	}
	recs, err := s.provider.Find(ctx, e.Name, q)
	if err != nil {
		return nil, err
	}
	return objects(e, recs), nil
}

// paginate returns one page of the records matching the filter and the
// position of the page.
func (s *Schema) paginate(ctx context.Context, e *entity, args map[string]any) (any, error) {
	q, errs := s.query(e, args)
	page, perPage := 1, e.defaultPageSize
	if v := args[argPage]; v != nil {
		n, ok := integer(v)
		if !ok {
			errs = append(errs, autogql.Invalidf(argPage, "expects an integer"))
		}
		page = n
	}
	if v := args[argPerPage]; v != nil {
		n, ok := integer(v)
		if !ok {
			errs = append(errs, autogql.Invalidf(argPerPage, "expects an integer"))
		}
		perPage = n
	}
	if len(errs) > 0 {
		return nil, errs
	}
	page = max(page, 1)
	perPage = min(max(perPage, 1), e.maxPageSize)
	r := &read{entity: e.Name, op: e.names.Paginated}
	if err := privacy.CheckQuery(ctx, e.Policies, r); err != nil {
		return nil, err
	}
	q.Where = r.narrow(q.Where)
	total, err := s.provider.Count(ctx, e.Name, q.Where)
	if err != nil {
		return nil, err
	}
	pages := (total + perPage - 1) / perPage
	items := []*object{}
	if page <= pages {
		q.Offset, q.Limit = (page-1)*perPage, perPage
		recs, err := s.provider.Find(ctx, e.Name, q)
		if err != nil {
			return nil, err
		}
		items = objects(e, recs)
	}
	return map[string]any{
		typename: e.names.Page,
		"items":  items,
		"pageInfo": map[string]any{
			typename:          pageInfoType,
			"totalCount":      total,
			"pageCount":       pages,
			"currentPage":     page,
			"perPage":         perPage,
			"hasNextPage":     page < pages,
			"hasPreviousPage": page > 1,
		},
	}, nil
}

// query builds the filter and order of a list query. The primary key
// always ends the order, so that pages are stable.
func (s *Schema) query(e *entity, args map[string]any) (*dialect.Query, autogql.ValidationErrors) {
	var errs autogql.ValidationErrors
	q := &dialect.Query{}
	if v := args[argWhere]; v != nil {
		tree, ok := v.(map[string]any)
		if !ok {
			errs = append(errs, autogql.Invalidf(argWhere, "expects an object"))
		} else if p, err := filter.Compose(tree, e.where); err != nil {
			errs = append(errs, validation(err)...)
		} else {
			q.Where = p
		}
	}
	specs, ok := stringList(args[argOrderBy])
	if !ok {
		errs = append(errs, autogql.Invalidf(argOrderBy, "expects a list of field names"))
	}
	pk := false
	for i, spec := range specs {
		term := dialect.OrderTerm{Field: strings.TrimPrefix(spec, "-"), Desc: strings.HasPrefix(spec, "-")}
		if !e.order[term.Field] {
			errs = append(errs, autogql.Invalidf(fmt.Sprintf("%s[%d]", argOrderBy, i), "cannot order by %q", spec))
			continue
		}
		pk = pk || term.Field == e.ID.Name
		q.Order = append(q.Order, term)
	}
	if !pk {
		q.Order = append(q.Order, dialect.OrderTerm{Field: e.ID.Name})
	}
	return q, errs
}

// validation returns err as validation errors.
func validation(err error) autogql.ValidationErrors {
	switch err := err.(type) {
	case autogql.ValidationErrors:
		return err
	case *autogql.ValidationError:
		return autogql.ValidationErrors{err}
	}
	return autogql.ValidationErrors{autogql.NewValidationError("", err)}
}

func stringList(v any) ([]string, bool) {
	switch v := v.(type) {
	case nil:
		return nil, true
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// integer converts decoded numbers to int.
func integer(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		if v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}
