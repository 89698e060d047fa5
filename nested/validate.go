package nested

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/dialect"
)

// required checks that every field required on create is present and that
// no non-nullable field is set to null.
func (p *Plan) required(n *node) (autogql.ValidationErrors, error) {
	var errs autogql.ValidationErrors
	mode := n.mode()
	for _, f := range n.typ.UserFields() {
		v, ok := n.input[f.Name]
		switch {
		case mode == gen.ModeCreate && f.RequiredOn(mode) && (!ok || v == nil):
			errs = append(errs, autogql.Invalidf(join(n.path, f.Name), "is required"))
		case ok && v == nil && !f.Nullable && !f.PrimaryKey:
			errs = append(errs, autogql.Invalidf(join(n.path, f.Name), "cannot be null"))
		}
	}
	return errs, nil
}

// pairs checks that a mandatory relationship is given through at least one
// of its two inputs on create and is never cleared on update.
func (p *Plan) pairs(n *node) (autogql.ValidationErrors, error) {
	var errs autogql.ValidationErrors
	for _, e := range n.typ.Edges {
		if !e.Mandatory() || e == n.fixed {
			continue
		}
		l, ok := n.linkOf(e)
		switch {
		case n.op == autogql.OpCreate && (!ok || (!l.hasRef && l.child == nil)):
			errs = append(errs, autogql.Invalidf(join(n.path, e.Name), "one of %q or %q is required", e.Name, e.NestedName()))
		case n.op == autogql.OpUpdate && ok && l.clear:
			errs = append(errs, autogql.Invalidf(join(n.path, e.Name), "cannot be cleared"))
		}
	}
	return errs, nil
}

// scalars coerces the scalar inputs and identifiers of n and runs the
// length, choice and format checks of each field.
func (p *Plan) scalars(n *node) (autogql.ValidationErrors, error) {
	var errs autogql.ValidationErrors
	for _, name := range slices.Sorted(maps.Keys(n.input)) {
		f, _ := n.typ.Field(name)
		path := join(n.path, name)
		v := n.input[name]
		if v == nil {
			n.values[name] = nil
			continue
		}
		c, err := f.Coerce(v)
		if err != nil {
			errs = append(errs, autogql.NewValidationError(path, err))
			continue
		}
		if err := p.check(f, c); err != nil {
			errs = append(errs, autogql.NewValidationError(path, err))
			continue
		}
		n.values[name] = c
	}
	for _, l := range n.links {
		t := l.edge.Type
		key := func(name string, v any) any {
			k, err := t.ID.Coerce(refKey(t, v))
			switch {
			case err != nil:
				errs = append(errs, autogql.NewValidationError(join(n.path, name), err))
			case k == nil:
				errs = append(errs, autogql.Invalidf(join(n.path, name), "expects a %s identifier", t.Name))
			}
			return k
		}
		if l.hasRef {
			l.ref = key(l.name, l.ref)
		}
		for i, v := range l.set {
			l.set[i] = key(l.name, v)
		}
		for i, v := range l.add {
			l.add[i] = key(l.edge.AddName(), v)
		}
		for i, v := range l.remove {
			l.remove[i] = key(l.edge.RemoveName(), v)
		}
	}
	return errs, nil
}

// check validates a coerced value against the constraints of f.
func (p *Plan) check(f *gen.Field, v any) error {
	if s, ok := v.(string); ok && f.MaxLen > 0 && utf8.RuneCountInString(s) > f.MaxLen {
		return fmt.Errorf("must be at most %d characters", f.MaxLen)
	}
	if !f.HasChoice(v) {
		values := make([]string, len(f.Choices))
		for i, c := range f.Choices {
			values[i] = c.Value
		}
		return fmt.Errorf("must be one of: %s", strings.Join(values, ", "))
	}
	for _, fn := range f.Validators {
		if err := fn(v); err != nil {
			return err
		}
	}
	if len(f.Tags) == 0 {
		return nil
	}
	err := p.h.validate.Var(v, strings.Join(f.Tags, ","))
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return errors.New(formatFieldError(verrs[0]))
	}
	return err
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// exists checks that every record referenced by identifier exists.
func (p *Plan) exists(ctx context.Context, ex dialect.Executor, n *node) (autogql.ValidationErrors, error) {
	var errs autogql.ValidationErrors
	for _, l := range n.links {
		t := l.edge.Type
		check := func(name string, keys ...any) error {
			for _, k := range keys {
				_, err := ex.Get(ctx, t.Name, k)
				switch {
				case autogql.IsNotFound(err):
					errs = append(errs, autogql.Invalidf(join(n.path, name), "%s %v does not exist", t.Name, k))
				case err != nil:
					return err
				}
			}
			return nil
		}
		if l.hasRef {
			if err := check(l.name, l.ref); err != nil {
				return nil, err
			}
		}
		if err := check(l.name, l.set...); err != nil {
			return nil, err
		}
		if err := check(l.edge.AddName(), l.add...); err != nil {
			return nil, err
		}
		if err := check(l.edge.RemoveName(), l.remove...); err != nil {
			return nil, err
		}
	}
	return errs, nil
}
