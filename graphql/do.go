package graphql

import (
	"context"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/raillogistic/autogql"
)

// Response is the result of a GraphQL document.
type Response struct {
	Data   map[string]any `json:"data"`
	Errors gqlerror.List  `json:"errors,omitempty"`
}

// Do parses, validates and runs a GraphQL document holding one query or
// mutation. Root fields run in document order.
//
// Invalid documents and business errors are reported in the response.
// An infrastructure failure aborts the document and is returned as an
// autogql.InternalError.
func (s *Schema) Do(ctx context.Context, query string, vars map[string]any) (*Response, error) {
	doc, errs := gqlparser.LoadQuery(s.doc, query)
	if len(errs) > 0 {
		return &Response{Errors: errs}, nil
	}
	op := doc.Operations.ForName("")
	if op == nil {
		return &Response{Errors: gqlerror.List{gqlerror.Errorf("document must hold exactly one operation")}}, nil
	}
	root := queryType
	switch op.Operation {
	case ast.Mutation:
		root = mutationType
	case ast.Subscription:
		return &Response{Errors: gqlerror.List{gqlerror.Errorf("subscriptions are not supported")}}, nil
	}
	coerced, verr := validator.VariableValues(s.doc, op, vars)
	if verr != nil {
		return &Response{Errors: gqlerror.List{gqlerror.Errorf("%s", verr.Error())}}, nil
	}
	resp := &Response{Data: make(map[string]any)}
	for _, f := range selection(op.SelectionSet, coerced) {
		key := f.Key()
		switch {
		case f.Name == typename:
			resp.Data[key] = root
			continue
		case strings.HasPrefix(f.Name, "__"):
			resp.Data[key] = nil
			resp.Errors = append(resp.Errors, fieldError(key, "introspection is not supported", "UNSUPPORTED"))
			continue
		}
		field := rootField(op.SelectionSet, key)
		var args map[string]any
		if field != nil {
			args = field.ArgumentMap(coerced)
		}
		v, err := s.Execute(ctx, f.Name, args, f.Selection)
		if err != nil {
			if !autogql.IsBusiness(err) && !autogql.IsConfigError(err) {
				return nil, err
			}
			resp.Data[key] = nil
			for _, msg := range autogql.Messages(err) {
				resp.Errors = append(resp.Errors, fieldError(key, msg, code(err)))
			}
			continue
		}
		resp.Data[key] = v
	}
	return resp, nil
}

// rootField returns the root field returned under key, looking into
// fragments.
func rootField(set ast.SelectionSet, key string) *ast.Field {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			if alias(sel) == key {
				return sel
			}
		case *ast.FragmentSpread:
			if sel.Definition != nil {
				if f := rootField(sel.Definition.SelectionSet, key); f != nil {
					return f
				}
			}
		case *ast.InlineFragment:
			if f := rootField(sel.SelectionSet, key); f != nil {
				return f
			}
		}
	}
	return nil
}

// selection flattens a selection set, applying fragments and the skip and
// include directives.
func selection(set ast.SelectionSet, vars map[string]any) []Field {
	if len(set) == 0 {
		return nil
	}
	var out []Field
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			if skipped(sel.Directives, vars) {
				continue
			}
			f := Field{Name: sel.Name, Selection: selection(sel.SelectionSet, vars)}
			if a := alias(sel); a != sel.Name {
				f.Alias = a
			}
			out = append(out, f)
		case *ast.FragmentSpread:
			if !skipped(sel.Directives, vars) && sel.Definition != nil {
				out = append(out, selection(sel.Definition.SelectionSet, vars)...)
			}
		case *ast.InlineFragment:
			if !skipped(sel.Directives, vars) {
				out = append(out, selection(sel.SelectionSet, vars)...)
			}
		}
	}
	return out
}

func alias(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func skipped(dirs ast.DirectiveList, vars map[string]any) bool {
	if d := dirs.ForName("skip"); d != nil {
		if v, _ := d.ArgumentMap(vars)["if"].(bool); v {
			return true
		}
	}
	if d := dirs.ForName("include"); d != nil {
		if v, _ := d.ArgumentMap(vars)["if"].(bool); !v {
			return true
		}
	}
	return false
}

func fieldError(key, msg, code string) *gqlerror.Error {
	return &gqlerror.Error{
		Message:    msg,
		Path:       ast.Path{ast.PathName(key)},
		Extensions: map[string]any{"code": code},
	}
}

// code classifies a business error for clients.
func code(err error) string {
	switch {
	case autogql.IsValidationError(err):
		return "VALIDATION"
	case autogql.IsNotFound(err):
		return "NOT_FOUND"
	case autogql.IsPermissionError(err):
		return "PERMISSION_DENIED"
	case autogql.IsConfigError(err):
		return "BAD_REQUEST"
	}
	return "CONFLICT"
}
