package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/filter"
)

// Viewer is the user a request runs for.
type Viewer interface {
	GetID() string
	GetRoles() []string
	// GetTenantID returns the tenant of the viewer, or "" outside
	// multi-tenant setups.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a copy of ctx carrying viewer.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext returns the viewer of ctx, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a Viewer holding its attributes.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) GetID() string       { return v.UserID }
func (v *SimpleViewer) GetRoles() []string  { return v.Roles }
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer denies requests without a viewer. It usually starts a
// policy.
func DenyIfNoViewer() QueryMutationRule {
	return contextRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole allows viewers having role and skips the others.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole allows viewers having one of roles and skips the others.
func HasAnyRole(roles ...string) QueryMutationRule {
	return contextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(viewer.GetRoles(), r) }) {
			return Allow
		}
		return Skip
	})
}

// IsOwner allows mutations whose field holds the ID of the viewer. Values
// are compared in their decimal or string form, so integer keys match the
// string ID of the viewer.
func IsOwner(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m autogql.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if v, ok := m.Field(field); ok && fmt.Sprint(v) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// OwnerQueryRule restricts reads to the records whose field holds the ID
// of the viewer. Reads without a viewer, or that cannot be filtered, are
// denied.
//
//	Query: privacy.QueryPolicy{
//	    privacy.HasRole("admin"),
//	    privacy.OwnerQueryRule("author_id"),
//	}
func OwnerQueryRule(field string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q autogql.Query) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for owner-filtered query")
		}
		return restrict(q, field, viewer.GetID())
	})
}

// TenantRule allows mutations whose field holds the tenant of the viewer
// and denies those of other tenants. Viewers without a tenant are skipped.
func TenantRule(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m autogql.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		v, ok := m.Field(field)
		if !ok {
			return Skip
		}
		if fmt.Sprint(v) == viewer.GetTenantID() {
			return Allow
		}
		return Denyf("privacy: tenant mismatch")
	})
}

// TenantQueryRule restricts reads to the records of the viewer tenant.
// Reads without a viewer or a tenant are denied.
func TenantQueryRule(field string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q autogql.Query) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for tenant-filtered query")
		}
		if viewer.GetTenantID() == "" {
			return Denyf("privacy: tenant required")
		}
		return restrict(q, field, viewer.GetTenantID())
	})
}

// restrict narrows q to the records whose field equals v.
func restrict(q autogql.Query, field string, v any) error {
	fr, ok := q.(Filterable)
	if !ok {
		return Denyf("privacy: query %s of %s cannot be filtered", q.Operation(), q.Type())
	}
	fr.Filter().Where(filter.FieldEQ(field, v))
	return Skip
}
