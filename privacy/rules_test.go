package privacy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/privacy"
)

func viewerCtx(v *privacy.SimpleViewer) context.Context {
	if v == nil {
		return context.Background()
	}
	return privacy.WithViewer(context.Background(), v)
}

func TestViewerFromContext(t *testing.T) {
	assert.Nil(t, privacy.ViewerFromContext(context.Background()))
	v := privacy.ViewerFromContext(viewerCtx(&privacy.SimpleViewer{UserID: "7", Roles: []string{"editor"}, TenantID: "acme"}))
	require.NotNil(t, v)
	assert.Equal(t, "7", v.GetID())
	assert.Equal(t, []string{"editor"}, v.GetRoles())
	assert.Equal(t, "acme", v.GetTenantID())
}

func TestViewerRules(t *testing.T) {
	var (
		anonymous *privacy.SimpleViewer
		editor    = &privacy.SimpleViewer{UserID: "1", Roles: []string{"editor"}}
		admin     = &privacy.SimpleViewer{UserID: "2", Roles: []string{"viewer", "admin"}}
	)
	tests := []struct {
		name   string
		rule   privacy.QueryMutationRule
		viewer *privacy.SimpleViewer
		want   error
	}{
		{"DenyIfNoViewer/Anonymous", privacy.DenyIfNoViewer(), anonymous, privacy.Deny},
		{"DenyIfNoViewer/Viewer", privacy.DenyIfNoViewer(), editor, privacy.Skip},
		{"HasRole/Anonymous", privacy.HasRole("admin"), anonymous, privacy.Skip},
		{"HasRole/Missing", privacy.HasRole("admin"), editor, privacy.Skip},
		{"HasRole/Present", privacy.HasRole("admin"), admin, privacy.Allow},
		{"HasAnyRole/Present", privacy.HasAnyRole("owner", "editor"), editor, privacy.Allow},
		{"HasAnyRole/Missing", privacy.HasAnyRole("owner"), admin, privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := viewerCtx(tt.viewer)
			assert.ErrorIs(t, tt.rule.EvalQuery(ctx, posts()), tt.want)
			assert.ErrorIs(t, tt.rule.EvalMutation(ctx, &write{op: autogql.OpCreate, typ: "Post"}), tt.want)
		})
	}
}

func TestIsOwner(t *testing.T) {
	rule := privacy.IsOwner("author_id")
	viewer := viewerCtx(&privacy.SimpleViewer{UserID: "42"})
	tests := []struct {
		name   string
		ctx    context.Context
		values map[string]any
		want   error
	}{
		{"IntegerKey", viewer, map[string]any{"author_id": 42}, privacy.Allow},
		{"StringKey", viewer, map[string]any{"author_id": "42"}, privacy.Allow},
		{"OtherOwner", viewer, map[string]any{"author_id": 7}, privacy.Skip},
		{"FieldAbsent", viewer, map[string]any{"title": "x"}, privacy.Skip},
		{"Anonymous", context.Background(), map[string]any{"author_id": 42}, privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.EvalMutation(tt.ctx, &write{op: autogql.OpUpdate, typ: "Post", values: tt.values})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTenantRule(t *testing.T) {
	rule := privacy.TenantRule("tenant_id")
	acme := viewerCtx(&privacy.SimpleViewer{UserID: "1", TenantID: "acme"})
	tests := []struct {
		name   string
		ctx    context.Context
		values map[string]any
		want   error
	}{
		{"SameTenant", acme, map[string]any{"tenant_id": "acme"}, privacy.Allow},
		{"OtherTenant", acme, map[string]any{"tenant_id": "globex"}, privacy.Deny},
		{"FieldAbsent", acme, map[string]any{}, privacy.Skip},
		{"NoTenant", viewerCtx(&privacy.SimpleViewer{UserID: "1"}), map[string]any{"tenant_id": "acme"}, privacy.Skip},
		{"Anonymous", context.Background(), map[string]any{"tenant_id": "acme"}, privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.EvalMutation(tt.ctx, &write{op: autogql.OpCreate, typ: "Invoice", values: tt.values})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestQueryRulesNarrowReads(t *testing.T) {
	t.Run("Owner", func(t *testing.T) {
		rule := privacy.OwnerQueryRule("author_id")
		r := posts()
		assert.ErrorIs(t, rule.EvalQuery(viewerCtx(&privacy.SimpleViewer{UserID: "42"}), r), privacy.Skip)
		assert.Equal(t, []filter.P{filter.FieldEQ("author_id", "42")}, r.where)

		r = posts()
		assert.ErrorIs(t, rule.EvalQuery(context.Background(), r), privacy.Deny)
		assert.Empty(t, r.where)
		assert.ErrorIs(t, rule.EvalQuery(viewerCtx(&privacy.SimpleViewer{UserID: "42"}), fixedRead{}), privacy.Deny)
	})

	t.Run("Tenant", func(t *testing.T) {
		rule := privacy.TenantQueryRule("tenant_id")
		r := posts()
		assert.ErrorIs(t, rule.EvalQuery(viewerCtx(&privacy.SimpleViewer{UserID: "1", TenantID: "acme"}), r), privacy.Skip)
		assert.Equal(t, []filter.P{filter.FieldEQ("tenant_id", "acme")}, r.where)

		for _, v := range []*privacy.SimpleViewer{nil, {UserID: "1"}} {
			r := posts()
			assert.ErrorIs(t, rule.EvalQuery(viewerCtx(v), r), privacy.Deny)
			assert.Empty(t, r.where)
		}
	})

	t.Run("AdminBypass", func(t *testing.T) {
		policies := []autogql.Policy{privacy.Policy{Query: privacy.QueryPolicy{
			privacy.HasRole("admin"),
			privacy.OwnerQueryRule("author_id"),
		}}}
		r := posts()
		ctx := viewerCtx(&privacy.SimpleViewer{UserID: "9", Roles: []string{"admin"}})
		require.NoError(t, privacy.CheckQuery(ctx, policies, r))
		assert.Empty(t, r.where)
	})
}
