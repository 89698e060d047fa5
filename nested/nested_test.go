package nested_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/dialect/memory"
	"github.com/raillogistic/autogql/nested"
	"github.com/raillogistic/autogql/privacy"
	"github.com/raillogistic/autogql/schema/edge"
	"github.com/raillogistic/autogql/schema/field"
)

type Category struct{ autogql.Schema }

func (Category) Fields() []autogql.Field {
	return []autogql.Field{field.String("name").Unique()}
}

type Author struct{ autogql.Schema }

func (Author) Fields() []autogql.Field {
	return []autogql.Field{
		field.String("name"),
		field.String("email").Format("email"),
	}
}

type Post struct{ autogql.Schema }

func (Post) Fields() []autogql.Field {
	return []autogql.Field{
		field.String("title").MaxLen(20),
		field.String("slug").Nullable().Unique(),
		field.Int("views").Default(0),
		field.Time("updated_at").ServerDefault(time.Now).UpdateDefault(time.Now),
	}
}

func (Post) Edges() []autogql.Edge {
	return []autogql.Edge{
		edge.To("category", Category.Type).Required().Ref("posts").OnDelete(edge.Restrict),
		edge.To("editor", Author.Type).Ref("edited"),
		edge.ManyToMany("tags", Tag.Type).Ref("posts"),
	}
}

type Comment struct{ autogql.Schema }

func (Comment) Fields() []autogql.Field {
	return []autogql.Field{field.Text("text")}
}

func (Comment) Edges() []autogql.Edge {
	return []autogql.Edge{edge.To("post", Post.Type).Required().Ref("comments")}
}

type Tag struct{ autogql.Schema }

func (Tag) Fields() []autogql.Field {
	return []autogql.Field{field.String("label").Unique()}
}

func (Tag) Policy() autogql.Policy {
	return privacy.Policy{
		Mutation: privacy.MutationPolicy{
			privacy.DenyMutationOperationRule(autogql.OpDelete),
		},
	}
}

type liveCategory struct{ id any }

func (c liveCategory) Key() any { return c.id }

func setup(t *testing.T) (*nested.Handler, *memory.Provider) {
	t.Helper()
	in := load.NewIntrospector()
	var metas []*load.EntityMetadata
	for _, def := range []autogql.Interface{Category{}, Author{}, Post{}, Comment{}, Tag{}} {
		m, err := in.Introspect(def)
		require.NoError(t, err)
		metas = append(metas, m)
	}
	g, err := gen.NewGraph(metas)
	require.NoError(t, err)
	p := memory.New()
	require.NoError(t, p.Migrate(context.Background(), g.Entities()...))
	return nested.New(g, p), p
}

func create(t *testing.T, h *nested.Handler, entity string, payload map[string]any) dialect.Record {
	t.Helper()
	rec, err := h.ProcessNestedCreate(context.Background(), entity, payload)
	require.NoError(t, err)
	return rec
}

func messages(t *testing.T, err error) []string {
	t.Helper()
	var errs autogql.ValidationErrors
	require.ErrorAs(t, err, &errs)
	return errs.Messages()
}

func count(t *testing.T, p *memory.Provider, entity string) int {
	t.Helper()
	n, err := p.Count(context.Background(), entity, nil)
	require.NoError(t, err)
	return n
}

func tagsOf(t *testing.T, h *nested.Handler, p *memory.Provider, post any) []any {
	t.Helper()
	typ, _ := h.Graph().Type("Post")
	e, _ := typ.Edge("tags")
	pairs, err := p.Pairs(context.Background(), e.Rel.Join, []any{post})
	require.NoError(t, err)
	refs := make([]any, len(pairs))
	for i, pr := range pairs {
		refs[i] = pr[1]
	}
	return refs
}

func TestCreateDualPair(t *testing.T) {
	ctx := context.Background()
	h, p := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})

	t.Run("Direct", func(t *testing.T) {
		rec := create(t, h, "Post", map[string]any{"title": "a", "category": cat["id"]})
		assert.Equal(t, cat["id"], rec["category_id"])
	})

	t.Run("Nested", func(t *testing.T) {
		rec := create(t, h, "Post", map[string]any{
			"title":          "b",
			"nestedCategory": map[string]any{"name": "rust"},
		})
		require.NotNil(t, rec["category_id"])
		got, err := p.Get(ctx, "Category", rec["category_id"])
		require.NoError(t, err)
		assert.Equal(t, "rust", got["name"])
	})

	t.Run("Both", func(t *testing.T) {
		rec := create(t, h, "Post", map[string]any{
			"title":          "c",
			"category":       cat["id"],
			"nestedCategory": map[string]any{"name": "zig"},
		})
		got, err := p.Get(ctx, "Category", rec["category_id"])
		require.NoError(t, err)
		assert.Equal(t, "zig", got["name"])
	})

	t.Run("Neither", func(t *testing.T) {
		_, err := h.ProcessNestedCreate(ctx, "Post", map[string]any{"title": "d"})
		assert.Equal(t, []string{`category: one of "category" or "nestedCategory" is required`}, messages(t, err))
	})

	assert.Equal(t, 3, count(t, p, "Post"))
}

func TestCreateDefaults(t *testing.T) {
	ctx := context.Background()
	h, p := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})

	rec := create(t, h, "Post", map[string]any{"title": "hello", "category": cat["id"]})
	assert.EqualValues(t, 0, rec["views"])
	assert.IsType(t, time.Time{}, rec["updated_at"])
	assert.Nil(t, rec["slug"])

	_, err := h.ProcessNestedCreate(ctx, "Post", map[string]any{"category": cat["id"]})
	assert.Equal(t, []string{"title: is required"}, messages(t, err))
	assert.Equal(t, 1, count(t, p, "Post"))
}

func TestValidationSteps(t *testing.T) {
	h, p := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})

	tests := []struct {
		name    string
		entity  string
		payload map[string]any
		want    []string
	}{
		{
			name:    "RequiredStopsLaterSteps",
			entity:  "Post",
			payload: map[string]any{"category": 999, "slug": 1},
			want:    []string{"title: is required"},
		},
		{
			name:    "NullField",
			entity:  "Post",
			payload: map[string]any{"title": "x", "views": nil, "category": cat["id"]},
			want:    []string{"views: cannot be null"},
		},
		{
			name:    "MaxLen",
			entity:  "Post",
			payload: map[string]any{"title": strings.Repeat("x", 21), "category": 999},
			want:    []string{"title: must be at most 20 characters"},
		},
		{
			name:    "Format",
			entity:  "Author",
			payload: map[string]any{"name": "ann", "email": "nope"},
			want:    []string{"email: must be a valid email address"},
		},
		{
			name:    "MissingTarget",
			entity:  "Post",
			payload: map[string]any{"title": "x", "category": 999},
			want:    []string{"category: Category 999 does not exist"},
		},
		{
			name:    "UnknownInput",
			entity:  "Post",
			payload: map[string]any{"title": "x", "category": cat["id"], "bogus": true},
			want:    []string{"bogus: unknown input"},
		},
		{
			name:   "NestedPath",
			entity: "Category",
			payload: map[string]any{
				"name":        "rust",
				"nestedPosts": []any{map[string]any{"title": "ok"}, map[string]any{"views": 1}},
			},
			want: []string{"nestedPosts[1].title: is required"},
		},
		{
			name:    "EnclosingEdge",
			entity:  "Category",
			payload: map[string]any{"name": "rust", "nestedPosts": []any{map[string]any{"title": "x", "category": cat["id"]}}},
			want:    []string{"nestedPosts[0].category: is set by the enclosing payload"},
		},
		{
			name:    "AddOnCreate",
			entity:  "Post",
			payload: map[string]any{"title": "x", "category": cat["id"], "addTags": []any{1}},
			want:    []string{"addTags: is only accepted on update"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.ProcessNestedCreate(context.Background(), tt.entity, tt.payload)
			assert.Equal(t, tt.want, messages(t, err))
		})
	}
	assert.Equal(t, 0, count(t, p, "Post"))
	assert.Equal(t, 0, count(t, p, "Author"))
}

func TestUnknownEntity(t *testing.T) {
	h, _ := setup(t)
	_, err := h.ProcessNestedCreate(context.Background(), "Nope", map[string]any{})
	assert.True(t, autogql.IsConfigError(err))
}

func TestNestedCreate(t *testing.T) {
	ctx := context.Background()
	h, p := setup(t)

	cat := create(t, h, "Category", map[string]any{
		"name": "go",
		"nestedPosts": []any{
			map[string]any{"title": "one", "nestedComments": []any{map[string]any{"text": "first"}}},
			map[string]any{"title": "two", "nestedTags": []any{map[string]any{"label": "news"}}},
		},
	})
	posts, err := p.Find(ctx, "Post", &dialect.Query{})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, post := range posts {
		assert.Equal(t, cat["id"], post["category_id"])
	}
	comments, err := p.Find(ctx, "Comment", &dialect.Query{})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, posts[0]["id"], comments[0]["post_id"])
	assert.Len(t, tagsOf(t, h, p, posts[1]["id"]), 1)
}

func TestNestedRollback(t *testing.T) {
	h, p := setup(t)

	_, err := h.ProcessNestedCreate(context.Background(), "Category", map[string]any{
		"name": "go",
		"nestedPosts": []any{
			map[string]any{"title": "one", "slug": "same"},
			map[string]any{"title": "two", "slug": "same"},
		},
	})
	require.Error(t, err)
	assert.True(t, autogql.IsConstraintError(err))
	assert.Equal(t, 0, count(t, p, "Category"))
	assert.Equal(t, 0, count(t, p, "Post"))
}

func TestCycle(t *testing.T) {
	h, p := setup(t)

	post := map[string]any{"title": "loop"}
	cat := map[string]any{"name": "c", "nestedPosts": []any{post}}
	post["nestedCategory"] = cat

	_, err := h.ProcessNestedCreate(context.Background(), "Post", post)
	require.ErrorIs(t, err, autogql.ErrCycle)
	var ce *autogql.CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"Post.nestedCategory", "Category.nestedPosts", "Post"}, ce.Path)
	assert.Equal(t, 0, count(t, p, "Category"))
	assert.Equal(t, 0, count(t, p, "Post"))
}

func TestSharedObject(t *testing.T) {
	h, p := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})

	tag := map[string]any{"label": "news"}
	post := create(t, h, "Post", map[string]any{
		"title":      "x",
		"category":   cat["id"],
		"nestedTags": []any{tag, tag},
	})
	assert.Equal(t, 1, count(t, p, "Tag"))
	assert.Len(t, tagsOf(t, h, p, post["id"]), 1)
}

func TestLiveInstance(t *testing.T) {
	h, _ := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})

	rec := create(t, h, "Post", map[string]any{"title": "record", "category": cat})
	assert.Equal(t, cat["id"], rec["category_id"])

	rec = create(t, h, "Post", map[string]any{"title": "keyer", "category": liveCategory{id: cat["id"]}})
	assert.Equal(t, cat["id"], rec["category_id"])
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	h, p := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})
	post := create(t, h, "Post", map[string]any{"title": "p", "slug": "p", "category": cat["id"]})
	id := post["id"]

	rec, err := h.ProcessNestedUpdate(ctx, "Post", id, map[string]any{"title": "q"})
	require.NoError(t, err)
	assert.Equal(t, "q", rec["title"])
	assert.Equal(t, "p", rec["slug"])
	assert.Equal(t, cat["id"], rec["category_id"])

	t.Run("PrimaryKey", func(t *testing.T) {
		_, err := h.ProcessNestedUpdate(ctx, "Post", id, map[string]any{"id": 999})
		assert.Equal(t, []string{"id: primary key cannot be changed"}, messages(t, err))
	})
	t.Run("SamePrimaryKey", func(t *testing.T) {
		rec, err := h.ProcessNestedUpdate(ctx, "Post", id, map[string]any{"id": id, "views": 3})
		require.NoError(t, err)
		assert.EqualValues(t, 3, rec["views"])
	})
	t.Run("ClearMandatory", func(t *testing.T) {
		_, err := h.ProcessNestedUpdate(ctx, "Post", id, map[string]any{"category": nil})
		assert.Equal(t, []string{"category: cannot be cleared"}, messages(t, err))
	})
	t.Run("NotFound", func(t *testing.T) {
		_, err := h.ProcessNestedUpdate(ctx, "Post", 12345, map[string]any{"title": "z"})
		assert.True(t, autogql.IsNotFound(err))
	})
	t.Run("NestedExisting", func(t *testing.T) {
		rec, err := h.ProcessNestedUpdate(ctx, "Post", id, map[string]any{
			"nestedCategory": map[string]any{"id": cat["id"], "name": "golang"},
		})
		require.NoError(t, err)
		assert.Equal(t, cat["id"], rec["category_id"])
		assert.Equal(t, 1, count(t, p, "Category"))
	})
}

func TestUpdateLinks(t *testing.T) {
	ctx := context.Background()
	h, p := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})
	a := create(t, h, "Tag", map[string]any{"label": "a"})["id"]
	b := create(t, h, "Tag", map[string]any{"label": "b"})["id"]
	c := create(t, h, "Tag", map[string]any{"label": "c"})["id"]
	id := create(t, h, "Post", map[string]any{"title": "p", "category": cat["id"], "tags": []any{a, b}})["id"]
	assert.ElementsMatch(t, []any{a, b}, tagsOf(t, h, p, id))

	_, err := h.ProcessNestedUpdate(ctx, "Post", id, map[string]any{"addTags": []any{c}, "removeTags": []any{a}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{b, c}, tagsOf(t, h, p, id))

	_, err = h.ProcessNestedUpdate(ctx, "Post", id, map[string]any{"tags": []any{a}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{a}, tagsOf(t, h, p, id))

	_, err = h.ProcessNestedUpdate(ctx, "Post", id, map[string]any{"tags": nil})
	require.NoError(t, err)
	assert.Empty(t, tagsOf(t, h, p, id))
}

func TestUpdateInverse(t *testing.T) {
	ctx := context.Background()
	h, p := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})
	ann := create(t, h, "Author", map[string]any{"name": "ann", "email": "ann@example.com"})
	p1 := create(t, h, "Post", map[string]any{"title": "one", "category": cat["id"], "editor": ann["id"]})
	p2 := create(t, h, "Post", map[string]any{"title": "two", "category": cat["id"], "editor": ann["id"]})

	_, err := h.ProcessNestedUpdate(ctx, "Author", ann["id"], map[string]any{"edited": []any{p1["id"]}})
	require.NoError(t, err)
	got, err := p.Get(ctx, "Post", p2["id"])
	require.NoError(t, err)
	assert.Nil(t, got["editor_id"])
	got, err = p.Get(ctx, "Post", p1["id"])
	require.NoError(t, err)
	assert.Equal(t, ann["id"], got["editor_id"])

	// Posts cannot lose their category.
	_, err = h.ProcessNestedUpdate(ctx, "Category", cat["id"], map[string]any{"posts": []any{p1["id"]}})
	assert.True(t, autogql.IsIntegrityError(err))
	got, err = p.Get(ctx, "Post", p2["id"])
	require.NoError(t, err)
	assert.Equal(t, cat["id"], got["category_id"])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	h, p := setup(t)
	cat := create(t, h, "Category", map[string]any{"name": "go"})
	ann := create(t, h, "Author", map[string]any{"name": "ann", "email": "ann@example.com"})
	post := create(t, h, "Post", map[string]any{
		"title":          "p",
		"category":       cat["id"],
		"editor":         ann["id"],
		"nestedComments": []any{map[string]any{"text": "a"}, map[string]any{"text": "b"}},
		"nestedTags":     []any{map[string]any{"label": "t"}},
	})
	tag, err := p.Find(ctx, "Tag", &dialect.Query{})
	require.NoError(t, err)
	require.Len(t, tag, 1)

	t.Run("Restrict", func(t *testing.T) {
		_, err := h.Delete(ctx, "Category", cat["id"])
		require.ErrorIs(t, err, autogql.ErrRestricted)
		assert.Equal(t, 1, count(t, p, "Category"))
	})
	t.Run("Permission", func(t *testing.T) {
		_, err := h.Delete(ctx, "Tag", tag[0]["id"])
		require.ErrorIs(t, err, autogql.ErrPermission)
		assert.Equal(t, 1, count(t, p, "Tag"))
	})
	t.Run("SetNull", func(t *testing.T) {
		rec, err := h.Delete(ctx, "Author", ann["id"])
		require.NoError(t, err)
		assert.Equal(t, "ann", rec["name"])
		got, err := p.Get(ctx, "Post", post["id"])
		require.NoError(t, err)
		assert.Nil(t, got["editor_id"])
	})
	t.Run("Cascade", func(t *testing.T) {
		_, err := h.Delete(ctx, "Post", post["id"])
		require.NoError(t, err)
		assert.Equal(t, 0, count(t, p, "Comment"))
		assert.Equal(t, 1, count(t, p, "Tag"))
		assert.Empty(t, tagsOf(t, h, p, post["id"]))
	})
	t.Run("NotFound", func(t *testing.T) {
		_, err := h.Delete(ctx, "Post", post["id"])
		assert.True(t, autogql.IsNotFound(err))
	})
	t.Run("Unblocked", func(t *testing.T) {
		_, err := h.Delete(ctx, "Category", cat["id"])
		require.NoError(t, err)
		assert.Equal(t, 0, count(t, p, "Category"))
	})
}
