package gen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/dialect/sqlschema"
	"github.com/raillogistic/autogql/schema"
	"github.com/raillogistic/autogql/schema/edge"
	"github.com/raillogistic/autogql/schema/field"
	"github.com/raillogistic/autogql/schema/method"
)

type Author struct{ autogql.Schema }

func (Author) Fields() []autogql.Field {
	return []autogql.Field{
		field.String("name"),
		field.String("email").Unique(),
	}
}

type Post struct{ autogql.Schema }

func (Post) Fields() []autogql.Field {
	return []autogql.Field{
		field.String("title").MaxLen(120),
		field.Text("body").Nullable(),
		field.Int("views").Default(0),
		field.Time("created_at").ServerDefault(time.Now).Immutable(),
		field.Time("updated_at").UpdateDefault(time.Now),
	}
}

func (Post) Edges() []autogql.Edge {
	return []autogql.Edge{
		edge.To("author", Author.Type).Required().Ref("posts"),
		edge.To("editor", Author.Type),
		edge.ManyToMany("tags", Tag.Type).Ref("posts"),
	}
}

func (Post) Methods() []autogql.Method {
	return []autogql.Method{
		method.New("publish", func(context.Context, *method.Call) (any, error) { return true, nil }).
			Param("at", field.TypeTime).
			Returns(field.TypeBool).
			Expose(),
	}
}

func (Post) Annotations() []schema.Annotation {
	return []schema.Annotation{schema.Comment("A blog post")}
}

type Tag struct{ autogql.Schema }

func (Tag) Fields() []autogql.Field {
	return []autogql.Field{field.String("label").PrimaryKey()}
}

type Profile struct{ autogql.Schema }

func (Profile) Fields() []autogql.Field {
	return []autogql.Field{field.UUID("id").PrimaryKey().ServerDefault(nil)}
}

func (Profile) Edges() []autogql.Edge {
	return []autogql.Edge{edge.To("owner", Author.Type).Unique().Required().Ref("profile")}
}

type Person struct{ autogql.Schema }

func (Person) Edges() []autogql.Edge {
	return []autogql.Edge{
		edge.ManyToMany("friends", Person.Type),
		edge.To("parent", Person.Type).Ref("children"),
	}
}

func graph(t *testing.T, defs ...autogql.Interface) (*Graph, error) {
	t.Helper()
	in := load.NewIntrospector()
	metas := make([]*load.EntityMetadata, 0, len(defs))
	for _, d := range defs {
		m, err := in.Introspect(d)
		require.NoError(t, err)
		metas = append(metas, m)
	}
	return NewGraph(metas)
}

func blog(t *testing.T) *Graph {
	t.Helper()
	g, err := graph(t, Author{}, Post{}, Tag{}, Profile{})
	require.NoError(t, err)
	return g
}

func TestNewGraph(t *testing.T) {
	g := blog(t)
	require.Len(t, g.Types, 4)

	post, ok := g.Type("Post")
	require.True(t, ok)
	assert.Equal(t, "posts", post.Table)
	assert.Equal(t, "A blog post", post.Comment)
	require.NotNil(t, post.ID)
	assert.Equal(t, "id", post.ID.Name)

	names := make([]string, len(post.Fields))
	for i, f := range post.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"id", "title", "body", "views", "created_at", "updated_at", "author_id", "editor_id"}, names)

	fk, ok := post.Field("author_id")
	require.True(t, ok)
	assert.True(t, fk.IsEdgeField())
	assert.False(t, fk.Nullable)
	assert.Equal(t, field.TypeInt, fk.Type)
	e, ok := fk.Edge()
	require.True(t, ok)
	assert.Equal(t, "author", e.Name)

	editor, _ := post.Field("editor_id")
	assert.True(t, editor.Nullable)

	user := post.UserFields()
	assert.Len(t, user, 6)
	for _, f := range user {
		assert.False(t, f.IsEdgeField(), f.Name)
	}

	_, ok = g.Type("Unknown")
	assert.False(t, ok)
	_, ok = post.Method("publish")
	assert.True(t, ok)
}

func TestFieldRequiredness(t *testing.T) {
	g := blog(t)
	post, _ := g.Type("Post")

	tests := []struct {
		field  string
		create bool
		update bool
		input  bool
	}{
		{field: "id", create: false, update: true, input: true},
		{field: "title", create: true, update: false, input: true},
		{field: "body", create: false, update: false, input: true},
		{field: "views", create: false, update: false, input: true},
		{field: "created_at", create: false, update: false, input: false},
		{field: "updated_at", create: true, update: false, input: true},
		{field: "author_id", create: false, update: false, input: false},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, ok := post.Field(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.create, f.RequiredOn(ModeCreate), "create")
			assert.Equal(t, tt.update, f.RequiredOn(ModeUpdate), "update")
			assert.Equal(t, tt.input, f.InputOn(ModeUpdate), "update input")
		})
	}

	author, _ := g.Type("Author")
	unique := author.UniqueFields()
	require.Len(t, unique, 1)
	assert.Equal(t, "email", unique[0].Name)
}

func TestFieldRequiredOnCombinations(t *testing.T) {
	for mask := 0; mask < 1<<5; mask++ {
		var (
			nullable      = mask&1 != 0
			def           = mask&2 != 0
			serverDefault = mask&4 != 0
			pk            = mask&8 != 0
			update        = mask&16 != 0
		)
		f := &Field{Field: &load.Field{
			Name:          "f",
			Type:          field.TypeString,
			Nullable:      nullable,
			Default:       def,
			ServerDefault: serverDefault,
			PrimaryKey:    pk,
		}}
		if update {
			f.UpdateFunc = func() any { return "now" }
		}
		want := !nullable && !def && !serverDefault && !pk
		assert.Equal(t, want, f.RequiredOn(ModeCreate), "create mask=%05b", mask)
		assert.Equal(t, pk, f.RequiredOn(ModeUpdate), "update mask=%05b", mask)
	}

	t.Run("AutoGeneratedOnly", func(t *testing.T) {
		f := &Field{Field: &load.Field{Name: "touched", Type: field.TypeTime, AutoGenerated: true}}
		assert.True(t, f.RequiredOn(ModeCreate))
		assert.False(t, f.RequiredOn(ModeUpdate))
	})
	t.Run("EdgeField", func(t *testing.T) {
		f := &Field{Field: &load.Field{Name: "author_id", Type: field.TypeInt}, fk: &Edge{}}
		assert.False(t, f.RequiredOn(ModeCreate))
		assert.False(t, f.RequiredOn(ModeUpdate))
	})
	t.Run("Descriptor", func(t *testing.T) {
		updated := field.Time("updated_at").UpdateDefault(time.Now).Descriptor()
		assert.False(t, updated.ServerDefault)
		generated := field.Time("touched_at").AutoGenerated().Descriptor()
		assert.True(t, generated.ServerDefault)
	})
}

func TestFieldDefaultFunc(t *testing.T) {
	g := blog(t)
	post, _ := g.Type("Post")

	views, _ := post.Field("views")
	require.NotNil(t, views.DefaultFunc())
	assert.Equal(t, 0, views.DefaultFunc()())

	created, _ := post.Field("created_at")
	require.NotNil(t, created.DefaultFunc())
	assert.IsType(t, time.Time{}, created.DefaultFunc()())

	title, _ := post.Field("title")
	assert.Nil(t, title.DefaultFunc())
	assert.Nil(t, post.ID.DefaultFunc())
}

func TestEdges(t *testing.T) {
	g := blog(t)
	post, _ := g.Type("Post")
	author, _ := g.Type("Author")
	tag, _ := g.Type("Tag")
	profile, _ := g.Type("Profile")

	t.Run("Forward to-one", func(t *testing.T) {
		e, ok := post.Edge("author")
		require.True(t, ok)
		assert.True(t, e.Unique())
		assert.True(t, e.OwnFK())
		assert.True(t, e.Mandatory())
		assert.Equal(t, edge.Cascade, e.OnDelete)
		assert.Equal(t, dialect.Relation{Name: "author", Target: "Author", Kind: dialect.OwnerFK, Column: "author_id", Unique: true}, e.Rel)
		assert.Equal(t, DualPair{Edge: e, Direct: "author", Nested: "nestedAuthor", Mandatory: true}, e.DualPair())

		editor, _ := post.Edge("editor")
		assert.False(t, editor.Mandatory())
		assert.Equal(t, edge.SetNull, editor.OnDelete)
		assert.Nil(t, editor.Ref)
	})

	t.Run("Reverse to-many", func(t *testing.T) {
		r, ok := author.Edge("posts")
		require.True(t, ok)
		assert.True(t, r.Reverse)
		assert.True(t, r.Many())
		assert.False(t, r.Mandatory())
		assert.Equal(t, dialect.InverseFK, r.Rel.Kind)
		assert.Equal(t, "author_id", r.Rel.Column)
		fwd, _ := post.Edge("author")
		assert.Same(t, fwd, r.Ref)
		assert.Same(t, r, fwd.Ref)
		assert.Equal(t, "addPosts", r.AddName())
		assert.Equal(t, "removePosts", r.RemoveName())
	})

	t.Run("Reverse to-one", func(t *testing.T) {
		r, ok := author.Edge("profile")
		require.True(t, ok)
		assert.True(t, r.Unique())
		assert.True(t, r.Rel.Unique)
		fk, _ := profile.Field("owner_id")
		assert.True(t, fk.Unique)
		assert.Equal(t, field.TypeInt, fk.Type)
	})

	t.Run("Many-to-many", func(t *testing.T) {
		e, ok := post.Edge("tags")
		require.True(t, ok)
		assert.True(t, e.M2M())
		assert.Equal(t, &dialect.JoinTable{Table: "post_tags", Column: "post_id", RefColumn: "tag_id"}, e.Rel.Join)
		r, ok := tag.Edge("posts")
		require.True(t, ok)
		assert.Equal(t, &dialect.JoinTable{Table: "post_tags", Column: "tag_id", RefColumn: "post_id"}, r.Rel.Join)
	})

	t.Run("Dependents", func(t *testing.T) {
		names := make([]string, 0, len(author.Dependents))
		for _, d := range author.Dependents {
			names = append(names, d.Owner.Name+"."+d.Name)
		}
		assert.Equal(t, []string{"Post.author", "Post.editor", "Profile.owner"}, names)
		assert.Empty(t, tag.Dependents)
	})
}

func TestSelfReference(t *testing.T) {
	g, err := graph(t, Person{})
	require.NoError(t, err)
	p, _ := g.Type("Person")

	friends, _ := p.Edge("friends")
	assert.Equal(t, &dialect.JoinTable{Table: "person_friends", Column: "person_id", RefColumn: "friend_id"}, friends.Rel.Join)

	children, ok := p.Edge("children")
	require.True(t, ok)
	assert.Equal(t, dialect.InverseFK, children.Rel.Kind)
	assert.Equal(t, "parent_id", children.Rel.Column)
	require.Len(t, p.Dependents, 1)
}

func TestGraphEntities(t *testing.T) {
	g := blog(t)
	ents := g.Entities()
	require.Len(t, ents, 4)
	assert.Equal(t, "authors", ents[0].Table)

	post, ok := g.Entity("Post")
	require.True(t, ok)
	require.NoError(t, post.Validate())
	pk := post.PK()
	require.NotNil(t, pk)
	assert.True(t, pk.AutoIncrement)
	title, _ := post.Column("title")
	assert.Equal(t, 120, title.Size)
	_, ok = post.Relation("tags")
	assert.True(t, ok)

	profile, _ := g.Entity("Profile")
	assert.False(t, profile.PK().AutoIncrement)
	tag, _ := g.Entity("Tag")
	assert.Equal(t, field.TypeString, tag.PK().Type)
}

type Ledger struct{ autogql.Schema }

func (Ledger) Fields() []autogql.Field {
	return []autogql.Field{
		field.String("code").MaxLen(40).Annotations(sqlschema.Size(8), sqlschema.ColumnType("char(8)")),
		field.Int("amount").Annotations(sqlschema.Check("amount >= 0")),
	}
}

func (Ledger) Annotations() []schema.Annotation {
	return []schema.Annotation{sqlschema.Table("ledger_entries")}
}

func TestGraphEntitiesSQLAnnotations(t *testing.T) {
	g, err := graph(t, Ledger{})
	require.NoError(t, err)
	ent, ok := g.Entity("Ledger")
	require.True(t, ok)
	assert.Equal(t, "ledger_entries", ent.Table)
	code, _ := ent.Column("code")
	assert.Equal(t, 8, code.Size)
	typ, ok := code.TypeFor(dialect.Postgres)
	assert.True(t, ok)
	assert.Equal(t, "char(8)", typ)
	amount, _ := ent.Column("amount")
	assert.Equal(t, "amount >= 0", amount.Check)
	assert.Nil(t, amount.SQLType)
}

type Orphan struct{ autogql.Schema }

func (Orphan) Edges() []autogql.Edge { return []autogql.Edge{edge.To("ghost", "Ghost")} }

type Taken struct{ autogql.Schema }

func (Taken) Fields() []autogql.Field { return []autogql.Field{field.String("posts")} }

type TakenPost struct{ autogql.Schema }

func (TakenPost) Edges() []autogql.Edge {
	return []autogql.Edge{edge.To("taken", Taken.Type).Ref("posts")}
}

type BadKey struct{ autogql.Schema }

func (BadKey) Fields() []autogql.Field { return []autogql.Field{field.String("author_id")} }
func (BadKey) Edges() []autogql.Edge   { return []autogql.Edge{edge.To("author", Author.Type)} }

type Stamp struct{ autogql.Schema }

func (Stamp) Fields() []autogql.Field {
	return []autogql.Field{field.JSON("meta").ServerDefault(nil)}
}

func TestGraphErrors(t *testing.T) {
	_, err := graph(t, Orphan{})
	require.Error(t, err)
	assert.True(t, IsEdgeError(err))
	assert.Contains(t, err.Error(), `unknown target "Ghost"`)

	_, err = graph(t, Taken{}, TakenPost{})
	require.Error(t, err)
	assert.True(t, IsEdgeError(err))
	assert.Contains(t, err.Error(), "reverse accessor conflicts")

	_, err = graph(t, Author{}, BadKey{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "author_id" has kind string`)

	_, err = graph(t, Stamp{})
	require.Error(t, err)
	assert.True(t, IsDefinitionError(err))
	assert.True(t, autogql.IsConfigError(err))

	_, err = NewGraph(nil, WithTypeMap(nil))
	assert.Error(t, err)
}

func TestGraphOptions(t *testing.T) {
	in := load.NewIntrospector()
	var metas []*load.EntityMetadata
	for _, d := range []autogql.Interface{Author{}, Post{}, Tag{}} {
		m, err := in.Introspect(d)
		require.NoError(t, err)
		metas = append(metas, m)
	}
	g, err := NewGraph(metas, WithJoinTableNamer(func(owner, edge string) string {
		return "j_" + Snake(owner) + "_" + Snake(edge)
	}))
	require.NoError(t, err)
	post, _ := g.Type("Post")
	tags, _ := post.Edge("tags")
	assert.Equal(t, "j_post_tags", tags.Rel.Join.Table)
}
