package schema

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/schema/field"
)

var postTags = &dialect.JoinTable{Table: "post_tags", Column: "post_id", RefColumn: "tag_id"}

func entities() []*dialect.Entity {
	return []*dialect.Entity{
		{
			Name:  "Category",
			Table: "categories",
			Columns: []*dialect.Column{
				{Name: "id", Type: field.TypeInt, PrimaryKey: true, AutoIncrement: true},
				{Name: "name", Type: field.TypeString, Unique: true, Size: 64},
			},
		},
		{
			Name:  "Post",
			Table: "posts",
			Columns: []*dialect.Column{
				{Name: "id", Type: field.TypeInt, PrimaryKey: true, AutoIncrement: true},
				{Name: "title", Type: field.TypeString},
				{Name: "views", Type: field.TypeInt, Nullable: true, Check: "views >= 0"},
				{Name: "category_id", Type: field.TypeInt, Nullable: true},
			},
			Relations: []*dialect.Relation{
				{Name: "category", Target: "Category", Kind: dialect.OwnerFK, Column: "category_id", Unique: true},
				{Name: "tags", Target: "Tag", Kind: dialect.JoinRel, Join: postTags},
			},
		},
		{
			Name:  "Tag",
			Table: "tags",
			Columns: []*dialect.Column{
				{Name: "id", Type: field.TypeString, PrimaryKey: true},
			},
			Relations: []*dialect.Relation{
				{Name: "posts", Target: "Post", Kind: dialect.JoinRel, Join: postTags.Inverse()},
			},
		},
	}
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "schema.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTables(t *testing.T) {
	tables, err := Tables(dialect.Postgres, entities(), true)
	require.NoError(t, err)
	require.Len(t, tables, 4)
	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.Name
	}
	assert.Equal(t, []string{"categories", "posts", "tags", "post_tags"}, names)

	categories := tables[0]
	id, ok := categories.Column("id")
	require.True(t, ok)
	assert.Equal(t, &atlas.IntegerType{T: "bigint"}, id.Type.Type)
	assert.Len(t, id.Attrs, 1)
	assert.IsType(t, &postgres.Identity{}, id.Attrs[0])
	name, ok := categories.Column("name")
	require.True(t, ok)
	assert.Equal(t, &atlas.StringType{T: "character varying", Size: 64}, name.Type.Type)
	require.Len(t, categories.Indexes, 1)
	assert.Equal(t, "categories_name_key", categories.Indexes[0].Name)
	assert.True(t, categories.Indexes[0].Unique)

	posts := tables[1]
	require.Len(t, posts.ForeignKeys, 1)
	assert.Equal(t, "posts_category_id_fkey", posts.ForeignKeys[0].Symbol)
	assert.Equal(t, "categories", posts.ForeignKeys[0].RefTable.Name)
	views, _ := posts.Column("views")
	assert.True(t, views.Type.Null)

	join := tables[3]
	require.NotNil(t, join.PrimaryKey)
	assert.Len(t, join.PrimaryKey.Parts, 2)
	require.Len(t, join.ForeignKeys, 2)
	assert.Equal(t, atlas.Cascade, join.ForeignKeys[0].OnDelete)
	tagID, _ := join.Column("tag_id")
	assert.Equal(t, &atlas.StringType{T: "character varying"}, tagID.Type.Type)

	tables, err = Tables(dialect.MySQL, entities(), false)
	require.NoError(t, err)
	assert.Empty(t, tables[1].ForeignKeys)
	title, _ := tables[1].Column("title")
	assert.Equal(t, &atlas.StringType{T: "varchar", Size: 255}, title.Type.Type)
	id, _ = tables[0].Column("id")
	assert.IsType(t, &mysql.AutoIncrement{}, id.Attrs[0])
}

func TestTablesTypeOverride(t *testing.T) {
	es := entities()
	es[0].Columns[1].SQLType = map[string]string{"": "varchar(32)", dialect.SQLite: "text"}
	tables, err := Tables(dialect.MySQL, es, true)
	require.NoError(t, err)
	name, _ := tables[0].Column("name")
	assert.Equal(t, &atlas.StringType{T: "varchar", Size: 32}, name.Type.Type)

	tables, err = Tables(dialect.SQLite, es, true)
	require.NoError(t, err)
	name, _ = tables[0].Column("name")
	assert.Equal(t, "text", name.Type.Type.(*atlas.StringType).T)

	_, err = Tables("oracle", entities(), true)
	require.Error(t, err)
}

func TestCreateSQLite(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	require.NoError(t, Create(ctx, db, dialect.SQLite, entities()))
	require.NoError(t, Create(ctx, db, dialect.SQLite, entities()), "creating twice is a no-op")

	_, err := db.ExecContext(ctx, `INSERT INTO categories (name) VALUES ('go')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO categories (name) VALUES ('go')`)
	require.Error(t, err, "unique index")
	_, err = db.ExecContext(ctx, `INSERT INTO posts (title, category_id) VALUES ('x', 42)`)
	require.Error(t, err, "foreign key")
	_, err = db.ExecContext(ctx, `INSERT INTO posts (title, views) VALUES ('x', -1)`)
	require.Error(t, err, "check constraint")

	// A new column is added to the existing table and rows are kept.
	es := entities()
	es[0].Columns = append(es[0].Columns, &dialect.Column{Name: "slug", Type: field.TypeString, Unique: true})
	require.NoError(t, Create(ctx, db, dialect.SQLite, es))

	drv, err := sqlite.Open(db)
	require.NoError(t, err)
	s, err := drv.InspectSchema(ctx, "", &atlas.InspectOptions{Tables: []string{"categories"}})
	require.NoError(t, err)
	categories, ok := s.Table("categories")
	require.True(t, ok)
	slug, ok := categories.Column("slug")
	require.True(t, ok)
	assert.True(t, slug.Type.Null, "added columns are nullable")

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n))
	assert.Equal(t, 1, n)
	_, err = db.ExecContext(ctx, `UPDATE categories SET slug = 'go'`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO categories (name, slug) VALUES ('rust', 'go')`)
	require.Error(t, err, "unique index of the added column")
}

func TestChanges(t *testing.T) {
	desired, err := Tables(dialect.SQLite, entities(), true)
	require.NoError(t, err)
	current := atlas.New("main").AddTables(atlas.NewTable("categories").AddColumns(
		atlas.NewIntColumn("id", "integer"),
	))
	changes := Changes(current, desired)
	require.Len(t, changes, 4)
	modify, ok := changes[0].(*atlas.ModifyTable)
	require.True(t, ok)
	require.Len(t, modify.Changes, 2)
	add, ok := modify.Changes[0].(*atlas.AddColumn)
	require.True(t, ok)
	assert.Equal(t, "name", add.C.Name)
	_, ok = modify.Changes[1].(*atlas.AddIndex)
	assert.True(t, ok)
	for _, c := range changes[1:] {
		assert.IsType(t, &atlas.AddTable{}, c)
	}
}
