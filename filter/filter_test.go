package filter_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/schema/field"
)

func TestPString(t *testing.T) {
	tests := []struct {
		P filter.P
		S string
	}{
		{
			P: filter.And(
				filter.FieldEQ("name", "a8m"),
				filter.FieldIn("org", "fb", "ent"),
			),
			S: `name == "a8m" && org in ["fb","ent"]`,
		},
		{
			P: filter.Or(
				filter.Not(filter.FieldEQ("name", "mashraki")),
				filter.FieldIn("org", "fb", "ent"),
			),
			S: `!(name == "mashraki") || org in ["fb","ent"]`,
		},
		{
			P: filter.HasEdgeWith("posts", filter.FieldContainsFold("title", "go")),
			S: `has_edge(posts, contains_fold(title, "go"))`,
		},
		{
			P: filter.And(filter.FieldGT("age", 30), filter.FieldHasPrefix("name", "a"), filter.FieldNil("deleted_at")),
			S: `(age > 30 && has_prefix(name, "a") && deleted_at == nil)`,
		},
		{
			P: filter.Field("score", filter.Range, []any{1, 5}),
			S: `range(score, 1,5)`,
		},
		{
			P: filter.Field("created_at", filter.Year, 2024),
			S: `year(created_at) == 2024`,
		},
		{P: filter.And(), S: `true`},
		{P: filter.Or(), S: `false`},
		{P: filter.FieldEQ("a", 1).Negate(), S: `!(a == 1)`},
	}
	for i := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			assert.Equal(t, tests[i].S, tests[i].P.String())
		})
	}
}

func TestEmptyConnectives(t *testing.T) {
	t.Parallel()

	rec := map[string]any{"status": "active"}
	ok, err := filter.Eval(filter.And(), rec, nil)
	require.NoError(t, err)
	assert.True(t, ok, "empty AND is always true")

	ok, err = filter.Eval(filter.Or(), rec, nil)
	require.NoError(t, err)
	assert.False(t, ok, "empty OR is always false")

	ok, err = filter.Eval(filter.Not(filter.Or()), rec, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// The identities hold inside larger trees too.
	ok, err = filter.Eval(filter.Or(filter.And(), filter.FieldEQ("status", "x")), rec, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = filter.Eval(filter.And(filter.Or(), filter.FieldEQ("status", "active")), rec, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// Empty lists in a filter tree compose to the same identities.
	target := taskTarget()
	p, err := filter.Compose(map[string]any{"AND": []any{}}, target)
	require.NoError(t, err)
	assert.Equal(t, "true", p.String())
	p, err = filter.Compose(map[string]any{"OR": []any{}}, target)
	require.NoError(t, err)
	assert.Equal(t, "false", p.String())
}

type task struct {
	ID       int
	Status   string
	Priority int
}

var tasks = []task{
	{1, "active", 1}, {2, "active", 5}, {3, "done", 9}, {4, "active", 7},
	{5, "paused", 5}, {6, "active", 4}, {7, "done", 2}, {8, "active", 10},
}

func taskTarget() *filter.Target {
	return filter.NewTarget("Task",
		&filter.Input{Name: "id", Column: "id", Kind: filter.KindNumeric, Type: field.TypeInt, Ops: filter.OpsFor(filter.KindNumeric)},
		&filter.Input{Name: "status", Column: "status", Kind: filter.KindText, Type: field.TypeString, Ops: filter.OpsFor(filter.KindText)},
		&filter.Input{Name: "priority", Column: "priority", Kind: filter.KindNumeric, Type: field.TypeInt, Ops: filter.OpsFor(filter.KindNumeric)},
	)
}

func TestComposeMatchesFixture(t *testing.T) {
	t.Parallel()

	tree := map[string]any{
		"AND": []any{
			map[string]any{"field": "status", "op": "exact", "value": "active"},
			map[string]any{"OR": []any{
				map[string]any{"field": "priority", "op": "gte", "value": 5},
			}},
		},
	}
	p, err := filter.Compose(tree, taskTarget())
	require.NoError(t, err)

	var got, want []int
	for _, tk := range tasks {
		rec := map[string]any{"id": tk.ID, "status": tk.Status, "priority": tk.Priority}
		ok, err := filter.Eval(p, rec, nil)
		require.NoError(t, err)
		if ok {
			got = append(got, tk.ID)
		}
		if tk.Status == "active" && tk.Priority >= 5 {
			want = append(want, tk.ID)
		}
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []int{2, 4, 8}, got)
}

func TestComposeInputForm(t *testing.T) {
	t.Parallel()

	p, err := filter.Compose(map[string]any{
		"status":   map[string]any{"icontains": "ACT"},
		"priority": map[string]any{"range": []any{4, 7}},
		"NOT":      map[string]any{"id": map[string]any{"in": []any{2}}},
	}, taskTarget())
	require.NoError(t, err)

	var got []int
	for _, tk := range tasks {
		ok, err := filter.Eval(p, map[string]any{"id": tk.ID, "status": tk.Status, "priority": tk.Priority}, nil)
		require.NoError(t, err)
		if ok {
			got = append(got, tk.ID)
		}
	}
	assert.Equal(t, []int{4, 6}, got)
}

func TestComposeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tree map[string]any
		path string
	}{
		{"unknown field", map[string]any{"title": map[string]any{"exact": "x"}}, "where.title"},
		{"unsupported op", map[string]any{"status": map[string]any{"gt": "x"}}, "where.status.gt"},
		{"range bounds", map[string]any{"priority": map[string]any{"range": []any{1}}}, "where.priority.range"},
		{"not a list", map[string]any{"priority": map[string]any{"in": 3}}, "where.priority.in"},
		{"bad AND", map[string]any{"AND": "x"}, "where.AND"},
		{"nested", map[string]any{"OR": []any{map[string]any{"nope": map[string]any{}}}}, "where.OR[0].nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := filter.Compose(tt.tree, taskTarget())
			require.Error(t, err)
			var errs autogql.ValidationErrors
			require.ErrorAs(t, err, &errs)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.path, errs[0].Name)
		})
	}
}

func TestComposeRelations(t *testing.T) {
	t.Parallel()

	target := filter.NewTarget("Post",
		&filter.Input{Name: "category", Column: "category_id", Kind: filter.KindRelation, Type: field.TypeInt, Ops: filter.OpsFor(filter.KindRelation)},
		&filter.Input{Name: "tags", Column: "id", Edge: "tags", Kind: filter.KindRelation, Type: field.TypeInt, Ops: filter.OpsFor(filter.KindRelation)},
	)
	p, err := filter.Compose(map[string]any{"category": map[string]any{"exact": 3}}, target)
	require.NoError(t, err)
	assert.Equal(t, `category_id == 3`, p.String())

	p, err = filter.Compose(map[string]any{"category": map[string]any{"isNull": true}}, target)
	require.NoError(t, err)
	assert.Equal(t, `category_id == nil`, p.String())

	p, err = filter.Compose(map[string]any{"tags": map[string]any{"in": []any{1, 2}}}, target)
	require.NoError(t, err)
	assert.Equal(t, `has_edge(tags, id in [1,2])`, p.String())

	p, err = filter.Compose(map[string]any{"tags": map[string]any{"isNull": true}}, target)
	require.NoError(t, err)
	assert.Equal(t, `!(has_edge(tags))`, p.String())
	require.NoError(t, filter.Validate(p, target))

	assert.Error(t, filter.Validate(filter.FieldEQ("title", "x"), target))
}

type resolver map[string][]map[string]any

func (r resolver) Related(edge string, rec map[string]any) ([]map[string]any, filter.Resolver, error) {
	var out []map[string]any
	for _, t := range r[edge] {
		if t["post_id"] == rec["id"] {
			out = append(out, t)
		}
	}
	return out, r, nil
}

func TestEvalEdges(t *testing.T) {
	t.Parallel()

	r := resolver{"tags": {
		{"post_id": 1, "name": "go"},
		{"post_id": 1, "name": "db"},
		{"post_id": 2, "name": "rust"},
	}}
	p := filter.HasEdgeWith("tags", filter.FieldEQ("name", "db"))
	ok, err := filter.Eval(p, map[string]any{"id": 1}, r)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = filter.Eval(p, map[string]any{"id": 2}, r)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = filter.Eval(filter.HasEdge("tags"), map[string]any{"id": 3}, r)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = filter.Eval(p, map[string]any{"id": 1}, nil)
	assert.Error(t, err)
}

func TestEvalLeaves(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	rec := map[string]any{
		"title":   "Hello World",
		"views":   int64(42),
		"rating":  4.5,
		"created": ts,
		"draft":   false,
		"deleted": nil,
	}
	tests := []struct {
		p    filter.P
		want bool
	}{
		{filter.FieldEQ("title", "Hello World"), true},
		{filter.FieldEqualFold("title", "hello world"), true},
		{filter.FieldContains("title", "lo W"), true},
		{filter.FieldContainsFold("title", "WORLD"), true},
		{filter.FieldHasPrefix("title", "Hell"), true},
		{filter.FieldHasSuffix("title", "xyz"), false},
		{filter.FieldEQ("views", 42), true},
		{filter.FieldGT("views", 41.5), true},
		{filter.FieldLTE("rating", 4), false},
		{filter.FieldIn("views", 1, 42), true},
		{filter.FieldNotIn("views", 1, 42), false},
		{filter.Field("rating", filter.Range, []any{4, 5}), true},
		{filter.Field("created", filter.Year, 2024), true},
		{filter.Field("created", filter.Month, 3), true},
		{filter.Field("created", filter.Day, 16), false},
		{filter.FieldGT("created", "2024-01-01"), true},
		{filter.FieldEQ("draft", false), true},
		{filter.FieldNil("deleted"), true},
		{filter.FieldNotNil("title"), true},
		{filter.FieldEQ("deleted", 1), false},
		{filter.FieldGT("missing", 1), false},
	}
	for i, tt := range tests {
		ok, err := filter.Eval(tt.p, rec, nil)
		require.NoError(t, err, i)
		assert.Equal(t, tt.want, ok, "%d: %s", i, tt.p)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	c, ok := filter.Compare(1, int64(2))
	require.True(t, ok)
	assert.Equal(t, -1, c)
	c, ok = filter.Compare("10", 9)
	require.True(t, ok)
	assert.Equal(t, 1, c)
	c, ok = filter.Compare("10", "9")
	require.True(t, ok)
	assert.Equal(t, -1, c, "text sorts as text")
	c, ok = filter.Compare(nil, 1)
	require.True(t, ok)
	assert.Equal(t, -1, c)
	_, ok = filter.Compare(true, 1)
	assert.False(t, ok)
	assert.True(t, filter.Equal(int32(7), 7.0))
}

func TestOpsFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []filter.Op{filter.Exact, filter.IExact, filter.Contains, filter.IContains, filter.StartsWith, filter.EndsWith},
		filter.OpsFor(filter.KindOf(field.TypeString)))
	assert.Equal(t, []filter.Op{filter.Exact, filter.GT, filter.GTE, filter.LT, filter.LTE, filter.In, filter.Range},
		filter.OpsFor(filter.KindOf(field.TypeDecimal)))
	assert.Equal(t, []filter.Op{filter.Exact, filter.Year, filter.Month, filter.Day, filter.GT, filter.GTE, filter.LT, filter.LTE, filter.Range},
		filter.OpsFor(filter.KindOf(field.TypeDate)))
	assert.Equal(t, []filter.Op{filter.Exact}, filter.OpsFor(filter.KindOf(field.TypeBool)))
	assert.Equal(t, []filter.Op{filter.Exact, filter.In}, filter.OpsFor(filter.KindOf(field.TypeEnum)))
	assert.Equal(t, []filter.Op{filter.Exact, filter.In, filter.IsNull}, filter.OpsFor(filter.KindRelation))
	assert.Empty(t, filter.OpsFor(filter.KindOf(field.TypeJSON)))

	opts := filter.ForField("published_at", field.TypeTime, true)
	require.NotEmpty(t, opts)
	last := opts[len(opts)-1]
	assert.Equal(t, filter.IsNull, last.Op)
	assert.Equal(t, field.TypeBool, last.Type)
	for _, o := range opts {
		if o.Op == filter.Year {
			assert.Equal(t, field.TypeInt, o.Type)
		}
	}
	assert.Nil(t, filter.ForField("payload", field.TypeJSON, false))
	assert.Len(t, filter.ForEdge("category", field.TypeInt), 3)
}
