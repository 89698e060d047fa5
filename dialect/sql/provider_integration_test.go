//go:build integration

package sql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/filter"
)

func newPostgres(t *testing.T) *Provider {
	t.Helper()
	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("autogql"),
		postgres.WithUsername("autogql"),
		postgres.WithPassword("autogql"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	drv, err := Open(dialect.Postgres, dsn)
	require.NoError(t, err)
	p := NewProvider(drv, WithSlowQueryLog())
	require.NoError(t, p.Migrate(ctx, append(entities(), kitchen())...))
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func TestPostgresProvider(t *testing.T) {
	ctx := context.Background()
	p := newPostgres(t)

	cat, err := p.Insert(ctx, "Category", dialect.Record{"name": "go"})
	require.NoError(t, err)
	assert.Equal(t, 1, cat["id"])

	published := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	post, err := p.Insert(ctx, "Post", dialect.Record{"title": "Go basics", "views": 3, "category_id": cat["id"], "published": published})
	require.NoError(t, err)
	got, ok := post["published"].(time.Time)
	require.True(t, ok)
	assert.True(t, published.Equal(got))

	_, err = p.Insert(ctx, "Category", dialect.Record{"name": "go"})
	assert.True(t, autogql.IsConstraintError(err))

	recs, err := p.Find(ctx, "Post", &dialect.Query{Where: filter.And(
		filter.FieldContains("title", "Go"),
		filter.Field("published", filter.Month, 3),
		filter.HasEdgeWith("category", filter.FieldEqualFold("name", "GO")),
	)})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	n, err := p.Count(ctx, "Post", filter.FieldContains("title", "go"))
	require.NoError(t, err)
	assert.Zero(t, n, "contains is case-sensitive")

	tag, err := p.Insert(ctx, "Tag", dialect.Record{"label": "db"})
	require.NoError(t, err)
	require.NoError(t, p.Link(ctx, postTags, post["id"], tag["id"]))
	require.NoError(t, p.Link(ctx, postTags, post["id"], tag["id"]))
	pairs, err := p.Pairs(ctx, postTags, []any{post["id"]})
	require.NoError(t, err)
	assert.Equal(t, [][2]any{{post["id"], tag["id"]}}, pairs)

	sample, err := p.Insert(ctx, "Sample", dialect.Record{"active": true, "price": "10.25", "meta": []any{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "10.25", sample["price"])
	assert.Equal(t, []any{"a"}, sample["meta"])

	require.NoError(t, p.Migrate(ctx, entities()...))
	assert.NotZero(t, p.QueryStats().Stats().TotalQueries)
}
