package dataloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type record map[string]any

func id(r record) any { return r["id"] }

func same(v any) any { return v }

func TestKeys(t *testing.T) {
	recs := []record{
		{"id": 1, "author": 10},
		{"id": 2, "author": nil},
		{"id": 3, "author": 11},
		{"id": 4, "author": 10},
	}
	author := func(r record) (any, bool) { return r["author"], r["author"] != nil }
	assert.Equal(t, []any{10, 11}, Keys(recs, author, same))
	assert.Nil(t, Keys([]record{{"id": 1}}, author, same))

	t.Run("normalized", func(t *testing.T) {
		vals := []any{int64(1), 1, []byte("a"), "a"}
		norm := func(v any) any {
			switch v := v.(type) {
			case int64:
				return int(v)
			case []byte:
				return string(v)
			}
			return v
		}
		keys := Keys(vals, func(v any) (any, bool) { return v, true }, norm)
		assert.Equal(t, []any{int64(1), []byte("a")}, keys, "first extracted form is kept")
	})
}

func TestGroupByKey(t *testing.T) {
	posts := []record{
		{"id": 1, "author": 10},
		{"id": 2, "author": 11},
		{"id": 3, "author": 10},
	}
	groups := GroupByKey(posts, func(r record) any { return r["author"] })
	assert.Len(t, groups, 2)
	assert.Equal(t, []record{posts[0], posts[2]}, groups[10])
	assert.Equal(t, []record{posts[1]}, groups[11])
	assert.Empty(t, GroupByKey([]record(nil), id))
}

func TestAlign(t *testing.T) {
	authors := []record{{"id": 10}, {"id": 11}}
	posts := []record{
		{"id": 1, "author": 11},
		{"id": 2, "author": 12},
		{"id": 3, "author": 10},
		{"id": 4, "author": nil},
	}
	groups := Align(posts, func(r record) any { return r["author"] }, GroupByKey(authors, id))
	assert.Equal(t, [][]record{{authors[1]}, nil, {authors[0]}, nil}, groups)
	assert.Empty(t, Align([]record(nil), id, map[any][]record{}))
}

func TestLinks(t *testing.T) {
	pairs := [][2]any{{1, "go"}, {1, "db"}, {2, "go"}}
	links := Links(pairs,
		func(p [2]any) any { return p[0] },
		func(p [2]any) any { return p[1] })
	assert.Equal(t, map[any]map[any]bool{
		1: {"go": true, "db": true},
		2: {"go": true},
	}, links)
	assert.False(t, links[3]["go"])
}

func BenchmarkGroupByKey(b *testing.B) {
	recs := make([]record, 1000)
	for i := range recs {
		recs[i] = record{"id": i, "author": i % 50}
	}
	author := func(r record) any { return r["author"] }
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Align(recs, id, GroupByKey(recs, author))
	}
}
