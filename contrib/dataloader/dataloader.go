// Package dataloader holds the helpers used to resolve relations in
// batches. The keys of all owners of a level are collected, the related
// records are fetched with one query, and the results are aligned back to
// their owners:
//
//	keys := dataloader.Keys(posts, authorID, normalize)
//	authors, err := provider.Find(ctx, "Author", &dialect.Query{Where: filter.FieldIn("id", keys...)})
//	groups := dataloader.Align(posts, authorOf, dataloader.GroupByKey(authors, idOf))
//	// groups[i] holds the author of posts[i]
package dataloader

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// Keys returns the distinct keys of values in first-seen order. Values for
// which keyFn reports false are skipped. The keys are returned as extracted,
// norm decides which keys are equal.
func Keys[K comparable, V any](values []V, keyFn func(V) (any, bool), norm func(any) K) []any {
	seen := make(map[K]bool, len(values))
	var keys []any
	for _, v := range values {
		k, ok := keyFn(v)
		if !ok {
			continue
		}
		if n := norm(k); !seen[n] {
			seen[n] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// GroupByKey groups values by key, keeping their order within a group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	groups := make(map[K][]V)
	for _, v := range values {
		k := keyFn(v)
		groups[k] = append(groups[k], v)
	}
	return groups
}

// Align returns the group of each owner, in the order of owners.
func Align[K comparable, O, V any](owners []O, keyFn KeyFunc[K, O], groups map[K][]V) [][]V {
	out := make([][]V, len(owners))
	for i, o := range owners {
		out[i] = groups[keyFn(o)]
	}
	return out
}

// Links indexes pairs as an adjacency set: Links(pairs, from, to)[a][b] is
// true when a pair links a to b.
func Links[K comparable, P any](pairs []P, from, to KeyFunc[K, P]) map[K]map[K]bool {
	links := make(map[K]map[K]bool)
	for _, p := range pairs {
		a := from(p)
		if links[a] == nil {
			links[a] = make(map[K]bool)
		}
		links[a][to(p)] = true
	}
	return links
}
