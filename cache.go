package autogql

import (
	"context"
	"strings"
	"time"
)

// Cache is the interface for caching query results.
// The engine only relies on the invalidation contract: after a mutation
// touching an entity, every key under EntityPrefix(schema, entity) is
// deleted; a settings change clears everything under SchemaPrefix(schema).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies a cached query result.
type CacheKey struct {
	Schema    string
	Entity    string
	Operation string
	Args      string // Stable digest of the operation arguments
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return strings.Join([]string{k.Schema, k.Entity, k.Operation, k.Args}, ":")
}

// SchemaPrefix returns the key prefix shared by all entries of a schema.
func SchemaPrefix(schema string) string {
	return schema + ":"
}

// EntityPrefix returns the key prefix shared by all entries of an entity
// within a schema.
func EntityPrefix(schema, entity string) string {
	return schema + ":" + entity + ":"
}
