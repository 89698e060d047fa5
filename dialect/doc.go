// Package dialect defines the persistence contract used by autogql.
//
// The engine never issues storage-specific query syntax. It talks to a
// Provider through the Executor operations below, each scoped to one entity
// by name:
//
//	type Executor interface {
//	    Get(ctx context.Context, entity string, key any) (Record, error)
//	    Find(ctx context.Context, entity string, q *Query) ([]Record, error)
//	    Count(ctx context.Context, entity string, where filter.P) (int, error)
//	    Insert(ctx context.Context, entity string, values Record) (Record, error)
//	    Update(ctx context.Context, entity string, key any, values Record) (Record, error)
//	    Delete(ctx context.Context, entity string, key any) error
//	    Link(ctx context.Context, join *JoinTable, key, ref any) error
//	    Unlink(ctx context.Context, join *JoinTable, key, ref any) error
//	    Pairs(ctx context.Context, join *JoinTable, keys []any) ([][2]any, error)
//	}
//
// The Tx interface extends Executor with Commit and Rollback. RunInTx wraps
// a function in a transaction and retries it on errors marked with
// Retryable:
//
//	err := dialect.RunInTx(ctx, provider, func(ctx context.Context, tx dialect.Tx) error {
//	    _, err := tx.Insert(ctx, "Post", dialect.Record{"title": "hello"})
//	    return err
//	}, dialect.WithRetries(2))
//
// # Providers
//
//   - dialect/memory: an in-memory provider, used in tests and development
//   - dialect/sql: a database/sql provider for PostgreSQL, MySQL and SQLite
//   - dialect/sql/schema: table creation for the SQL provider
package dialect
