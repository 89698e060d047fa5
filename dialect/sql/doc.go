// Package sql implements dialect.Provider over PostgreSQL, MySQL and SQLite.
//
// A Driver wraps a *sql.DB of one dialect:
//
//	drv, err := sql.Open("sqlite", "file:app.db?_pragma=foreign_keys(1)")
//	if err != nil {
//		return err
//	}
//	p := sql.NewProvider(drv, sql.WithSlowQueryLog())
//	if err := p.Migrate(ctx, entities...); err != nil {
//		return err
//	}
//
// Migrate creates the tables of the entities with their keys, unique
// indexes and foreign keys, and adds the columns missing from existing
// tables. It never drops anything.
//
// # Predicates
//
// Filters are compiled by Builder.Where. Lookups on related entities
// become correlated EXISTS subqueries, and comparisons never yield NULL,
// so that negated filters match rows without a value:
//
//	b := sql.NewBuilder(dialect.Postgres)
//	err := b.Where(filter.FieldNEQ("views", 0), post, "t0", lookup)
//	// NOT (("t0"."views" IS NOT NULL AND "t0"."views" = $1))
//
// # Errors
//
// Driver errors are classified: constraint violations are reported as
// autogql.ConstraintError and deadlocks, serialization failures and busy
// databases are marked retryable for dialect.RunInTx.
//
// # Session variables
//
// WithVar attaches session variables to a context. They are set before
// every statement run with the context, e.g. for row-level security:
//
//	ctx = sql.WithVar(ctx, "app.tenant", tenant)
//
// A provider built with WithViewerVars sets them from the privacy viewer of
// each statement:
//
//	p := sql.NewProvider(drv, sql.WithViewerVars("app.user_id", "app.tenant_id"))
package sql
