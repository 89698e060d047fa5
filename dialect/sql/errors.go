package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/dialect"
)

// PostgreSQL SQLSTATE codes.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgSerialization       = "40001"
	pgDeadlock            = "40P01"
)

// MySQL error numbers.
const (
	mysqlBadNull          = 1048
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mysqlForeignKeyParent = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild  = 1452 // Cannot add or update a child row
	mysqlCheckViolation   = 3819
)

// SQLite primary result codes. Extended codes carry the primary code in
// their low byte.
const (
	sqliteBusy       = 5
	sqliteLocked     = 6
	sqliteConstraint = 19
)

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok {
		return e.SQLState() == pgUniqueViolation
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		return e.Number == mysqlDuplicateEntry
	}
	return containsAny(err.Error(),
		"UNIQUE constraint failed",   // SQLite
		"violates unique constraint", // Postgres (string fallback)
		"Error 1062",                 // MySQL (string fallback)
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok {
		return e.SQLState() == pgForeignKeyViolation
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		return e.Number == mysqlForeignKeyParent || e.Number == mysqlForeignKeyChild
	}
	return containsAny(err.Error(),
		"FOREIGN KEY constraint failed",   // SQLite
		"violates foreign key constraint", // Postgres
		"Error 1451", "Error 1452",        // MySQL
	)
}

// IsCheckConstraintError reports if the error resulted from a database check or not-null constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok {
		return e.SQLState() == pgCheckViolation || e.SQLState() == pgNotNullViolation
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		return e.Number == mysqlCheckViolation || e.Number == mysqlBadNull
	}
	return containsAny(err.Error(),
		"CHECK constraint failed",    // SQLite
		"NOT NULL constraint failed", // SQLite
		"violates check constraint",  // Postgres
		"violates not-null constraint",
	)
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	if e, ok := asError[*sqlite.Error](err); ok && e.Code()&0xff == sqliteConstraint {
		return true
	}
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// IsRetryableError reports if the error aborted the transaction in a way a
// retry may resolve: deadlocks, serialization failures and busy databases.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[*pq.Error](err); ok {
		return e.SQLState() == pgSerialization || e.SQLState() == pgDeadlock
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		return e.Number == mysqlDeadlock || e.Number == mysqlLockWaitTimeout
	}
	if e, ok := asError[*sqlite.Error](err); ok {
		code := e.Code() & 0xff
		return code == sqliteBusy || code == sqliteLocked
	}
	return false
}

// classify maps a driver error to the error kinds of the engine. Constraint
// violations become autogql.ConstraintError and retryable failures are
// marked with dialect.ErrRetryable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsConstraintError(err):
		return autogql.NewConstraintError(message(err), err)
	case IsRetryableError(err):
		return dialect.Retryable(err)
	}
	return err
}

// message returns the driver message of err without wrapping prefixes.
func message(err error) string {
	if e, ok := asError[*pq.Error](err); ok {
		return e.Message
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		return e.Message
	}
	if e, ok := asError[*sqlite.Error](err); ok {
		return e.Error()
	}
	return err.Error()
}

// asError attempts to extract an error of type T from the error chain.
func asError[T error](err error) (T, bool) {
	var target T
	if err == nil {
		return target, false
	}
	ok := errors.As(err, &target)
	return target, ok
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
