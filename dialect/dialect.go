package dialect

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/schema/field"
)

// Dialect names for supported providers.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite3"
	Postgres = "postgres"
	Memory   = "memory"
)

// Record is a materialized entity instance: its field values keyed by
// column name, including the foreign-key columns of owned relationships.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Keyer is implemented by live instances that can be passed where an
// identifier is expected.
type Keyer interface {
	Key() any
}

// Column describes a stored column of an entity.
type Column struct {
	Name          string
	Type          field.Type
	Nullable      bool
	Unique        bool
	PrimaryKey    bool
	AutoIncrement bool // key assigned by the provider on insert
	Size          int
	StorageKey    string
	// SQLType overrides the column type per SQL dialect. The empty key
	// applies to every dialect.
	SQLType map[string]string
	// Check is a SQL CHECK constraint expression over the column.
	Check string
}

// TypeFor returns the SQL type override of the column for a dialect.
func (c *Column) TypeFor(dialect string) (string, bool) {
	if t, ok := c.SQLType[dialect]; ok {
		return t, true
	}
	t, ok := c.SQLType[""]
	return t, ok
}

// Storage returns the storage name of the column.
func (c *Column) Storage() string {
	if c.StorageKey != "" {
		return c.StorageKey
	}
	return c.Name
}

// RelKind tells where a relationship is stored.
type RelKind uint8

// Relationship storage kinds.
const (
	// OwnerFK relationships store the target key in a column of the owner.
	OwnerFK RelKind = iota + 1
	// InverseFK relationships are stored in a column of the target that
	// holds the owner key.
	InverseFK
	// JoinRel relationships are stored in a join table.
	JoinRel
)

// String returns the kind name.
func (k RelKind) String() string {
	switch k {
	case OwnerFK:
		return "owner_fk"
	case InverseFK:
		return "inverse_fk"
	case JoinRel:
		return "join"
	}
	return "invalid"
}

// JoinTable describes the join table of a many-to-many relationship, as
// seen from one side.
type JoinTable struct {
	Table     string
	Column    string // references the owner key
	RefColumn string // references the target key
}

// Inverse returns the join table as seen from the target.
func (j *JoinTable) Inverse() *JoinTable {
	return &JoinTable{Table: j.Table, Column: j.RefColumn, RefColumn: j.Column}
}

// Relation describes how records of an entity reach records of another.
type Relation struct {
	Name   string
	Target string
	Kind   RelKind
	Column string // foreign-key column; on the owner for OwnerFK, on the target for InverseFK
	Join   *JoinTable
	Unique bool // at most one related record
}

// Entity describes the storage layout of one entity.
type Entity struct {
	Name      string
	Table     string
	Columns   []*Column
	Relations []*Relation
}

// PK returns the primary-key column.
func (e *Entity) PK() *Column {
	for _, c := range e.Columns {
		if c.PrimaryKey {
			return c
		}
	}
	return nil
}

// Column returns the column with the given name.
func (e *Entity) Column(name string) (*Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Relation returns the relationship with the given name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Key returns the primary-key value of rec.
func (e *Entity) Key(rec Record) any {
	if pk := e.PK(); pk != nil {
		return rec[pk.Name]
	}
	return nil
}

// Validate checks the layout of an entity.
func (e *Entity) Validate() error {
	if e.Name == "" || e.Table == "" {
		return errors.New("dialect: entity name and table are required")
	}
	pks := 0
	seen := make(map[string]bool, len(e.Columns))
	for _, c := range e.Columns {
		if seen[c.Name] {
			return fmt.Errorf("dialect: duplicate column %q on %s", c.Name, e.Name)
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			pks++
		}
	}
	if pks != 1 {
		return fmt.Errorf("dialect: entity %s must have exactly one primary key, got %d", e.Name, pks)
	}
	for _, r := range e.Relations {
		if r.Kind == JoinRel && r.Join == nil {
			return fmt.Errorf("dialect: relation %s.%s has no join table", e.Name, r.Name)
		}
		if r.Kind == OwnerFK && !seen[r.Column] {
			return fmt.Errorf("dialect: relation %s.%s references unknown column %q", e.Name, r.Name, r.Column)
		}
	}
	return nil
}

// OrderTerm orders results by one column.
type OrderTerm struct {
	Field string
	Desc  bool
}

// String returns the term as "field" or "-field".
func (o OrderTerm) String() string {
	if o.Desc {
		return "-" + o.Field
	}
	return o.Field
}

// Query selects records of one entity. A zero Limit means no limit.
type Query struct {
	Where  filter.P
	Order  []OrderTerm
	Offset int
	Limit  int
}

// Executor is the persistence contract consumed by the engine. Every
// operation is scoped to one entity by name. Get, Update and Delete report
// missing records with an autogql.NotFoundError; constraint violations are
// reported with an autogql.ConstraintError.
type Executor interface {
	// Get fetches a record by primary key.
	Get(ctx context.Context, entity string, key any) (Record, error)
	// Find fetches the records matching q.
	Find(ctx context.Context, entity string, q *Query) ([]Record, error)
	// Count counts the records matching where.
	Count(ctx context.Context, entity string, where filter.P) (int, error)
	// Insert stores a new record and returns it as stored.
	Insert(ctx context.Context, entity string, values Record) (Record, error)
	// Update patches the given columns of a record and returns it as stored.
	Update(ctx context.Context, entity string, key any, values Record) (Record, error)
	// Delete removes a record.
	Delete(ctx context.Context, entity string, key any) error
	// Link adds a row to a join table.
	Link(ctx context.Context, join *JoinTable, key, ref any) error
	// Unlink removes a row from a join table.
	Unlink(ctx context.Context, join *JoinTable, key, ref any) error
	// Pairs returns the (key, ref) rows of a join table whose key is one of keys.
	Pairs(ctx context.Context, join *JoinTable, keys []any) ([][2]any, error)
}

// Tx is a transactional Executor.
type Tx interface {
	Executor
	Commit() error
	Rollback() error
}

// Provider is a persistence backend.
type Provider interface {
	Executor
	// Dialect returns the dialect name.
	Dialect() string
	// Migrate prepares the storage of the given entities. It is idempotent.
	Migrate(ctx context.Context, entities ...*Entity) error
	// Entity returns a migrated entity layout.
	Entity(name string) (*Entity, bool)
	// Tx starts a transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close releases the resources of the provider.
	Close() error
}
