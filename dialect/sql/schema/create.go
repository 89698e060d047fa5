// Package schema creates the SQL tables of entity layouts. DDL is planned
// and applied through the atlas drivers of each dialect.
//
// Create is additive: missing tables are created with their keys, unique
// indexes, checks and foreign keys, and missing columns are added to
// existing tables. Nothing is ever altered or dropped.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/schema/field"
)

// ExecQuerier is the database handle DDL runs on.
type ExecQuerier = schema.ExecQuerier

// Option configures Create.
type Option func(*config)

type config struct {
	foreignKeys bool
	logger      *slog.Logger
}

// WithForeignKeys enables or disables the creation of foreign keys.
// Enabled by default.
func WithForeignKeys(on bool) Option {
	return func(c *config) {
		c.foreignKeys = on
	}
}

// WithLogger sets the logger reporting the applied changes.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Create brings the tables of entities up to date in the attached schema
// of db. It is idempotent.
func Create(ctx context.Context, db ExecQuerier, dialectName string, entities []*dialect.Entity, opts ...Option) error {
	cfg := config{foreignKeys: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	drv, err := open(db, dialectName)
	if err != nil {
		return err
	}
	tables, err := Tables(dialectName, entities, cfg.foreignKeys)
	if err != nil {
		return err
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	current, err := drv.InspectSchema(ctx, "", &schema.InspectOptions{Tables: names})
	if err != nil {
		return fmt.Errorf("dialect/sql/schema: inspect: %w", err)
	}
	changes := Changes(current, tables)
	if len(changes) == 0 {
		return nil
	}
	if err := drv.ApplyChanges(ctx, changes); err != nil {
		return fmt.Errorf("dialect/sql/schema: apply changes: %w", err)
	}
	for _, c := range changes {
		switch c := c.(type) {
		case *schema.AddTable:
			cfg.logger.InfoContext(ctx, "table created", "table", c.T.Name)
		case *schema.ModifyTable:
			cfg.logger.InfoContext(ctx, "table altered", "table", c.T.Name, "changes", len(c.Changes))
		}
	}
	return nil
}

func open(db ExecQuerier, dialectName string) (migrate.Driver, error) {
	switch dialectName {
	case dialect.SQLite:
		return sqlite.Open(db)
	case dialect.Postgres:
		return postgres.Open(db)
	case dialect.MySQL:
		return mysql.Open(db)
	}
	return nil, fmt.Errorf("dialect/sql/schema: unsupported dialect %q", dialectName)
}

// Changes returns the changes creating the tables missing from current and
// adding the columns missing from existing ones. Added columns are nullable
// since existing rows hold no value for them.
func Changes(current *schema.Schema, tables []*schema.Table) []schema.Change {
	var changes []schema.Change
	for _, t := range tables {
		existing, ok := current.Table(t.Name)
		if !ok {
			changes = append(changes, &schema.AddTable{T: t})
			continue
		}
		var cs []schema.Change
		for _, c := range t.Columns {
			if _, ok := existing.Column(c.Name); ok {
				continue
			}
			add := schema.NewColumn(c.Name).SetType(c.Type.Type).SetNull(true)
			cs = append(cs, &schema.AddColumn{C: add})
			if slices.ContainsFunc(c.Indexes, func(idx *schema.Index) bool { return idx.Unique }) {
				// The index is not linked to the column, so that SQLite
				// adds it with ALTER TABLE instead of copying the table.
				cs = append(cs, &schema.AddIndex{I: &schema.Index{
					Name:   uniqueName(t.Name, c.Name),
					Unique: true,
					Table:  existing,
					Parts:  []*schema.IndexPart{{C: add}},
				}})
			}
		}
		if len(cs) > 0 {
			changes = append(changes, &schema.ModifyTable{T: existing, Changes: cs})
		}
	}
	return changes
}

// Tables returns the desired tables of entities, join tables included.
func Tables(dialectName string, entities []*dialect.Entity, foreignKeys bool) ([]*schema.Table, error) {
	var (
		tables []*schema.Table
		byName = make(map[string]*schema.Table)
		byEnt  = make(map[string]*dialect.Entity, len(entities))
		errs   []error
	)
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		byEnt[e.Name] = e
		t := schema.NewTable(e.Table)
		for _, c := range e.Columns {
			typ, err := columnType(dialectName, c)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", e.Name, c.Name, err))
				continue
			}
			col := schema.NewColumn(c.Storage()).SetType(typ).SetNull(c.Nullable && !c.PrimaryKey)
			if c.PrimaryKey && c.AutoIncrement {
				switch dialectName {
				case dialect.Postgres:
					col.AddAttrs(&postgres.Identity{Generation: "BY DEFAULT"})
				case dialect.MySQL:
					col.AddAttrs(&mysql.AutoIncrement{})
				}
			}
			t.AddColumns(col)
			if c.PrimaryKey {
				t.SetPrimaryKey(schema.NewPrimaryKey(col))
			} else if c.Unique {
				t.AddIndexes(schema.NewUniqueIndex(uniqueName(e.Table, col.Name)).AddColumns(col))
			}
			if c.Check != "" {
				t.AddChecks(schema.NewCheck().SetName(e.Table + "_" + col.Name + "_check").SetExpr(c.Check))
			}
		}
		tables = append(tables, t)
		byName[t.Name] = t
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	for _, e := range entities {
		t := byName[e.Table]
		for _, r := range e.Relations {
			target, ok := byEnt[r.Target]
			if !ok {
				continue
			}
			switch r.Kind {
			case dialect.OwnerFK:
				if !foreignKeys {
					continue
				}
				fk, _ := e.Column(r.Column)
				col, _ := t.Column(fk.Storage())
				ref, _ := byName[target.Table].Column(target.PK().Storage())
				t.AddForeignKeys(schema.NewForeignKey(t.Name + "_" + col.Name + "_fkey").
					AddColumns(col).
					SetRefTable(byName[target.Table]).
					AddRefColumns(ref))
			case dialect.JoinRel:
				if _, ok := byName[r.Join.Table]; ok {
					continue
				}
				jt, err := joinTable(dialectName, r.Join, e, target, byName, foreignKeys)
				if err != nil {
					return nil, err
				}
				tables = append(tables, jt)
				byName[jt.Name] = jt
			}
		}
	}
	return tables, nil
}

// joinTable returns the join table of a many-to-many relation. Its primary
// key is the pair of both keys; rows go away with either side.
func joinTable(dialectName string, j *dialect.JoinTable, owner, target *dialect.Entity, byName map[string]*schema.Table, foreignKeys bool) (*schema.Table, error) {
	t := schema.NewTable(j.Table)
	var cols []*schema.Column
	for _, side := range []struct {
		name   string
		entity *dialect.Entity
	}{{j.Column, owner}, {j.RefColumn, target}} {
		pk := *side.entity.PK()
		pk.AutoIncrement, pk.Nullable, pk.Unique, pk.Check = false, false, false, ""
		typ, err := columnType(dialectName, &pk)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", j.Table, side.name, err)
		}
		col := schema.NewColumn(side.name).SetType(typ)
		t.AddColumns(col)
		cols = append(cols, col)
		if foreignKeys {
			ref, _ := byName[side.entity.Table].Column(side.entity.PK().Storage())
			t.AddForeignKeys(schema.NewForeignKey(t.Name + "_" + col.Name + "_fkey").
				AddColumns(col).
				SetRefTable(byName[side.entity.Table]).
				AddRefColumns(ref).
				SetOnDelete(schema.Cascade))
		}
	}
	t.SetPrimaryKey(schema.NewPrimaryKey(cols...))
	return t, nil
}

func uniqueName(table, column string) string {
	return table + "_" + column + "_key"
}

// columnType returns the column type of c in the given dialect.
func columnType(dialectName string, c *dialect.Column) (schema.Type, error) {
	if raw, ok := c.TypeFor(dialectName); ok {
		switch dialectName {
		case dialect.SQLite:
			return sqlite.ParseType(raw)
		case dialect.Postgres:
			return postgres.ParseType(raw)
		case dialect.MySQL:
			return mysql.ParseType(raw)
		}
	}
	switch dialectName {
	case dialect.SQLite:
		return sqliteType(c), nil
	case dialect.Postgres:
		return postgresType(c), nil
	case dialect.MySQL:
		return mysqlType(c), nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", dialectName)
}

func sqliteType(c *dialect.Column) schema.Type {
	switch c.Type {
	case field.TypeInt:
		return &schema.IntegerType{T: "integer"}
	case field.TypeFloat:
		return &schema.FloatType{T: "real"}
	case field.TypeBool:
		return &schema.BoolType{T: "bool"}
	case field.TypeDate:
		return &schema.TimeType{T: "date"}
	case field.TypeTime:
		return &schema.TimeType{T: "datetime"}
	case field.TypeJSON:
		return &schema.JSONType{T: "json"}
	case field.TypeBytes:
		return &schema.BinaryType{T: "blob"}
	case field.TypeUUID:
		return &schema.UUIDType{T: "uuid"}
	}
	// Decimals are kept as text to preserve their precision.
	return &schema.StringType{T: "text"}
}

func postgresType(c *dialect.Column) schema.Type {
	switch c.Type {
	case field.TypeInt:
		return &schema.IntegerType{T: "bigint"}
	case field.TypeFloat:
		return &schema.FloatType{T: "double precision"}
	case field.TypeDecimal:
		return &schema.DecimalType{T: "numeric"}
	case field.TypeBool:
		return &schema.BoolType{T: "boolean"}
	case field.TypeDate:
		return &schema.TimeType{T: "date"}
	case field.TypeTime:
		return &schema.TimeType{T: "timestamp with time zone"}
	case field.TypeJSON:
		return &schema.JSONType{T: "jsonb"}
	case field.TypeBytes:
		return &schema.BinaryType{T: "bytea"}
	case field.TypeUUID:
		return &schema.UUIDType{T: "uuid"}
	case field.TypeString, field.TypeEnum:
		return &schema.StringType{T: "character varying", Size: c.Size}
	}
	return &schema.StringType{T: "text"}
}

func mysqlType(c *dialect.Column) schema.Type {
	switch c.Type {
	case field.TypeInt:
		return &schema.IntegerType{T: "bigint"}
	case field.TypeFloat:
		return &schema.FloatType{T: "double"}
	case field.TypeDecimal:
		return &schema.DecimalType{T: "decimal", Precision: 38, Scale: 10}
	case field.TypeBool:
		return &schema.BoolType{T: "bool"}
	case field.TypeDate:
		return &schema.TimeType{T: "date"}
	case field.TypeTime:
		p := 6
		return &schema.TimeType{T: "datetime", Precision: &p}
	case field.TypeJSON:
		return &schema.JSONType{T: "json"}
	case field.TypeBytes:
		return &schema.BinaryType{T: "longblob"}
	case field.TypeUUID:
		return &schema.StringType{T: "char", Size: 36}
	case field.TypeText:
		if !c.Unique {
			return &schema.StringType{T: "longtext"}
		}
	}
	size := c.Size
	if size <= 0 {
		size = 255
	}
	return &schema.StringType{T: "varchar", Size: size}
}
