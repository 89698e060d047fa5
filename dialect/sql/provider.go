package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/dialect/sql/schema"
	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/privacy"
	"github.com/raillogistic/autogql/schema/field"
)

// ErrTxDone is returned by operations on a finished transaction.
var ErrTxDone = sql.ErrTxDone

// Provider is a dialect.Provider over a SQL database. It is safe for
// concurrent use.
type Provider struct {
	executor
	drv         *Driver
	obs         *observer
	logger      *slog.Logger
	foreignKeys bool
	// session variables set from the viewer of a statement.
	userVar, tenantVar string

	mu       sync.RWMutex
	entities map[string]*dialect.Entity
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger of the provider.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
			p.obs.logger = l
		}
	}
}

// WithoutForeignKeys skips the creation of foreign keys by Migrate.
func WithoutForeignKeys() Option {
	return func(p *Provider) {
		p.foreignKeys = false
	}
}

// WithViewerVars sets the session variables userVar and tenantVar to the ID
// and the tenant of the viewer before each statement, for row-level security
// policies reading them with current_setting. An empty name is not set, and
// a variable already attached to the context with WithVar is kept. Session
// variables are supported on PostgreSQL and MySQL only.
func WithViewerVars(userVar, tenantVar string) Option {
	return func(p *Provider) {
		p.userVar, p.tenantVar = userVar, tenantVar
	}
}

// NewProvider returns a Provider running its statements on drv.
func NewProvider(drv *Driver, opts ...Option) *Provider {
	p := &Provider{
		drv:         drv,
		logger:      slog.Default(),
		foreignKeys: true,
		entities:    make(map[string]*dialect.Entity),
	}
	p.obs = newObserver(p.logger)
	for _, opt := range opts {
		opt(p)
	}
	drv.obs = p.obs
	p.executor = executor{p: p, conn: drv.Conn}
	return p
}

// Dialect implements dialect.Provider.
func (p *Provider) Dialect() string { return p.drv.Dialect() }

// Driver returns the driver of the provider.
func (p *Provider) Driver() *Driver { return p.drv }

// Close implements dialect.Provider.
func (p *Provider) Close() error { return p.drv.Close() }

// Migrate implements dialect.Provider. Tables of the given entities and of
// the entities migrated before are created or completed with their missing
// columns; existing rows are kept.
func (p *Provider) Migrate(ctx context.Context, entities ...*dialect.Entity) error {
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	all := maps.Clone(p.entities)
	for _, e := range entities {
		all[e.Name] = e
	}
	names := slices.Sorted(maps.Keys(all))
	layouts := make([]*dialect.Entity, len(names))
	for i, name := range names {
		layouts[i] = all[name]
	}
	err := schema.Create(ctx, p.drv.DB(), p.drv.Dialect(), layouts,
		schema.WithLogger(p.logger),
		schema.WithForeignKeys(p.foreignKeys),
	)
	if err != nil {
		return err
	}
	for _, e := range entities {
		p.entities[e.Name] = e
		p.logger.Debug("sql table ready", "entity", e.Name, "table", e.Table, "dialect", p.drv.Dialect())
	}
	return nil
}

// Entity implements dialect.Provider.
func (p *Provider) Entity(name string) (*dialect.Entity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entities[name]
	return e, ok
}

func (p *Provider) lookup(name string) (*dialect.Entity, error) {
	e, ok := p.Entity(name)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: unknown entity %q", name)
	}
	return e, nil
}

// joinKeys returns the key columns of a join table as seen from join: the
// owner key under join.Column and the target key under join.RefColumn.
func (p *Provider) joinKeys(join *dialect.JoinTable) (key, ref *dialect.Column, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entities {
		for _, r := range e.Relations {
			if r.Kind != dialect.JoinRel || r.Join.Table != join.Table {
				continue
			}
			target, ok := p.entities[r.Target]
			if !ok {
				continue
			}
			owner, other := *e.PK(), *target.PK()
			switch join.Column {
			case r.Join.Column:
				owner.Name, other.Name = r.Join.Column, r.Join.RefColumn
				return &owner, &other, nil
			case r.Join.RefColumn:
				other.Name, owner.Name = r.Join.RefColumn, r.Join.Column
				return &other, &owner, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("dialect/sql: unknown join table %q", join.Table)
}

// Tx implements dialect.Provider.
func (p *Provider) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, conn, err := p.drv.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &Tx{executor: executor{p: p, conn: conn}, tx: tx}, nil
}

// Tx is a SQL transaction.
type Tx struct {
	executor
	tx *sql.Tx
}

// Commit implements dialect.Tx.
func (tx *Tx) Commit() error {
	return classify(tx.tx.Commit())
}

// Rollback implements dialect.Tx.
func (tx *Tx) Rollback() error {
	return tx.tx.Rollback()
}

// session attaches the viewer variables of the provider to ctx.
func (p *Provider) session(ctx context.Context) context.Context {
	if (p.userVar == "" && p.tenantVar == "") || p.drv.Dialect() == dialect.SQLite {
		return ctx
	}
	v := privacy.ViewerFromContext(ctx)
	if v == nil {
		return ctx
	}
	for _, sv := range [...]struct{ name, value string }{
		{p.userVar, v.GetID()},
		{p.tenantVar, v.GetTenantID()},
	} {
		if sv.name == "" || sv.value == "" {
			continue
		}
		if _, ok := VarFromContext(ctx, sv.name); !ok {
			ctx = WithVar(ctx, sv.name, sv.value)
		}
	}
	return ctx
}

// executor runs the statements of a provider on a connection, either the
// database pool or a transaction.
type executor struct {
	p    *Provider
	conn Conn
}

func (e executor) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return e.conn.Exec(e.p.session(ctx), query, args...)
}

func (e executor) rows(ctx context.Context, query string, args ...any) (*Rows, error) {
	return e.conn.Query(e.p.session(ctx), query, args...)
}

func (e executor) builder() *Builder {
	return NewBuilder(e.conn.dialect)
}

func (e executor) selectFrom(b *Builder, ent *dialect.Entity) {
	b.WriteString("SELECT ")
	for i, c := range ent.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Column("t0", c.Storage())
	}
	b.WriteString(" FROM ").Ident(ent.Table).WriteString(" ").Ident("t0")
}

// query runs the statement of b and decodes its rows as records of ent.
func (e executor) query(ctx context.Context, ent *dialect.Entity, b *Builder) ([]dialect.Record, error) {
	query, args := b.Query()
	rows, err := e.rows(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var recs []dialect.Record
	for rows.Next() {
		values := make([]any, len(ent.Columns))
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec := make(dialect.Record, len(values))
		for i, c := range ent.Columns {
			v, err := decode(c, values[i])
			if err != nil {
				return nil, err
			}
			rec[c.Name] = v
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return recs, nil
}

func (e executor) whereKey(b *Builder, ent *dialect.Entity, alias string, key any) error {
	pk := ent.PK()
	v, err := encode(b.dialect, pk, key)
	if err != nil {
		return err
	}
	b.WriteString(" WHERE ").Column(alias, pk.Storage()).WriteString(" = ").Arg(v)
	return nil
}

// Get implements dialect.Executor.
func (e executor) Get(ctx context.Context, entity string, key any) (dialect.Record, error) {
	ent, err := e.p.lookup(entity)
	if err != nil {
		return nil, err
	}
	b := e.builder()
	e.selectFrom(b, ent)
	if err := e.whereKey(b, ent, "t0", key); err != nil {
		return nil, err
	}
	recs, err := e.query(ctx, ent, b)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, autogql.NewNotFoundError(entity, key)
	}
	return recs[0], nil
}

// Find implements dialect.Executor. Records are ordered by q.Order and
// then by primary key.
func (e executor) Find(ctx context.Context, entity string, q *dialect.Query) ([]dialect.Record, error) {
	if q == nil {
		q = &dialect.Query{}
	}
	ent, err := e.p.lookup(entity)
	if err != nil {
		return nil, err
	}
	b := e.builder()
	e.selectFrom(b, ent)
	if q.Where != nil {
		b.WriteString(" WHERE ")
		if err := b.Where(q.Where, ent, "t0", e.p.lookup); err != nil {
			return nil, err
		}
	}
	b.WriteString(" ORDER BY ")
	byKey := false
	for _, o := range q.Order {
		c, ok := ent.Column(o.Field)
		if !ok {
			return nil, fmt.Errorf("dialect/sql: unknown order column %q on %s", o.Field, entity)
		}
		b.Column("t0", c.Storage())
		if o.Desc {
			b.WriteString(" DESC")
		}
		if byKey = c.PrimaryKey; byKey {
			break
		}
		b.WriteString(", ")
	}
	if !byKey {
		b.Column("t0", ent.PK().Storage())
	}
	switch {
	case q.Limit > 0:
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	case q.Offset > 0 && b.dialect == dialect.SQLite:
		b.WriteString(" LIMIT -1")
	case q.Offset > 0 && b.dialect == dialect.MySQL:
		b.WriteString(" LIMIT 18446744073709551615")
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}
	return e.query(ctx, ent, b)
}

// Count implements dialect.Executor.
func (e executor) Count(ctx context.Context, entity string, where filter.P) (int, error) {
	ent, err := e.p.lookup(entity)
	if err != nil {
		return 0, err
	}
	b := e.builder()
	b.WriteString("SELECT COUNT(*) FROM ").Ident(ent.Table).WriteString(" ").Ident("t0")
	if where != nil {
		b.WriteString(" WHERE ")
		if err := b.Where(where, ent, "t0", e.p.lookup); err != nil {
			return 0, err
		}
	}
	query, args := b.Query()
	rows, err := e.rows(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return int(n), classify(rows.Err())
}

func checkColumns(ent *dialect.Entity, values dialect.Record) error {
	for name := range values {
		if _, ok := ent.Column(name); !ok {
			return fmt.Errorf("dialect/sql: unknown column %q on %s", name, ent.Name)
		}
	}
	return nil
}

// Insert implements dialect.Executor. Integer keys are assigned by the
// database, uuid keys are generated as random UUIDs and textual keys as
// ULIDs.
func (e executor) Insert(ctx context.Context, entity string, values dialect.Record) (dialect.Record, error) {
	ent, err := e.p.lookup(entity)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(ent, values); err != nil {
		return nil, err
	}
	pk := ent.PK()
	key := values[pk.Name]
	if key == nil {
		switch {
		case pk.Type == field.TypeUUID:
			key = uuid.New()
		case pk.Type.Textual():
			key = ulid.Make().String()
		case pk.Type != field.TypeInt:
			return nil, autogql.NewConstraintError(fmt.Sprintf("NOT NULL constraint failed: %s.%s", ent.Table, pk.Storage()), nil)
		}
	}
	var (
		b    = e.builder()
		cols []*dialect.Column
		args []any
	)
	for _, c := range ent.Columns {
		v := values[c.Name]
		if c.PrimaryKey {
			v = key
		}
		if v == nil {
			continue
		}
		arg, err := encode(b.dialect, c, v)
		if err != nil {
			return nil, err
		}
		cols, args = append(cols, c), append(args, arg)
	}
	b.WriteString("INSERT INTO ").Ident(ent.Table)
	switch {
	case len(cols) > 0:
		b.WriteString(" (")
		for i, c := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c.Storage())
		}
		b.WriteString(") VALUES (").Args(args...).WriteString(")")
	case b.dialect == dialect.MySQL:
		b.WriteString(" () VALUES ()")
	default:
		b.WriteString(" DEFAULT VALUES")
	}
	if key != nil {
		query, args := b.Query()
		if _, err := e.exec(ctx, query, args...); err != nil {
			return nil, classify(err)
		}
		return e.Get(ctx, entity, key)
	}
	if b.dialect == dialect.MySQL {
		query, args := b.Query()
		res, err := e.exec(ctx, query, args...)
		if err != nil {
			return nil, classify(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return e.Get(ctx, entity, int(id))
	}
	b.WriteString(" RETURNING ").Ident(pk.Storage())
	query, args := b.Query()
	rows, err := e.rows(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	var id int64
	if rows.Next() {
		err = rows.Scan(&id)
	}
	err = errors.Join(err, rows.Err(), rows.Close())
	if err != nil {
		return nil, classify(err)
	}
	return e.Get(ctx, entity, int(id))
}

// Update implements dialect.Executor.
func (e executor) Update(ctx context.Context, entity string, key any, values dialect.Record) (dialect.Record, error) {
	ent, err := e.p.lookup(entity)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(ent, values); err != nil {
		return nil, err
	}
	b := e.builder()
	b.WriteString("UPDATE ").Ident(ent.Table).WriteString(" SET ")
	n := 0
	for _, c := range ent.Columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		if c.PrimaryKey {
			if !filter.Equal(v, key) {
				return nil, fmt.Errorf("dialect/sql: primary key of %s cannot be updated", entity)
			}
			continue
		}
		arg, err := encode(b.dialect, c, v)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			b.WriteString(", ")
		}
		b.Ident(c.Storage()).WriteString(" = ").Arg(arg)
		n++
	}
	if n == 0 {
		return e.Get(ctx, entity, key)
	}
	if err := e.whereKey(b, ent, "", key); err != nil {
		return nil, err
	}
	query, args := b.Query()
	if _, err := e.exec(ctx, query, args...); err != nil {
		return nil, classify(err)
	}
	// Affected rows are not reliable on MySQL, where unchanged rows are
	// not counted; the read reports missing records.
	return e.Get(ctx, entity, key)
}

// Delete implements dialect.Executor.
func (e executor) Delete(ctx context.Context, entity string, key any) error {
	ent, err := e.p.lookup(entity)
	if err != nil {
		return err
	}
	b := e.builder()
	b.WriteString("DELETE FROM ").Ident(ent.Table)
	if err := e.whereKey(b, ent, "", key); err != nil {
		return err
	}
	query, args := b.Query()
	res, err := e.exec(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return autogql.NewNotFoundError(entity, key)
	}
	return nil
}

func (e executor) joinArgs(b *Builder, join *dialect.JoinTable, key, ref any) ([]any, error) {
	kc, rc, err := e.p.joinKeys(join)
	if err != nil {
		return nil, err
	}
	k, err := encode(b.dialect, kc, key)
	if err != nil {
		return nil, err
	}
	r, err := encode(b.dialect, rc, ref)
	if err != nil {
		return nil, err
	}
	return []any{k, r}, nil
}

// Link implements dialect.Executor. Linking an existing pair is a no-op.
func (e executor) Link(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	b := e.builder()
	args, err := e.joinArgs(b, join, key, ref)
	if err != nil {
		return err
	}
	if b.dialect == dialect.MySQL {
		b.WriteString("INSERT IGNORE INTO ")
	} else {
		b.WriteString("INSERT INTO ")
	}
	b.Ident(join.Table).WriteString(" (").Ident(join.Column).WriteString(", ").Ident(join.RefColumn).
		WriteString(") VALUES (").Args(args...).WriteString(")")
	if b.dialect != dialect.MySQL {
		b.WriteString(" ON CONFLICT DO NOTHING")
	}
	query, qargs := b.Query()
	_, err = e.exec(ctx, query, qargs...)
	return classify(err)
}

// Unlink implements dialect.Executor.
func (e executor) Unlink(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	b := e.builder()
	args, err := e.joinArgs(b, join, key, ref)
	if err != nil {
		return err
	}
	b.WriteString("DELETE FROM ").Ident(join.Table).
		WriteString(" WHERE ").Ident(join.Column).WriteString(" = ").Arg(args[0]).
		WriteString(" AND ").Ident(join.RefColumn).WriteString(" = ").Arg(args[1])
	query, qargs := b.Query()
	_, err = e.exec(ctx, query, qargs...)
	return classify(err)
}

// Pairs implements dialect.Executor.
func (e executor) Pairs(ctx context.Context, join *dialect.JoinTable, keys []any) ([][2]any, error) {
	kc, rc, err := e.p.joinKeys(join)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	b := e.builder()
	args := make([]any, len(keys))
	for i, k := range keys {
		if args[i], err = encode(b.dialect, kc, k); err != nil {
			return nil, err
		}
	}
	b.WriteString("SELECT ").Ident(join.Column).WriteString(", ").Ident(join.RefColumn).
		WriteString(" FROM ").Ident(join.Table).
		WriteString(" WHERE ").Ident(join.Column).WriteString(" IN (").Args(args...).WriteString(")")
	query, qargs := b.Query()
	rows, err := e.rows(ctx, query, qargs...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var pairs [][2]any
	for rows.Next() {
		var k, r any
		if err := rows.Scan(&k, &r); err != nil {
			return nil, err
		}
		if k, err = decode(kc, k); err != nil {
			return nil, err
		}
		if r, err = decode(rc, r); err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]any{k, r})
	}
	return pairs, classify(rows.Err())
}

var (
	_ dialect.Provider = (*Provider)(nil)
	_ dialect.Tx       = (*Tx)(nil)
)
