// Package memory implements an in-memory dialect.Provider.
//
// Writers are serialized: a transaction holds the writer slot from Tx until
// Commit or Rollback, and writes outside a transaction take it for a single
// statement. Readers never wait for the writer slot, so uncommitted writes
// are visible to them. Rollback restores the previous state from an undo log.
//
// Auto-generated keys are integers for integer primary keys, UUIDs for uuid
// keys and ULIDs for string keys.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/schema/field"
)

// ErrTxDone is returned by operations on a finished transaction.
var ErrTxDone = errors.New("memory: transaction has already been committed or rolled back")

// Provider is an in-memory persistence provider. It is safe for concurrent use.
type Provider struct {
	mu       sync.RWMutex
	sem      chan struct{}
	entities map[string]*dialect.Entity
	tables   map[string]*table
	joins    map[string]*joinTable
	logger   *slog.Logger
}

type table struct {
	entity *dialect.Entity
	rows   map[string]dialect.Record
	order  []string
	seq    int
}

type joinTable struct {
	columns [2]string
	rows    []map[string]any
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger of the provider.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// New returns an empty Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		sem:      make(chan struct{}, 1),
		entities: make(map[string]*dialect.Entity),
		tables:   make(map[string]*table),
		joins:    make(map[string]*joinTable),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dialect implements dialect.Provider.
func (*Provider) Dialect() string { return dialect.Memory }

// Close implements dialect.Provider.
func (*Provider) Close() error { return nil }

// Migrate implements dialect.Provider. Existing rows are kept.
func (p *Provider) Migrate(ctx context.Context, entities ...*dialect.Entity) error {
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entities {
		p.entities[e.Name] = e
		if t, ok := p.tables[e.Name]; ok {
			t.entity = e
		} else {
			p.tables[e.Name] = &table{entity: e, rows: make(map[string]dialect.Record)}
		}
		for _, r := range e.Relations {
			if r.Kind != dialect.JoinRel {
				continue
			}
			if _, ok := p.joins[r.Join.Table]; !ok {
				cols := [2]string{r.Join.Column, r.Join.RefColumn}
				sort.Strings(cols[:])
				p.joins[r.Join.Table] = &joinTable{columns: cols}
			}
		}
		p.logger.Debug("memory table ready", "entity", e.Name, "table", e.Table)
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

// Tx implements dialect.Provider.
func (p *Provider) Tx(ctx context.Context) (dialect.Tx, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{executor: executor{p: p, tx: &txState{}}}, nil
}

func (p *Provider) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) release() { <-p.sem }

// Get implements dialect.Executor.
func (p *Provider) Get(ctx context.Context, entity string, key any) (dialect.Record, error) {
	return executor{p: p}.Get(ctx, entity, key)
}

// Find implements dialect.Executor.
func (p *Provider) Find(ctx context.Context, entity string, q *dialect.Query) ([]dialect.Record, error) {
	return executor{p: p}.Find(ctx, entity, q)
}

// Count implements dialect.Executor.
func (p *Provider) Count(ctx context.Context, entity string, where filter.P) (int, error) {
	return executor{p: p}.Count(ctx, entity, where)
}

// Insert implements dialect.Executor.
func (p *Provider) Insert(ctx context.Context, entity string, values dialect.Record) (dialect.Record, error) {
	return executor{p: p}.Insert(ctx, entity, values)
}

// Update implements dialect.Executor.
func (p *Provider) Update(ctx context.Context, entity string, key any, values dialect.Record) (dialect.Record, error) {
	return executor{p: p}.Update(ctx, entity, key, values)
}

// Delete implements dialect.Executor.
func (p *Provider) Delete(ctx context.Context, entity string, key any) error {
	return executor{p: p}.Delete(ctx, entity, key)
}

// Link implements dialect.Executor.
func (p *Provider) Link(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	return executor{p: p}.Link(ctx, join, key, ref)
}

// Unlink implements dialect.Executor.
func (p *Provider) Unlink(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	return executor{p: p}.Unlink(ctx, join, key, ref)
}

// Pairs implements dialect.Executor.
func (p *Provider) Pairs(ctx context.Context, join *dialect.JoinTable, keys []any) ([][2]any, error) {
	return executor{p: p}.Pairs(ctx, join, keys)
}

// Tx is a memory transaction.
type Tx struct {
	executor
}

type txState struct {
	mu   sync.Mutex
	undo []func()
	done bool
}

// Commit implements dialect.Tx.
func (tx *Tx) Commit() error {
	st := tx.tx
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return ErrTxDone
	}
	st.done, st.undo = true, nil
	tx.p.release()
	return nil
}

// Rollback implements dialect.Tx.
func (tx *Tx) Rollback() error {
	st := tx.tx
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return ErrTxDone
	}
	tx.p.mu.Lock()
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
	tx.p.mu.Unlock()
	st.done, st.undo = true, nil
	tx.p.release()
	return nil
}

// executor runs statements either in autocommit mode (tx == nil) or as
// part of a transaction.
type executor struct {
	p  *Provider
	tx *txState
}

func (e executor) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.tx != nil {
		e.tx.mu.Lock()
		done := e.tx.done
		e.tx.mu.Unlock()
		if done {
			return ErrTxDone
		}
	}
	e.p.mu.RLock()
	defer e.p.mu.RUnlock()
	return fn()
}

func (e executor) write(ctx context.Context, fn func(undo func(func())) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.tx == nil {
		if err := e.p.acquire(ctx); err != nil {
			return err
		}
		defer e.p.release()
		e.p.mu.Lock()
		defer e.p.mu.Unlock()
		return fn(func(func()) {})
	}
	e.tx.mu.Lock()
	defer e.tx.mu.Unlock()
	if e.tx.done {
		return ErrTxDone
	}
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return fn(func(u func()) { e.tx.undo = append(e.tx.undo, u) })
}

func (e executor) table(entity string) (*table, error) {
	t, ok := e.p.tables[entity]
	if !ok {
		return nil, fmt.Errorf("memory: unknown entity %q", entity)
	}
	return t, nil
}

// Get implements dialect.Executor.
func (e executor) Get(ctx context.Context, entity string, key any) (rec dialect.Record, err error) {
	err = e.read(ctx, func() error {
		t, err := e.table(entity)
		if err != nil {
			return err
		}
		row, ok := t.rows[keyOf(key)]
		if !ok {
			return autogql.NewNotFoundError(entity, key)
		}
		rec = row.Clone()
		return nil
	})
	return rec, err
}

// Find implements dialect.Executor.
func (e executor) Find(ctx context.Context, entity string, q *dialect.Query) (recs []dialect.Record, err error) {
	if q == nil {
		q = &dialect.Query{}
	}
	err = e.read(ctx, func() error {
		t, err := e.table(entity)
		if err != nil {
			return err
		}
		for _, o := range q.Order {
			if _, ok := t.entity.Column(o.Field); !ok {
				return fmt.Errorf("memory: unknown order column %q on %s", o.Field, entity)
			}
		}
		matched, err := e.match(t, q.Where)
		if err != nil {
			return err
		}
		if len(q.Order) > 0 {
			sort.SliceStable(matched, func(i, j int) bool {
				for _, o := range q.Order {
					c, _ := filter.Compare(matched[i][o.Field], matched[j][o.Field])
					if c == 0 {
						continue
					}
					if o.Desc {
						return c > 0
					}
					return c < 0
				}
				return false
			})
		}
		if q.Offset > 0 {
			if q.Offset >= len(matched) {
				matched = nil
			} else {
				matched = matched[q.Offset:]
			}
		}
		if q.Limit > 0 && len(matched) > q.Limit {
			matched = matched[:q.Limit]
		}
		recs = make([]dialect.Record, len(matched))
		for i, row := range matched {
			recs[i] = row.Clone()
		}
		return nil
	})
	return recs, err
}

func (e executor) match(t *table, where filter.P) ([]dialect.Record, error) {
	r := resolver{e: e, entity: t.entity}
	var out []dialect.Record
	for _, k := range t.order {
		row := t.rows[k]
		ok, err := filter.Eval(where, row, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// Count implements dialect.Executor.
func (e executor) Count(ctx context.Context, entity string, where filter.P) (n int, err error) {
	err = e.read(ctx, func() error {
		t, err := e.table(entity)
		if err != nil {
			return err
		}
		matched, err := e.match(t, where)
		n = len(matched)
		return err
	})
	return n, err
}

// Insert implements dialect.Executor.
func (e executor) Insert(ctx context.Context, entity string, values dialect.Record) (rec dialect.Record, err error) {
	err = e.write(ctx, func(undo func(func())) error {
		t, err := e.table(entity)
		if err != nil {
			return err
		}
		row, err := t.project(values)
		if err != nil {
			return err
		}
		pk := t.entity.PK()
		if row[pk.Name] == nil {
			if row[pk.Name], err = t.generate(pk); err != nil {
				return err
			}
		}
		key := keyOf(row[pk.Name])
		if _, ok := t.rows[key]; ok {
			return t.constraint("UNIQUE", pk.Name)
		}
		if err := t.check(row, ""); err != nil {
			return err
		}
		t.rows[key] = row
		t.order = append(t.order, key)
		undo(func() {
			delete(t.rows, key)
			t.order = slices.DeleteFunc(t.order, func(k string) bool { return k == key })
		})
		rec = row.Clone()
		return nil
	})
	return rec, err
}

// Update implements dialect.Executor.
func (e executor) Update(ctx context.Context, entity string, key any, values dialect.Record) (rec dialect.Record, err error) {
	err = e.write(ctx, func(undo func(func())) error {
		t, err := e.table(entity)
		if err != nil {
			return err
		}
		k := keyOf(key)
		old, ok := t.rows[k]
		if !ok {
			return autogql.NewNotFoundError(entity, key)
		}
		pk := t.entity.PK()
		row := old.Clone()
		for name, v := range values {
			c, ok := t.entity.Column(name)
			if !ok {
				return fmt.Errorf("memory: unknown column %q on %s", name, entity)
			}
			if c.PrimaryKey {
				if !filter.Equal(v, old[pk.Name]) {
					return fmt.Errorf("memory: primary key of %s cannot be updated", entity)
				}
				continue
			}
			row[name] = v
		}
		if err := t.check(row, k); err != nil {
			return err
		}
		t.rows[k] = row
		undo(func() { t.rows[k] = old })
		rec = row.Clone()
		return nil
	})
	return rec, err
}

// Delete implements dialect.Executor.
func (e executor) Delete(ctx context.Context, entity string, key any) error {
	return e.write(ctx, func(undo func(func())) error {
		t, err := e.table(entity)
		if err != nil {
			return err
		}
		k := keyOf(key)
		old, ok := t.rows[k]
		if !ok {
			return autogql.NewNotFoundError(entity, key)
		}
		i := slices.Index(t.order, k)
		delete(t.rows, k)
		t.order = slices.Delete(t.order, i, i+1)
		undo(func() {
			t.rows[k] = old
			t.order = slices.Insert(t.order, min(i, len(t.order)), k)
		})
		return nil
	})
}

// Link implements dialect.Executor. Linking an existing pair is a no-op.
func (e executor) Link(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	return e.write(ctx, func(undo func(func())) error {
		jt, ok := e.p.joins[join.Table]
		if !ok {
			return fmt.Errorf("memory: unknown join table %q", join.Table)
		}
		if jt.index(join, key, ref) >= 0 {
			return nil
		}
		row := map[string]any{join.Column: key, join.RefColumn: ref}
		jt.rows = append(jt.rows, row)
		undo(func() {
			if i := jt.index(join, key, ref); i >= 0 {
				jt.rows = slices.Delete(jt.rows, i, i+1)
			}
		})
		return nil
	})
}

// Unlink implements dialect.Executor.
func (e executor) Unlink(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	return e.write(ctx, func(undo func(func())) error {
		jt, ok := e.p.joins[join.Table]
		if !ok {
			return fmt.Errorf("memory: unknown join table %q", join.Table)
		}
		i := jt.index(join, key, ref)
		if i < 0 {
			return nil
		}
		row := jt.rows[i]
		jt.rows = slices.Delete(jt.rows, i, i+1)
		undo(func() { jt.rows = slices.Insert(jt.rows, min(i, len(jt.rows)), row) })
		return nil
	})
}

// Pairs implements dialect.Executor.
func (e executor) Pairs(ctx context.Context, join *dialect.JoinTable, keys []any) (pairs [][2]any, err error) {
	err = e.read(ctx, func() error {
		jt, ok := e.p.joins[join.Table]
		if !ok {
			return fmt.Errorf("memory: unknown join table %q", join.Table)
		}
		pairs = jt.pairs(join, keys)
		return nil
	})
	return pairs, err
}

func (jt *joinTable) index(join *dialect.JoinTable, key, ref any) int {
	return slices.IndexFunc(jt.rows, func(row map[string]any) bool {
		return filter.Equal(row[join.Column], key) && filter.Equal(row[join.RefColumn], ref)
	})
}

func (jt *joinTable) pairs(join *dialect.JoinTable, keys []any) [][2]any {
	var out [][2]any
	for _, row := range jt.rows {
		for _, k := range keys {
			if filter.Equal(row[join.Column], k) {
				out = append(out, [2]any{row[join.Column], row[join.RefColumn]})
				break
			}
		}
	}
	return out
}

// project copies the known columns of values into a new row.
func (t *table) project(values dialect.Record) (dialect.Record, error) {
	row := make(dialect.Record, len(t.entity.Columns))
	for name := range values {
		if _, ok := t.entity.Column(name); !ok {
			return nil, fmt.Errorf("memory: unknown column %q on %s", name, t.entity.Name)
		}
	}
	for _, c := range t.entity.Columns {
		row[c.Name] = values[c.Name]
	}
	return row, nil
}

func (t *table) generate(pk *dialect.Column) (any, error) {
	switch {
	case pk.Type == field.TypeInt:
		t.seq++
		for t.rows[keyOf(t.seq)] != nil {
			t.seq++
		}
		return t.seq, nil
	case pk.Type == field.TypeUUID:
		return uuid.New(), nil
	case pk.Type.Textual():
		return ulid.Make().String(), nil
	}
	return nil, t.constraint("NOT NULL", pk.Name)
}

// check enforces NOT NULL and UNIQUE for row, ignoring the row stored
// under self.
func (t *table) check(row dialect.Record, self string) error {
	for _, c := range t.entity.Columns {
		v := row[c.Name]
		if v == nil {
			if !c.Nullable {
				return t.constraint("NOT NULL", c.Name)
			}
			continue
		}
		if !c.Unique || c.PrimaryKey {
			continue
		}
		for k, other := range t.rows {
			if k != self && filter.Equal(other[c.Name], v) {
				return t.constraint("UNIQUE", c.Name)
			}
		}
	}
	return nil
}

func (t *table) constraint(kind, column string) error {
	return autogql.NewConstraintError(
		fmt.Sprintf("%s constraint failed: %s.%s", kind, t.entity.Table, column),
		nil,
	)
}

// resolver resolves edges for filter evaluation. It runs under the read
// lock held by the caller.
type resolver struct {
	e      executor
	entity *dialect.Entity
}

func (r resolver) Related(edge string, rec map[string]any) ([]map[string]any, filter.Resolver, error) {
	rel, ok := r.entity.Relation(edge)
	if !ok {
		return nil, nil, fmt.Errorf("memory: unknown relation %q on %s", edge, r.entity.Name)
	}
	t, err := r.e.table(rel.Target)
	if err != nil {
		return nil, nil, err
	}
	next := resolver{e: r.e, entity: t.entity}
	key := rec[r.entity.PK().Name]
	var out []map[string]any
	switch rel.Kind {
	case dialect.OwnerFK:
		if v := rec[rel.Column]; v != nil {
			if row, ok := t.rows[keyOf(v)]; ok {
				out = append(out, row)
			}
		}
	case dialect.InverseFK:
		for _, k := range t.order {
			if row := t.rows[k]; filter.Equal(row[rel.Column], key) {
				out = append(out, row)
			}
		}
	case dialect.JoinRel:
		jt, ok := r.e.p.joins[rel.Join.Table]
		if !ok {
			return nil, nil, fmt.Errorf("memory: unknown join table %q", rel.Join.Table)
		}
		for _, pair := range jt.pairs(rel.Join, []any{key}) {
			if row, ok := t.rows[keyOf(pair[1])]; ok {
				out = append(out, row)
			}
		}
	}
	return out, next, nil
}

func keyOf(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case dialect.Keyer:
		return keyOf(v.Key())
	}
	return fmt.Sprint(v)
}
