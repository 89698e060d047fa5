package sql

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/filter"
)

// Builder writes a SQL statement for one dialect. Identifiers are quoted
// and arguments are bound to the placeholders of the dialect.
type Builder struct {
	sb      strings.Builder
	args    []any
	dialect string
}

// NewBuilder returns a Builder for the given dialect.
func NewBuilder(dialect string) *Builder {
	return &Builder{dialect: dialect}
}

// WriteString writes s as is.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Ident writes a quoted identifier.
func (b *Builder) Ident(s string) *Builder {
	q := `"`
	if b.dialect == dialect.MySQL {
		q = "`"
	}
	b.sb.WriteString(q)
	b.sb.WriteString(strings.ReplaceAll(s, q, q+q))
	b.sb.WriteString(q)
	return b
}

// Column writes a column reference qualified by a table alias.
func (b *Builder) Column(alias, column string) *Builder {
	if alias != "" {
		b.Ident(alias).WriteString(".")
	}
	return b.Ident(column)
}

// Arg binds v to a new placeholder.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteString("?")
	}
	return b
}

// Args binds vs to comma separated placeholders.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// Query returns the statement and its arguments.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

// String returns the statement.
func (b *Builder) String() string { return b.sb.String() }

// Entities resolves entity layouts by name.
type Entities func(name string) (*dialect.Entity, error)

// Where writes the SQL condition of p over the rows of e aliased as alias.
// Edge predicates become correlated EXISTS subqueries over the target
// table, resolved through lookup.
//
// The condition never evaluates to NULL: comparisons against a NULL column
// are false, so that negations hold for rows without a value, the way
// filter.Eval treats them.
func (b *Builder) Where(p filter.P, e *dialect.Entity, alias string, lookup Entities) error {
	w := &where{b: b, lookup: lookup}
	return w.pred(p, e, alias)
}

type where struct {
	b      *Builder
	lookup Entities
	n      int
}

func (w *where) pred(p filter.P, e *dialect.Entity, alias string) error {
	switch n := p.(type) {
	case nil:
		w.b.WriteString("1 = 1")
	case *filter.Nary:
		if len(n.Ps) == 0 {
			if n.Conj == filter.OpOr {
				w.b.WriteString("1 = 0")
			} else {
				w.b.WriteString("1 = 1")
			}
			return nil
		}
		sep := " AND "
		if n.Conj == filter.OpOr {
			sep = " OR "
		}
		w.b.WriteString("(")
		for i, c := range n.Ps {
			if i > 0 {
				w.b.WriteString(sep)
			}
			if err := w.pred(c, e, alias); err != nil {
				return err
			}
		}
		w.b.WriteString(")")
	case *filter.Unary:
		w.b.WriteString("NOT (")
		if err := w.pred(n.P, e, alias); err != nil {
			return err
		}
		w.b.WriteString(")")
	case *filter.Edge:
		return w.edge(n, e, alias)
	case *filter.Leaf:
		return w.leaf(n, e, alias)
	default:
		return fmt.Errorf("dialect/sql: unexpected predicate %T", p)
	}
	return nil
}

func (w *where) edge(n *filter.Edge, e *dialect.Entity, alias string) error {
	rel, ok := e.Relation(n.Name)
	if !ok {
		return fmt.Errorf("dialect/sql: unknown relation %q on %s", n.Name, e.Name)
	}
	target, err := w.lookup(rel.Target)
	if err != nil {
		return err
	}
	w.n++
	ta := "t" + strconv.Itoa(w.n)
	b := w.b
	b.WriteString("EXISTS (SELECT 1 FROM ").Ident(target.Table).WriteString(" ").Ident(ta)
	switch rel.Kind {
	case dialect.OwnerFK:
		fk, ok := e.Column(rel.Column)
		if !ok {
			return fmt.Errorf("dialect/sql: unknown column %q on %s", rel.Column, e.Name)
		}
		b.WriteString(" WHERE ").Column(ta, target.PK().Storage()).WriteString(" = ").Column(alias, fk.Storage())
	case dialect.InverseFK:
		fk, ok := target.Column(rel.Column)
		if !ok {
			return fmt.Errorf("dialect/sql: unknown column %q on %s", rel.Column, target.Name)
		}
		b.WriteString(" WHERE ").Column(ta, fk.Storage()).WriteString(" = ").Column(alias, e.PK().Storage())
	case dialect.JoinRel:
		ja := "j" + strconv.Itoa(w.n)
		b.WriteString(" JOIN ").Ident(rel.Join.Table).WriteString(" ").Ident(ja).
			WriteString(" ON ").Column(ja, rel.Join.RefColumn).WriteString(" = ").Column(ta, target.PK().Storage()).
			WriteString(" WHERE ").Column(ja, rel.Join.Column).WriteString(" = ").Column(alias, e.PK().Storage())
	default:
		return fmt.Errorf("dialect/sql: relation %s.%s has kind %s", e.Name, rel.Name, rel.Kind)
	}
	if n.P != nil {
		b.WriteString(" AND ")
		if err := w.pred(n.P, target, ta); err != nil {
			return err
		}
	}
	b.WriteString(")")
	return nil
}

func (w *where) leaf(l *filter.Leaf, e *dialect.Entity, alias string) error {
	c, ok := e.Column(l.Field)
	if !ok {
		return fmt.Errorf("dialect/sql: unknown column %q on %s", l.Field, e.Name)
	}
	b := w.b
	col := func() { b.Column(alias, c.Storage()) }
	if l.Op == filter.IsNull {
		col()
		if want, _ := l.Value.(bool); want {
			b.WriteString(" IS NULL")
		} else {
			b.WriteString(" IS NOT NULL")
		}
		return nil
	}
	if l.Value == nil {
		b.WriteString("1 = 0")
		return nil
	}
	if c.Nullable {
		b.WriteString("(")
		col()
		b.WriteString(" IS NOT NULL AND ")
		defer b.WriteString(")")
	}
	switch l.Op {
	case filter.Exact, filter.GT, filter.GTE, filter.LT, filter.LTE:
		v, err := encode(b.dialect, c, l.Value)
		if err != nil {
			return err
		}
		col()
		b.WriteString(" " + comparators[l.Op] + " ").Arg(v)
	case filter.IExact:
		b.WriteString("LOWER(")
		col()
		b.WriteString(") = LOWER(").Arg(fmt.Sprint(l.Value)).WriteString(")")
	case filter.Contains, filter.StartsWith, filter.EndsWith, filter.IContains:
		w.match(col, l.Op, fmt.Sprint(l.Value))
	case filter.In, filter.NotIn:
		list, ok := listOf(l.Value)
		if !ok {
			return fmt.Errorf("dialect/sql: %s expects a list", l.Op)
		}
		if len(list) == 0 {
			if l.Op == filter.In {
				b.WriteString("1 = 0")
			} else {
				b.WriteString("1 = 1")
			}
			return nil
		}
		vs := make([]any, len(list))
		for i, v := range list {
			ev, err := encode(b.dialect, c, v)
			if err != nil {
				return err
			}
			vs[i] = ev
		}
		col()
		if l.Op == filter.NotIn {
			b.WriteString(" NOT")
		}
		b.WriteString(" IN (").Args(vs...).WriteString(")")
	case filter.Range:
		list, ok := listOf(l.Value)
		if !ok || len(list) != 2 {
			return fmt.Errorf("dialect/sql: range expects two bounds")
		}
		lo, err := encode(b.dialect, c, list[0])
		if err != nil {
			return err
		}
		hi, err := encode(b.dialect, c, list[1])
		if err != nil {
			return err
		}
		col()
		b.WriteString(" BETWEEN ").Arg(lo).WriteString(" AND ").Arg(hi)
	case filter.Year, filter.Month, filter.Day:
		w.datePart(col, l.Op)
		b.WriteString(" = ").Arg(l.Value)
	default:
		return fmt.Errorf("dialect/sql: unknown operator %q", l.Op)
	}
	return nil
}

var comparators = map[filter.Op]string{
	filter.Exact: "=",
	filter.GT:    ">",
	filter.GTE:   ">=",
	filter.LT:    "<",
	filter.LTE:   "<=",
}

// match writes a substring match. Case-insensitive matches compare lower
// cased values with LIKE. Case-sensitive ones use GLOB on SQLite, where
// LIKE ignores case, and a binary LIKE on MySQL.
func (w *where) match(col func(), op filter.Op, s string) {
	b := w.b
	if op == filter.IContains {
		b.WriteString("LOWER(")
		col()
		b.WriteString(") LIKE LOWER(").Arg("%" + escapeLike(s) + "%").WriteString(") ESCAPE '!'")
		return
	}
	if b.dialect == dialect.SQLite {
		s = escapeGlob(s)
		switch op {
		case filter.Contains:
			s = "*" + s + "*"
		case filter.StartsWith:
			s += "*"
		case filter.EndsWith:
			s = "*" + s
		}
		col()
		b.WriteString(" GLOB ").Arg(s)
		return
	}
	s = escapeLike(s)
	switch op {
	case filter.Contains:
		s = "%" + s + "%"
	case filter.StartsWith:
		s += "%"
	case filter.EndsWith:
		s = "%" + s
	}
	if b.dialect == dialect.MySQL {
		b.WriteString("CAST(")
		col()
		b.WriteString(" AS BINARY)")
	} else {
		col()
	}
	b.WriteString(" LIKE ").Arg(s).WriteString(" ESCAPE '!'")
}

func (w *where) datePart(col func(), op filter.Op) {
	b := w.b
	switch b.dialect {
	case dialect.Postgres:
		b.WriteString("EXTRACT(" + strings.ToUpper(string(op)) + " FROM ")
		col()
		b.WriteString(")")
	case dialect.MySQL:
		b.WriteString(strings.ToUpper(string(op)) + "(")
		col()
		b.WriteString(")")
	default:
		format := map[filter.Op]string{filter.Year: "%Y", filter.Month: "%m", filter.Day: "%d"}[op]
		b.WriteString("CAST(strftime('" + format + "', ")
		col()
		b.WriteString(") AS INTEGER)")
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

func escapeGlob(s string) string {
	return strings.NewReplacer("[", "[[]", "*", "[*]", "?", "[?]").Replace(s)
}

// listOf returns the elements of a slice value.
func listOf(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
