package filter

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Resolver resolves edges for Eval. Related returns the records connected
// to rec through edge, and the Resolver of the target entity.
type Resolver interface {
	Related(edge string, rec map[string]any) ([]map[string]any, Resolver, error)
}

// Eval reports if rec satisfies p. A nil predicate holds for every record.
// Comparisons with a null field value never hold, except isNull.
func Eval(p P, rec map[string]any, r Resolver) (bool, error) {
	switch n := p.(type) {
	case nil:
		return true, nil
	case *Nary:
		// Identity elements: an empty AND holds, an empty OR does not.
		if len(n.Ps) == 0 {
			return n.Conj == OpAnd, nil
		}
		for _, c := range n.Ps {
			ok, err := Eval(c, rec, r)
			if err != nil {
				return false, err
			}
			if n.Conj == OpOr && ok {
				return true, nil
			}
			if n.Conj == OpAnd && !ok {
				return false, nil
			}
		}
		return n.Conj == OpAnd, nil
	case *Unary:
		ok, err := Eval(n.P, rec, r)
		return !ok, err
	case *Edge:
		if r == nil {
			return false, fmt.Errorf("filter: no resolver for edge %q", n.Name)
		}
		related, tr, err := r.Related(n.Name, rec)
		if err != nil {
			return false, err
		}
		for _, rel := range related {
			ok, err := Eval(n.P, rel, tr)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *Leaf:
		return evalLeaf(n, rec[n.Field])
	}
	return false, fmt.Errorf("filter: unexpected predicate %T", p)
}

func evalLeaf(l *Leaf, v any) (bool, error) {
	if l.Op == IsNull {
		want, _ := l.Value.(bool)
		return (v == nil) == want, nil
	}
	if v == nil {
		return false, nil
	}
	switch l.Op {
	case Exact:
		return Equal(v, l.Value), nil
	case IExact:
		return strings.EqualFold(str(v), str(l.Value)), nil
	case Contains:
		return strings.Contains(str(v), str(l.Value)), nil
	case IContains:
		return strings.Contains(strings.ToLower(str(v)), strings.ToLower(str(l.Value))), nil
	case StartsWith:
		return strings.HasPrefix(str(v), str(l.Value)), nil
	case EndsWith:
		return strings.HasSuffix(str(v), str(l.Value)), nil
	case GT, GTE, LT, LTE:
		c, ok := Compare(v, l.Value)
		if !ok {
			return false, fmt.Errorf("filter: cannot compare %s (%T) with %T", l.Field, v, l.Value)
		}
		switch l.Op {
		case GT:
			return c > 0, nil
		case GTE:
			return c >= 0, nil
		case LT:
			return c < 0, nil
		}
		return c <= 0, nil
	case In, NotIn:
		list, ok := values(l.Value)
		if !ok {
			return false, fmt.Errorf("filter: %s expects a list", l.Op)
		}
		found := false
		for _, e := range list {
			if Equal(v, e) {
				found = true
				break
			}
		}
		return found == (l.Op == In), nil
	case Range:
		list, ok := values(l.Value)
		if !ok || len(list) != 2 {
			return false, fmt.Errorf("filter: range expects two bounds")
		}
		lo, ok1 := Compare(v, list[0])
		hi, ok2 := Compare(v, list[1])
		if !ok1 || !ok2 {
			return false, fmt.Errorf("filter: cannot compare %s (%T) with range bounds", l.Field, v)
		}
		return lo >= 0 && hi <= 0, nil
	case Year, Month, Day:
		t, ok := asTime(v)
		if !ok {
			return false, fmt.Errorf("filter: %s is not a date", l.Field)
		}
		want, ok := integer(l.Value)
		if !ok {
			return false, fmt.Errorf("filter: %s expects an integer", l.Op)
		}
		switch l.Op {
		case Year:
			return t.Year() == want, nil
		case Month:
			return int(t.Month()) == want, nil
		}
		return t.Day() == want, nil
	}
	return false, fmt.Errorf("filter: unknown operator %q", l.Op)
}

// Equal reports if two field values are equal. Numbers compare by value
// regardless of their Go type.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Compare compares two field values. It returns false when the values are
// not comparable. Nulls sort first.
func Compare(a, b any) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}
	if x, ok := numeric(a, b); ok {
		if y, ok := numeric(b, a); ok {
			return x.Cmp(y), true
		}
	}
	if x, ok := a.(time.Time); ok {
		if y, ok := asTime(b); ok {
			return x.Compare(y), true
		}
		return 0, false
	}
	if y, ok := b.(time.Time); ok {
		if x, ok := asTime(a); ok {
			return x.Compare(y), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		return strings.Compare(x, str(b)), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case []byte:
		y, ok := b.([]byte)
		if !ok {
			return 0, false
		}
		return bytes.Compare(x, y), true
	case fmt.Stringer:
		return strings.Compare(x.String(), str(b)), true
	}
	return 0, false
}

// numeric converts v to a number. Strings are parsed only when compared
// with a number, so numeric text still sorts as text.
func numeric(v, other any) (*big.Float, bool) {
	if f, ok := number(v); ok {
		return f, true
	}
	s, isStr := v.(string)
	if _, otherNum := number(other); !isStr || !otherNum {
		return nil, false
	}
	return new(big.Float).SetString(s)
}

func number(v any) (*big.Float, bool) {
	f := new(big.Float)
	switch n := v.(type) {
	case int:
		return f.SetInt64(int64(n)), true
	case int8:
		return f.SetInt64(int64(n)), true
	case int16:
		return f.SetInt64(int64(n)), true
	case int32:
		return f.SetInt64(int64(n)), true
	case int64:
		return f.SetInt64(n), true
	case uint:
		return f.SetUint64(uint64(n)), true
	case uint8:
		return f.SetUint64(uint64(n)), true
	case uint16:
		return f.SetUint64(uint64(n)), true
	case uint32:
		return f.SetUint64(uint64(n)), true
	case uint64:
		return f.SetUint64(n), true
	case float32:
		return f.SetFloat64(float64(n)), true
	case float64:
		return f.SetFloat64(n), true
	case jsonNumber:
		if _, ok := f.SetString(n.String()); ok {
			return f, true
		}
	}
	return nil, false
}

// jsonNumber is implemented by json.Number.
type jsonNumber interface {
	String() string
	Float64() (float64, error)
	Int64() (int64, error)
}

func str(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case int:
		return strconv.Itoa(v)
	}
	return fmt.Sprint(v)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05", "2006-01-02"}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
