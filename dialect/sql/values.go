package sql

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/schema/field"
)

// sqliteTimeLayout is the layout of timestamps stored by the SQLite dialect.
// Values are kept in UTC so that they sort as text and strftime reads them.
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// timeLayouts are tried in order when a driver returns a timestamp as text.
var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02",
}

// encode converts a record value to the argument bound for column c.
func encode(dialectName string, c *dialect.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if k, ok := v.(dialect.Keyer); ok {
		v = k.Key()
	}
	switch c.Type {
	case field.TypeInt:
		// Identifiers arrive as strings from the GraphQL ID type.
		if s, ok := v.(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				return n, nil
			}
		}
	case field.TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("dialect/sql: encode %s: %w", c.Name, err)
		}
		return string(b), nil
	case field.TypeUUID:
		switch u := v.(type) {
		case uuid.UUID:
			return u.String(), nil
		case [16]byte:
			return uuid.UUID(u).String(), nil
		case string:
			return strings.ToLower(u), nil
		}
	case field.TypeDate, field.TypeTime:
		t, ok := v.(time.Time)
		if !ok {
			break
		}
		if dialectName == dialect.SQLite {
			return t.UTC().Format(sqliteTimeLayout), nil
		}
		return t, nil
	}
	return v, nil
}

// decode converts a value scanned from column c to its record
// representation: int, float64, decimal strings, bool, time.Time,
// decoded JSON, []byte and uuid.UUID.
func decode(c *dialect.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	fail := func() (any, error) {
		return nil, fmt.Errorf("dialect/sql: cannot decode %T into %s column %q", v, c.Type, c.Name)
	}
	switch c.Type {
	case field.TypeInt:
		switch n := v.(type) {
		case int64:
			return int(n), nil
		case int:
			return n, nil
		case float64:
			return int(n), nil
		case []byte:
			i, err := strconv.Atoi(string(n))
			if err != nil {
				return fail()
			}
			return i, nil
		case string:
			i, err := strconv.Atoi(n)
			if err != nil {
				return fail()
			}
			return i, nil
		}
	case field.TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case []byte, string:
			f, err := strconv.ParseFloat(text(n), 64)
			if err != nil {
				return fail()
			}
			return f, nil
		}
	case field.TypeDecimal:
		switch n := v.(type) {
		case int64:
			return strconv.FormatInt(n, 10), nil
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		case []byte, string:
			s := text(n)
			r, ok := new(big.Rat).SetString(s)
			if !ok {
				return fail()
			}
			if r.IsInt() {
				return r.Num().String(), nil
			}
			return s, nil
		}
	case field.TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case []byte, string:
			parsed, err := strconv.ParseBool(text(b))
			if err != nil {
				return fail()
			}
			return parsed, nil
		}
	case field.TypeDate, field.TypeTime:
		var t time.Time
		switch tv := v.(type) {
		case time.Time:
			t = tv
		case []byte, string:
			parsed, ok := parseTime(text(tv))
			if !ok {
				return fail()
			}
			t = parsed
		default:
			return fail()
		}
		if c.Type == field.TypeDate {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
		return t, nil
	case field.TypeJSON:
		switch b := v.(type) {
		case int64:
			// SQLite stores bare JSON numbers with numeric affinity.
			return float64(b), nil
		case float64:
			return b, nil
		case []byte, string:
			var out any
			if err := json.Unmarshal([]byte(text(b)), &out); err != nil {
				return nil, fmt.Errorf("dialect/sql: decode %s: %w", c.Name, err)
			}
			return out, nil
		}
	case field.TypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	case field.TypeUUID:
		switch u := v.(type) {
		case []byte:
			if len(u) == 16 {
				return uuid.FromBytes(u)
			}
			return uuid.Parse(string(u))
		case string:
			return uuid.Parse(u)
		}
	default:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		return v, nil
	}
	return fail()
}

func text(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
