package gen

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raillogistic/autogql/filter"
	"github.com/raillogistic/autogql/schema/field"
)

// Scalar describes how values of one field kind are exposed and accepted.
type Scalar struct {
	// GraphQL is the name of the GraphQL scalar, e.g. "String".
	GraphQL string
	// Kind selects the filter operator set of the kind.
	Kind filter.Kind
	// Coerce converts an input value (decoded JSON or a literal) to the
	// value stored in records.
	Coerce func(any) (any, error)
	// Serialize converts a stored value to its output representation.
	// Nil keeps values unchanged.
	Serialize func(any) any
}

// TypeMap is the pluggable mapping from field kinds to scalars. It is safe
// for concurrent use.
type TypeMap struct {
	mu sync.RWMutex
	m  map[field.Type]Scalar
}

// Builtin GraphQL scalar names besides the spec-defined ones.
const (
	ScalarTime    = "Time"
	ScalarDate    = "Date"
	ScalarJSON    = "JSON"
	ScalarDecimal = "Decimal"
	ScalarUUID    = "UUID"
	ScalarBytes   = "Bytes"
)

// Date layout of date fields.
const dateLayout = "2006-01-02"

// NewTypeMap returns a type map holding the builtin kinds.
func NewTypeMap() *TypeMap {
	return &TypeMap{m: map[field.Type]Scalar{
		field.TypeString:  {GraphQL: "String", Kind: filter.KindText, Coerce: coerceString},
		field.TypeText:    {GraphQL: "String", Kind: filter.KindText, Coerce: coerceString},
		field.TypeEnum:    {GraphQL: "String", Kind: filter.KindEnum, Coerce: coerceString},
		field.TypeInt:     {GraphQL: "Int", Kind: filter.KindNumeric, Coerce: coerceInt},
		field.TypeFloat:   {GraphQL: "Float", Kind: filter.KindNumeric, Coerce: coerceFloat},
		field.TypeDecimal: {GraphQL: ScalarDecimal, Kind: filter.KindNumeric, Coerce: coerceDecimal},
		field.TypeBool:    {GraphQL: "Boolean", Kind: filter.KindBool, Coerce: coerceBool},
		field.TypeDate:    {GraphQL: ScalarDate, Kind: filter.KindTemporal, Coerce: coerceDate, Serialize: serializeDate},
		field.TypeTime:    {GraphQL: ScalarTime, Kind: filter.KindTemporal, Coerce: coerceTime, Serialize: serializeTime},
		field.TypeJSON:    {GraphQL: ScalarJSON, Kind: filter.KindNone, Coerce: coerceJSON},
		field.TypeBytes:   {GraphQL: ScalarBytes, Kind: filter.KindNone, Coerce: coerceBytes, Serialize: serializeBytes},
		field.TypeUUID:    {GraphQL: ScalarUUID, Kind: filter.KindID, Coerce: coerceUUID, Serialize: serializeString},
	}}
}

// Register adds or replaces the scalar of a kind.
func (m *TypeMap) Register(t field.Type, s Scalar) error {
	if !t.Valid() {
		return fmt.Errorf("gen: register scalar: invalid kind")
	}
	if s.GraphQL == "" || s.Coerce == nil {
		return fmt.Errorf("gen: register scalar %q: GraphQL name and Coerce are required", t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[t] = s
	return nil
}

// Lookup returns the scalar of a kind.
func (m *TypeMap) Lookup(t field.Type) (Scalar, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.m[t]
	return s, ok
}

// Scalars returns the distinct non-builtin GraphQL scalar names.
func (m *TypeMap) Scalars() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, s := range m.m {
		switch s.GraphQL {
		case "String", "Int", "Float", "Boolean", "ID":
			continue
		}
		if !seen[s.GraphQL] {
			seen[s.GraphQL] = true
			names = append(names, s.GraphQL)
		}
	}
	return names
}

// Coerce converts v to the stored representation of kind t. Nil stays nil.
func (m *TypeMap) Coerce(t field.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := m.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("unsupported field kind %q", t)
	}
	return s.Coerce(v)
}

// Serialize converts a stored value of kind t to its output representation.
func (m *TypeMap) Serialize(t field.Type, v any) any {
	if v == nil {
		return nil
	}
	if s, ok := m.Lookup(t); ok && s.Serialize != nil {
		return s.Serialize(v)
	}
	return v
}

var errType = errors.New("unexpected value type")

func coerceString(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return nil, fmt.Errorf("%w %T: expect a string", errType, v)
}

func coerceInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt64 && n <= math.MaxInt64 {
			return int(n), nil
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, nil
		}
	}
	return nil, fmt.Errorf("%w %T: expect an integer", errType, v)
}

func coerceFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, nil
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w %T: expect a number", errType, v)
}

// coerceDecimal keeps decimals as their canonical string to preserve precision.
func coerceDecimal(v any) (any, error) {
	var s string
	switch n := v.(type) {
	case string:
		s = n
	case json.Number:
		s = n.String()
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	default:
		return nil, fmt.Errorf("%w %T: expect a decimal", errType, v)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	if r.IsInt() {
		return r.Num().String(), nil
	}
	return s, nil
}

func coerceBool(v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w %T: expect a boolean", errType, v)
}

func coerceDate(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case string:
		parsed, err := time.Parse(dateLayout, t)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: expect YYYY-MM-DD", t)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("%w %T: expect a date", errType, v)
}

func coerceTime(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, fmt.Errorf("invalid datetime %q: expect RFC 3339", t)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("%w %T: expect a datetime", errType, v)
}

func coerceJSON(v any) (any, error) {
	if _, err := json.Marshal(v); err != nil {
		return nil, fmt.Errorf("invalid JSON value: %w", err)
	}
	return v, nil
}

func coerceBytes(v any) (any, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 value: %w", err)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("%w %T: expect base64 bytes", errType, v)
}

func coerceUUID(v any) (any, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, nil
	case [16]byte:
		return uuid.UUID(u), nil
	case string:
		parsed, err := uuid.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q", u)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("%w %T: expect a UUID", errType, v)
}

func serializeTime(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return v
}

func serializeDate(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(dateLayout)
	}
	return v
}

func serializeBytes(v any) any {
	if b, ok := v.([]byte); ok {
		return base64.StdEncoding.EncodeToString(b)
	}
	return v
}

func serializeString(v any) any {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return v
}
