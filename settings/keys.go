package settings

import (
	"fmt"
	"math"
	"time"

	"github.com/raillogistic/autogql"
)

// Keys understood by the engine.
const (
	DefaultPageSize        = "defaultPageSize"
	MaxPageSize            = "maxPageSize"
	ListMaxItems           = "listMaxItems"
	BulkBatchSize          = "bulkBatchSize"
	BulkAtomic             = "bulkAtomic"
	BulkStopOnBatchFailure = "bulkStopOnBatchFailure"
	ExposeReverseRelations = "exposeReverseRelations"
	EnableBulkOperations   = "enableBulkOperations"
	EnableMethodMutations  = "enableMethodMutations"
	EnableNestedInputs     = "enableNestedInputs"
	ExcludedFields         = "excludedFields"
	MethodDenylist         = "methodDenylist"
	Models                 = "models"
	QueryCacheTTL          = "queryCacheTTL"
	TxRetryBudget          = "txRetryBudget"
)

// DefaultMethodDenylist holds the name patterns of framework-owned methods
// that are never exposed, even when marked.
var DefaultMethodDenylist = []string{
	"save", "delete", "refresh*", "clean*", "validate*", "full_clean",
	"get_next_by_*", "get_previous_by_*", "get_*_display",
	"_*", "serializable_value", "prepare_*", "check*", "from_db", "date_error_message",
	"unique_error_message",
}

// Defaults returns a fresh copy of the library defaults layer.
func Defaults() map[string]any {
	return map[string]any{
		DefaultPageSize:        25,
		MaxPageSize:            100,
		ListMaxItems:           1000,
		BulkBatchSize:          100,
		BulkAtomic:             false,
		BulkStopOnBatchFailure: false,
		ExposeReverseRelations: true,
		EnableBulkOperations:   true,
		EnableMethodMutations:  true,
		EnableNestedInputs:     true,
		ExcludedFields:         map[string][]string{},
		MethodDenylist:         append([]string(nil), DefaultMethodDenylist...),
		Models:                 map[string]map[string]any{},
		QueryCacheTTL:          time.Duration(0),
		TxRetryBudget:          2,
	}
}

// normalize validates the shape of known keys and converts decoded
// configuration values (YAML, env) to their canonical Go types.
func normalize(key string, v any) (any, error) {
	switch key {
	case DefaultPageSize, MaxPageSize, ListMaxItems, BulkBatchSize:
		n, ok := toInt(v)
		if !ok || n < 1 {
			return nil, autogql.NewConfigError(key, v, "expect a positive integer")
		}
		return n, nil
	case TxRetryBudget:
		n, ok := toInt(v)
		if !ok || n < 0 {
			return nil, autogql.NewConfigError(key, v, "expect a non-negative integer")
		}
		return n, nil
	case BulkAtomic, BulkStopOnBatchFailure, ExposeReverseRelations, EnableBulkOperations,
		EnableMethodMutations, EnableNestedInputs:
		b, ok := v.(bool)
		if !ok {
			return nil, autogql.NewConfigError(key, v, "expect a boolean")
		}
		return b, nil
	case MethodDenylist:
		s, ok := toStrings(v)
		if !ok {
			return nil, autogql.NewConfigError(key, v, "expect a list of strings")
		}
		return s, nil
	case ExcludedFields:
		m, ok := v.(map[string][]string)
		if ok {
			return m, nil
		}
		raw, ok := v.(map[string]any)
		if !ok {
			return nil, autogql.NewConfigError(key, v, "expect a map of entity to field names")
		}
		m = make(map[string][]string, len(raw))
		for entity, fields := range raw {
			s, ok := toStrings(fields)
			if !ok {
				return nil, autogql.NewConfigError(key, v, fmt.Sprintf("expect a list of field names for %q", entity))
			}
			m[entity] = s
		}
		return m, nil
	case Models:
		m, ok := v.(map[string]map[string]any)
		if ok {
			return m, nil
		}
		raw, ok := v.(map[string]any)
		if !ok {
			return nil, autogql.NewConfigError(key, v, "expect a map of entity to settings")
		}
		m = make(map[string]map[string]any, len(raw))
		for entity, s := range raw {
			sm, ok := s.(map[string]any)
			if !ok {
				return nil, autogql.NewConfigError(key, v, fmt.Sprintf("expect a settings map for %q", entity))
			}
			m[entity] = sm
		}
		return m, nil
	case QueryCacheTTL:
		switch d := v.(type) {
		case time.Duration:
			return d, nil
		case string:
			parsed, err := time.ParseDuration(d)
			if err != nil {
				return nil, autogql.NewConfigError(key, v, err.Error())
			}
			return parsed, nil
		}
		if n, ok := toInt(v); ok {
			return time.Duration(n) * time.Second, nil
		}
		return nil, autogql.NewConfigError(key, v, "expect a duration")
	}
	return v, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case float32:
		if float64(n) == math.Trunc(float64(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), true
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	case nil:
		return nil, true
	}
	return nil, false
}

// clone deep-copies the container types used by setting values so callers
// can never mutate a layer through a resolved value.
func clone(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = clone(e)
		}
		return out
	case map[string][]string:
		out := make(map[string][]string, len(v))
		for k, e := range v {
			out[k] = append([]string(nil), e...)
		}
		return out
	case map[string]map[string]any:
		out := make(map[string]map[string]any, len(v))
		for k, e := range v {
			out[k] = clone(e).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = clone(e)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}
