package settings

import (
	"slices"
	"time"

	"github.com/raillogistic/autogql"
)

var errEmptySchema = autogql.NewConfigError("schema", "", "schema name is required")

// View is a typed accessor over the settings of one schema. Typed getters
// fall back to the given value when a key is missing or has another type;
// resolution never fails.
type View struct {
	r      *Resolver
	schema string
}

// Schema returns the schema name of the view.
func (v View) Schema() string { return v.schema }

// Get resolves key for the schema of the view.
func (v View) Get(key string) (any, bool) {
	if v.r == nil {
		return nil, false
	}
	return v.r.Resolve(v.schema, key)
}

// Int resolves an integer setting.
func (v View) Int(key string, fallback int) int {
	if val, ok := v.Get(key); ok {
		if n, ok := toInt(val); ok {
			return n
		}
	}
	return fallback
}

// Bool resolves a boolean setting.
func (v View) Bool(key string, fallback bool) bool {
	if val, ok := v.Get(key); ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return fallback
}

// Duration resolves a duration setting.
func (v View) Duration(key string, fallback time.Duration) time.Duration {
	if val, ok := v.Get(key); ok {
		if d, ok := val.(time.Duration); ok {
			return d
		}
	}
	return fallback
}

// Strings resolves a list-of-strings setting.
func (v View) Strings(key string) []string {
	if val, ok := v.Get(key); ok {
		if s, ok := toStrings(val); ok {
			return s
		}
	}
	return nil
}

// ExcludedFields returns the fields of entity hidden from generated types.
func (v View) ExcludedFields(entity string) []string {
	val, ok := v.Get(ExcludedFields)
	if !ok {
		return nil
	}
	m, ok := val.(map[string][]string)
	if !ok {
		return nil
	}
	return m[entity]
}

// IsExcluded reports if field of entity is excluded.
func (v View) IsExcluded(entity, field string) bool {
	return slices.Contains(v.ExcludedFields(entity), field)
}

// Model resolves a per-model setting: models.<entity>.<key> from the most
// specific layer defining "models", and the schema-wide key otherwise.
func (v View) Model(entity, key string) (any, bool) {
	if val, ok := v.Get(Models); ok {
		if m, ok := val.(map[string]map[string]any); ok {
			if s, ok := m[entity][key]; ok {
				return s, true
			}
		}
	}
	return v.Get(key)
}

// ModelInt resolves an integer per-model setting.
func (v View) ModelInt(entity, key string, fallback int) int {
	if val, ok := v.Model(entity, key); ok {
		if n, ok := toInt(val); ok {
			return n
		}
	}
	return fallback
}

// ModelBool resolves a boolean per-model setting.
func (v View) ModelBool(entity, key string, fallback bool) bool {
	if val, ok := v.Model(entity, key); ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return fallback
}
