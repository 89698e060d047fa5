package gen

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/schema/field"
)

// Mode selects the mutation input a requiredness question is asked for.
type Mode uint8

// Input modes.
const (
	ModeCreate Mode = iota + 1
	ModeUpdate
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeUpdate:
		return "update"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Field holds the information of a type field.
type Field struct {
	*load.Field
	// Owner is the type holding the field.
	Owner *Type
	// Scalar is the mapping of the field kind.
	Scalar Scalar
	// referenced to-one edge when the field is a foreign-key column.
	fk *Edge
}

// IsEdgeField reports if the field is the foreign-key column of a to-one
// edge. Edge fields are storage-only: inputs and filters go through the edge.
func (f *Field) IsEdgeField() bool { return f.fk != nil }

// Edge returns the to-one edge a foreign-key column belongs to.
func (f *Field) Edge() (*Edge, bool) { return f.fk, f.fk != nil }

// RequiredOn reports if the field must be supplied in the input of mode.
//
// On create, a field is required when it has neither a server default nor
// an explicit default, is not nullable and is not the primary key. An
// update default alone does not exempt a field on create. On update, only
// the primary key is required. Foreign-key columns are never
// required at the type level; the "at least one of" rule of their edge is
// enforced by mutation validation instead.
func (f *Field) RequiredOn(m Mode) bool {
	switch m {
	case ModeCreate:
		if f.IsEdgeField() {
			return false
		}
		return !f.ServerDefault && !f.Default && !f.Nullable && !f.PrimaryKey
	case ModeUpdate:
		return f.PrimaryKey
	}
	return false
}

// InputOn reports if the field appears in the input of mode.
func (f *Field) InputOn(m Mode) bool {
	if f.IsEdgeField() {
		return false
	}
	if m == ModeUpdate {
		return f.PrimaryKey || !f.Immutable
	}
	return true
}

// Coerce converts an input value to the stored representation of the field.
func (f *Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return f.Scalar.Coerce(v)
}

// Serialize converts a stored value to its output representation.
func (f *Field) Serialize(v any) any {
	if v == nil || f.Scalar.Serialize == nil {
		return v
	}
	return f.Scalar.Serialize(v)
}

// DefaultFunc returns the function producing the value of an omitted field
// on create, or nil when the value is left to storage (auto-generated keys)
// or the field has no default.
func (f *Field) DefaultFunc() func() any {
	switch {
	case f.ServerDefaultFunc != nil:
		return f.ServerDefaultFunc
	case f.Default:
		v := f.DefaultValue
		return func() any { return v }
	case f.UpdateFunc != nil:
		return f.UpdateFunc
	case !f.ServerDefault || f.PrimaryKey:
		return nil
	case f.Type == field.TypeTime:
		return func() any { return time.Now() }
	case f.Type == field.TypeDate:
		return func() any {
			y, m, d := time.Now().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	case f.Type == field.TypeUUID:
		return func() any { return uuid.New() }
	}
	return nil
}

// HasChoice reports if v belongs to the choice set of the field. Fields
// without a choice set accept any value.
func (f *Field) HasChoice(v any) bool {
	if len(f.Choices) == 0 {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, c := range f.Choices {
		if c.Value == s {
			return true
		}
	}
	return false
}
