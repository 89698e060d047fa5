// Package sqlschema provides SQL-specific annotations for autogql entities.
//
// Entity annotations:
//
//	func (Post) Annotations() []schema.Annotation {
//	    return []schema.Annotation{sqlschema.Table("articles")}
//	}
//
// Field annotations:
//
//	field.String("code").Annotations(sqlschema.Size(10))
//	field.JSON("data").Annotations(sqlschema.SchemaType(map[string]string{
//	    dialect.Postgres: "jsonb",
//	    dialect.MySQL:    "json",
//	}))
//	field.Int("age").Annotations(sqlschema.Check("age >= 0"))
//
// The annotations are read when entity storage layouts are built and only
// affect providers that create SQL tables.
package sqlschema

import "github.com/raillogistic/autogql/schema"

// AnnotationName is the name used for SQL annotations.
const AnnotationName = "sql"

// Annotation is a builtin schema annotation for configuring the SQL
// storage of entities and fields.
type Annotation struct {
	// Table overrides the table name of an entity.
	Table string `json:"table,omitempty"`

	// Size sets the column size of a textual field. It takes precedence
	// over the maximum length of the field.
	Size int `json:"size,omitempty"`

	// ColumnType overrides the column type for all dialects.
	ColumnType string `json:"column_type,omitempty"`

	// SchemaType overrides the column type per dialect. Keys are dialect
	// names; entries take precedence over ColumnType.
	SchemaType map[string]string `json:"schema_type,omitempty"`

	// Check is a CHECK constraint expression over the column.
	Check string `json:"check,omitempty"`
}

// Name implements schema.Annotation.
func (Annotation) Name() string {
	return AnnotationName
}

// Merge implements schema.Merger. Later non-zero values win and schema
// types are merged per dialect.
func (a Annotation) Merge(other schema.Annotation) schema.Annotation {
	var b Annotation
	switch o := other.(type) {
	case Annotation:
		b = o
	case *Annotation:
		if o == nil {
			return a
		}
		b = *o
	default:
		return a
	}
	return Merge(a, b)
}

// Types returns the per-dialect column types of the annotation, with the
// column type under the empty key. It returns nil when no type is set.
func (a Annotation) Types() map[string]string {
	if a.ColumnType == "" && len(a.SchemaType) == 0 {
		return nil
	}
	types := make(map[string]string, len(a.SchemaType)+1)
	if a.ColumnType != "" {
		types[""] = a.ColumnType
	}
	for d, t := range a.SchemaType {
		types[d] = t
	}
	return types
}

// Table returns an entity annotation that sets the table name.
func Table(name string) Annotation {
	return Annotation{Table: name}
}

// Size returns a field annotation that sets the column size.
func Size(size int) Annotation {
	return Annotation{Size: size}
}

// ColumnType returns a field annotation that sets the column type for
// every dialect.
//
//	field.String("code").Annotations(sqlschema.ColumnType("char(8)"))
func ColumnType(typ string) Annotation {
	return Annotation{ColumnType: typ}
}

// SchemaType returns a field annotation that sets the column type per
// dialect.
func SchemaType(types map[string]string) Annotation {
	return Annotation{SchemaType: types}
}

// Check returns a field annotation that adds a CHECK constraint.
func Check(expr string) Annotation {
	return Annotation{Check: expr}
}

// Merge merges annotations in order.
func Merge(annotations ...Annotation) Annotation {
	var m Annotation
	for _, a := range annotations {
		if a.Table != "" {
			m.Table = a.Table
		}
		if a.Size != 0 {
			m.Size = a.Size
		}
		if a.ColumnType != "" {
			m.ColumnType = a.ColumnType
		}
		if a.Check != "" {
			m.Check = a.Check
		}
		if len(a.SchemaType) > 0 {
			if m.SchemaType == nil {
				m.SchemaType = make(map[string]string, len(a.SchemaType))
			}
			for d, t := range a.SchemaType {
				m.SchemaType[d] = t
			}
		}
	}
	return m
}

// From extracts the SQL annotation of an annotation map. The second value
// reports whether one was present.
func From(annotations map[string]any) (Annotation, bool) {
	switch a := annotations[AnnotationName].(type) {
	case Annotation:
		return a, true
	case *Annotation:
		if a != nil {
			return *a, true
		}
	}
	return Annotation{}, false
}
