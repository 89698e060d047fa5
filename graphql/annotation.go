package graphql

import "github.com/raillogistic/autogql/schema"

// AnnotationName is the name used for GraphQL annotations.
const AnnotationName = "graphql"

// SkipMode defines what to skip in GraphQL generation.
type SkipMode uint

const (
	// SkipType skips the entity, field or edge from the whole API surface.
	SkipType SkipMode = 1 << iota
	// SkipWhere skips filtering on the field or edge, or the where argument
	// of the entity.
	SkipWhere
	// SkipOrder skips ordering by the field, or the orderBy argument of the
	// entity.
	SkipOrder
	// SkipCreateInput skips the create input of the entity, or the field or
	// edge from it.
	SkipCreateInput
	// SkipUpdateInput skips the update input of the entity, or the field or
	// edge from it.
	SkipUpdateInput

	// SkipAll skips all GraphQL generation.
	SkipAll = SkipType | SkipWhere | SkipOrder | SkipCreateInput | SkipUpdateInput

	// SkipMutationCreate skips the create mutations of the entity.
	SkipMutationCreate SkipMode = 1 << 5
	// SkipMutationUpdate skips the update mutations of the entity.
	SkipMutationUpdate SkipMode = 1 << 6
	// SkipMutationDelete skips the delete mutations of the entity.
	SkipMutationDelete SkipMode = 1 << 7

	// SkipMutations skips all mutations (create, update, delete).
	SkipMutations = SkipMutationCreate | SkipMutationUpdate | SkipMutationDelete

	// SkipInputs skips all input types.
	SkipInputs = SkipCreateInput | SkipUpdateInput
)

// Is checks if the mode has the given flag.
func (m SkipMode) Is(flag SkipMode) bool {
	return m&flag != 0
}

// Annotation holds GraphQL-specific settings for entities, fields and
// edges.
//
//	func (Post) Annotations() []schema.Annotation {
//	    return []schema.Annotation{
//	        graphql.Type("Article"),
//	        graphql.Skip(graphql.SkipMutationDelete),
//	    }
//	}
type Annotation struct {
	// Skip is the skip mode of the annotated element.
	Skip SkipMode `json:"Skip,omitempty"`
	// Type is the GraphQL name of the object type of an entity.
	Type string `json:"Type,omitempty"`
}

// Name implements schema.Annotation.
func (Annotation) Name() string {
	return AnnotationName
}

// Merge implements schema.Merger. Skip modes accumulate and the last
// non-empty type name wins.
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
	a.Skip |= b.Skip
	if b.Type != "" {
		a.Type = b.Type
	}
	return a
}

var (
	_ schema.Annotation = (*Annotation)(nil)
	_ schema.Merger     = (*Annotation)(nil)
)

// Skip returns an annotation that skips the specified modes.
//
//	field.String("password").Annotations(graphql.Skip(graphql.SkipType))
func Skip(modes ...SkipMode) Annotation {
	var m SkipMode
	for _, mode := range modes {
		m |= mode
	}
	return Annotation{Skip: m}
}

// Type sets the name of the object type generated for an entity.
func Type(name string) Annotation {
	return Annotation{Type: name}
}

// annotation returns the GraphQL annotation among annotations, if any.
func annotation(annotations map[string]any) Annotation {
	switch a := annotations[AnnotationName].(type) {
	case Annotation:
		return a
	case *Annotation:
		if a != nil {
			return *a
		}
	}
	return Annotation{}
}
