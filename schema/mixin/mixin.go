package mixin

import (
	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/schema"
)

// Schema is the default implementation for the autogql.Mixin interface.
// It should be embedded in all custom mixin definitions.
type Schema struct{}

// Fields of the mixin.
func (Schema) Fields() []autogql.Field { return nil }

// Edges of the mixin.
func (Schema) Edges() []autogql.Edge { return nil }

// Methods of the mixin.
func (Schema) Methods() []autogql.Method { return nil }

// Policy of the mixin.
func (Schema) Policy() autogql.Policy { return nil }

// Annotations of the mixin.
func (Schema) Annotations() []schema.Annotation { return nil }

var _ autogql.Mixin = (*Schema)(nil)

// AnnotateFields wraps a mixin and adds annotations to all its fields,
// e.g. hiding audit fields from create inputs:
//
//	mixin.AnnotateFields(AuditMixin{}, graphql.Skip(graphql.SkipCreateInput))
func AnnotateFields(m autogql.Mixin, annotations ...schema.Annotation) autogql.Mixin {
	return fieldAnnotator{Mixin: m, annotations: annotations}
}

// AnnotateEdges wraps a mixin and adds annotations to all its edges.
func AnnotateEdges(m autogql.Mixin, annotations ...schema.Annotation) autogql.Mixin {
	return edgeAnnotator{Mixin: m, annotations: annotations}
}

type fieldAnnotator struct {
	autogql.Mixin
	annotations []schema.Annotation
}

func (a fieldAnnotator) Fields() []autogql.Field {
	fields := a.Mixin.Fields()
	for i := range fields {
		desc := fields[i].Descriptor()
		desc.Annotations = append(desc.Annotations, a.annotations...)
	}
	return fields
}

type edgeAnnotator struct {
	autogql.Mixin
	annotations []schema.Annotation
}

func (a edgeAnnotator) Edges() []autogql.Edge {
	edges := a.Mixin.Edges()
	for i := range edges {
		desc := edges[i].Descriptor()
		desc.Annotations = append(desc.Annotations, a.annotations...)
	}
	return edges
}
