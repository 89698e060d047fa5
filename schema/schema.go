package schema

// Annotation is used to attach arbitrary metadata to entity definitions,
// fields and edges. Generators read annotations they recognize by Name and
// ignore the rest.
type Annotation interface {
	// Name defines the name of the annotation to be retrieved by the generators.
	Name() string
}

// Merger wraps the single Merge function allows custom annotation to provide
// an implementation for merging 2 or more annotations from the same type.
type Merger interface {
	Merge(Annotation) Annotation
}

// CommentAnnotation is a builtin annotation carrying a description of an
// entity. It is used as the description of generated object types.
type CommentAnnotation struct {
	Text string
}

// Name implements the Annotation interface.
func (*CommentAnnotation) Name() string {
	return "Comment"
}

// Comment returns a CommentAnnotation with the given text.
func Comment(text string) *CommentAnnotation {
	return &CommentAnnotation{Text: text}
}

// Find returns the last annotation with the given name, merging earlier
// occurrences into it when the annotation implements Merger.
func Find(annotations []Annotation, name string) Annotation {
	var found Annotation
	for _, a := range annotations {
		if a == nil || a.Name() != name {
			continue
		}
		if m, ok := found.(Merger); ok {
			found = m.Merge(a)
			continue
		}
		found = a
	}
	return found
}
