package gen

import (
	"errors"

	"github.com/raillogistic/autogql"
)

// ErrInvalidEdge is matched by the definition errors of edges.
var ErrInvalidEdge = errors.New("gen: invalid edge")

// DefinitionError reports an entity definition the graph cannot be built
// from. It matches autogql.ErrInvalidConfig.
type DefinitionError struct {
	Entity string
	// Member is the field, edge or method at fault, if any.
	Member string
	// Target is the related entity of an edge error.
	Target string
	Reason string
	Err    error
}

func (e *DefinitionError) Error() string {
	msg := "gen: entity " + e.Entity
	if e.Member != "" {
		msg += ", " + e.Member
	}
	if e.Target != "" {
		msg += " (to " + e.Target + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DefinitionError) Unwrap() error { return e.Err }

func (e *DefinitionError) Is(target error) bool {
	return target == autogql.ErrInvalidConfig || (target == ErrInvalidEdge && e.Target != "")
}

func entityError(entity, member, reason string, err error) *DefinitionError {
	return &DefinitionError{Entity: entity, Member: member, Reason: reason, Err: err}
}

func edgeError(from, to, edge, reason string) *DefinitionError {
	return &DefinitionError{Entity: from, Member: edge, Target: to, Reason: reason}
}

// IsEdgeError reports whether err is a definition error of an edge.
func IsEdgeError(err error) bool { return errors.Is(err, ErrInvalidEdge) }

// IsDefinitionError reports whether err is a DefinitionError.
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}
