package gen

import (
	"errors"
	"log/slog"
)

// Option configures graph construction.
type Option func(*Graph) error

// WithTypeMap sets the scalar mapping table used for fields.
// Defaults to NewTypeMap().
func WithTypeMap(m *TypeMap) Option {
	return func(g *Graph) error {
		if m == nil {
			return errors.New("gen: type map cannot be nil")
		}
		g.typeMap = m
		return nil
	}
}

// WithJoinTableNamer sets the function naming the join table of a
// many-to-many edge that does not declare one. It receives the owner entity
// and the edge name.
func WithJoinTableNamer(fn func(owner, edge string) string) Option {
	return func(g *Graph) error {
		if fn == nil {
			return errors.New("gen: join table namer cannot be nil")
		}
		g.joinTable = fn
		return nil
	}
}

// WithLogger sets the logger used while building the graph.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) error {
		if l == nil {
			return errors.New("gen: logger cannot be nil")
		}
		g.logger = l
		return nil
	}
}

// DefaultJoinTable names the join table of owner.edge, e.g. "post_tags".
func DefaultJoinTable(owner, edge string) string {
	return Snake(owner) + "_" + Snake(edge)
}
