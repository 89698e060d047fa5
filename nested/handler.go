// Package nested processes create, update and delete mutations whose
// payloads reach related entities inline.
//
// A payload is validated as a whole before anything is written, then the
// writes of the whole tree run in one transaction in dependency order: a
// related record referenced by a foreign key is written before the record
// holding the key.
package nested

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/dialect"
)

// Handler runs nested mutations of one schema graph against a provider.
// It is safe for concurrent use.
type Handler struct {
	graph    *gen.Graph
	provider dialect.Provider
	validate *validator.Validate
	logger   *slog.Logger
	retries  int
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger of the handler.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRetries sets how many times a transaction failing with a retryable
// provider error is run again.
func WithRetries(n int) Option {
	return func(h *Handler) {
		if n >= 0 {
			h.retries = n
		}
	}
}

// WithValidator sets the validator evaluating the format tags of fields.
func WithValidator(v *validator.Validate) Option {
	return func(h *Handler) {
		if v != nil {
			h.validate = v
		}
	}
}

// New returns a handler for the types of g, writing through p.
func New(g *gen.Graph, p dialect.Provider, opts ...Option) *Handler {
	h := &Handler{
		graph:    g,
		provider: p,
		validate: validator.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Graph returns the graph of the handler.
func (h *Handler) Graph() *gen.Graph { return h.graph }

// ProcessNestedCreate creates a record of entity from payload, together
// with every related record the payload creates, updates or references.
func (h *Handler) ProcessNestedCreate(ctx context.Context, entity string, payload map[string]any) (rec dialect.Record, err error) {
	err = h.tx(ctx, func(ctx context.Context, tx dialect.Tx) error {
		p, err := h.Plan(ctx, tx, entity, gen.ModeCreate, nil, payload)
		if err != nil {
			return err
		}
		rec, err = p.Apply(ctx, tx)
		return err
	})
	return rec, err
}

// ProcessNestedUpdate patches the record of entity with the given key.
// Omitted inputs are left untouched.
func (h *Handler) ProcessNestedUpdate(ctx context.Context, entity string, key any, payload map[string]any) (rec dialect.Record, err error) {
	err = h.tx(ctx, func(ctx context.Context, tx dialect.Tx) error {
		p, err := h.Plan(ctx, tx, entity, gen.ModeUpdate, key, payload)
		if err != nil {
			return err
		}
		rec, err = p.Apply(ctx, tx)
		return err
	})
	return rec, err
}

// Delete deletes the record of entity with the given key, applying the
// delete policy of every relationship that points to it. It returns the
// deleted record.
func (h *Handler) Delete(ctx context.Context, entity string, key any) (rec dialect.Record, err error) {
	err = h.tx(ctx, func(ctx context.Context, tx dialect.Tx) error {
		rec, err = h.DeleteIn(ctx, tx, entity, key)
		return err
	})
	return rec, err
}

func (h *Handler) tx(ctx context.Context, fn func(context.Context, dialect.Tx) error) error {
	return dialect.RunInTx(ctx, h.provider, fn, dialect.WithRetries(h.retries), dialect.WithTxLogger(h.logger))
}

func (h *Handler) typ(entity string) (*gen.Type, error) {
	t, ok := h.graph.Type(entity)
	if !ok {
		return nil, autogql.NewConfigError("entity", entity, "unknown entity")
	}
	return t, nil
}
