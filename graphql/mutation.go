package graphql

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/compiler/load"
	"github.com/raillogistic/autogql/dialect"
	"github.com/raillogistic/autogql/privacy"
	"github.com/raillogistic/autogql/schema/method"
)

// errBatchFailed rolls back a bulk batch after one of its items failed.
var errBatchFailed = errors.New("graphql: bulk batch failed")

// Messages of bulk items that were not written because of another item.
const (
	msgRolledBack   = "batch rolled back"
	msgNotProcessed = "not processed: an earlier batch failed"
)

// newEnvelope returns a failed payload of type typ with no errors yet.
func newEnvelope(typ string) map[string]any {
	return map[string]any{
		typename:  typ,
		"ok":      false,
		"object":  nil,
		"objects": nil,
		"errors":  []string{},
	}
}

// failure returns the payload of op reporting err.
func failure(op *Operation, err error) map[string]any {
	env := newEnvelope(op.Definition.Type.Name())
	env["errors"] = autogql.Messages(err)
	switch {
	case op.Kind.Bulk():
		env["results"] = []map[string]any{}
	case op.Kind == KindMethod && op.method.Returns.Valid():
		env["result"] = nil
	}
	return env
}

// outcome folds the result of a single-record mutation into its payload.
// Business errors become payload errors; others are returned.
func (s *Schema) outcome(ctx context.Context, e *entity, op string, rec dialect.Record, err error) (any, error) {
	if err != nil {
		if !autogql.IsBusiness(err) {
			return nil, err
		}
		s.logger.DebugContext(ctx, "mutation rejected", "operation", op, "error", err)
		env := newEnvelope(e.names.Payload)
		env["errors"] = autogql.Messages(err)
		return env, nil
	}
	env := newEnvelope(e.names.Payload)
	env["ok"], env["object"] = true, &object{e: e, rec: rec}
	return env, nil
}

func (s *Schema) create(ctx context.Context, e *entity, args map[string]any) (any, error) {
	input, _ := args[argInput].(map[string]any)
	rec, err := s.handler.ProcessNestedCreate(ctx, e.Name, input)
	return s.outcome(ctx, e, e.names.Create, rec, err)
}

func (s *Schema) update(ctx context.Context, e *entity, args map[string]any) (any, error) {
	input, _ := args[argInput].(map[string]any)
	rec, err := s.handler.ProcessNestedUpdate(ctx, e.Name, input[e.ID.Name], input)
	return s.outcome(ctx, e, e.names.Update, rec, err)
}

func (s *Schema) delete(ctx context.Context, e *entity, args map[string]any) (any, error) {
	rec, err := s.handler.Delete(ctx, e.Name, args[e.ID.Name])
	return s.outcome(ctx, e, e.names.Delete, rec, err)
}

// bulk runs a bulk mutation in batches of the bulkBatchSize setting, each
// in its own transaction. A failing item rolls back its batch only; with
// bulkStopOnBatchFailure the later batches are skipped. With bulkAtomic
// the whole list is one batch.
func (s *Schema) bulk(ctx context.Context, e *entity, kind OperationKind, args map[string]any) (any, error) {
	arg := argInputs
	if kind == KindBulkDelete {
		arg = argIDs
	}
	items, ok := args[arg].([]any)
	if !ok {
		return nil, fmt.Errorf("graphql: %s of %s expects a list, got %T", arg, e.Name, args[arg])
	}
	size := e.batchSize
	if e.bulkAtomic {
		size = max(1, len(items))
	}
	var (
		results = make([]map[string]any, len(items))
		errs    []string
		stopped bool
	)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		if stopped {
			for i := start; i < end; i++ {
				results[i] = itemResult(i, nil, msgNotProcessed)
			}
			continue
		}
		batch, msgs, err := s.batch(ctx, e, kind, arg, items, start, end)
		if err != nil {
			return nil, err
		}
		copy(results[start:], batch)
		errs = append(errs, msgs...)
		if len(msgs) > 0 {
			s.logger.DebugContext(ctx, "bulk batch rolled back", "entity", e.Name, "from", start, "to", end)
			stopped = e.bulkStop
		}
	}
	env := newEnvelope(e.names.BulkPayload)
	objs := make([]*object, 0, len(items))
	for _, r := range results {
		if o, ok := r["object"].(*object); ok {
			objs = append(objs, o)
		}
	}
	env["ok"] = len(objs) == len(items)
	env["objects"] = objs
	env["results"] = results
	if errs != nil {
		env["errors"] = errs
	}
	return env, nil
}

// batch writes items[start:end] in one transaction. On a business failure
// the batch is rolled back and the messages of the failing item, scoped to
// its argument path, are returned.
func (s *Schema) batch(ctx context.Context, e *entity, kind OperationKind, arg string, items []any, start, end int) ([]map[string]any, []string, error) {
	var (
		results []map[string]any
		msgs    []string
	)
	err := s.tx(ctx, func(ctx context.Context, tx dialect.Tx) error {
		results, msgs = make([]map[string]any, end-start), nil
		for i := start; i < end; i++ {
			rec, err := s.item(ctx, tx, e, kind, items[i])
			if err == nil {
				results[i-start] = itemResult(i, &object{e: e, rec: rec})
				continue
			}
			if !autogql.IsBusiness(err) {
				return err
			}
			for j := start; j < end; j++ {
				results[j-start] = itemResult(j, nil, msgRolledBack)
			}
			results[i-start] = itemResult(i, nil, autogql.Messages(err)...)
			msgs = scoped(fmt.Sprintf("%s[%d]", arg, i), err)
			return errBatchFailed
		}
		return nil
	})
	var rerr *autogql.RollbackError
	if errors.Is(err, errBatchFailed) && !errors.As(err, &rerr) {
		return results, msgs, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return results, nil, nil
}

// item writes one bulk item through tx.
func (s *Schema) item(ctx context.Context, tx dialect.Tx, e *entity, kind OperationKind, v any) (dialect.Record, error) {
	if kind == KindBulkDelete {
		return s.handler.DeleteIn(ctx, tx, e.Name, v)
	}
	input, ok := v.(map[string]any)
	if !ok {
		return nil, autogql.ValidationErrors{autogql.Invalidf("", "expects an object")}
	}
	mode, key := gen.ModeCreate, any(nil)
	if kind == KindBulkUpdate {
		mode, key = gen.ModeUpdate, input[e.ID.Name]
	}
	p, err := s.handler.Plan(ctx, tx, e.Name, mode, key, input)
	if err != nil {
		return nil, err
	}
	return p.Apply(ctx, tx)
}

func itemResult(index int, obj *object, errs ...string) map[string]any {
	r := map[string]any{
		"index":  index,
		"ok":     obj != nil,
		"object": nil,
		"errors": []string{},
	}
	if obj != nil {
		r["object"] = obj
	}
	if len(errs) > 0 {
		r["errors"] = errs
	}
	return r
}

// scoped renders err with every message scoped under path.
func scoped(path string, err error) []string {
	var ves autogql.ValidationErrors
	if errors.As(err, &ves) {
		return ves.Prefix(path).Messages()
	}
	var ve *autogql.ValidationError
	if errors.As(err, &ve) {
		return autogql.ValidationErrors{ve}.Prefix(path).Messages()
	}
	msgs := autogql.Messages(err)
	for i := range msgs {
		msgs[i] = path + ": " + msgs[i]
	}
	return msgs
}

// call runs a behavior method on one record, in a transaction. The payload
// object is the record as reloaded after the call, or the entity the
// method returns.
func (s *Schema) call(ctx context.Context, e *entity, m *load.Method, payload string, args map[string]any) (any, error) {
	var (
		obj    *object
		result any
	)
	err := s.tx(ctx, func(ctx context.Context, tx dialect.Tx) error {
		obj, result = nil, nil
		key, err := e.ID.Coerce(args[e.ID.Name])
		if err != nil {
			return autogql.ValidationErrors{autogql.NewValidationError(e.ID.Name, err)}
		}
		inst, err := tx.Get(ctx, e.Name, key)
		if err != nil {
			return err
		}
		params := make(map[string]any, len(m.Params))
		var errs autogql.ValidationErrors
		for _, p := range m.Params {
			v := args[p.Name]
			if v == nil {
				if p.Required {
					errs = append(errs, autogql.Invalidf(p.Name, "is required"))
				}
				continue
			}
			c, err := s.graph.TypeMap().Coerce(p.Type, v)
			if err != nil {
				errs = append(errs, autogql.NewValidationError(p.Name, err))
				continue
			}
			params[p.Name] = c
		}
		if len(errs) > 0 {
			return errs
		}
		if err := privacy.CheckMutation(ctx, e.Policies, &invocation{entity: e.Name, key: key, pk: e.ID.Name, args: params}); err != nil {
			return err
		}
		out, err := m.Func(ctx, &method.Call{
			Entity:   e.Name,
			Key:      key,
			Instance: inst.Clone(),
			Args:     params,
			Store:    store{ex: tx},
		})
		if err != nil {
			return err
		}
		if m.ReturnsEntity != "" {
			target := s.gen.byType[m.ReturnsEntity]
			rec, err := s.returned(ctx, tx, target, out)
			if err != nil {
				return err
			}
			if rec != nil {
				obj = &object{e: target, rec: rec}
			}
			return nil
		}
		rec, err := tx.Get(ctx, e.Name, key)
		if err != nil {
			return err
		}
		obj = &object{e: e, rec: rec}
		if m.Returns.Valid() {
			result = s.graph.TypeMap().Serialize(m.Returns, out)
		}
		return nil
	})
	env := newEnvelope(payload)
	if m.Returns.Valid() {
		env["result"] = result
	}
	if err != nil {
		if !autogql.IsBusiness(err) {
			return nil, err
		}
		s.logger.WarnContext(ctx, "method rejected", "entity", e.Name, "method", m.Name, "error", err)
		env["errors"] = autogql.Messages(err)
		if m.Returns.Valid() {
			env["result"] = nil
		}
		return env, nil
	}
	env["ok"] = true
	if obj != nil {
		env["object"] = obj
	}
	return env, nil
}

// returned resolves the value a method returned for an entity result: a
// record, a live instance or a primary key.
func (s *Schema) returned(ctx context.Context, ex dialect.Executor, t *entity, v any) (dialect.Record, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case dialect.Record:
		return v, nil
	case map[string]any:
		return dialect.Record(v), nil
	case dialect.Keyer:
		return ex.Get(ctx, t.Name, v.Key())
	}
	key, err := t.ID.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("graphql: method result for %s: %w", t.Name, err)
	}
	return ex.Get(ctx, t.Name, key)
}

// store gives behavior methods access to records through the mutation
// transaction.
type store struct {
	ex dialect.Executor
}

func (s store) Get(ctx context.Context, entity string, key any) (map[string]any, error) {
	return s.ex.Get(ctx, entity, key)
}

func (s store) Update(ctx context.Context, entity string, key any, values map[string]any) (map[string]any, error) {
	return s.ex.Update(ctx, entity, key, values)
}

// invocation describes a method call to mutation policies.
type invocation struct {
	entity string
	pk     string
	key    any
	args   map[string]any
}

func (i *invocation) Op() autogql.Op { return autogql.OpMethod }

func (i *invocation) Type() string { return i.entity }

func (i *invocation) Fields() []string {
	return append([]string{i.pk}, slices.Sorted(maps.Keys(i.args))...)
}

func (i *invocation) Field(name string) (autogql.Value, bool) {
	if name == i.pk {
		return i.key, true
	}
	v, ok := i.args[name]
	return v, ok
}

var (
	_ method.Store     = store{}
	_ autogql.Mutation = (*invocation)(nil)
)
