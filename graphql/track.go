package graphql

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/compiler/gen"
	"github.com/raillogistic/autogql/dialect"
)

// writes collects the entities written while a mutation runs.
type writes struct {
	mu       sync.Mutex
	entities map[string]bool
}

type writesKey struct{}

func withWrites(ctx context.Context) context.Context {
	return context.WithValue(ctx, writesKey{}, &writes{entities: make(map[string]bool)})
}

func record(ctx context.Context, entities ...string) {
	w, ok := ctx.Value(writesKey{}).(*writes)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entities {
		w.entities[e] = true
	}
}

func written(ctx context.Context) []string {
	w, ok := ctx.Value(writesKey{}).(*writes)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Sorted(maps.Keys(w.entities))
}

// tracked wraps a provider to record the entities each write touches.
// Writes of a rolled back transaction are recorded too.
type tracked struct {
	dialect.Provider
	// joins maps join tables to the entities on both sides.
	joins map[string][]string
}

func track(p dialect.Provider, g *gen.Graph) *tracked {
	t := &tracked{Provider: p, joins: make(map[string][]string)}
	for _, typ := range g.Types {
		for _, e := range typ.Edges {
			if e.M2M() && e.Rel.Join != nil {
				t.joins[e.Rel.Join.Table] = []string{typ.Name, e.Type.Name}
			}
		}
	}
	return t
}

func (p *tracked) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := p.Provider.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &trackedTx{Tx: tx, joins: p.joins}, nil
}

func (p *tracked) Insert(ctx context.Context, entity string, values dialect.Record) (dialect.Record, error) {
	record(ctx, entity)
	return p.Provider.Insert(ctx, entity, values)
}

func (p *tracked) Update(ctx context.Context, entity string, key any, values dialect.Record) (dialect.Record, error) {
	record(ctx, entity)
	return p.Provider.Update(ctx, entity, key, values)
}

func (p *tracked) Delete(ctx context.Context, entity string, key any) error {
	record(ctx, entity)
	return p.Provider.Delete(ctx, entity, key)
}

func (p *tracked) Link(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	record(ctx, p.joins[join.Table]...)
	return p.Provider.Link(ctx, join, key, ref)
}

func (p *tracked) Unlink(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	record(ctx, p.joins[join.Table]...)
	return p.Provider.Unlink(ctx, join, key, ref)
}

type trackedTx struct {
	dialect.Tx
	joins map[string][]string
}

func (tx *trackedTx) Insert(ctx context.Context, entity string, values dialect.Record) (dialect.Record, error) {
	record(ctx, entity)
	return tx.Tx.Insert(ctx, entity, values)
}

func (tx *trackedTx) Update(ctx context.Context, entity string, key any, values dialect.Record) (dialect.Record, error) {
	record(ctx, entity)
	return tx.Tx.Update(ctx, entity, key, values)
}

func (tx *trackedTx) Delete(ctx context.Context, entity string, key any) error {
	record(ctx, entity)
	return tx.Tx.Delete(ctx, entity, key)
}

func (tx *trackedTx) Link(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	record(ctx, tx.joins[join.Table]...)
	return tx.Tx.Link(ctx, join, key, ref)
}

func (tx *trackedTx) Unlink(ctx context.Context, join *dialect.JoinTable, key, ref any) error {
	record(ctx, tx.joins[join.Table]...)
	return tx.Tx.Unlink(ctx, join, key, ref)
}

// invalidateWrites drops the cached results of the entities written by the
// mutation running in ctx.
func (s *Schema) invalidateWrites(ctx context.Context) {
	entities := written(ctx)
	if s.cache == nil || len(entities) == 0 {
		return
	}
	if err := s.Invalidate(context.WithoutCancel(ctx), entities...); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "entities", entities, "error", err)
	}
}

// cacheKey returns the cache key of a list or paginated query. Results
// reaching other entities through edges are not cached, since writes to
// those entities would not invalidate them. Results of entities with
// policies depend on the viewer and are never cached.
func (s *Schema) cacheKey(op *Operation, args map[string]any, sel []Field) (string, bool) {
	if s.cache == nil || s.ttl <= 0 || (op.Kind != KindList && op.Kind != KindPaginated) {
		return "", false
	}
	if len(op.entity.Policies) > 0 {
		return "", false
	}
	if op.Kind == KindPaginated {
		for _, f := range sel {
			if f.Name == "items" && hasEdges(op.entity, f.Selection) {
				return "", false
			}
		}
	} else if hasEdges(op.entity, sel) {
		return "", false
	}
	d, err := digest(args, sel)
	if err != nil {
		return "", false
	}
	return autogql.CacheKey{Schema: s.name, Entity: op.Entity, Operation: op.Name, Args: d}.String(), true
}

func hasEdges(e *entity, sel []Field) bool {
	return slices.ContainsFunc(sel, func(f Field) bool {
		_, ok := e.Edge(f.Name)
		return ok
	})
}

// digest returns a stable hash of the arguments and selection of a query.
func digest(args map[string]any, sel []Field) (string, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	var buf sliceWriter
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(args); err != nil {
		return "", err
	}
	if err := enc.Encode(sel); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:16]), nil
}

type sliceWriter []byte

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}

// cached returns the result stored under key. Lookup failures are misses.
func (s *Schema) cached(ctx context.Context, key string) (any, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeInterface()
	if err != nil {
		s.logger.WarnContext(ctx, "cache entry dropped", "key", key, "error", err)
		return nil, false
	}
	return normalize(v), true
}

// store caches a projected result for the ttl of the schema.
func (s *Schema) store(ctx context.Context, key string, v any) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		s.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

// normalize turns the integers of a decoded result into ints, the type
// projected results use.
func normalize(v any) any {
	switch v := v.(type) {
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case int8, int16, int32, uint8, uint16, uint32:
		n, _ := integer(v)
		return n
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = normalize(v[k])
		}
		return v
	}
	return v
}
