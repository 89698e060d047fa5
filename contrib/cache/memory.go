// Package cache provides query-result cache backends for autogql schemas.
//
// A Memory cache keeps entries in process and supports the prefix deletes
// the engine issues after writes:
//
//	c := cache.NewMemory(cache.WithMaxEntries(10_000))
//	s, err := graphql.New("public", g, p, graphql.WithCache(c))
//
// Entries can be saved with Dump and restored with Load, for example to
// keep a warm cache across restarts of a development server.
package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/raillogistic/autogql"
)

// Memory is an in-process cache. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	max     int
	now     func() time.Time
	logger  *slog.Logger
}

type entry struct {
	Value   []byte    `msgpack:"v"`
	Expires time.Time `msgpack:"e,omitempty"`
	// Stored orders evictions.
	Stored time.Time `msgpack:"s"`
}

func (e *entry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !now.Before(e.Expires)
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithMaxEntries bounds the number of entries. When full, expired entries
// are dropped first, then the oldest ones.
func WithMaxEntries(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.max = n
		}
	}
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger of the cache.
func WithLogger(l *slog.Logger) Option {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMemory returns an empty in-memory cache.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value stored under key, or nil when it is missing or
// expired.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		m.logger.DebugContext(ctx, "cache miss", "key", key)
		return nil, nil
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "cache miss", "key", key, "expired", true)
		return nil, nil
	}
	m.logger.DebugContext(ctx, "cache hit", "key", key)
	return slices.Clone(e.Value), nil
}

// Set stores value under key. A zero ttl never expires.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl < 0 {
		return fmt.Errorf("cache: negative ttl %s for key %q", ttl, key)
	}
	now := m.now()
	e := &entry{Value: slices.Clone(value), Stored: now}
	if ttl > 0 {
		e.Expires = now.Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok && m.max > 0 && len(m.entries) >= m.max {
		m.evictLocked(now)
	}
	m.entries[key] = e
	return nil
}

// evictLocked makes room for one entry.
func (m *Memory) evictLocked(now time.Time) {
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.max {
		return
	}
	var (
		oldest string
		at     time.Time
	)
	for k, e := range m.entries {
		if oldest == "" || e.Stored.Before(at) {
			oldest, at = k, e.Stored
		}
	}
	delete(m.entries, oldest)
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *Memory) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	n := 0
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			n++
		}
	}
	m.mu.Unlock()
	m.logger.DebugContext(ctx, "cache prefix deleted", "prefix", prefix, "entries", n)
	return nil
}

// Clear removes every entry.
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included until
// they are read or evicted.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns the stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.entries))
}

// Dump writes the live entries to w in msgpack.
func (m *Memory) Dump(w io.Writer) error {
	now := m.now()
	m.mu.RLock()
	live := make(map[string]*entry, len(m.entries))
	for k, e := range m.entries {
		if !e.expired(now) {
			live[k] = e
		}
	}
	m.mu.RUnlock()
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(live); err != nil {
		return fmt.Errorf("cache: dump: %w", err)
	}
	return nil
}

// Load adds the entries written by Dump. Entries that expired since are
// skipped.
func (m *Memory) Load(r io.Reader) error {
	var in map[string]*entry
	if err := msgpack.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("cache: load: %w", err)
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range in {
		if e == nil || e.expired(now) {
			continue
		}
		if _, ok := m.entries[k]; !ok && m.max > 0 && len(m.entries) >= m.max {
			m.evictLocked(now)
		}
		m.entries[k] = e
	}
	return nil
}

var _ autogql.Cache = (*Memory)(nil)
