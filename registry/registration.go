package registry

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/raillogistic/autogql/graphql"
)

// Config is the configuration of a schema registration.
type Config struct {
	// Description and Version are informational.
	Description string
	Version     string

	// Entities is the explicit entity set of the schema. It is ignored when
	// AutoDiscover is set.
	Entities []string
	// AutoDiscover includes every entity of Group, or of the whole catalog
	// when Group is empty, minus ExcludedEntities.
	AutoDiscover     bool
	Group            string
	ExcludedEntities []string

	// Settings holds the schema-layer settings overrides.
	Settings map[string]any

	// Disabled registers the schema in the disabled state.
	Disabled bool
}

func (c Config) clone() Config {
	c.Entities = slices.Clone(c.Entities)
	c.ExcludedEntities = slices.Clone(c.ExcludedEntities)
	c.Settings = maps.Clone(c.Settings)
	return c
}

// Registration is a named schema known to a Registry. The built schema is
// a cached side-state of the registration: it is attached by the first
// successful build and cleared whenever the entity set or the settings of
// the schema change.
type Registration struct {
	name       string
	registered time.Time

	// build serializes the builds of this registration only.
	build sync.Mutex

	mu         sync.RWMutex
	cfg        Config
	enabled    bool
	generation uint64
	built      *graphql.Schema
	builtAt    time.Time
}

func newRegistration(name string, cfg Config) *Registration {
	cfg = cfg.clone()
	return &Registration{
		name:       name,
		registered: time.Now(),
		cfg:        cfg,
		enabled:    !cfg.Disabled,
	}
}

// Name returns the name of the schema.
func (r *Registration) Name() string { return r.name }

// RegisteredAt returns the registration time.
func (r *Registration) RegisteredAt() time.Time { return r.registered }

// Config returns a copy of the registration config.
func (r *Registration) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.clone()
}

// Enabled reports if the schema can be built and served.
func (r *Registration) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Built returns the cached schema, if any.
func (r *Registration) Built() (*graphql.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.built, r.built != nil
}

// BuiltAt returns the time the cached schema was published. It is zero
// when no schema is cached.
func (r *Registration) BuiltAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builtAt
}

// Generation is incremented whenever the cached schema is cleared.
func (r *Registration) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *Registration) setEnabled(on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := r.enabled != on
	r.enabled = on
	r.cfg.Disabled = !on
	return changed
}

// update applies fn to the config and clears the cached schema.
func (r *Registration) update(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.cfg)
	r.clearLocked()
}

// clear drops the cached schema. It reports if one was cached.
func (r *Registration) clear() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearLocked()
}

func (r *Registration) clearLocked() bool {
	had := r.built != nil
	r.built, r.builtAt = nil, time.Time{}
	r.generation++
	return had
}

// publish caches s unless the registration changed since gen was read.
func (r *Registration) publish(s *graphql.Schema, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return false
	}
	r.built, r.builtAt = s, time.Now()
	return true
}

// cached is the fast path of a build: the schema when one is cached, or
// the current generation.
func (r *Registration) cached() (s *graphql.Schema, enabled bool, gen uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.built, r.enabled, r.generation
}
