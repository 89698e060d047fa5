package load

import (
	"slices"
	"sync"

	"github.com/raillogistic/autogql"
)

// Catalog is the entity-model source: it enumerates the entity definitions
// known to the process and the logical group each belongs to.
type Catalog struct {
	mu        sync.RWMutex
	defs      map[string]autogql.Interface
	order     []string
	files     map[string][]string
	version   uint64
	listeners []func(names []string)
}

// NewCatalog returns a catalog holding the given definitions.
func NewCatalog(defs ...autogql.Interface) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]autogql.Interface)}
	if err := c.Register(defs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Register adds definitions to the catalog. Registering a name twice is a
// configuration error; use Replace to redefine an entity.
func (c *Catalog) Register(defs ...autogql.Interface) error {
	c.mu.Lock()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		name := Name(def)
		switch _, exists := c.defs[name]; {
		case name == "":
			c.mu.Unlock()
			return autogql.NewConfigError("entity", def, "missing entity name")
		case exists || slices.Contains(names, name):
			c.mu.Unlock()
			return autogql.NewConfigError("entity", name, "entity already registered")
		}
		names = append(names, name)
	}
	for i, def := range defs {
		c.defs[names[i]] = def
	}
	c.order = append(c.order, names...)
	c.version++
	c.mu.Unlock()
	c.notify(names)
	return nil
}

// Replace adds or redefines entities.
func (c *Catalog) Replace(defs ...autogql.Interface) {
	c.mu.Lock()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		name := Name(def)
		if _, ok := c.defs[name]; !ok {
			c.order = append(c.order, name)
		}
		c.defs[name] = def
		names = append(names, name)
	}
	c.version++
	c.mu.Unlock()
	c.notify(names)
}

// Remove deletes entities from the catalog.
func (c *Catalog) Remove(names ...string) {
	c.mu.Lock()
	for _, name := range names {
		delete(c.defs, name)
		c.order = slices.DeleteFunc(c.order, func(n string) bool { return n == name })
	}
	c.version++
	c.mu.Unlock()
	c.notify(names)
}

// Lookup returns the definition of an entity.
func (c *Catalog) Lookup(name string) (autogql.Interface, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[name]
	return def, ok
}

// Entities returns the names of the entities belonging to group, in
// registration order. An empty group returns all entities.
func (c *Catalog) Entities(group string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.order))
	for _, name := range c.order {
		if group == "" || c.defs[name].Config().Group == group {
			names = append(names, name)
		}
	}
	return names
}

// Groups returns the distinct non-empty groups, sorted.
func (c *Catalog) Groups() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var groups []string
	for _, def := range c.defs {
		if g := def.Config().Group; g != "" && !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	slices.Sort(groups)
	return groups
}

// Version is incremented on every change.
func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// OnChange registers a listener called with the names of the entities that
// were added, redefined or removed.
func (c *Catalog) OnChange(fn func(names []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Catalog) notify(names []string) {
	c.mu.RLock()
	listeners := slices.Clone(c.listeners)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(names)
	}
}
