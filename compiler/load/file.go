package load

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/schema/edge"
	"github.com/raillogistic/autogql/schema/field"
)

// EntityFile is the YAML document of dynamic entity definitions:
//
//	entities:
//	  - name: Note
//	    group: blog
//	    fields:
//	      - {name: title, type: string, maxLen: 200}
//	      - {name: status, type: enum, values: [draft, published], default: draft}
//	      - {name: created_at, type: datetime, serverDefault: now}
//	    edges:
//	      - {name: category, to: Category, required: true, ref: notes}
//
// Entities without a primary key get an auto-generated integer id.
type EntityFile struct {
	Entities []EntityDef `yaml:"entities"`
}

// EntityDef is one entity of an EntityFile.
type EntityDef struct {
	Name    string     `yaml:"name"`
	Table   string     `yaml:"table"`
	Group   string     `yaml:"group"`
	Comment string     `yaml:"comment"`
	Fields  []FieldDef `yaml:"fields"`
	Edges   []EdgeDef  `yaml:"edges"`
}

// FieldDef is one field of an EntityDef.
type FieldDef struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	Nullable      bool     `yaml:"nullable"`
	Unique        bool     `yaml:"unique"`
	PrimaryKey    bool     `yaml:"primaryKey"`
	AutoGenerated bool     `yaml:"autoGenerated"`
	Immutable     bool     `yaml:"immutable"`
	MaxLen        int      `yaml:"maxLen"`
	Default       any      `yaml:"default"`
	ServerDefault string   `yaml:"serverDefault"`
	Values        []string `yaml:"values"`
	Format        []string `yaml:"format"`
	StorageKey    string   `yaml:"storageKey"`
	Comment       string   `yaml:"comment"`
}

// EdgeDef is one relationship of an EntityDef.
type EdgeDef struct {
	Name       string `yaml:"name"`
	To         string `yaml:"to"`
	ManyToMany bool   `yaml:"manyToMany"`
	Unique     bool   `yaml:"unique"`
	Required   bool   `yaml:"required"`
	Ref        string `yaml:"ref"`
	Field      string `yaml:"field"`
	Through    string `yaml:"through"`
	OnDelete   string `yaml:"onDelete"`
	Immutable  bool   `yaml:"immutable"`
	Comment    string `yaml:"comment"`
}

var typeAliases = map[string]field.Type{
	"int":       field.TypeInt,
	"int64":     field.TypeInt,
	"bool":      field.TypeBool,
	"time":      field.TypeTime,
	"timestamp": field.TypeTime,
	"bytes":     field.TypeBytes,
}

var serverDefaults = map[string]func() any{
	"now":  func() any { return time.Now() },
	"uuid": func() any { return uuid.New() },
	"ulid": func() any { return ulid.Make().String() },
}

var deleteActions = map[string]edge.Action{
	"":            edge.NoAction,
	"cascade":     edge.Cascade,
	"restrict":    edge.Restrict,
	"setnull":     edge.SetNull,
	"set_null":    edge.SetNull,
	"setdefault":  edge.SetDefault,
	"set_default": edge.SetDefault,
}

// ParseEntities decodes an EntityFile into entity definitions.
func ParseEntities(data []byte) ([]autogql.Interface, error) {
	var f EntityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, autogql.NewConfigError("entities", nil, err.Error())
	}
	defs := make([]autogql.Interface, 0, len(f.Entities))
	seen := make(map[string]bool, len(f.Entities))
	for i, e := range f.Entities {
		path := fmt.Sprintf("entities[%d]", i)
		if e.Name == "" {
			return nil, autogql.NewConfigError(path, nil, "missing entity name")
		}
		if seen[e.Name] {
			return nil, autogql.NewConfigError(path, e.Name, "duplicate entity")
		}
		seen[e.Name] = true
		def, err := e.definition(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadEntities reads and parses an EntityFile.
func LoadEntities(path string) ([]autogql.Interface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: read %s: %w", path, err)
	}
	defs, err := ParseEntities(data)
	if err != nil {
		return nil, fmt.Errorf("load: %s: %w", path, err)
	}
	return defs, nil
}

// LoadFile loads the entities of an EntityFile into the catalog. Loading the
// same path again redefines its entities and removes the ones that are no
// longer declared in it. It returns the names of the loaded entities.
func (c *Catalog) LoadFile(path string) ([]string, error) {
	defs, err := LoadEntities(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = Name(def)
	}
	c.mu.Lock()
	if c.files == nil {
		c.files = make(map[string][]string)
	}
	var stale []string
	for _, name := range c.files[path] {
		if !slices.Contains(names, name) {
			stale = append(stale, name)
		}
	}
	c.files[path] = names
	c.mu.Unlock()
	if len(stale) > 0 {
		c.Remove(stale...)
	}
	c.Replace(defs...)
	return names, nil
}

// definition is an entity declared in a document instead of Go code.
type definition struct {
	autogql.Schema
	config autogql.Config
	fields []autogql.Field
	edges  []autogql.Edge
}

func (d *definition) Config() autogql.Config  { return d.config }
func (d *definition) Fields() []autogql.Field { return d.fields }
func (d *definition) Edges() []autogql.Edge   { return d.edges }

func (e EntityDef) definition(path string) (*definition, error) {
	d := &definition{
		config: autogql.Config{Name: e.Name, Table: e.Table, Group: e.Group, Comment: e.Comment},
	}
	for i, fd := range e.Fields {
		f, err := fd.builder()
		if err != nil {
			return nil, autogql.NewConfigError(fmt.Sprintf("%s.fields[%d]", path, i), fd.Name, err.Error())
		}
		d.fields = append(d.fields, f)
	}
	for i, ed := range e.Edges {
		b, err := ed.builder()
		if err != nil {
			return nil, autogql.NewConfigError(fmt.Sprintf("%s.edges[%d]", path, i), ed.Name, err.Error())
		}
		d.edges = append(d.edges, b)
	}
	return d, nil
}

func (fd FieldDef) builder() (*field.Builder, error) {
	if fd.Name == "" {
		return nil, fmt.Errorf("missing field name")
	}
	t, ok := typeAliases[strings.ToLower(fd.Type)]
	if !ok {
		t = field.Type(strings.ToLower(fd.Type))
	}
	if !t.Valid() {
		return nil, fmt.Errorf("missing field type")
	}
	b := field.Other(fd.Name, t)
	if len(fd.Values) > 0 {
		b.Values(fd.Values...)
	}
	if fd.Nullable {
		b.Nullable()
	}
	if fd.Unique {
		b.Unique()
	}
	if fd.PrimaryKey {
		b.PrimaryKey()
	}
	if fd.AutoGenerated {
		b.AutoGenerated()
	}
	if fd.Immutable {
		b.Immutable()
	}
	if fd.MaxLen > 0 {
		b.MaxLen(fd.MaxLen)
	}
	if fd.Default != nil {
		b.Default(fd.Default)
	}
	switch s := strings.ToLower(fd.ServerDefault); s {
	case "":
	case "storage":
		b.ServerDefault(nil)
	default:
		fn, ok := serverDefaults[s]
		if !ok {
			return nil, fmt.Errorf("unknown server default %q", fd.ServerDefault)
		}
		b.ServerDefault(fn)
	}
	if len(fd.Format) > 0 {
		b.Format(fd.Format...)
	}
	if fd.StorageKey != "" {
		b.StorageKey(fd.StorageKey)
	}
	if fd.Comment != "" {
		b.Comment(fd.Comment)
	}
	if err := b.Descriptor().Err; err != nil {
		return nil, err
	}
	return b, nil
}

func (ed EdgeDef) builder() (*edge.Builder, error) {
	if ed.Name == "" {
		return nil, fmt.Errorf("missing edge name")
	}
	if ed.To == "" {
		return nil, fmt.Errorf("missing edge target")
	}
	var b *edge.Builder
	if ed.ManyToMany {
		b = edge.ManyToMany(ed.Name, ed.To)
		if ed.Through != "" {
			b.Through(ed.Through)
		}
	} else {
		b = edge.To(ed.Name, ed.To)
		if ed.Field != "" {
			b.Field(ed.Field)
		}
	}
	if ed.Unique {
		b.Unique()
	}
	if ed.Required {
		b.Required()
	}
	if ed.Ref != "" {
		b.Ref(ed.Ref)
	}
	action, ok := deleteActions[strings.ToLower(ed.OnDelete)]
	if !ok {
		return nil, fmt.Errorf("unknown delete policy %q", ed.OnDelete)
	}
	if action != edge.NoAction {
		b.OnDelete(action)
	}
	if ed.Immutable {
		b.Immutable()
	}
	if ed.Comment != "" {
		b.Comment(ed.Comment)
	}
	if err := b.Descriptor().Err; err != nil {
		return nil, err
	}
	return b, nil
}
