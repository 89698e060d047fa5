package settings

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raillogistic/autogql"
)

// File is the YAML configuration document accepted by LoadFile:
//
//	global:
//	  defaultPageSize: 20
//	schemas:
//	  - name: blog
//	    entities: [Post, Category]
//	    settings:
//	      maxPageSize: 50
type File struct {
	Global  map[string]any `yaml:"global"`
	Schemas []SchemaFile   `yaml:"schemas"`
}

// SchemaFile is one schema registration in a configuration document.
type SchemaFile struct {
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description"`
	Version          string         `yaml:"version"`
	Entities         []string       `yaml:"entities"`
	AutoDiscover     bool           `yaml:"autoDiscover"`
	Group            string         `yaml:"group"`
	ExcludedEntities []string       `yaml:"excludedEntities"`
	Enabled          *bool          `yaml:"enabled"`
	Settings         map[string]any `yaml:"settings"`
}

// IsEnabled reports if the schema is enabled. Schemas are enabled unless
// the document says otherwise.
func (s SchemaFile) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LoadFile reads and parses a configuration document.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("settings: %s: %w", path, err)
	}
	return f, nil
}

// Parse parses a configuration document and validates the shape of the
// known keys it sets.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, autogql.NewConfigError("file", nil, err.Error())
	}
	if _, err := normalizeAll(f.Global); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(f.Schemas))
	for _, s := range f.Schemas {
		if s.Name == "" {
			return nil, autogql.NewConfigError("schemas.name", nil, "schema name is required")
		}
		if seen[s.Name] {
			return nil, autogql.NewConfigError("schemas.name", s.Name, "duplicate schema")
		}
		seen[s.Name] = true
		if _, err := normalizeAll(s.Settings); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// FromDotenv collects settings from environment variables starting with
// prefix. Variables from the given dotenv files are read first; the process
// environment wins over them. AUTOGQL_MAX_PAGE_SIZE=50 with prefix "AUTOGQL_"
// yields {"maxPageSize": 50}. Values are typed as YAML scalars.
func FromDotenv(prefix string, files ...string) (map[string]any, error) {
	env := make(map[string]string)
	if len(files) > 0 {
		fileEnv, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("settings: read dotenv: %w", err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	out := make(map[string]any)
	for k, raw := range env {
		if !strings.HasPrefix(k, prefix) || k == prefix {
			continue
		}
		key := envKey(strings.TrimPrefix(k, prefix))
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		n, err := normalize(key, v)
		if err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, nil
}

// envKey converts MAX_PAGE_SIZE to maxPageSize.
func envKey(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}
