// Package catalog loads the generation model catalog. The catalog names the
// models the generation gateway accepts, grouped by what they produce, and
// marks which ones a fan-out uses when the caller does not pick explicitly.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind groups models by what they generate.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindParse Kind = "parse"
)

// Model describes one generation model known to the gateway.
type Model struct {
	Name        string `yaml:"name"`
	Kind        Kind   `yaml:"kind"`
	Label       string `yaml:"label,omitempty"`
	Default     bool   `yaml:"default,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Catalog is an immutable set of models keyed by name.
type Catalog struct {
	models []Model
	byName map[string]Model
}

// Builtin returns the catalog used when no catalog file is configured.
func Builtin() *Catalog {
	c, err := build([]Model{
		{Name: "flux-pro", Kind: KindImage, Label: "Flux Pro", Default: true},
		{Name: "sdxl", Kind: KindImage, Label: "SDXL", Default: true},
		{Name: "kling-v1", Kind: KindVideo, Label: "Kling", Default: true},
		{Name: "screenplay-v2", Kind: KindParse, Label: "Screenplay parser", Default: true},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog file. An empty path yields the builtin catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Models []Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("model catalog lists no models")
	}
	return build(doc.Models)
}

func build(models []Model) (*Catalog, error) {
	byName := make(map[string]Model, len(models))
	clean := make([]Model, 0, len(models))
	for _, m := range models {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, fmt.Errorf("model catalog entry has no name")
		}
		switch m.Kind {
		case KindImage, KindVideo, KindParse:
		default:
			return nil, fmt.Errorf("model %q has unknown kind %q", m.Name, m.Kind)
		}
		if _, dup := byName[m.Name]; dup {
			return nil, fmt.Errorf("model %q listed twice", m.Name)
		}
		if m.Label == "" {
			m.Label = m.Name
		}
		byName[m.Name] = m
		clean = append(clean, m)
	}

	c := &Catalog{models: clean, byName: byName}
	for _, kind := range []Kind{KindImage, KindVideo, KindParse} {
		if len(c.ForKind(kind)) > 0 && len(c.DefaultsFor(kind)) == 0 {
			return nil, fmt.Errorf("model catalog has %s models but no %s default", kind, kind)
		}
	}
	return c, nil
}

// Lookup returns the named model.
func (c *Catalog) Lookup(name string) (Model, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// ForKind returns every model of a kind, sorted by name.
func (c *Catalog) ForKind(kind Kind) []Model {
	var out []Model
	for _, m := range c.models {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultsFor returns the models a fan-out uses for a kind when the caller
// names none.
func (c *Catalog) DefaultsFor(kind Kind) []Model {
	var out []Model
	for _, m := range c.ForKind(kind) {
		if m.Default {
			out = append(out, m)
		}
	}
	return out
}

// Resolve maps requested model names to catalog entries of the wanted kind,
// falling back to the kind's defaults when names is empty.
func (c *Catalog) Resolve(kind Kind, names []string) ([]Model, error) {
	if len(names) == 0 {
		defaults := c.DefaultsFor(kind)
		if len(defaults) == 0 {
			return nil, fmt.Errorf("no %s models in catalog", kind)
		}
		return defaults, nil
	}

	out := make([]Model, 0, len(names))
	for _, name := range names {
		m, ok := c.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown model %q", name)
		}
		if m.Kind != kind {
			return nil, fmt.Errorf("model %q generates %s, not %s", name, m.Kind, kind)
		}
		out = append(out, m)
	}
	return out, nil
}
