package sandbox

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Template describes a provider image plus commands run right after
// creation to prepare the environment for analysis.
type Template struct {
	Name      string   `yaml:"name"`
	Image     string   `yaml:"image"`
	SetupCmds []string `yaml:"setup"`
}

// Catalog maps template names to their definitions.
type Catalog struct {
	Templates []Template `yaml:"templates"`
}

// LoadCatalog parses a template catalog from YAML.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	if len(c.Templates) == 0 {
		return nil, fmt.Errorf("template catalog is empty")
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultTemplatesYAML)
	if err != nil {
		// The embedded catalog is validated by tests; a parse failure
		// here is a build defect.
		panic(err)
	}
	return c
}

// Lookup returns the named template, falling back to the first entry
// when name is empty.
func (c *Catalog) Lookup(name string) (*Template, error) {
	if name == "" {
		return &c.Templates[0], nil
	}
	for i := range c.Templates {
		if c.Templates[i].Name == name {
			return &c.Templates[i], nil
		}
	}
	return nil, fmt.Errorf("unknown sandbox template %q", name)
}
