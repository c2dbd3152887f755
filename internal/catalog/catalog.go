package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed brands.yaml
var brandsYAML []byte

// Brand is one selectable brand. Custom marks the free-text entry.
type Brand struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Concept string `yaml:"concept,omitempty" json:"concept,omitempty"`
	Custom  bool   `yaml:"custom,omitempty" json:"custom,omitempty"`
}

type Catalog struct {
	brands []Brand
}

type catalogFile struct {
	Brands []Brand `yaml:"brands"`
}

// Load parses the embedded brand list.
func Load() (*Catalog, error) {
	return Parse(brandsYAML)
}

// Parse reads a brand list in the embedded file's format.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse brand catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Brands))
	for _, b := range f.Brands {
		if b.ID == "" || b.Name == "" {
			return nil, fmt.Errorf("brand catalog entry missing id or name: %+v", b)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("duplicate brand id %q", b.ID)
		}
		seen[b.ID] = true
	}

	return &Catalog{brands: f.Brands}, nil
}

// Brands returns the list in display order.
func (c *Catalog) Brands() []Brand {
	out := make([]Brand, len(c.brands))
	copy(out, c.brands)
	return out
}

// Lookup finds a predefined brand by id or display name.
func (c *Catalog) Lookup(key string) (Brand, bool) {
	key = strings.TrimSpace(key)
	for _, b := range c.brands {
		if b.Custom {
			continue
		}
		if strings.EqualFold(b.ID, key) || b.Name == key {
			return b, true
		}
	}
	return Brand{}, false
}
