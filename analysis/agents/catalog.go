package agents

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/repolens/repolens/analysis/codemodel"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// PatternSpec describes one named design pattern and the symbol-shape
// heuristic that detects it.
type PatternSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Confidence  float64  `yaml:"confidence"`
	Markers     []string `yaml:"markers"`
	Match       string   `yaml:"match"` // "prefix" or "substring"
	MinMatches  int      `yaml:"min_matches"`
}

// Catalog is the closed set of patterns the pattern agent recognizes.
type Catalog struct {
	Patterns []PatternSpec `yaml:"patterns"`
}

// LoadCatalog parses a pattern catalog from YAML.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("pattern catalog: %w", err)
	}
	for i, p := range c.Patterns {
		if p.Name == "" || len(p.Markers) == 0 {
			return nil, fmt.Errorf("pattern catalog: entry %d missing name or markers", i)
		}
		if p.Match != "prefix" && p.Match != "substring" {
			return nil, fmt.Errorf("pattern catalog: entry %q has unknown match mode %q", p.Name, p.Match)
		}
		if p.MinMatches <= 0 {
			c.Patterns[i].MinMatches = 1
		}
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog. The embedded file is part of
// the build, so a parse failure is a programming error.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// matchFile returns the symbols of file whose names match the pattern's
// markers, in declaration order.
func (p PatternSpec) matchFile(file codemodel.FileNode) []string {
	var matched []string
	for _, sym := range file.Symbols {
		if sym.Kind == codemodel.SymbolModule {
			continue
		}
		name := strings.ToLower(baseName(sym.QualifiedName))
		for _, marker := range p.Markers {
			if p.matches(name, marker) {
				matched = append(matched, sym.QualifiedName)
				break
			}
		}
	}
	return matched
}

func (p PatternSpec) matches(name, marker string) bool {
	if p.Match == "prefix" {
		return strings.HasPrefix(name, marker) && len(name) > len(marker)
	}
	return strings.Contains(name, marker)
}

// baseName strips the qualifying path from a symbol name, e.g.
// "store.Registry.GetInstance" -> "GetInstance".
func baseName(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}
