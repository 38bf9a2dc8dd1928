package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Levels in display order.
var Levels = []string{"System", "Subsystem", "Component"}

// ModuleInfo describes one DOORS module pair (requirements + tests).
type ModuleInfo struct {
	Name               string `yaml:"name" json:"name"`
	Abbrev             string `yaml:"abbrev" json:"abbrev"`
	Level              string `yaml:"level" json:"level"`
	RequirementsModule string `yaml:"requirements_module" json:"requirements_module"`
	TestsModule        string `yaml:"tests_module" json:"tests_module"`
	ParentAbbrev       string `yaml:"parent_abbrev,omitempty" json:"parent_abbrev,omitempty"`
}

// Hierarchy is the ordered module list from hierarchy.yaml.
type Hierarchy struct {
	Modules []ModuleInfo `yaml:"modules"`
}

// Lookup finds a module by abbreviation.
func (h *Hierarchy) Lookup(abbrev string) (ModuleInfo, bool) {
	if h == nil {
		return ModuleInfo{}, false
	}
	for _, m := range h.Modules {
		if m.Abbrev == abbrev {
			return m, true
		}
	}
	return ModuleInfo{}, false
}

// LoadHierarchy reads hierarchy.yaml. Modules with a blank abbreviation are
// rejected; a repeated abbreviation replaces the earlier entry in place.
func LoadHierarchy(path string) (*Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw Hierarchy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse hierarchy %s: %w", path, err)
	}

	h := &Hierarchy{}
	index := make(map[string]int, len(raw.Modules))
	for i, m := range raw.Modules {
		m.Abbrev = strings.TrimSpace(m.Abbrev)
		if m.Abbrev == "" {
			return nil, fmt.Errorf("hierarchy %s: module #%d has no abbrev", path, i+1)
		}
		if pos, ok := index[m.Abbrev]; ok {
			h.Modules[pos] = m
			continue
		}
		index[m.Abbrev] = len(h.Modules)
		h.Modules = append(h.Modules, m)
	}
	return h, nil
}
