package steps

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides adjusts the wording of existing steps without recompiling.
// The graph shape (scopes, prerequisites, schemas) is fixed in code.
type Overrides struct {
	Steps []StepOverride `yaml:"steps"`
}

// StepOverride replaces the non-empty text fields of one step.
type StepOverride struct {
	Key     Key    `yaml:"key"`
	Title   string `yaml:"title"`
	Task    string `yaml:"task"`
	Example string `yaml:"example"`
}

// ParseOverrides decodes a YAML overrides document.
func ParseOverrides(data []byte) (Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Overrides{}, fmt.Errorf("parsing step overrides: %w", err)
	}
	return o, nil
}

// LoadOverrides reads overrides from path.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("reading step overrides: %w", err)
	}
	return ParseOverrides(data)
}

// Apply returns a new registry with the overrides applied to r.
func (o Overrides) Apply(r *Registry) (*Registry, error) {
	byKey := make(map[Key]StepOverride, len(o.Steps))
	for _, s := range o.Steps {
		if _, err := r.Resolve(s.Key); err != nil {
			return nil, fmt.Errorf("step overrides: %w", err)
		}
		byKey[s.Key] = s
	}

	defs := r.Steps()
	for i, d := range defs {
		s, ok := byKey[d.Key]
		if !ok {
			continue
		}
		if s.Title != "" {
			d.Title = s.Title
		}
		if s.Task != "" {
			d.Task = s.Task
		}
		if s.Example != "" {
			d.Example = s.Example
		}
		defs[i] = d
	}
	return NewRegistry(defs...)
}
