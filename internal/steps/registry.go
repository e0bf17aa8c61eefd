package steps

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds validated step definitions in dependency order.
type Registry struct {
	defs  map[Key]Def
	order []Key
}

// NewRegistry validates defs and returns a registry. Declaration order
// breaks ties in the topological order.
func NewRegistry(defs ...Def) (*Registry, error) {
	r := &Registry{defs: make(map[Key]Def, len(defs))}
	declared := make([]Key, 0, len(defs))
	for _, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("step definition without key")
		}
		if _, dup := r.defs[d.Key]; dup {
			return nil, fmt.Errorf("duplicate step %q", d.Key)
		}
		if d.Scope == "" {
			d.Scope = ScopeNone
		}
		if d.Kind == "" {
			d.Kind = KindGenerate
		}
		if d.Kind == KindReview && len(d.Fields) == 0 {
			for _, c := range d.ReviewCategories {
				d.Fields = append(d.Fields, Field{Name: c, Type: FieldList})
			}
		}
		r.defs[d.Key] = d
		declared = append(declared, d.Key)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	order, err := topoSort(r.defs, declared)
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// Resolve returns the definition of key or an *UnknownStepError.
func (r *Registry) Resolve(key Key) (Def, error) {
	d, ok := r.defs[key]
	if !ok {
		return Def{}, &UnknownStepError{Key: key}
	}
	return d, nil
}

// Order returns step keys in dependency order.
func (r *Registry) Order() []Key {
	return append([]Key(nil), r.order...)
}

// Steps returns definitions in dependency order.
func (r *Registry) Steps() []Def {
	out := make([]Def, len(r.order))
	for i, k := range r.order {
		out[i] = r.defs[k]
	}
	return out
}

// Dependents returns the steps that list key as a prerequisite.
func (r *Registry) Dependents(key Key) []Key {
	var out []Key
	for _, k := range r.order {
		for _, p := range r.defs[k].Prerequisites {
			if p.Step == key {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// Terminal returns the last step in dependency order. Approving it
// completes a project.
func (r *Registry) Terminal() Key {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[len(r.order)-1]
}

// Next returns the step after key in dependency order, or "" at the end.
func (r *Registry) Next(key Key) Key {
	for i, k := range r.order {
		if k == key && i+1 < len(r.order) {
			return r.order[i+1]
		}
	}
	return ""
}

// validate checks references, scope mapping and kind-specific links.
func (r *Registry) validate() error {
	keys := make([]string, 0, len(r.defs))
	for k := range r.defs {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	for _, ks := range keys {
		d := r.defs[Key(ks)]
		if err := ValidateScope(d.Scope); err != nil {
			return fmt.Errorf("step %q: %w", d.Key, err)
		}
		if d.TopOnly && d.Scope != ScopePain {
			return fmt.Errorf("step %q: top_only requires pain scope", d.Key)
		}
		prereqs := make(map[Key]bool, len(d.Prerequisites))
		for _, p := range d.Prerequisites {
			pd, ok := r.defs[p.Step]
			if !ok {
				return fmt.Errorf("step %q: prerequisite %w", d.Key, &UnknownStepError{Key: p.Step})
			}
			if p.Step == d.Key {
				return fmt.Errorf("step %q depends on itself", d.Key)
			}
			if err := checkScopeMapping(d, pd, p); err != nil {
				return err
			}
			prereqs[p.Step] = true
		}

		switch d.Kind {
		case KindGenerate:
			if len(d.Fields) == 0 {
				return fmt.Errorf("step %q: no content fields declared", d.Key)
			}
		case KindReview:
			if len(d.ReviewCategories) == 0 {
				return fmt.Errorf("review step %q: no recommendation categories", d.Key)
			}
			if !prereqs[d.Source] {
				return fmt.Errorf("review step %q: source %q must be a prerequisite", d.Key, d.Source)
			}
		case KindFinalize:
			if len(d.Fields) == 0 {
				return fmt.Errorf("step %q: no content fields declared", d.Key)
			}
			if !prereqs[d.Source] || !prereqs[d.Review] {
				return fmt.Errorf("finalize step %q: source %q and review %q must be prerequisites", d.Key, d.Source, d.Review)
			}
			if rd, ok := r.defs[d.Review]; !ok || rd.Kind != KindReview {
				return fmt.Errorf("finalize step %q: %q is not a review step", d.Key, d.Review)
			}
		default:
			return fmt.Errorf("step %q: invalid kind %q", d.Key, d.Kind)
		}
	}
	return nil
}

// checkScopeMapping rejects edges whose prerequisite instance cannot be
// derived from the dependent's scope key.
func checkScopeMapping(d, pd Def, p Prerequisite) error {
	if p.All || pd.Scope == ScopeNone || pd.Scope == d.Scope {
		return nil
	}
	if d.Scope == ScopePain && pd.Scope == ScopeSegment {
		return nil
	}
	return fmt.Errorf("step %q (%s scope) cannot depend on %q (%s scope) without all=true",
		d.Key, d.Scope, pd.Key, pd.Scope)
}

// topoSort orders keys so that prerequisites come first; declaration
// order breaks ties. A leftover node means a cycle.
func topoSort(defs map[Key]Def, declared []Key) ([]Key, error) {
	indegree := make(map[Key]int, len(defs))
	for _, k := range declared {
		indegree[k] = len(defs[k].Prerequisites)
	}
	done := make(map[Key]bool, len(defs))
	order := make([]Key, 0, len(defs))
	for len(order) < len(declared) {
		progressed := false
		for _, k := range declared {
			if done[k] || indegree[k] > 0 {
				continue
			}
			done[k] = true
			order = append(order, k)
			progressed = true
			for _, other := range declared {
				for _, p := range defs[other].Prerequisites {
					if p.Step == k {
						indegree[other]--
					}
				}
			}
			break
		}
		if !progressed {
			var stuck []string
			for _, k := range declared {
				if !done[k] {
					stuck = append(stuck, string(k))
				}
			}
			return nil, fmt.Errorf("step graph has a cycle among: %s", strings.Join(stuck, ", "))
		}
	}
	return order, nil
}
