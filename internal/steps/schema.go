package steps

import "fmt"

// Validate checks content against the step's schema: every declared field
// must be present with the right JSON type, and list elements that are
// objects must carry the declared item keys. Unknown fields are allowed.
func (d Def) Validate(content Content) error {
	if content == nil {
		return &ContentError{Step: d.Key, Problem: "content is empty"}
	}
	for _, f := range d.Fields {
		v, ok := content[f.Name]
		if !ok {
			return &ContentError{Step: d.Key, Field: f.Name, Problem: "is missing"}
		}
		if err := d.checkField(f, v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateField checks a single value for a declared field.
func (d Def) ValidateField(name string, value any) error {
	f, ok := d.Field(name)
	if !ok {
		return &ContentError{Step: d.Key, Field: name, Problem: fmt.Sprintf("is not a field of this step (fields: %v)", d.FieldNames())}
	}
	return d.checkField(f, value)
}

func (d Def) checkField(f Field, v any) error {
	switch f.Type {
	case FieldString:
		if _, ok := v.(string); !ok {
			return &ContentError{Step: d.Key, Field: f.Name, Problem: "must be a string"}
		}
	case FieldNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return &ContentError{Step: d.Key, Field: f.Name, Problem: "must be a number"}
		}
	case FieldObject:
		if _, ok := v.(map[string]any); !ok {
			return &ContentError{Step: d.Key, Field: f.Name, Problem: "must be an object"}
		}
	case FieldList:
		items, ok := v.([]any)
		if !ok {
			return &ContentError{Step: d.Key, Field: f.Name, Problem: "must be a list"}
		}
		for i, item := range items {
			obj, isObj := item.(map[string]any)
			if !isObj {
				if len(f.Items) > 0 {
					return &ContentError{Step: d.Key, Field: f.Name, Problem: fmt.Sprintf("item %d must be an object", i)}
				}
				continue
			}
			for _, key := range f.Items {
				if _, ok := obj[key]; !ok {
					return &ContentError{Step: d.Key, Field: f.Name, Problem: fmt.Sprintf("item %d is missing %q", i, key)}
				}
			}
		}
	case FieldAny:
	default:
		return &ContentError{Step: d.Key, Field: f.Name, Problem: fmt.Sprintf("has unsupported type %q", f.Type)}
	}
	return nil
}
