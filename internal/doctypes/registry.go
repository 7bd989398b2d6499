package doctypes

import (
	"encoding/json"
	"fmt"
)

// Known reports whether t is one of the closed set of document types.
func Known(t Type) bool {
	_, ok := byType[t]
	return ok
}

// SupportsExtraction reports whether t has an extraction schema.
func SupportsExtraction(t Type) bool {
	return byType[t] != nil
}

// Lookup returns the extraction schema for t.
func Lookup(t Type) (*Schema, bool) {
	s := byType[t]
	return s, s != nil
}

// Types lists every known type in display order.
func Types() []Type {
	out := make([]Type, 0, len(table))
	for _, e := range table {
		out = append(out, e.typ)
	}
	return out
}

// ExtractionTypes lists the types that have an extraction schema.
func ExtractionTypes() []Type {
	var out []Type
	for _, e := range table {
		if e.build != nil {
			out = append(out, e.typ)
		}
	}
	return out
}

// FieldSpec returns the top-level field spec for name under type t.
func FieldSpec(t Type, name string) (Field, bool) {
	s, ok := Lookup(t)
	if !ok {
		return Field{}, false
	}
	return s.Field(name)
}

// Validate reports whether data structurally satisfies the schema for t.
// Required keys must be present, though their value may be null. Present
// values must match their declared kind. Keys outside the schema are tolerated.
// An unknown type, or an empty map, never validates.
func Validate(t Type, data map[string]any) bool {
	s, ok := Lookup(t)
	if !ok || len(data) == 0 {
		return false
	}
	return validateFields(s.Fields, data)
}

func validateFields(fields []Field, data map[string]any) bool {
	for _, f := range fields {
		v, present := data[f.Name]
		if !present {
			if f.Required {
				return false
			}
			continue
		}
		if !CheckValue(f, v) {
			return false
		}
	}
	return true
}

// CheckValue reports whether v is acceptable for f. Null is acceptable for
// scalars; a group must be an array, possibly empty. String and number fields
// accept either a string or a number since forms print amounts as text.
func CheckValue(f Field, v any) bool {
	if v == nil {
		return f.Kind != KindGroup
	}
	switch f.Kind {
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindString, KindNumber:
		return isScalar(v)
	case KindGroup:
		rows, ok := v.([]any)
		if !ok {
			return false
		}
		for _, r := range rows {
			m, ok := r.(map[string]any)
			if !ok || !validateFields(f.Fields, m) {
				return false
			}
		}
		return true
	}
	return false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

// Conform rewrites data into the exact shape of the schema for t: unknown keys
// are dropped, and missing or mistyped values become null (or an empty group).
// Data for a type without a schema is returned as a shallow copy.
func Conform(t Type, data map[string]any) map[string]any {
	s, ok := Lookup(t)
	if !ok {
		out := make(map[string]any, len(data))
		for k, v := range data {
			out[k] = v
		}
		return out
	}
	return conformFields(s.Fields, data)
}

func conformFields(fields []Field, data map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v := data[f.Name]
		if f.Kind == KindGroup {
			out[f.Name] = conformGroup(f, v)
			continue
		}
		if v != nil && !CheckValue(f, v) {
			v = nil
		}
		out[f.Name] = v
	}
	return out
}

func conformGroup(f Field, v any) []any {
	rows, ok := v.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, conformFields(f.Fields, m))
	}
	return out
}

// MinimalShape returns the smallest map that validates for t: every required
// key present and null, every group empty.
func MinimalShape(t Type) map[string]any {
	s, ok := Lookup(t)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any)
	for _, f := range s.Fields {
		switch {
		case f.Kind == KindGroup:
			out[f.Name] = []any{}
		case f.Required:
			out[f.Name] = nil
		}
	}
	return out
}

// Placeholder returns a map with every top-level key present and set to the
// zero value of its kind. It is stored when extraction cannot run.
func Placeholder(t Type) map[string]any {
	s, ok := Lookup(t)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = zeroValue(f.Kind)
	}
	return out
}

func zeroValue(k Kind) any {
	switch k {
	case KindNumber:
		return float64(0)
	case KindBoolean:
		return false
	case KindGroup:
		return []any{}
	default:
		return ""
	}
}

// JSONSchema renders the schema for t as a JSON Schema object suitable for a
// model's structured-output contract.
func JSONSchema(t Type) (map[string]any, error) {
	s, ok := Lookup(t)
	if !ok {
		return nil, fmt.Errorf("no extraction schema for %q", t)
	}
	return objectSchema(s.Fields), nil
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldSchema(f Field) map[string]any {
	switch f.Kind {
	case KindGroup:
		return map[string]any{
			"type":        "array",
			"description": f.Label,
			"items":       objectSchema(f.Fields),
		}
	case KindNumber:
		return map[string]any{"type": []any{"number", "null"}, "description": f.Label}
	case KindBoolean:
		return map[string]any{"type": []any{"boolean", "null"}, "description": f.Label}
	default:
		return map[string]any{"type": []any{"string", "null"}, "description": f.Label}
	}
}
