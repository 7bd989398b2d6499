package checklist

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"intake-backend/internal/doctypes"
)

//go:embed templates/sets.yaml
var defaultSets []byte

// TemplateItem is one requirement in a template set.
type TemplateItem struct {
	ID    string        `yaml:"id"`
	Type  doctypes.Type `yaml:"type"`
	Label string        `yaml:"label"`
}

// Templates maps a set name to its items.
type Templates map[string][]TemplateItem

// ParseTemplates decodes and checks a YAML template document.
func ParseTemplates(raw []byte) (Templates, error) {
	var doc struct {
		Sets map[string][]TemplateItem `yaml:"sets"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode checklist templates: %w", err)
	}
	if len(doc.Sets) == 0 {
		return nil, fmt.Errorf("checklist templates define no sets")
	}
	for name, items := range doc.Sets {
		seen := make(map[string]bool, len(items))
		for i, item := range items {
			if item.ID == "" {
				return nil, fmt.Errorf("set %s item %d: id is required", name, i)
			}
			if seen[item.ID] {
				return nil, fmt.Errorf("set %s: duplicate item id %s", name, item.ID)
			}
			seen[item.ID] = true
			if !doctypes.Known(item.Type) {
				return nil, fmt.Errorf("set %s item %s: unknown document type %q", name, item.ID, item.Type)
			}
			if item.Label == "" {
				items[i].Label = doctypes.Label(item.Type)
			}
		}
	}
	return Templates(doc.Sets), nil
}

// DefaultTemplates returns the built-in template sets.
func DefaultTemplates() Templates {
	t, err := ParseTemplates(defaultSets)
	if err != nil {
		panic(err)
	}
	return t
}

// Names lists the set names in sorted order.
func (t Templates) Names() []string {
	out := make([]string, 0, len(t))
	for name := range t {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
