package doctypes

import (
	_ "embed"
	"fmt"
	"strings"
)

var (
	//go:embed prompts/classify.txt
	classifyTemplate string
	//go:embed prompts/extract.txt
	extractTemplate string
)

// Label returns the display title for t, or the raw code when t is unknown.
func Label(t Type) string {
	if title, ok := titles[t]; ok {
		return title
	}
	return string(t)
}

// Labels maps every field path of t to its human label. Group sub-fields are
// keyed as "group.field".
func Labels(t Type) map[string]string {
	s, ok := Lookup(t)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string)
	for _, f := range s.Fields {
		out[f.Name] = f.Label
		for _, sub := range f.Fields {
			out[f.Name+"."+sub.Name] = sub.Label
		}
	}
	return out
}

// ClassificationPrompt lists every known type for the classifier.
func ClassificationPrompt() string {
	var b strings.Builder
	for _, e := range table {
		fmt.Fprintf(&b, "- %s: %s\n", e.typ, e.title)
	}
	return strings.Replace(classifyTemplate, "{{TYPES}}", strings.TrimRight(b.String(), "\n"), 1)
}

// Prompt returns the extraction instructions for t.
func Prompt(t Type) (string, error) {
	s, ok := Lookup(t)
	if !ok {
		return "", fmt.Errorf("no extraction schema for %q", t)
	}
	var fields strings.Builder
	writeFields(&fields, s.Fields, "")
	instructions := ""
	if s.Instructions != "" {
		instructions = s.Instructions + "\n"
	}
	out := strings.NewReplacer(
		"{{TITLE}}", s.Title,
		"{{INSTRUCTIONS}}", instructions,
		"{{FIELDS}}", strings.TrimRight(fields.String(), "\n"),
	).Replace(extractTemplate)
	return out, nil
}

func writeFields(b *strings.Builder, fields []Field, indent string) {
	for _, f := range fields {
		marker := ""
		if f.Required {
			marker = ", required"
		}
		if f.Kind == KindGroup {
			fmt.Fprintf(b, "%s- %s (list of rows%s): %s\n", indent, f.Name, marker, f.Label)
			writeFields(b, f.Fields, indent+"    ")
			continue
		}
		fmt.Fprintf(b, "%s- %s (%s%s): %s\n", indent, f.Name, f.Kind, marker, f.Label)
	}
}
