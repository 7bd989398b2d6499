// Package doctypes is the closed table of tax-document types the intake pipeline understands:
// per-type field schemas, the structural validator, human labels, and model instructions.
// Callers never branch on a type name; they ask this package.
package doctypes

import "strings"

// Type identifies a document type. Values are persisted.
type Type string

const (
	W2             Type = "W2"
	Form1099INT    Type = "1099-INT"
	Form1099DIV    Type = "1099-DIV"
	Form1099NEC    Type = "1099-NEC"
	Form1099MISC   Type = "1099-MISC"
	Form1099R      Type = "1099-R"
	Form1099G      Type = "1099-G"
	Form1099B      Type = "1099-B"
	Form1099K      Type = "1099-K"
	SSA1099        Type = "SSA-1099"
	W2G            Type = "W-2G"
	Form1098       Type = "1098"
	Form1098T      Type = "1098-T"
	Form1098E      Type = "1098-E"
	Form1095A      Type = "1095-A"
	ScheduleK1     Type = "K-1"
	DriversLicense Type = "DRIVERS_LICENSE"
	StateID        Type = "STATE_ID"
	SSNCard        Type = "SSN_CARD"
	BankStatement  Type = "BANK_STATEMENT"
	PriorYearTax   Type = "PRIOR_YEAR_RETURN"
	Other          Type = "OTHER"
)

// Kind is the value kind of a schema field.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindGroup   Kind = "group"
)

// Field describes one key of an extracted-field map. Group fields hold an array of
// sub-records described by Fields.
type Field struct {
	Name     string
	Label    string
	Kind     Kind
	Required bool
	Fields   []Field
}

// Schema is the extraction contract for one document type.
type Schema struct {
	Type         Type
	Title        string
	Instructions string
	Fields       []Field
}

// Field returns the top-level field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Required returns the names of required top-level fields.
func (s Schema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

var aliases = map[string]Type{
	"W-2":              W2,
	"W2":               W2,
	"FORM W-2":         W2,
	"1099INT":          Form1099INT,
	"1099DIV":          Form1099DIV,
	"1099NEC":          Form1099NEC,
	"1099MISC":         Form1099MISC,
	"1099R":            Form1099R,
	"1099G":            Form1099G,
	"1099B":            Form1099B,
	"1099K":            Form1099K,
	"SSA1099":          SSA1099,
	"W2G":              W2G,
	"1098T":            Form1098T,
	"1098E":            Form1098E,
	"1095A":            Form1095A,
	"K1":               ScheduleK1,
	"SCHEDULE K-1":     ScheduleK1,
	"DRIVER_LICENSE":   DriversLicense,
	"DRIVERS LICENSE":  DriversLicense,
	"DRIVER'S LICENSE": DriversLicense,
	"STATE ID":         StateID,
	"SSN CARD":         SSNCard,
	"SOCIAL_SECURITY":  SSNCard,
	"BANK STATEMENT":   BankStatement,
	"PRIOR YEAR":       PriorYearTax,
	"PRIOR_YEAR":       PriorYearTax,
}

// Parse maps a free-form type name, such as a model's answer, to a known Type.
func Parse(raw string) (Type, bool) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	if norm == "" {
		return "", false
	}
	if _, ok := byType[Type(norm)]; ok {
		return Type(norm), true
	}
	if t, ok := aliases[norm]; ok {
		return t, true
	}
	if t, ok := aliases[strings.ReplaceAll(norm, "-", "")]; ok {
		return t, true
	}
	return "", false
}
