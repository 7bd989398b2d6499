package doctypes

import (
	"strings"
	"testing"
)

func TestTableCoversEveryType(t *testing.T) {
	if got := len(Types()); got != 22 {
		t.Fatalf("expected 22 known types, got %d", got)
	}
	if got := len(ExtractionTypes()); got != 19 {
		t.Fatalf("expected 19 extraction types, got %d", got)
	}
	for _, typ := range []Type{BankStatement, PriorYearTax, Other} {
		if !Known(typ) {
			t.Fatalf("%s should be known", typ)
		}
		if SupportsExtraction(typ) {
			t.Fatalf("%s should not support extraction", typ)
		}
	}
}

func TestEmptyMapNeverValidates(t *testing.T) {
	for _, typ := range ExtractionTypes() {
		if Validate(typ, map[string]any{}) {
			t.Fatalf("%s: empty map validated", typ)
		}
	}
	if Validate("FORM-9999", map[string]any{"x": 1}) {
		t.Fatalf("unknown type validated")
	}
}

func TestMinimalShapeAndPlaceholderValidate(t *testing.T) {
	for _, typ := range ExtractionTypes() {
		t.Run(string(typ), func(t *testing.T) {
			if !Validate(typ, MinimalShape(typ)) {
				t.Fatalf("minimal shape did not validate")
			}
			p := Placeholder(typ)
			if !Validate(typ, p) {
				t.Fatalf("placeholder did not validate")
			}
			s, _ := Lookup(typ)
			if len(p) != len(s.Fields) {
				t.Fatalf("placeholder keys = %d, want %d", len(p), len(s.Fields))
			}
		})
	}
}

func TestValidateRejectsWrongKinds(t *testing.T) {
	base := func() map[string]any {
		m := MinimalShape(W2)
		m["wages"] = "52,000.00"
		m["employer_name"] = "Acme"
		return m
	}
	if !Validate(W2, base()) {
		t.Fatalf("base W2 should validate")
	}

	cases := []struct {
		name  string
		key   string
		value any
	}{
		{"bool in number", "wages", true},
		{"map in string", "employer_name", map[string]any{"a": 1}},
		{"string in bool", "retirement_plan", "yes"},
		{"null group", "box12", nil},
		{"object in group", "box12", map[string]any{"code": "D"}},
		{"group row missing required", "box12", []any{map[string]any{"code": "D"}}},
		{"scalar group row", "state_lines", []any{"CA"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := base()
			m[tc.key] = tc.value
			if Validate(W2, m) {
				t.Fatalf("expected %s=%v to be rejected", tc.key, tc.value)
			}
		})
	}

	m := base()
	delete(m, "employee_ssn")
	if Validate(W2, m) {
		t.Fatalf("missing required key should be rejected")
	}
	m = base()
	m["unexpected"] = "ok"
	if !Validate(W2, m) {
		t.Fatalf("extra keys should be tolerated")
	}
}

func TestConformIsIdempotentAndValid(t *testing.T) {
	raw := map[string]any{
		"employer_name":   "Acme",
		"wages":           52000.0,
		"retirement_plan": "yes",
		"box12": []any{
			map[string]any{"code": "D", "amount": 1200.0, "junk": 1},
			"not a row",
		},
		"state_lines": "CA",
		"unknown_key": "dropped",
	}
	once := Conform(W2, raw)
	if _, ok := once["unknown_key"]; ok {
		t.Fatalf("unknown key kept")
	}
	if once["retirement_plan"] != nil {
		t.Fatalf("mistyped bool should be nulled, got %v", once["retirement_plan"])
	}
	rows := once["box12"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 box12 row, got %d", len(rows))
	}
	if _, ok := rows[0].(map[string]any)["junk"]; ok {
		t.Fatalf("unknown row key kept")
	}
	if len(once["state_lines"].([]any)) != 0 {
		t.Fatalf("mistyped group should be empty")
	}
	if !Validate(W2, once) {
		t.Fatalf("conformed map should validate")
	}
	twice := Conform(W2, once)
	if len(twice) != len(once) || twice["wages"] != once["wages"] {
		t.Fatalf("conform not idempotent")
	}
}

func TestParse(t *testing.T) {
	cases := map[string]Type{
		"w-2":              W2,
		"W2":               W2,
		" 1099-int ":       Form1099INT,
		"1099int":          Form1099INT,
		"Driver's License": DriversLicense,
		"k1":               ScheduleK1,
		"other":            Other,
	}
	for in, want := range cases {
		got, ok := Parse(in)
		if !ok || got != want {
			t.Fatalf("Parse(%q) = %q,%v want %q", in, got, ok, want)
		}
	}
	if _, ok := Parse("W-4"); ok {
		t.Fatalf("W-4 should not parse")
	}
}

func TestPrompts(t *testing.T) {
	p, err := Prompt(W2)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if !strings.Contains(p, "employer_ein") || !strings.Contains(p, "Box 12") {
		t.Fatalf("prompt missing fields: %s", p)
	}
	if strings.Contains(p, "{{") {
		t.Fatalf("unreplaced placeholder in prompt")
	}
	if _, err := Prompt(Other); err == nil {
		t.Fatalf("expected error for schema-less type")
	}
	cp := ClassificationPrompt()
	for _, typ := range Types() {
		if !strings.Contains(cp, string(typ)) {
			t.Fatalf("classification prompt missing %s", typ)
		}
	}
	if Labels(W2)["box12.code"] != "Code" {
		t.Fatalf("group sub-field label missing")
	}
	if Label("NOPE") != "NOPE" {
		t.Fatalf("unknown label should echo code")
	}
}
