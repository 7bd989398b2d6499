package extraction

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"intake-backend/internal/doctypes"
	"intake-backend/internal/intake"
	"intake-backend/internal/shared/storage/object"
	localstore "intake-backend/internal/shared/storage/object/local"
	"intake-backend/internal/tasks/taskstest"
	"intake-backend/internal/vision"
	"intake-backend/internal/vision/visiontest"
)

var fixedNow = time.Date(2026, 2, 3, 9, 30, 0, 0, time.UTC)

type harness struct {
	store *intake.MemoryStore
	tasks *taskstest.Recorder
	stage *Stage
}

func newHarness(t *testing.T, ai *visiontest.Fake) *harness {
	t.Helper()
	h := &harness{store: intake.NewMemoryStore(), tasks: &taskstest.Recorder{}}
	var client vision.Client
	if ai != nil {
		client = ai
	}
	h.stage = NewStage(h.store, localstore.New(t.TempDir()), client, h.tasks, nil, DefaultConfig())
	h.stage.Now = func() time.Time { return fixedNow }
	return h
}

// seed stores a linked raw file of type typ with its pending document and the
// requirement it satisfies.
func (h *harness) seed(t *testing.T, typ doctypes.Type) intake.ExtractedDocument {
	t.Helper()
	ctx := context.Background()
	key := object.UploadKey("case-1", "w2.png")
	mime := "image/png"
	size, err := h.stage.Objects.Put(ctx, key, mime, bytes.NewReader([]byte("\x89PNG\r\n\x1a\nscan")))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	reqID := "req-1"
	conf := 0.95
	f := intake.RawFile{
		ID: "rf-1", CaseID: "case-1", StorageKey: key, OriginalFilename: "w2.png",
		MimeType: mime, SizeBytes: size, UploadChannel: intake.ChannelClientPortal,
		Status: intake.RawLinked, ClassifiedType: &typ, ClassificationConfidence: &conf,
		RequirementID: &reqID, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	if err := h.store.CreateRawFile(ctx, f); err != nil {
		t.Fatalf("create raw file: %v", err)
	}
	if err := h.store.CreateRequirement(ctx, intake.ChecklistRequirement{
		ID: reqID, CaseID: "case-1", TemplateID: "w2", DocumentType: typ,
		Status: intake.ReqHasRaw, ReceivedCount: 1, CreatedAt: fixedNow,
	}); err != nil {
		t.Fatalf("create requirement: %v", err)
	}
	doc := intake.ExtractedDocument{
		ID: "doc-1", CaseID: "case-1", RawFileID: f.ID, DocumentType: typ,
		Status: intake.DocPending, Fields: map[string]any{}, FieldStatuses: map[string]intake.FieldStatus{},
		RequirementID: &reqID, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
	if err := h.store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func (h *harness) requirementStatus(t *testing.T) intake.RequirementStatus {
	t.Helper()
	r, err := h.store.GetRequirement(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("get requirement: %v", err)
	}
	return r.Status
}

func w2Fields() map[string]any {
	return map[string]any{
		"employer_ein":        "12-3456789",
		"employer_name":       "Acme Corp",
		"employee_ssn":        "123-45-6789",
		"employee_name":       "Jane Doe",
		"wages":               float64(55000),
		"federal_withholding": float64(6000),
		"box12":               []any{map[string]any{"code": "D", "amount": float64(1200)}},
		"made_up_key":         "dropped",
	}
}

func TestExtractW2ExtractedAdvancesRequirement(t *testing.T) {
	ai := visiontest.Extracts(vision.ExtractOutput{Success: true, Valid: true, Confidence: 0.93, Fields: w2Fields()})
	h := newHarness(t, ai)
	doc := h.seed(t, doctypes.W2)

	res, err := h.stage.Extract(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := res.Document
	if got.Status != intake.DocExtracted {
		t.Fatalf("status = %s, want extracted", got.Status)
	}
	if got.Confidence != 0.93 || got.ExtractedAt == nil || !got.ExtractedAt.Equal(fixedNow) {
		t.Fatalf("unexpected confidence/extractedAt: %v %v", got.Confidence, got.ExtractedAt)
	}
	if _, ok := got.Fields["made_up_key"]; ok {
		t.Fatalf("unknown key was stored: %v", got.Fields)
	}
	if _, ok := got.Fields["medicare_wages"]; !ok {
		t.Fatalf("conformed map is missing schema key medicare_wages")
	}
	if !doctypes.Validate(doctypes.W2, got.Fields) {
		t.Fatalf("stored fields do not validate")
	}
	if s := h.requirementStatus(t); s != intake.ReqHasDigital {
		t.Fatalf("requirement status = %s, want has_digital", s)
	}
	if res.Triage || len(h.tasks.All()) != 0 {
		t.Fatalf("confident extraction should not create triage: %v", h.tasks.Kinds())
	}
	if res.Transition != "pending->extracted" {
		t.Fatalf("transition = %q", res.Transition)
	}
}

func TestExtractUnconfiguredStoresPlaceholder(t *testing.T) {
	h := newHarness(t, nil)
	doc := h.seed(t, doctypes.W2)

	res, err := h.stage.Extract(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Skipped != SkipAIUnconfigured {
		t.Fatalf("skipped = %q", res.Skipped)
	}
	got, err := h.store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != intake.DocPending || got.Confidence != 0 {
		t.Fatalf("unexpected document %+v", got)
	}
	want := doctypes.Placeholder(doctypes.W2)
	if len(got.Fields) != len(want) {
		t.Fatalf("placeholder has %d keys, want %d", len(got.Fields), len(want))
	}
	if got.Fields["wages"] != float64(0) || got.Fields["employer_name"] != "" {
		t.Fatalf("placeholder values wrong: %v", got.Fields)
	}
	if len(h.tasks.All()) != 0 {
		t.Fatalf("skip must not triage")
	}
	if s := h.requirementStatus(t); s != intake.ReqHasRaw {
		t.Fatalf("requirement moved to %s", s)
	}
}

func TestExtractUnsupportedTypeSkips(t *testing.T) {
	ai := visiontest.Extracts(vision.ExtractOutput{Success: true, Valid: true, Confidence: 1, Fields: map[string]any{"x": 1}})
	h := newHarness(t, ai)
	doc := h.seed(t, doctypes.Other)

	res, err := h.stage.Extract(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Skipped != SkipUnsupportedType || res.Document.Status != intake.DocPending {
		t.Fatalf("unexpected result %+v", res)
	}
	if ai.ExtractCalls() != 0 {
		t.Fatalf("model called for unsupported type")
	}
}

func TestExtractPartialAndLowConfidenceTriage(t *testing.T) {
	missingWages := w2Fields()
	delete(missingWages, "wages")

	cases := []struct {
		name     string
		out      vision.ExtractOutput
		status   intake.DocumentStatus
		triage   bool
		priority intake.Priority
	}{
		{"confident", vision.ExtractOutput{Success: true, Valid: true, Confidence: 0.9, Fields: w2Fields()}, intake.DocExtracted, false, ""},
		{"low confidence", vision.ExtractOutput{Success: true, Valid: true, Confidence: 0.6, Fields: w2Fields()}, intake.DocExtracted, true, intake.PriorityMedium},
		{"missing required", vision.ExtractOutput{Success: true, Valid: true, Confidence: 0.95, Fields: missingWages}, intake.DocPartial, true, intake.PriorityHigh},
		{"model says invalid", vision.ExtractOutput{Success: true, Valid: false, Confidence: 0.95, Fields: w2Fields()}, intake.DocPartial, true, intake.PriorityHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, visiontest.Extracts(tc.out))
			doc := h.seed(t, doctypes.W2)
			res, err := h.stage.Extract(context.Background(), doc.ID)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if res.Document.Status != tc.status {
				t.Fatalf("status = %s, want %s", res.Document.Status, tc.status)
			}
			all := h.tasks.All()
			if res.Triage != tc.triage || (len(all) == 1) != tc.triage {
				t.Fatalf("triage = %v with %d tasks, want %v", res.Triage, len(all), tc.triage)
			}
			if tc.triage {
				if all[0].Kind != intake.TriageNeedsVerification || all[0].Priority != tc.priority {
					t.Fatalf("unexpected task %+v", all[0])
				}
			}
			if s := h.requirementStatus(t); s != intake.ReqHasDigital {
				t.Fatalf("requirement status = %s", s)
			}
		})
	}
}

func TestExtractFailureKeepsFields(t *testing.T) {
	cases := []struct {
		name string
		fake *visiontest.Fake
	}{
		{"api error", &visiontest.Fake{}},
		{"model declined", visiontest.Extracts(vision.ExtractOutput{Success: false, Error: "no document found"})},
		{"timeout", &visiontest.Fake{ExtractFunc: func(vision.ExtractInput) (vision.ExtractOutput, error) {
			return vision.ExtractOutput{}, context.DeadlineExceeded
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.fake)
			doc := h.seed(t, doctypes.W2)
			prior := map[string]any{"employer_name": "kept"}
			doc.Fields = prior
			if err := h.store.UpdateDocument(context.Background(), doc); err != nil {
				t.Fatalf("update: %v", err)
			}

			res, err := h.stage.Extract(context.Background(), doc.ID)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if res.Document.Status != intake.DocFailed {
				t.Fatalf("status = %s, want failed", res.Document.Status)
			}
			if res.Document.Fields["employer_name"] != "kept" || len(res.Document.Fields) != 1 {
				t.Fatalf("fields changed on failure: %v", res.Document.Fields)
			}
			if len(h.tasks.All()) != 0 {
				t.Fatalf("failure must not triage")
			}
			if s := h.requirementStatus(t); s != intake.ReqHasRaw {
				t.Fatalf("requirement moved to %s", s)
			}
		})
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	ai := visiontest.Extracts(vision.ExtractOutput{Success: true, Valid: true, Confidence: 0.93, Fields: w2Fields()})
	h := newHarness(t, ai)
	doc := h.seed(t, doctypes.W2)
	ctx := context.Background()

	first, err := h.stage.Extract(ctx, doc.ID)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := h.stage.Extract(ctx, doc.ID)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Document.Status != second.Document.Status || first.Document.Confidence != second.Document.Confidence {
		t.Fatalf("re-run diverged: %+v vs %+v", first.Document, second.Document)
	}
	if len(first.Document.Fields) != len(second.Document.Fields) {
		t.Fatalf("field maps diverged")
	}
	req, err := h.store.GetRequirement(ctx, "req-1")
	if err != nil {
		t.Fatalf("get requirement: %v", err)
	}
	if req.Status != intake.ReqHasDigital || req.ReceivedCount != 1 {
		t.Fatalf("requirement changed on re-run: %+v", req)
	}
}

func TestExtractMarksUnreadableFields(t *testing.T) {
	fields := w2Fields()
	fields["control_number"] = nil
	ai := visiontest.Extracts(vision.ExtractOutput{
		Success: true, Valid: true, Confidence: 0.9, Fields: fields,
		Unreadable: []string{"control_number", "not_in_schema"},
	})
	h := newHarness(t, ai)
	doc := h.seed(t, doctypes.W2)

	res, err := h.stage.Extract(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Document.FieldStatusOf("control_number") != intake.FieldUnreadable {
		t.Fatalf("control_number not marked unreadable: %v", res.Document.FieldStatuses)
	}
	if _, ok := res.Document.FieldStatuses["not_in_schema"]; ok {
		t.Fatalf("mark stored for unknown field")
	}
}

func TestExtractVerifiedDocumentRejected(t *testing.T) {
	h := newHarness(t, visiontest.Extracts(vision.ExtractOutput{Success: true, Valid: true, Confidence: 1, Fields: w2Fields()}))
	doc := h.seed(t, doctypes.W2)
	doc.Status = intake.DocVerified
	if err := h.store.UpdateDocument(context.Background(), doc); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, err := h.stage.Extract(context.Background(), doc.ID)
	if !errors.Is(err, intake.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestExtractNotFound(t *testing.T) {
	h := newHarness(t, &visiontest.Fake{})
	_, err := h.stage.Extract(context.Background(), "missing")
	if !errors.Is(err, intake.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
