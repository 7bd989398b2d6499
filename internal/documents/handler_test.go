package documents_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/bootstrap"
	"intake-backend/internal/documents"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/vision"
	"intake-backend/internal/vision/visiontest"
)

func newApp(t *testing.T, ai vision.Client) *bootstrap.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		Env:             "dev",
		ObjectStoreType: "local",
		LocalStoreDir:   t.TempDir(),
		AIProvider:      "none",
		RateLimitRPS:    100,
		RateLimitBurst:  100,
	}
	app, err := bootstrap.Build(cfg, bootstrap.WithVision(ai), bootstrap.WithQueue(nil))
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func w2Vision() *visiontest.Fake {
	return &visiontest.Fake{
		ClassifyFunc: func(vision.ClassifyInput) (vision.ClassifyOutput, error) {
			return vision.ClassifyOutput{Type: "W2", Confidence: 0.96}, nil
		},
		ExtractFunc: func(vision.ExtractInput) (vision.ExtractOutput, error) {
			return vision.ExtractOutput{
				Success: true,
				Valid:   true,
				Fields: map[string]any{
					"employer_ein":        "12-3456789",
					"employer_name":       "Acme Corp",
					"employee_ssn":        "123-45-6789",
					"employee_name":       "Jane Doe",
					"wages":               55000.0,
					"federal_withholding": 6000.0,
				},
				Confidence: 0.93,
				Model:      "fake-vision",
			}, nil
		},
	}
}

func pngBytes() []byte {
	img := image.NewGray(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + 3*y) * 5 % 256)})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func call(t *testing.T, app *bootstrap.App, method, path string, body any, role string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dev-Role", role)
	req.Header.Set("X-Dev-Cases", "case-1")
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	return w
}

func upload(t *testing.T, app *bootstrap.App, name string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write(pngBytes())
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases/case-1/raw-files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Dev-Role", "client")
	req.Header.Set("X-Dev-Cases", "case-1")
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		DocumentID string `json:"documentId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if resp.DocumentID == "" {
		t.Fatalf("upload did not create a document: %s", w.Body.String())
	}
	return resp.DocumentID
}

func decodeDocument(t *testing.T, w *httptest.ResponseRecorder, key string) documents.DocumentResponse {
	t.Helper()
	var doc documents.DocumentResponse
	raw := w.Body.Bytes()
	if key != "" {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			t.Fatalf("decode wrapper: %v", err)
		}
		raw = wrapper[key]
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode document: %v (%s)", err, w.Body.String())
	}
	return doc
}

func requirementStatus(t *testing.T, app *bootstrap.App, templateID string) string {
	t.Helper()
	w := call(t, app, http.MethodGet, "/api/v1/cases/case-1/checklist", nil, "client")
	if w.Code != http.StatusOK {
		t.Fatalf("checklist: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Items []struct {
			TemplateID string `json:"templateId"`
			Status     string `json:"status"`
		} `json:"items"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	for _, item := range resp.Items {
		if item.TemplateID == templateID {
			return item.Status
		}
	}
	t.Fatalf("requirement %s not found in %s", templateID, w.Body.String())
	return ""
}

func TestDocumentLifecycle(t *testing.T) {
	app := newApp(t, w2Vision())

	if w := call(t, app, http.MethodPost, "/api/v1/cases/case-1/checklist", map[string]string{"templateSet": "individual"}, "staff"); w.Code != http.StatusCreated {
		t.Fatalf("open checklist: %d %s", w.Code, w.Body.String())
	}

	docID := upload(t, app, "w2.png")
	if got := requirementStatus(t, app, "w2"); got != "has_raw" {
		t.Fatalf("after upload requirement = %s", got)
	}

	w := call(t, app, http.MethodPost, "/api/v1/documents/"+docID+"/extract", nil, "staff")
	if w.Code != http.StatusOK {
		t.Fatalf("extract: %d %s", w.Code, w.Body.String())
	}
	doc := decodeDocument(t, w, "document")
	if doc.Status != "extracted" || doc.DocumentType != "W2" {
		t.Fatalf("unexpected extracted document %+v", doc)
	}
	if got := requirementStatus(t, app, "w2"); got != "has_digital" {
		t.Fatalf("after extract requirement = %s", got)
	}

	w = call(t, app, http.MethodPatch, "/api/v1/documents/"+docID+"/fields/wages", map[string]any{"status": "edited", "value": 56000}, "staff")
	if w.Code != http.StatusOK {
		t.Fatalf("edit field: %d %s", w.Code, w.Body.String())
	}
	doc = decodeDocument(t, w, "")
	for _, f := range doc.Fields {
		if f.Name == "wages" && (f.Status != "edited" || f.Value != float64(56000)) {
			t.Fatalf("wages not updated: %+v", f)
		}
	}

	w = call(t, app, http.MethodPost, "/api/v1/documents/"+docID+"/complete", map[string]string{"action": "verify"}, "staff")
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}
	if doc = decodeDocument(t, w, "document"); doc.Status != "verified" || doc.VerifiedAt == nil {
		t.Fatalf("document not verified: %+v", doc)
	}
	if got := requirementStatus(t, app, "w2"); got != "verified" {
		t.Fatalf("after verify requirement = %s", got)
	}

	w = call(t, app, http.MethodPost, "/api/v1/documents/"+docID+"/extract", nil, "staff")
	if w.Code != http.StatusConflict {
		t.Fatalf("re-extract verified: expected 409, got %d", w.Code)
	}
}

func TestExtractProviderFailureMarksDocumentFailed(t *testing.T) {
	app := newApp(t, visiontest.Classifies(vision.ClassifyOutput{Type: "W2", Confidence: 0.9}))
	docID := upload(t, app, "w2.png")

	w := call(t, app, http.MethodPost, "/api/v1/documents/"+docID+"/extract", nil, "staff")
	if w.Code != http.StatusOK {
		t.Fatalf("extract: %d %s", w.Code, w.Body.String())
	}
	if doc := decodeDocument(t, w, "document"); doc.Status != "failed" {
		t.Fatalf("status = %s", doc.Status)
	}
}

func TestUnsupportedTypeReturns422(t *testing.T) {
	app := newApp(t, &visiontest.Fake{
		ClassifyFunc: func(vision.ClassifyInput) (vision.ClassifyOutput, error) {
			return vision.ClassifyOutput{Type: "BANK_STATEMENT", Confidence: 0.9}, nil
		},
	})
	docID := upload(t, app, "statement.png")

	w := call(t, app, http.MethodPost, "/api/v1/documents/"+docID+"/extract", nil, "staff")
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), "unsupported_type") {
		t.Fatalf("expected 422 unsupported_type, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRejectCreatesReuploadTask(t *testing.T) {
	app := newApp(t, w2Vision())
	docID := upload(t, app, "w2.png")

	w := call(t, app, http.MethodPost, "/api/v1/documents/"+docID+"/complete", map[string]string{"action": "reject", "reason": "cropped"}, "staff")
	if w.Code != http.StatusOK {
		t.Fatalf("reject: %d %s", w.Code, w.Body.String())
	}

	w = call(t, app, http.MethodGet, "/api/v1/cases/case-1/triage", nil, "staff")
	if w.Code != http.StatusOK {
		t.Fatalf("triage: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "request_reupload") || !strings.Contains(w.Body.String(), "cropped") {
		t.Fatalf("expected a re-upload task, got %s", w.Body.String())
	}
}

func TestDocumentRoutesRequireStaff(t *testing.T) {
	app := newApp(t, w2Vision())
	docID := upload(t, app, "w2.png")

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/documents/" + docID},
		{http.MethodPost, "/api/v1/documents/" + docID + "/extract"},
		{http.MethodGet, "/api/v1/cases/case-1/documents"},
	}
	for _, tc := range cases {
		if w := call(t, app, tc.method, tc.path, nil, "client"); w.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d", tc.method, tc.path, w.Code)
		}
	}

	if w := call(t, app, http.MethodGet, "/api/v1/documents/missing", nil, "staff"); w.Code != http.StatusNotFound {
		t.Fatalf("missing document: expected 404, got %d", w.Code)
	}
}
