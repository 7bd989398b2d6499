package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(extractionTotal.WithLabelValues("partial"))
	IncExtraction("partial")
	IncExtraction("partial")
	after := testutil.ToFloat64(extractionTotal.WithLabelValues("partial"))
	if after-before != 2 {
		t.Fatalf("expected +2, got %v", after-before)
	}
}

func TestHandlerRendersRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	IncClassification("classified", "auto")
	ObserveStageDuration("classification", 1500*time.Millisecond)

	r := gin.New()
	r.GET("/metrics", Handler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, want := range []string{"intake_classification_total", "intake_stage_duration_ms_bucket"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in output", want)
		}
	}
}
