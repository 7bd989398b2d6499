package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"intake-backend/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	prev := telemetry.Logger()
	telemetry.Use(zap.New(core))
	t.Cleanup(func() { telemetry.Use(prev) })

	router := gin.New()
	router.Use(RequestID(), Auth("dev"), Logging())
	router.POST("/test", func(c *gin.Context) {
		c.Set("caseId", "case-1")
		c.Set("rawFileId", "rf-1")
		c.Set("documentId", "doc-1")
		c.Set("statusTransition", "uploaded->classified")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set("X-Dev-Role", "staff")
	req.Header.Set("X-Dev-User", "preparer-7")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request.complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request.complete entry, got %d", len(entries))
	}
	payload := entries[0].ContextMap()

	required := []string{"request_id", "user_id", "case_id", "raw_file_id", "document_id", "duration_ms", "status", "status_transition"}
	for _, key := range required {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field: %s", key)
		}
	}
	want := map[string]any{
		"user_id":           "preparer-7",
		"role":              "staff",
		"case_id":           "case-1",
		"raw_file_id":       "rf-1",
		"document_id":       "doc-1",
		"status_transition": "uploaded->classified",
	}
	for k, v := range want {
		if payload[k] != v {
			t.Fatalf("unexpected %s: %v", k, payload[k])
		}
	}
}

func TestLoggingLevelsAndQuietPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	prev := telemetry.Logger()
	telemetry.Use(zap.New(core))
	t.Cleanup(func() { telemetry.Use(prev) })

	router := gin.New()
	router.Use(RequestID(), Logging())
	router.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "") })
	router.GET("/api/v1/documents/:id", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{})
	})
	router.GET("/api/v1/raw-files/:id", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{})
	})

	for _, path := range []string{"/metrics", "/api/v1/documents/doc-1", "/api/v1/raw-files/rf-1"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("request.complete").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries without /metrics, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel || entries[0].ContextMap()["route"] != "/api/v1/documents/:id" {
		t.Fatalf("500 should log at error with its route, got %s %v", entries[0].Level, entries[0].ContextMap()["route"])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("404 should log at warn, got %s", entries[1].Level)
	}
}
