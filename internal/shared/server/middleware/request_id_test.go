package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/shared/telemetry"
)

func TestRequestIDPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		header string
		keep   bool
	}{
		{"caller id kept", "portal-7f3a:upload.1", true},
		{"missing id minted", "", false},
		{"bad characters replaced", "abc def<script>", false},
		{"oversized replaced", strings.Repeat("a", maxRequestIDBytes+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ginID, ctxID string
			r := gin.New()
			r.Use(RequestID())
			r.GET("/x", func(c *gin.Context) {
				ginID = RequestIDFromContext(c)
				ctxID = telemetry.RequestID(c.Request.Context())
			})
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("X-Request-Id", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if ginID == "" || ginID != ctxID || w.Header().Get("X-Request-Id") != ginID {
				t.Fatalf("ids disagree: gin=%q ctx=%q header=%q", ginID, ctxID, w.Header().Get("X-Request-Id"))
			}
			if tc.keep != (ginID == tc.header) {
				t.Fatalf("id = %q for header %q", ginID, tc.header)
			}
		})
	}
}
