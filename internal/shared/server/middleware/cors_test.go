package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(origins))
	r.POST("/api/v1/documents/:id/extract", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestCORS(t *testing.T) {
	cases := []struct {
		name      string
		origins   []string
		method    string
		origin    string
		wantCode  int
		wantAllow string
		wantCreds bool
	}{
		{"preflight from portal", []string{"https://portal.example.com/"}, http.MethodOptions, "https://portal.example.com", http.StatusNoContent, "https://portal.example.com", true},
		{"post from portal", []string{"https://portal.example.com"}, http.MethodPost, "https://portal.example.com", http.StatusOK, "https://portal.example.com", true},
		{"preflight from stranger", []string{"https://portal.example.com"}, http.MethodOptions, "https://evil.example.com", http.StatusForbidden, "", false},
		{"post from stranger still served", []string{"https://portal.example.com"}, http.MethodPost, "https://evil.example.com", http.StatusOK, "", false},
		{"wildcard", []string{"*"}, http.MethodOptions, "http://localhost:5173", http.StatusNoContent, "*", false},
		{"no origin", []string{"*"}, http.MethodPost, "", http.StatusOK, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/documents/doc-1/extract", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			corsRouter(tc.origins...).ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("Allow-Origin = %q, want %q", got, tc.wantAllow)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tc.wantCreds {
				t.Fatalf("Allow-Credentials = %v", got)
			}
			if tc.wantAllow != "" {
				if w.Header().Get("Access-Control-Max-Age") != "600" {
					t.Fatalf("expected Max-Age 600")
				}
				if w.Header().Get("Access-Control-Expose-Headers") != corsExposeHeaders {
					t.Fatalf("Retry-After must be readable by the portal")
				}
			}
		})
	}
}
