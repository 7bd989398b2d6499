package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/shared/telemetry"
)

// quietPaths are scraped or probed often enough that logging them would drown
// the pipeline's own lines.
var quietPaths = map[string]bool{
	"/metrics":       true,
	"/api/v1/health": true,
}

// Logging writes one request.complete line per request. Handlers record
// caseId, rawFileId, documentId and statusTransition on the gin context for
// it to pick up. 5xx responses log at error, 4xx at warn.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || quietPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := map[string]any{
			"request_id":        RequestIDFromContext(c),
			"method":            c.Request.Method,
			"route":             c.FullPath(),
			"path":              c.Request.URL.Path,
			"status":            status,
			"status_transition": c.GetString("statusTransition"),
			"duration_ms":       float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes_out":         c.Writer.Size(),
			"user_id":           c.GetString(userIDKey),
			"role":              c.GetString(roleKey),
			"case_id":           c.GetString("caseId"),
			"raw_file_id":       c.GetString("rawFileId"),
			"document_id":       c.GetString("documentId"),
			"client_ip":         c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		switch {
		case status >= http.StatusInternalServerError:
			telemetry.Error("request.complete", fields)
		case status >= http.StatusBadRequest:
			telemetry.Warn("request.complete", fields)
		default:
			telemetry.Info("request.complete", fields)
		}
	}
}
