package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/shared/server/respond"
	"intake-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 error body. The log line carries
// whichever case, raw file and document ids the handler had recorded.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"method":     c.Request.Method,
				"path":       c.FullPath(),
				"panic":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
			}
			for key, field := range map[string]string{"caseId": "case_id", "rawFileId": "raw_file_id", "documentId": "document_id"} {
				if v := c.GetString(key); v != "" {
					fields[field] = v
				}
			}
			telemetry.Error("request.panic", fields)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "Unexpected server error", nil)
			c.Abort()
		}()
		c.Next()
	}
}
