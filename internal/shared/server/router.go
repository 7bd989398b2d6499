package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/checklist"
	"intake-backend/internal/documents"
	"intake-backend/internal/rawfiles"
	"intake-backend/internal/services/health"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
	"intake-backend/internal/tasks"
)

// Rate-limit groups.
const (
	rateGroupDefault = "DEFAULT"
	rateGroupUpload  = "UPLOAD"
	rateGroupAI      = "AI"
)

// RouterDeps carries the handlers the router mounts. Nil handlers are skipped.
type RouterDeps struct {
	Config           config.Config
	Health           *health.Service
	RawFileHandler   *rawfiles.Handler
	DocumentHandler  *documents.Handler
	ChecklistHandler *checklist.Handler
	TriageHandler    *tasks.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(cfg.Env),
		middleware.RateLimit(rateLimitConfig(cfg)),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		status := deps.Health.Status(c.Request.Context())
		code := http.StatusOK
		if ok, _ := status["ok"].(bool); !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	registerMeRoutes(api)

	if deps.RawFileHandler != nil {
		deps.RawFileHandler.RegisterRoutes(api)
	}
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.ChecklistHandler != nil {
		deps.ChecklistHandler.RegisterRoutes(api)
	}
	if deps.TriageHandler != nil {
		deps.TriageHandler.RegisterRoutes(api)
	}

	return r
}

// rateLimitConfig gives uploads and model-backed actions tighter buckets than
// ordinary reads.
func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			rateGroupDefault: {Rate: rps, Burst: burst},
			rateGroupUpload:  {Rate: rps / 5, Burst: max(burst/4, 1)},
			rateGroupAI:      {Rate: rps / 2, Burst: max(burst/2, 1)},
		},
		DefaultGroup: rateGroupDefault,
		GroupFor:     rateGroupFor,
	}
}

func rateGroupFor(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return rateGroupDefault
	}
	switch c.FullPath() {
	case "/api/v1/cases/:caseId/raw-files", "/api/v1/cases/:caseId/raw-files/from-s3", "/api/v1/cases/:caseId/raw-files/presign":
		return rateGroupUpload
	case "/api/v1/raw-files/:id/classify", "/api/v1/raw-files/:id/classify-anyway", "/api/v1/documents/:id/extract":
		return rateGroupAI
	}
	return rateGroupDefault
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
