package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	DatabaseURL     string
	Env             string
	LogLevel        string

	AIProvider      string
	AIModel         string
	AIFallbackModel string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AITimeout       time.Duration

	ClassifyAcceptThreshold   float64
	VerifyConfidenceThreshold float64
	DuplicateMaxDistance      int
	ReadURLTTL                time.Duration
	ChecklistTemplatesFile    string

	RedisURL        string
	NATSURL         string
	NATSTaskSubject string
	SQSQueueURL     string

	RateLimitRPS   float64
	RateLimitBurst int

	Worker WorkerConfig
}

// WorkerConfig tunes the SQS poll loop in cmd/worker.
type WorkerConfig struct {
	Concurrency       int
	VisibilityTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:     dbURL,
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		AIProvider:      normalizeProvider(getEnv("AI_PROVIDER", "none")),
		AIModel:         getEnv("AI_MODEL", ""),
		AIFallbackModel: getEnv("AI_FALLBACK_MODEL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AITimeout:       getDuration("AI_TIMEOUT", 60*time.Second),

		ClassifyAcceptThreshold:   getFloat("CLASSIFY_ACCEPT_THRESHOLD", 0.7),
		VerifyConfidenceThreshold: getFloat("VERIFY_CONFIDENCE_THRESHOLD", 0.85),
		DuplicateMaxDistance:      getInt("DUPLICATE_MAX_DISTANCE", 6),
		ReadURLTTL:                getDuration("READ_URL_TTL", 15*time.Minute),
		ChecklistTemplatesFile:    getEnv("CHECKLIST_TEMPLATES_FILE", ""),

		RedisURL:        getEnv("REDIS_URL", ""),
		NATSURL:         getEnv("NATS_URL", ""),
		NATSTaskSubject: getEnv("NATS_TASK_SUBJECT", "intake.triage"),
		SQSQueueURL:     getEnv("INTAKE_SQS_QUEUE_URL", ""),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 20),

		Worker: WorkerConfig{
			Concurrency:       max(1, getInt("INTAKE_WORKER_CONCURRENCY", 4)),
			VisibilityTimeout: getDuration("INTAKE_SQS_VISIBILITY_TIMEOUT_SECONDS", 5*time.Minute),
			ShutdownTimeout:   getDuration("INTAKE_SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
		},
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid float: %v", key, err)
		return def
	}
	return val
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid duration: %q", key, raw)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	case "anthropic", "claude":
		return "anthropic"
	default:
		return "none"
	}
}
