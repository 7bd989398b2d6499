package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"

	"intake-backend/internal/checklist"
	"intake-backend/internal/classification"
	"intake-backend/internal/documents"
	"intake-backend/internal/extraction"
	"intake-backend/internal/intake"
	"intake-backend/internal/queue"
	"intake-backend/internal/rawfiles"
	"intake-backend/internal/services/health"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/lock"
	"intake-backend/internal/shared/resilience"
	"intake-backend/internal/shared/server"
	"intake-backend/internal/shared/storage/db"
	"intake-backend/internal/shared/storage/object"
	localstore "intake-backend/internal/shared/storage/object/local"
	s3store "intake-backend/internal/shared/storage/object/s3"
	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/tasks"
	"intake-backend/internal/verification"
	"intake-backend/internal/vision"
	anthropicvision "intake-backend/internal/vision/anthropic"
	openaivision "intake-backend/internal/vision/openai"
)

const (
	minLockTTL    = 2 * time.Minute
	lockTTLMargin = time.Minute
)

// lockTTL keeps a raw-file or document lock alive past the model deadline a
// stage runs under while holding it.
func lockTTL(aiTimeout time.Duration) time.Duration {
	if aiTimeout <= 0 {
		aiTimeout = extraction.DefaultConfig().AITimeout
	}
	return max(minLockTTL, aiTimeout+lockTTLMargin)
}

// App holds shared dependencies and the HTTP router.
type App struct {
	Config  config.Config
	Router  *gin.Engine
	DB      *sql.DB
	Objects object.ObjectStore
	Queue   queue.Client
	Store   intake.Store
	Locker  lock.Locker
	Vision  vision.Client
	NATS    *nats.Conn

	Tasks      *tasks.Service
	Checklist  *checklist.Service
	RawFiles   *rawfiles.Service
	Classifier *classification.Stage
	Extractor  *extraction.Stage
	Reviewer   *verification.Reconciler
	Health     *health.Service

	RawFileHandler   *rawfiles.Handler
	DocumentHandler  *documents.Handler
	ChecklistHandler *checklist.Handler
	TriageHandler    *tasks.Handler
}

// Option overrides a dependency Build would otherwise construct.
type Option func(*options)

type options struct {
	vision    vision.Client
	visionSet bool
	queue     queue.Client
	queueSet  bool
}

// WithVision replaces the configured vision provider. A nil client runs the
// pipeline without AI.
func WithVision(c vision.Client) Option {
	return func(o *options) {
		o.vision = c
		o.visionSet = true
	}
}

// WithQueue replaces the SQS client. A nil client runs every stage inline.
func WithQueue(q queue.Client) Option {
	return func(o *options) {
		o.queue = q
		o.queueSet = true
	}
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB != nil {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	objects, err := buildObjects(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient := o.queue
	if !o.queueSet {
		if queueClient, err = buildQueue(ctx, cfg); err != nil {
			return nil, err
		}
	}

	locker, err := buildLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ai := o.vision
	if !o.visionSet {
		if ai, err = buildVision(cfg); err != nil {
			return nil, err
		}
	}

	app := &App{
		Config:  cfg,
		DB:      sqlDB,
		Objects: objects,
		Queue:   queueClient,
		Locker:  locker,
		Vision:  ai,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           app.Config,
		Health:           app.Health,
		RawFileHandler:   app.RawFileHandler,
		DocumentHandler:  app.DocumentHandler,
		ChecklistHandler: app.ChecklistHandler,
		TriageHandler:    app.TriageHandler,
	})

	return app, nil
}

// Close releases connections opened by Build.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.NATS != nil {
		_ = a.NATS.Drain()
	}
	if rl, ok := a.Locker.(*lock.RedisLocker); ok {
		_ = rl.Close()
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory stores")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory stores: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildObjects(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
}

func buildLocker(ctx context.Context, cfg config.Config) (lock.Locker, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return lock.NewMemoryLocker(), nil
	}
	rl, err := lock.NewRedisLocker(ctx, cfg.RedisURL, lockTTL(cfg.AITimeout))
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: redis unavailable; using in-process locks: %v", err)
			return lock.NewMemoryLocker(), nil
		}
		return nil, err
	}
	return rl, nil
}

// buildVision returns nil when no provider is configured. The primary model
// is wrapped with retries, a circuit breaker and the optional fallback model.
func buildVision(cfg config.Config) (vision.Client, error) {
	var primary, fallback vision.Client
	switch cfg.AIProvider {
	case "openai":
		c, err := openaivision.NewClient(cfg.OpenAIAPIKey, cfg.AIModel, cfg.AITimeout)
		if err != nil {
			return devFallback(cfg, err)
		}
		primary = c
		if m := strings.TrimSpace(cfg.AIFallbackModel); m != "" {
			if fc, err := openaivision.NewClient(cfg.OpenAIAPIKey, m, cfg.AITimeout); err == nil {
				fallback = fc
			}
		}
	case "anthropic":
		c, err := anthropicvision.NewClient(cfg.AnthropicAPIKey, cfg.AIModel, cfg.AITimeout)
		if err != nil {
			return devFallback(cfg, err)
		}
		primary = c
		if m := strings.TrimSpace(cfg.AIFallbackModel); m != "" {
			if fc, err := anthropicvision.NewClient(cfg.AnthropicAPIKey, m, cfg.AITimeout); err == nil {
				fallback = fc
			}
		}
	default:
		return nil, nil
	}
	exec := resilience.NewExecutor(resilience.DefaultConfig())
	return vision.NewResilient(primary, fallback, exec), nil
}

func devFallback(cfg config.Config, err error) (vision.Client, error) {
	if isDevLike(cfg.Env) {
		telemetry.Warn("bootstrap.vision_disabled", map[string]any{
			"provider": cfg.AIProvider,
			"error":    err.Error(),
		})
		return nil, nil
	}
	return nil, err
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}

func buildTemplates(cfg config.Config) (checklist.Templates, error) {
	path := strings.TrimSpace(cfg.ChecklistTemplatesFile)
	if path == "" {
		return checklist.DefaultTemplates(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checklist templates: %w", err)
	}
	return checklist.ParseTemplates(raw)
}

func buildServices(app *App) error {
	var taskStore tasks.Store
	if app.DB != nil {
		app.Store = &intake.PGStore{DB: app.DB}
		taskStore = &tasks.PGStore{DB: app.DB}
	} else {
		app.Store = intake.NewMemoryStore()
		taskStore = tasks.NewMemoryStore()
	}

	var publisher tasks.Publisher
	if url := strings.TrimSpace(app.Config.NATSURL); url != "" {
		conn, err := tasks.ConnectNATS(url)
		if err != nil {
			if !isDevLike(app.Config.Env) {
				return err
			}
			log.Printf("bootstrap: nats unavailable; triage notifications disabled: %v", err)
		} else {
			app.NATS = conn
			publisher = conn
		}
	}
	app.Tasks = tasks.NewService(taskStore, publisher, app.Config.NATSTaskSubject)

	templates, err := buildTemplates(app.Config)
	if err != nil {
		return err
	}
	app.Checklist = checklist.NewService(app.Store)
	app.Checklist.Templates = templates

	app.RawFiles = rawfiles.NewService(app.Store, app.Objects, app.Config.ReadURLTTL)

	classifyCfg := classification.DefaultConfig()
	if app.Config.ClassifyAcceptThreshold > 0 {
		classifyCfg.AcceptThreshold = app.Config.ClassifyAcceptThreshold
	}
	if app.Config.DuplicateMaxDistance > 0 {
		classifyCfg.DuplicateMaxDistance = app.Config.DuplicateMaxDistance
	}
	if app.Config.AITimeout > 0 {
		classifyCfg.AITimeout = app.Config.AITimeout
	}
	app.Classifier = classification.NewStage(app.Store, app.Objects, app.Vision, app.Tasks, app.Locker, classifyCfg)

	extractCfg := extraction.DefaultConfig()
	if app.Config.VerifyConfidenceThreshold > 0 {
		extractCfg.VerifyThreshold = app.Config.VerifyConfidenceThreshold
	}
	if app.Config.AITimeout > 0 {
		extractCfg.AITimeout = app.Config.AITimeout
	}
	app.Extractor = extraction.NewStage(app.Store, app.Objects, app.Vision, app.Tasks, app.Locker, extractCfg)

	app.Reviewer = verification.NewReconciler(app.Store, app.Locker)

	aiProvider := app.Config.AIProvider
	if app.Vision == nil {
		aiProvider = "none"
	}
	app.Health = health.NewService(app.DB, app.Config.ObjectStoreType, aiProvider, app.Queue != nil)
	app.Health.SchemaVersion = db.SchemaVersion

	app.RawFileHandler = rawfiles.NewHandler(app.RawFiles, app.Classifier, app.Queue)
	app.DocumentHandler = documents.NewHandler(app.Store, app.Extractor, app.Reviewer, app.Tasks, app.Queue)
	app.ChecklistHandler = checklist.NewHandler(app.Checklist)
	app.TriageHandler = tasks.NewHandler(app.Tasks)

	if app.RawFileHandler == nil || app.DocumentHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}
