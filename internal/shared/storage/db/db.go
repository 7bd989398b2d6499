package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"intake-backend/internal/shared/telemetry"
)

// Options controls database pool and connectivity behavior. StatementTimeout
// is sent to Postgres as a session setting so a stuck query cannot hold a
// document row lock indefinitely.
type Options struct {
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	StatementTimeout time.Duration
	ApplicationName  string
}

const defaultApplicationName = "intake-backend"

var (
	openDB      = openPGX
	singletonMu sync.Mutex
	singletonDB *sql.DB
)

// IsLambdaRuntime reports whether the current process is running in AWS Lambda.
func IsLambdaRuntime() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

// DefaultLambdaOptions returns conservative defaults for Lambda concurrency.
func DefaultLambdaOptions() Options {
	return Options{
		MaxOpenConns:     2,
		MaxIdleConns:     1,
		ConnMaxIdleTime:  30 * time.Second,
		ConnMaxLifetime:  15 * time.Minute,
		PingTimeout:      3 * time.Second,
		StatementTimeout: 20 * time.Second,
		ApplicationName:  defaultApplicationName + "-lambda",
	}
}

// DefaultServerOptions returns defaults for long-running server processes.
func DefaultServerOptions() Options {
	return Options{
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxIdleTime:  2 * time.Minute,
		ConnMaxLifetime:  time.Hour,
		PingTimeout:      5 * time.Second,
		StatementTimeout: 30 * time.Second,
		ApplicationName:  defaultApplicationName,
	}
}

// DefaultMigrateOptions returns defaults for short-lived CLI migrations. DDL
// runs without a statement timeout.
func DefaultMigrateOptions() Options {
	return Options{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
		ApplicationName: defaultApplicationName + "-migrate",
	}
}

// OptionsFromEnv applies DB_* overrides on top of defaults. Unparseable
// values are logged and ignored.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	for key, dst := range map[string]*int{
		"DB_MAX_OPEN_CONNS": &opts.MaxOpenConns,
		"DB_MAX_IDLE_CONNS": &opts.MaxIdleConns,
	} {
		overrideFromEnv(key, dst, strconv.Atoi)
	}
	for key, dst := range map[string]*time.Duration{
		"DB_CONN_MAX_LIFETIME":  &opts.ConnMaxLifetime,
		"DB_CONN_MAX_IDLE_TIME": &opts.ConnMaxIdleTime,
		"DB_PING_TIMEOUT":       &opts.PingTimeout,
		"DB_STATEMENT_TIMEOUT":  &opts.StatementTimeout,
	} {
		overrideFromEnv(key, dst, time.ParseDuration)
	}
	overrideFromEnv("DB_APPLICATION_NAME", &opts.ApplicationName, func(s string) (string, error) { return s, nil })
	return opts
}

func overrideFromEnv[T any](key string, dst *T, parse func(string) (T, error)) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := parse(raw)
	if err != nil {
		telemetry.Warn("db.env.invalid", map[string]any{"key": key, "error": err.Error()})
		return
	}
	*dst = v
}

// pgxConfig parses databaseURL and adds the session settings from opts.
func pgxConfig(databaseURL string, opts Options) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	if opts.ApplicationName != "" {
		cfg.RuntimeParams["application_name"] = opts.ApplicationName
	}
	if opts.StatementTimeout > 0 {
		cfg.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}
	return cfg, nil
}

func openPGX(databaseURL string, opts Options) (*sql.DB, error) {
	cfg, err := pgxConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}
	return stdlib.OpenDB(*cfg), nil
}

// Connect opens a pool for databaseURL, sizes it from opts and pings it
// within opts.PingTimeout. Callers share the returned pool.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is empty")
	}
	opts = opts.withDefaults()

	pool, err := openDB(databaseURL, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyOptions(pool, opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logPoolStats(pool, "db.init", opts)
	return pool, nil
}

// GetSingleton returns the process-wide pool, connecting on first use. A failed
// connect is not cached; the next caller tries again. Concurrent first callers
// wait on the same attempt.
func GetSingleton(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singletonDB != nil {
		return singletonDB, nil
	}
	pool, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		telemetry.Warn("db.singleton.init_failed", map[string]any{"error": err.Error()})
		return nil, err
	}
	singletonDB = pool
	telemetry.Info("db.singleton.init", map[string]any{"application_name": opts.ApplicationName})
	return singletonDB, nil
}

func (o Options) withDefaults() Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 5
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = time.Hour
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}
	if o.ApplicationName == "" {
		o.ApplicationName = defaultApplicationName
	}
	return o
}

func applyOptions(pool *sql.DB, opts Options) {
	pool.SetMaxOpenConns(opts.MaxOpenConns)
	pool.SetMaxIdleConns(opts.MaxIdleConns)
	pool.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func logPoolStats(pool *sql.DB, label string, opts Options) {
	stats := pool.Stats()
	telemetry.Info(label, map[string]any{
		"open":                 stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait":                 stats.WaitCount,
		"max_open":             stats.MaxOpenConnections,
		"application_name":     opts.ApplicationName,
		"statement_timeout_ms": opts.StatementTimeout.Milliseconds(),
	})
}
