package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"intake-backend/internal/shared/telemetry"
)

// DefaultTxAttempts bounds how often RunInTx re-runs a transaction that lost
// a serialization race or a deadlock.
const DefaultTxAttempts = 3

var txBackoff = func(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 25 * time.Millisecond
}

// Retryable reports whether err is a Postgres serialization failure or
// deadlock, both of which succeed when the whole transaction is re-run.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// RunInTx begins a transaction, runs fn and commits. fn must be safe to run
// more than once: retryable failures restart it on a fresh transaction.
func RunInTx(ctx context.Context, database *sql.DB, attempts int, fn func(*sql.Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runOnce(ctx, database, fn)
		if err == nil || !Retryable(err) || attempt == attempts {
			return err
		}
		telemetry.Warn("db.tx.retry", map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(txBackoff(attempt)):
		}
	}
	return err
}

func runOnce(ctx context.Context, database *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
