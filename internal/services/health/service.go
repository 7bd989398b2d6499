package health

import (
	"context"
	"database/sql"
	"time"
)

// Service reports which backends the process is running on and whether the
// database answers.
type Service struct {
	DB          *sql.DB
	ObjectStore string
	AIProvider  string
	Queue       bool

	// SchemaVersion, when set, adds the applied migration version.
	SchemaVersion func(ctx context.Context, db *sql.DB) (int64, error)
}

// NewService constructs a new health service. db may be nil for the in-memory store.
func NewService(db *sql.DB, objectStore, aiProvider string, queued bool) *Service {
	return &Service{DB: db, ObjectStore: objectStore, AIProvider: aiProvider, Queue: queued}
}

// Status returns the health payload. ok is false only when a configured
// database does not answer.
func (s *Service) Status(ctx context.Context) map[string]any {
	out := map[string]any{
		"ok":          true,
		"store":       "memory",
		"objectStore": s.ObjectStore,
		"ai":          s.AIProvider,
		"queue":       s.Queue,
	}
	if s.DB == nil {
		return out
	}
	out["store"] = "postgres"
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		out["ok"] = false
		out["database"] = err.Error()
		return out
	}
	if s.SchemaVersion != nil {
		if v, err := s.SchemaVersion(pingCtx, s.DB); err == nil {
			out["schemaVersion"] = v
		}
	}
	return out
}
