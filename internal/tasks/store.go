package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"intake-backend/internal/intake"
)

// Store persists triage actions.
type Store interface {
	Create(ctx context.Context, a intake.TriageAction) error
	List(ctx context.Context, caseID string) ([]intake.TriageAction, error)
}

// MemoryStore keeps triage actions in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	actions map[string][]intake.TriageAction
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string][]intake.TriageAction)}
}

func (s *MemoryStore) Create(ctx context.Context, a intake.TriageAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Metadata = intake.CloneFields(a.Metadata)
	s.actions[a.CaseID] = append(s.actions[a.CaseID], a)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, caseID string) ([]intake.TriageAction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.actions[caseID]
	out := make([]intake.TriageAction, 0, len(src))
	for _, a := range src {
		a.Metadata = intake.CloneFields(a.Metadata)
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PGStore persists triage actions in Postgres.
type PGStore struct {
	DB *sql.DB
}

func (s *PGStore) Create(ctx context.Context, a intake.TriageAction) error {
	meta := []byte("{}")
	if len(a.Metadata) > 0 {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("encode triage metadata: %w", err)
		}
		meta = b
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO triage_actions (id, case_id, kind, priority, title, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.CaseID, string(a.Kind), string(a.Priority), a.Title, a.Description, meta, a.CreatedAt)
	return err
}

func (s *PGStore) List(ctx context.Context, caseID string) ([]intake.TriageAction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, case_id, kind, priority, title, description, metadata, created_at
		FROM triage_actions
		WHERE case_id = $1
		ORDER BY created_at ASC, id ASC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []intake.TriageAction
	for rows.Next() {
		var (
			a              intake.TriageAction
			kind, priority string
			meta           []byte
		)
		if err := rows.Scan(&a.ID, &a.CaseID, &kind, &priority, &a.Title, &a.Description, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Kind = intake.TriageKind(kind)
		a.Priority = intake.Priority(priority)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode triage metadata: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PGStore)(nil)
)
