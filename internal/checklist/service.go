package checklist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake-backend/internal/intake"
	"intake-backend/internal/shared/telemetry"
)

// Service opens case checklists and applies staff overrides.
type Service struct {
	Store     intake.Store
	Templates Templates
	Now       func() time.Time
}

// NewService constructs a Service with the built-in templates.
func NewService(store intake.Store) *Service {
	return &Service{Store: store, Templates: DefaultTemplates(), Now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// OpenCase creates the requirements of set for caseID. Items already present
// for the case, by template id, are left alone, so reopening is a no-op.
func (s *Service) OpenCase(ctx context.Context, caseID, set string) ([]intake.ChecklistRequirement, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, fmt.Errorf("%w: case id is required", intake.ErrInvalidInput)
	}
	items, ok := s.Templates[set]
	if !ok {
		return nil, fmt.Errorf("%w: unknown template set %q", intake.ErrInvalidInput, set)
	}

	created := 0
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		existing, err := tx.ListRequirements(ctx, caseID)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(existing))
		for _, r := range existing {
			have[r.TemplateID] = true
		}
		now := s.now()
		for _, item := range items {
			if have[item.ID] {
				continue
			}
			req := intake.ChecklistRequirement{
				ID:           uuid.NewString(),
				CaseID:       caseID,
				TemplateID:   item.ID,
				DocumentType: item.Type,
				Label:        item.Label,
				Status:       intake.ReqMissing,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.CreateRequirement(ctx, req); err != nil {
				return fmt.Errorf("create requirement %s: %w", item.ID, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.Info("checklist.opened", map[string]any{
		"case_id":      caseID,
		"template_set": set,
		"created":      created,
	})
	return s.Store.ListRequirements(ctx, caseID)
}

// List returns a case's requirements.
func (s *Service) List(ctx context.Context, caseID string) ([]intake.ChecklistRequirement, error) {
	return s.Store.ListRequirements(ctx, caseID)
}

// Downgrade moves a requirement back to an earlier status. It is the only way a
// requirement status regresses.
func (s *Service) Downgrade(ctx context.Context, requirementID string, to intake.RequirementStatus, reason string) (intake.ChecklistRequirement, error) {
	if to.Rank() < 0 {
		return intake.ChecklistRequirement{}, fmt.Errorf("%w: unknown requirement status %q", intake.ErrInvalidInput, to)
	}
	var out intake.ChecklistRequirement
	var from intake.RequirementStatus
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		req, err := tx.GetRequirement(ctx, requirementID)
		if err != nil {
			return err
		}
		if to.Rank() >= req.Status.Rank() {
			return fmt.Errorf("%w: cannot downgrade %s from %s to %s", intake.ErrInvalidTransition, req.ID, req.Status, to)
		}
		from = req.Status
		req.Status = to
		req.UpdatedAt = s.now()
		if err := tx.UpdateRequirement(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return intake.ChecklistRequirement{}, err
	}
	telemetry.Info("checklist.downgraded", map[string]any{
		"case_id":           out.CaseID,
		"requirement_id":    out.ID,
		"status_transition": string(from) + "->" + string(to),
		"reason":            reason,
	})
	return out, nil
}
