// Package tasks records the staff work items (triage actions) the pipeline
// stages ask for and announces them to the task gateway.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake-backend/internal/intake"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
)

// Input describes a triage action to create.
type Input struct {
	CaseID      string
	Kind        intake.TriageKind
	Priority    intake.Priority
	Title       string
	Description string
	Metadata    map[string]any
}

// Creator is what pipeline stages see of the task gateway.
type Creator interface {
	CreateTask(ctx context.Context, in Input) error
}

// Publisher delivers a notification payload. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Service persists triage actions and publishes them on Subject.
type Service struct {
	Store     Store
	Publisher Publisher
	Subject   string
	Now       func() time.Time
}

// NewService constructs a Service. publisher may be nil.
func NewService(store Store, publisher Publisher, subject string) *Service {
	return &Service{Store: store, Publisher: publisher, Subject: subject}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CreateTask stores the action, then publishes it. A publish failure is logged
// and does not fail the call once the action is stored.
func (s *Service) CreateTask(ctx context.Context, in Input) error {
	action, err := s.build(in)
	if err != nil {
		return err
	}
	if err := s.Store.Create(ctx, action); err != nil {
		metrics.IncTriage(string(in.Kind), "failed")
		return fmt.Errorf("store triage action: %w", err)
	}
	metrics.IncTriage(string(in.Kind), "created")
	telemetry.Info("triage.created", map[string]any{
		"case_id":   action.CaseID,
		"triage_id": action.ID,
		"kind":      string(action.Kind),
		"priority":  string(action.Priority),
	})
	s.publish(action)
	return nil
}

// List returns a case's triage actions, oldest first.
func (s *Service) List(ctx context.Context, caseID string) ([]intake.TriageAction, error) {
	return s.Store.List(ctx, caseID)
}

func (s *Service) build(in Input) (intake.TriageAction, error) {
	if strings.TrimSpace(in.CaseID) == "" {
		return intake.TriageAction{}, fmt.Errorf("%w: case id is required", intake.ErrInvalidInput)
	}
	switch in.Kind {
	case intake.TriageNeedsVerification, intake.TriageNeedsClassification, intake.TriagePossibleDuplicate, intake.TriageRequestReupload:
	default:
		return intake.TriageAction{}, fmt.Errorf("%w: unknown triage kind %q", intake.ErrInvalidInput, in.Kind)
	}
	priority := in.Priority
	switch priority {
	case intake.PriorityLow, intake.PriorityMedium, intake.PriorityHigh:
	case "":
		priority = intake.PriorityMedium
	default:
		return intake.TriageAction{}, fmt.Errorf("%w: unknown priority %q", intake.ErrInvalidInput, in.Priority)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = string(in.Kind)
	}
	return intake.TriageAction{
		ID:          uuid.NewString(),
		CaseID:      in.CaseID,
		Kind:        in.Kind,
		Priority:    priority,
		Title:       title,
		Description: in.Description,
		Metadata:    intake.CloneFields(in.Metadata),
		CreatedAt:   s.now(),
	}, nil
}

type notification struct {
	ID          string         `json:"id"`
	CaseID      string         `json:"caseId"`
	Kind        string         `json:"kind"`
	Priority    string         `json:"priority"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (s *Service) publish(a intake.TriageAction) {
	if s.Publisher == nil || s.Subject == "" {
		return
	}
	payload, err := json.Marshal(notification{
		ID:          a.ID,
		CaseID:      a.CaseID,
		Kind:        string(a.Kind),
		Priority:    string(a.Priority),
		Title:       a.Title,
		Description: a.Description,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
	})
	if err != nil {
		telemetry.Warn("triage.publish_failed", map[string]any{"triage_id": a.ID, "error": err.Error()})
		return
	}
	if err := s.Publisher.Publish(s.Subject, payload); err != nil {
		telemetry.Warn("triage.publish_failed", map[string]any{
			"triage_id": a.ID,
			"case_id":   a.CaseID,
			"subject":   s.Subject,
			"error":     err.Error(),
		})
	}
}

// Notify asks c for a task and logs a failure instead of returning it. Stages
// call it after their transaction has committed.
func Notify(ctx context.Context, c Creator, in Input) {
	if c == nil {
		return
	}
	if err := c.CreateTask(ctx, in); err != nil {
		telemetry.Warn("triage.create_failed", map[string]any{
			"case_id": in.CaseID,
			"kind":    string(in.Kind),
			"error":   err.Error(),
		})
	}
}

var _ Creator = (*Service)(nil)
