// Package verification applies staff review to extracted documents: per-field
// marks and corrections, and completing a document as verified.
package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"intake-backend/internal/checklist"
	"intake-backend/internal/doctypes"
	"intake-backend/internal/intake"
	"intake-backend/internal/shared/lock"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
)

// Action is a complete-document decision.
type Action string

const (
	ActionVerify Action = "verify"
	ActionReject Action = "reject"
)

// Reconciler records staff decisions on documents. It never calls the model.
type Reconciler struct {
	Store  intake.Store
	Locker lock.Locker
	Now    func() time.Time
}

// NewReconciler constructs a Reconciler. A nil locker serializes in-process only.
func NewReconciler(store intake.Store, locker lock.Locker) *Reconciler {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &Reconciler{Store: store, Locker: locker}
}

// View is a document prepared for review: every field carries a status and a
// label.
type View struct {
	Document intake.ExtractedDocument
	Statuses map[string]intake.FieldStatus
	Labels   map[string]string
	Fields   []string
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Reconciler) lockDocument(ctx context.Context, id string) (func(), error) {
	release, err := r.Locker.Acquire(ctx, intake.DocumentLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock document %s: %w", id, err)
	}
	return release, nil
}

// Get returns the document with a status for every field, defaulting to
// unverified.
func (r *Reconciler) Get(ctx context.Context, documentID string) (View, error) {
	doc, err := r.Store.GetDocument(ctx, documentID)
	if err != nil {
		return View{}, err
	}
	return NewView(doc), nil
}

// NewView builds the review view of doc.
func NewView(doc intake.ExtractedDocument) View {
	names := fieldNames(doc)
	statuses := make(map[string]intake.FieldStatus, len(names))
	for _, n := range names {
		statuses[n] = doc.FieldStatusOf(n)
	}
	return View{Document: doc, Statuses: statuses, Labels: doctypes.Labels(doc.DocumentType), Fields: names}
}

// fieldNames lists the schema's fields in schema order, then any other keys of
// the stored map sorted.
func fieldNames(doc intake.ExtractedDocument) []string {
	seen := map[string]bool{}
	var out []string
	if s, ok := doctypes.Lookup(doc.DocumentType); ok {
		for _, f := range s.Fields {
			out = append(out, f.Name)
			seen[f.Name] = true
		}
	}
	var extra []string
	for k := range doc.Fields {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// FieldUpdate is one verify-field request. Value is applied only when HasValue
// is set, so an explicit null can be written.
type FieldUpdate struct {
	Field    string
	Status   intake.FieldStatus
	Value    any
	HasValue bool
}

// VerifyField sets a field's review status and, when a corrected value is
// given, its value in the same write.
func (r *Reconciler) VerifyField(ctx context.Context, documentID string, u FieldUpdate) (intake.ExtractedDocument, error) {
	u.Field = strings.TrimSpace(u.Field)
	if u.Field == "" {
		return intake.ExtractedDocument{}, fmt.Errorf("%w: field is required", intake.ErrInvalidInput)
	}
	if !u.Status.Valid() {
		return intake.ExtractedDocument{}, fmt.Errorf("%w: unknown field status %q", intake.ErrInvalidInput, u.Status)
	}

	release, err := r.lockDocument(ctx, documentID)
	if err != nil {
		return intake.ExtractedDocument{}, err
	}
	defer release()

	var out intake.ExtractedDocument
	err = r.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		doc, err := tx.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if err := checkField(doc, u); err != nil {
			return err
		}
		if u.HasValue {
			if doc.Fields == nil {
				doc.Fields = map[string]any{}
			}
			doc.Fields[u.Field] = u.Value
		}
		if doc.FieldStatuses == nil {
			doc.FieldStatuses = map[string]intake.FieldStatus{}
		}
		doc.FieldStatuses[u.Field] = u.Status
		doc.UpdatedAt = r.now()
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return intake.ExtractedDocument{}, err
	}
	telemetry.Info("document.field_verified", map[string]any{
		"document_id":  out.ID,
		"case_id":      out.CaseID,
		"field":        u.Field,
		"field_status": string(u.Status),
		"corrected":    u.HasValue,
	})
	return out, nil
}

func checkField(doc intake.ExtractedDocument, u FieldUpdate) error {
	if s, ok := doctypes.Lookup(doc.DocumentType); ok {
		f, ok := s.Field(u.Field)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q", intake.ErrInvalidInput, doc.DocumentType, u.Field)
		}
		if u.HasValue && !doctypes.CheckValue(f, u.Value) {
			return fmt.Errorf("%w: value for %q must be %s", intake.ErrInvalidInput, u.Field, f.Kind)
		}
		return nil
	}
	if _, ok := doc.Fields[u.Field]; !ok {
		return fmt.Errorf("%w: document has no field %q", intake.ErrInvalidInput, u.Field)
	}
	return nil
}

// Complete applies a staff decision. Verify marks the document verified even
// if some fields were never reviewed; fields still marked unreadable are
// recorded as carried over. Only documents holding extracted data can be
// verified. Reject leaves the document unchanged.
func (r *Reconciler) Complete(ctx context.Context, documentID string, action Action) (intake.ExtractedDocument, error) {
	switch action {
	case ActionVerify:
	case ActionReject:
		doc, err := r.Store.GetDocument(ctx, documentID)
		if err != nil {
			return intake.ExtractedDocument{}, err
		}
		telemetry.Info("document.rejected", map[string]any{"document_id": doc.ID, "case_id": doc.CaseID})
		metrics.IncVerification(string(action))
		return doc, nil
	default:
		return intake.ExtractedDocument{}, fmt.Errorf("%w: unknown action %q", intake.ErrInvalidInput, action)
	}

	release, err := r.lockDocument(ctx, documentID)
	if err != nil {
		return intake.ExtractedDocument{}, err
	}
	defer release()

	var (
		out  intake.ExtractedDocument
		from intake.DocumentStatus
		req  *intake.ChecklistRequirement
	)
	err = r.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		doc, err := tx.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		from = doc.Status
		if !doc.Status.HasData() {
			return fmt.Errorf("%w: document %s is %s and has no extracted data", intake.ErrInvalidTransition, doc.ID, doc.Status)
		}
		now := r.now()
		doc.Status = intake.DocVerified
		doc.VerifiedAt = &now
		doc.CarriedOverFields = nil
		for _, name := range fieldNames(doc) {
			if doc.FieldStatusOf(name) == intake.FieldUnreadable {
				doc.CarriedOverFields = append(doc.CarriedOverFields, name)
			}
		}
		doc.UpdatedAt = now
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return err
		}
		if doc.RequirementID != nil {
			cur, err := tx.GetRequirement(ctx, *doc.RequirementID)
			switch {
			case errors.Is(err, intake.ErrNotFound):
			case err != nil:
				return err
			default:
				advanced, changed := checklist.Advance(cur, checklist.Verified, now)
				if changed {
					if err := tx.UpdateRequirement(ctx, advanced); err != nil {
						return err
					}
				}
				req = &advanced
			}
		}
		out = doc
		return nil
	})
	if err != nil {
		return intake.ExtractedDocument{}, err
	}

	fields := map[string]any{
		"document_id":       out.ID,
		"case_id":           out.CaseID,
		"status_transition": string(from) + "->" + string(out.Status),
		"carried_over":      len(out.CarriedOverFields),
	}
	if req != nil {
		fields["requirement_id"] = req.ID
		fields["requirement_status"] = string(req.Status)
	}
	telemetry.Info("document.verified", fields)
	metrics.IncVerification(string(action))
	return out, nil
}
