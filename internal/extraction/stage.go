// Package extraction reads the fields of classified documents through the
// vision model and records the outcome on the document.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intake-backend/internal/checklist"
	"intake-backend/internal/doctypes"
	"intake-backend/internal/intake"
	"intake-backend/internal/shared/lock"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/storage/object"
	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/tasks"
	"intake-backend/internal/vision"
)

// Reasons extraction did not run.
const (
	SkipAIUnconfigured  = "ai_unconfigured"
	SkipUnsupportedType = "unsupported_type"
)

// Config holds the extraction policy knobs.
type Config struct {
	VerifyThreshold float64
	AITimeout       time.Duration
}

// DefaultConfig returns the product defaults.
func DefaultConfig() Config {
	return Config{VerifyThreshold: 0.85, AITimeout: 60 * time.Second}
}

// Stage runs the extraction state machine for documents.
type Stage struct {
	Store   intake.Store
	Objects object.ObjectStore
	AI      vision.Client
	Tasks   tasks.Creator
	Locker  lock.Locker
	Config  Config
	Now     func() time.Time
}

// NewStage constructs a Stage. ai and creator may be nil.
func NewStage(store intake.Store, objects object.ObjectStore, ai vision.Client, creator tasks.Creator, locker lock.Locker, cfg Config) *Stage {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &Stage{Store: store, Objects: objects, AI: ai, Tasks: creator, Locker: locker, Config: cfg}
}

// Result is the outcome of one extraction call. Skipped is set when the model
// was never asked; Triage reports whether a review task was requested.
type Result struct {
	Document   intake.ExtractedDocument
	Skipped    string
	Triage     bool
	Transition string
}

func (s *Stage) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Extract runs the model over the document's raw file and stores what it read.
// Model and storage failures end in status failed and are not returned as
// errors. Running it again overwrites the previous outcome.
func (s *Stage) Extract(ctx context.Context, documentID string) (Result, error) {
	release, err := s.Locker.Acquire(ctx, intake.DocumentLockKey(documentID))
	if err != nil {
		return Result{}, fmt.Errorf("lock document %s: %w", documentID, err)
	}
	defer release()

	start := time.Now()
	doc, err := s.Store.GetDocument(ctx, documentID)
	if err != nil {
		return Result{}, err
	}
	if doc.Status == intake.DocVerified {
		return Result{}, fmt.Errorf("%w: document %s is already verified", intake.ErrInvalidTransition, doc.ID)
	}
	from := doc.Status

	switch {
	case s.AI == nil:
		return s.skip(ctx, doc, from, SkipAIUnconfigured)
	case !doctypes.SupportsExtraction(doc.DocumentType):
		return s.skip(ctx, doc, from, SkipUnsupportedType)
	}

	file, err := s.Store.GetRawFile(ctx, doc.RawFileID)
	if err != nil {
		return Result{}, fmt.Errorf("load raw file for document %s: %w", doc.ID, err)
	}
	prompt, err := doctypes.Prompt(doc.DocumentType)
	if err != nil {
		return Result{}, err
	}

	out, err := s.read(ctx, doc, file, prompt)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	var res Result
	if err != nil {
		res, err = s.fail(ctx, doc, err)
	} else {
		res, err = s.record(ctx, doc, out)
	}
	if err != nil {
		return Result{}, err
	}
	res.Transition = string(from) + "->" + string(res.Document.Status)
	s.triage(ctx, &res)
	s.report(res, time.Since(start))
	return res, nil
}

func (s *Stage) read(ctx context.Context, doc intake.ExtractedDocument, file intake.RawFile, prompt string) (vision.ExtractOutput, error) {
	data, err := object.ReadAll(ctx, s.Objects, file.StorageKey, object.MaxObjectBytes)
	if err != nil {
		return vision.ExtractOutput{}, fmt.Errorf("read raw file %s: %w", file.ID, err)
	}
	aiCtx := ctx
	if s.Config.AITimeout > 0 {
		var cancel context.CancelFunc
		aiCtx, cancel = context.WithTimeout(ctx, s.Config.AITimeout)
		defer cancel()
	}
	out, err := s.AI.Extract(aiCtx, vision.ExtractInput{
		Data:         data,
		MimeType:     file.MimeType,
		FileName:     file.OriginalFilename,
		DocumentType: doc.DocumentType,
		Prompt:       prompt,
	})
	if err != nil {
		return vision.ExtractOutput{}, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "model reported failure"
		}
		return vision.ExtractOutput{}, errors.New(msg)
	}
	return out, nil
}

// skip stores the type's placeholder map so downstream readers always see
// every key, and leaves the document pending.
func (s *Stage) skip(ctx context.Context, doc intake.ExtractedDocument, from intake.DocumentStatus, reason string) (Result, error) {
	out, err := s.update(ctx, doc, func(d *intake.ExtractedDocument) {
		d.Fields = doctypes.Placeholder(d.DocumentType)
		d.FieldStatuses = map[string]intake.FieldStatus{}
		d.CarriedOverFields = nil
		d.Confidence = 0
		d.Status = intake.DocPending
		d.ExtractedAt = nil
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{Document: out, Skipped: reason, Transition: string(from) + "->" + string(out.Status)}
	s.report(res, 0)
	return res, nil
}

// fail marks the document failed and keeps whatever fields it had.
func (s *Stage) fail(ctx context.Context, doc intake.ExtractedDocument, cause error) (Result, error) {
	telemetry.Warn("extraction.ai_error", map[string]any{
		"document_id": doc.ID,
		"case_id":     doc.CaseID,
		"error":       cause.Error(),
	})
	out, err := s.update(ctx, doc, func(d *intake.ExtractedDocument) {
		d.Status = intake.DocFailed
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Document: out}, nil
}

func (s *Stage) record(ctx context.Context, doc intake.ExtractedDocument, out vision.ExtractOutput) (Result, error) {
	status := intake.DocPartial
	if doctypes.Validate(doc.DocumentType, out.Fields) && out.Valid {
		status = intake.DocExtracted
	}
	conf := vision.ClampConfidence(out.Confidence)
	fields := doctypes.Conform(doc.DocumentType, out.Fields)
	marks := map[string]intake.FieldStatus{}
	for _, name := range out.Unreadable {
		if _, ok := fields[name]; ok {
			marks[name] = intake.FieldUnreadable
		}
	}

	saved, err := s.update(ctx, doc, func(d *intake.ExtractedDocument) {
		now := s.now()
		d.Fields = fields
		d.FieldStatuses = marks
		d.CarriedOverFields = nil
		d.Confidence = conf
		d.Status = status
		d.ExtractedAt = &now
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Document: saved}, nil
}

// update applies mut to the current row and, when the result carries data,
// advances the linked requirement in the same transaction.
func (s *Stage) update(ctx context.Context, doc intake.ExtractedDocument, mut func(d *intake.ExtractedDocument)) (intake.ExtractedDocument, error) {
	var out intake.ExtractedDocument
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		cur, err := tx.GetDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		if cur.DocumentType != doc.DocumentType {
			return fmt.Errorf("%w: document %s was reclassified during extraction", intake.ErrConflict, doc.ID)
		}
		if cur.Status == intake.DocVerified {
			return fmt.Errorf("%w: document %s was verified during extraction", intake.ErrInvalidTransition, doc.ID)
		}
		mut(&cur)
		now := s.now()
		cur.UpdatedAt = now
		if err := tx.UpdateDocument(ctx, cur); err != nil {
			return err
		}
		if cur.Status.HasData() && cur.RequirementID != nil {
			req, err := tx.GetRequirement(ctx, *cur.RequirementID)
			switch {
			case errors.Is(err, intake.ErrNotFound):
			case err != nil:
				return err
			default:
				if advanced, changed := checklist.Advance(req, checklist.DigitalReady, now); changed {
					if err := tx.UpdateRequirement(ctx, advanced); err != nil {
						return err
					}
				}
			}
		}
		out = cur
		return nil
	})
	return out, err
}

// triage asks staff to review extractions that are low confidence or did not
// validate. Failed and skipped runs create nothing.
func (s *Stage) triage(ctx context.Context, res *Result) {
	d := res.Document
	if !d.Status.HasData() {
		return
	}
	partial := d.Status == intake.DocPartial
	if !partial && d.Confidence >= s.Config.VerifyThreshold {
		return
	}
	priority := intake.PriorityMedium
	reason := "low_confidence"
	if partial {
		priority = intake.PriorityHigh
		reason = "incomplete"
	}
	tasks.Notify(ctx, s.Tasks, tasks.Input{
		CaseID:      d.CaseID,
		Kind:        intake.TriageNeedsVerification,
		Priority:    priority,
		Title:       "Verify " + doctypes.Label(d.DocumentType),
		Description: fmt.Sprintf("Extracted with confidence %.2f (%s).", d.Confidence, reason),
		Metadata: map[string]any{
			"documentId": d.ID,
			"rawFileId":  d.RawFileID,
			"confidence": d.Confidence,
			"reason":     reason,
		},
	})
	res.Triage = true
}

func (s *Stage) report(res Result, d time.Duration) {
	doc := res.Document
	fields := map[string]any{
		"document_id":       doc.ID,
		"raw_file_id":       doc.RawFileID,
		"case_id":           doc.CaseID,
		"document_type":     string(doc.DocumentType),
		"status":            string(doc.Status),
		"status_transition": res.Transition,
		"confidence":        doc.Confidence,
		"triage":            res.Triage,
	}
	if res.Skipped != "" {
		fields["skipped"] = res.Skipped
	}
	telemetry.Info("extraction.status", fields)
	metrics.IncExtraction(string(doc.Status))
	if d > 0 {
		metrics.ObserveStageDuration("extraction", d)
	}
}
