// Package classification assigns a document type to uploaded raw files, or
// parks them in a state that needs a person: unclassified, blurry, duplicate.
package classification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intake-backend/internal/doctypes"
	"intake-backend/internal/fingerprint"
	"intake-backend/internal/intake"
	"intake-backend/internal/shared/lock"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/storage/object"
	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/tasks"
	"intake-backend/internal/vision"
)

// Reasons a file did not end up classified.
const (
	ReasonAIUnconfigured = "ai_unconfigured"
	ReasonAIError        = "ai_error"
	ReasonLowConfidence  = "low_confidence"
	ReasonUnknownType    = "unknown_type"
	ReasonStorage        = "storage_error"
	ReasonUnreadable     = "unreadable"
	ReasonDuplicate      = "duplicate"
	ReasonStaff          = "staff"
)

// Config holds the classification policy knobs.
type Config struct {
	AcceptThreshold      float64
	DuplicateMaxDistance int
	AITimeout            time.Duration
}

// DefaultConfig returns the product defaults.
func DefaultConfig() Config {
	return Config{AcceptThreshold: 0.7, DuplicateMaxDistance: 6, AITimeout: 60 * time.Second}
}

// Stage runs the classification state machine for raw files.
type Stage struct {
	Store   intake.Store
	Objects object.ObjectStore
	// AI is nil when no vision provider is configured; every automatic run
	// then ends unclassified.
	AI     vision.Client
	Tasks  tasks.Creator
	Locker lock.Locker
	Config Config
	Now    func() time.Time
}

// NewStage constructs a Stage. ai and creator may be nil.
func NewStage(store intake.Store, objects object.ObjectStore, ai vision.Client, creator tasks.Creator, locker lock.Locker, cfg Config) *Stage {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &Stage{Store: store, Objects: objects, AI: ai, Tasks: creator, Locker: locker, Config: cfg}
}

// Result is the outcome of one classification call.
type Result struct {
	RawFile     intake.RawFile
	Document    *intake.ExtractedDocument
	Requirement *intake.ChecklistRequirement
	DuplicateOf string
	Reason      string
	Transition  string
}

func (s *Stage) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Stage) lockFile(ctx context.Context, rawFileID string) (func(), error) {
	release, err := s.Locker.Acquire(ctx, intake.RawFileLockKey(rawFileID))
	if err != nil {
		return nil, fmt.Errorf("lock raw file %s: %w", rawFileID, err)
	}
	return release, nil
}

// Classify runs the automatic path: duplicate check, then the vision model.
// Model failures end in unclassified and are not returned as errors. Files
// already classified are returned unchanged.
func (s *Stage) Classify(ctx context.Context, rawFileID string) (Result, error) {
	return s.auto(ctx, rawFileID, false)
}

// ClassifyAnyway re-runs the automatic path for a file parked as duplicate,
// skipping the duplicate check.
func (s *Stage) ClassifyAnyway(ctx context.Context, rawFileID string) (Result, error) {
	return s.auto(ctx, rawFileID, true)
}

func (s *Stage) auto(ctx context.Context, rawFileID string, anyway bool) (Result, error) {
	release, err := s.lockFile(ctx, rawFileID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	start := time.Now()
	path := "auto"
	if anyway {
		path = "anyway"
	}

	file, from, unchanged, err := s.markProcessing(ctx, rawFileID, anyway)
	if err != nil {
		return Result{}, err
	}
	if unchanged {
		return Result{RawFile: file, Transition: string(file.Status) + "->" + string(file.Status)}, nil
	}

	res, err := s.run(ctx, file, anyway)
	if err != nil {
		return Result{}, err
	}
	res.Transition = string(from) + "->" + string(res.RawFile.Status)
	s.report(res, path, time.Since(start))
	return res, nil
}

// markProcessing moves the file to processing and persists it before any
// outbound call is made.
func (s *Stage) markProcessing(ctx context.Context, rawFileID string, anyway bool) (intake.RawFile, intake.RawFileStatus, bool, error) {
	var (
		out       intake.RawFile
		from      intake.RawFileStatus
		unchanged bool
	)
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		f, err := tx.GetRawFile(ctx, rawFileID)
		if err != nil {
			return err
		}
		from = f.Status
		switch {
		case anyway && f.Status != intake.RawDuplicate:
			return fmt.Errorf("%w: classify-anyway needs a duplicate file, %s is %s", intake.ErrInvalidTransition, f.ID, f.Status)
		case anyway:
		case f.Status == intake.RawClassified || f.Status == intake.RawLinked:
			out, unchanged = f, true
			return nil
		case f.Status == intake.RawDuplicate:
			return fmt.Errorf("%w: raw file %s is a duplicate; use classify-anyway", intake.ErrInvalidTransition, f.ID)
		case f.Status == intake.RawBlurry:
			return fmt.Errorf("%w: raw file %s is blurry; request a new upload or classify manually", intake.ErrInvalidTransition, f.ID)
		}
		f.Status = intake.RawProcessing
		f.ClassifiedType = nil
		f.ClassificationConfidence = nil
		f.UpdatedAt = s.now()
		if err := tx.UpdateRawFile(ctx, f); err != nil {
			return err
		}
		out = f
		return nil
	})
	return out, from, unchanged, err
}

func (s *Stage) run(ctx context.Context, file intake.RawFile, skipDuplicate bool) (Result, error) {
	data, err := object.ReadAll(ctx, s.Objects, file.StorageKey, object.MaxObjectBytes)
	if err != nil {
		telemetry.Warn("classification.storage_error", map[string]any{
			"raw_file_id": file.ID,
			"case_id":     file.CaseID,
			"error":       err.Error(),
		})
		return s.park(ctx, file, intake.RawUnclassified, nil, ReasonStorage, "")
	}

	fillFingerprint(&file, data)

	if !skipDuplicate && file.Fingerprint != "" {
		match, err := s.findDuplicate(ctx, file)
		if err != nil {
			return Result{}, err
		}
		if match != "" {
			return s.park(ctx, file, intake.RawDuplicate, nil, ReasonDuplicate, match)
		}
	}

	if s.AI == nil {
		return s.park(ctx, file, intake.RawUnclassified, nil, ReasonAIUnconfigured, "")
	}

	aiCtx := ctx
	if s.Config.AITimeout > 0 {
		var cancel context.CancelFunc
		aiCtx, cancel = context.WithTimeout(ctx, s.Config.AITimeout)
		defer cancel()
	}
	out, err := s.AI.Classify(aiCtx, vision.ClassifyInput{
		Data:     data,
		MimeType: file.MimeType,
		FileName: file.OriginalFilename,
		Prompt:   doctypes.ClassificationPrompt(),
	})
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if err != nil {
		telemetry.Warn("classification.ai_error", map[string]any{
			"raw_file_id": file.ID,
			"case_id":     file.CaseID,
			"error":       err.Error(),
		})
		return s.park(ctx, file, intake.RawUnclassified, nil, ReasonAIError, "")
	}

	conf := vision.ClampConfidence(out.Confidence)
	if out.Blurry {
		return s.park(ctx, file, intake.RawBlurry, &conf, ReasonUnreadable, "")
	}
	t, ok := doctypes.Parse(out.Type)
	if !ok {
		return s.park(ctx, file, intake.RawUnclassified, &conf, ReasonUnknownType, "")
	}
	if conf < s.Config.AcceptThreshold {
		return s.park(ctx, file, intake.RawUnclassified, &conf, ReasonLowConfidence, "")
	}
	return s.assign(ctx, file, t, conf)
}

// fillFingerprint sets the file's fingerprint from data when it has none.
// Content that cannot be fingerprinted leaves it empty.
func fillFingerprint(file *intake.RawFile, data []byte) {
	if file.Fingerprint != "" {
		return
	}
	fp, err := fingerprint.Compute(data, file.MimeType, file.OriginalFilename)
	if err != nil {
		if !errors.Is(err, fingerprint.ErrUnsupported) {
			telemetry.Warn("classification.fingerprint_failed", map[string]any{"raw_file_id": file.ID, "error": err.Error()})
		}
		return
	}
	file.Fingerprint = fp
}

// uploadedBefore orders raw files by creation time, then id.
func uploadedBefore(a, b intake.RawFile) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// findDuplicate returns the id of the closest earlier file in the case whose
// fingerprint is within the configured distance. Later uploads never count,
// so the order files are classified in does not matter.
func (s *Stage) findDuplicate(ctx context.Context, file intake.RawFile) (string, error) {
	others, err := s.Store.ListRawFiles(ctx, file.CaseID)
	if err != nil {
		return "", fmt.Errorf("list case raw files: %w", err)
	}
	best, bestDist := "", -1
	for _, o := range others {
		if o.ID == file.ID || o.Status == intake.RawDuplicate || o.Fingerprint == "" {
			continue
		}
		if !uploadedBefore(o, file) {
			continue
		}
		d, ok := fingerprint.Distance(file.Fingerprint, o.Fingerprint)
		if !ok || d > s.Config.DuplicateMaxDistance {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = o.ID, d
		}
	}
	return best, nil
}

// park records a terminal outcome that carries no type.
func (s *Stage) park(ctx context.Context, file intake.RawFile, status intake.RawFileStatus, conf *float64, reason, duplicateOf string) (Result, error) {
	var out intake.RawFile
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		cur, err := tx.GetRawFile(ctx, file.ID)
		if err != nil {
			return err
		}
		cur.Status = status
		cur.ClassifiedType = nil
		cur.ClassificationConfidence = conf
		cur.Fingerprint = file.Fingerprint
		cur.UpdatedAt = s.now()
		if err := tx.UpdateRawFile(ctx, cur); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{RawFile: out, Reason: reason, DuplicateOf: duplicateOf}
	switch status {
	case intake.RawUnclassified:
		meta := map[string]any{"rawFileId": out.ID, "reason": reason}
		if conf != nil {
			meta["confidence"] = *conf
		}
		tasks.Notify(ctx, s.Tasks, tasks.Input{
			CaseID:      out.CaseID,
			Kind:        intake.TriageNeedsClassification,
			Priority:    intake.PriorityMedium,
			Title:       "Classify upload " + displayName(out),
			Description: "Automatic classification did not produce a confident type (" + reason + ").",
			Metadata:    meta,
		})
	case intake.RawDuplicate:
		tasks.Notify(ctx, s.Tasks, tasks.Input{
			CaseID:      out.CaseID,
			Kind:        intake.TriagePossibleDuplicate,
			Priority:    intake.PriorityLow,
			Title:       "Possible duplicate: " + displayName(out),
			Description: "The upload matches a file already in this case.",
			Metadata:    map[string]any{"rawFileId": out.ID, "duplicateOf": duplicateOf},
		})
	case intake.RawBlurry:
		tasks.Notify(ctx, s.Tasks, tasks.Input{
			CaseID:      out.CaseID,
			Kind:        intake.TriageRequestReupload,
			Priority:    intake.PriorityHigh,
			Title:       "Unreadable upload: " + displayName(out),
			Description: "The image could not be read; ask the client for a clearer copy.",
			Metadata:    map[string]any{"rawFileId": out.ID},
		})
	}
	return res, nil
}

// ClassifyManual records a staff-chosen type with confidence 1.0.
func (s *Stage) ClassifyManual(ctx context.Context, rawFileID string, t doctypes.Type) (Result, error) {
	if !doctypes.Known(t) {
		return Result{}, fmt.Errorf("%w: unknown document type %q", intake.ErrInvalidInput, t)
	}
	release, err := s.lockFile(ctx, rawFileID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	start := time.Now()
	file, err := s.Store.GetRawFile(ctx, rawFileID)
	if err != nil {
		return Result{}, err
	}
	if file.Fingerprint == "" {
		if data, err := object.ReadAll(ctx, s.Objects, file.StorageKey, object.MaxObjectBytes); err == nil {
			fillFingerprint(&file, data)
		} else {
			telemetry.Warn("classification.storage_error", map[string]any{
				"raw_file_id": file.ID,
				"case_id":     file.CaseID,
				"error":       err.Error(),
			})
		}
	}
	from := file.Status
	res, err := s.assign(ctx, file, t, 1.0)
	if err != nil {
		return Result{}, err
	}
	res.Transition = string(from) + "->" + string(res.RawFile.Status)
	s.report(res, "manual", time.Since(start))
	return res, nil
}

// MarkBlurry is the staff override for unreadable uploads. Files that already
// carry a type must be dealt with through their document instead.
func (s *Stage) MarkBlurry(ctx context.Context, rawFileID string) (Result, error) {
	release, err := s.lockFile(ctx, rawFileID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	var (
		out  intake.RawFile
		from intake.RawFileStatus
	)
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		f, err := tx.GetRawFile(ctx, rawFileID)
		if err != nil {
			return err
		}
		from = f.Status
		if f.Status.HasType() {
			return fmt.Errorf("%w: raw file %s is %s", intake.ErrInvalidTransition, f.ID, f.Status)
		}
		f.Status = intake.RawBlurry
		f.UpdatedAt = s.now()
		if err := tx.UpdateRawFile(ctx, f); err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{RawFile: out, Reason: ReasonStaff, Transition: string(from) + "->" + string(out.Status)}
	s.report(res, "manual", 0)
	return res, nil
}

// MarkSeen clears the staff inbox flag.
func (s *Stage) MarkSeen(ctx context.Context, rawFileID string) (intake.RawFile, error) {
	var out intake.RawFile
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		f, err := tx.GetRawFile(ctx, rawFileID)
		if err != nil {
			return err
		}
		if f.IsNew {
			f.IsNew = false
			f.UpdatedAt = s.now()
			if err := tx.UpdateRawFile(ctx, f); err != nil {
				return err
			}
		}
		out = f
		return nil
	})
	return out, err
}

func (s *Stage) report(res Result, path string, d time.Duration) {
	f := res.RawFile
	fields := map[string]any{
		"raw_file_id":       f.ID,
		"case_id":           f.CaseID,
		"status":            string(f.Status),
		"status_transition": res.Transition,
		"path":              path,
	}
	if f.ClassifiedType != nil {
		fields["classified_type"] = string(*f.ClassifiedType)
	}
	if f.ClassificationConfidence != nil {
		fields["confidence"] = *f.ClassificationConfidence
	}
	if res.Reason != "" {
		fields["reason"] = res.Reason
	}
	if res.DuplicateOf != "" {
		fields["duplicate_of"] = res.DuplicateOf
	}
	if res.Requirement != nil {
		fields["requirement_id"] = res.Requirement.ID
	}
	telemetry.Info("raw_file.status", fields)
	metrics.IncClassification(string(f.Status), path)
	if d > 0 {
		metrics.ObserveStageDuration("classification", d)
	}
}

func displayName(f intake.RawFile) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.OriginalFilename
}
