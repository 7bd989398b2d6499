package classification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"intake-backend/internal/checklist"
	"intake-backend/internal/doctypes"
	"intake-backend/internal/intake"
)

// assign records type t on the file and, in the same transaction, creates or
// resets its document and links it to an open requirement of that type.
func (s *Stage) assign(ctx context.Context, file intake.RawFile, t doctypes.Type, conf float64) (Result, error) {
	var res Result
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx intake.Tx) error {
		res = Result{}
		cur, err := tx.GetRawFile(ctx, file.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if file.Fingerprint != "" {
			cur.Fingerprint = file.Fingerprint
		}
		typeChanged := cur.ClassifiedType == nil || *cur.ClassifiedType != t
		cur.ClassifiedType = &t
		cur.ClassificationConfidence = &conf
		cur.Status = intake.RawClassified
		cur.UpdatedAt = now

		req, linkedNow, err := link(ctx, tx, &cur, t)
		if err != nil {
			return err
		}
		if err := tx.UpdateRawFile(ctx, cur); err != nil {
			return err
		}
		doc, err := upsertDocument(ctx, tx, cur, typeChanged, now)
		if err != nil {
			return err
		}
		if req != nil && linkedNow {
			advanced, _ := checklist.Advance(*req, checklist.RawLinked, now)
			if err := tx.UpdateRequirement(ctx, advanced); err != nil {
				return err
			}
			req = &advanced
		}
		res.RawFile = cur
		res.Document = &doc
		res.Requirement = req
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// link picks the requirement the file belongs to. A file already linked to a
// requirement of the same type stays there without being counted again.
// Otherwise the least advanced open requirement of the type wins; ties go to
// the oldest. The bool reports a new link.
func link(ctx context.Context, tx intake.Tx, f *intake.RawFile, t doctypes.Type) (*intake.ChecklistRequirement, bool, error) {
	if f.RequirementID != nil {
		req, err := tx.GetRequirement(ctx, *f.RequirementID)
		switch {
		case err == nil && req.DocumentType == t:
			f.Status = intake.RawLinked
			return &req, false, nil
		case err != nil && !errors.Is(err, intake.ErrNotFound):
			return nil, false, err
		}
		f.RequirementID = nil
	}

	reqs, err := tx.ListRequirements(ctx, f.CaseID)
	if err != nil {
		return nil, false, err
	}
	var best *intake.ChecklistRequirement
	for i := range reqs {
		r := reqs[i]
		if r.DocumentType != t || !checklist.Open(r) {
			continue
		}
		if best == nil || r.Status.Rank() < best.Status.Rank() {
			best = &reqs[i]
		}
	}
	if best == nil {
		return nil, false, nil
	}
	id := best.ID
	f.RequirementID = &id
	f.Status = intake.RawLinked
	out := *best
	return &out, true, nil
}

// upsertDocument keeps one document per raw file. A new type resets the
// document to pending with an empty field map; the same type keeps its data.
func upsertDocument(ctx context.Context, tx intake.Tx, f intake.RawFile, typeChanged bool, now time.Time) (intake.ExtractedDocument, error) {
	doc, err := tx.GetDocumentByRawFile(ctx, f.ID)
	switch {
	case errors.Is(err, intake.ErrNotFound):
		doc = intake.ExtractedDocument{
			ID:            uuid.NewString(),
			CaseID:        f.CaseID,
			RawFileID:     f.ID,
			DocumentType:  *f.ClassifiedType,
			Status:        intake.DocPending,
			Fields:        map[string]any{},
			FieldStatuses: map[string]intake.FieldStatus{},
			RequirementID: f.RequirementID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return intake.ExtractedDocument{}, err
		}
		return doc, nil
	case err != nil:
		return intake.ExtractedDocument{}, err
	}

	if typeChanged || doc.DocumentType != *f.ClassifiedType {
		doc.DocumentType = *f.ClassifiedType
		doc.Status = intake.DocPending
		doc.Fields = map[string]any{}
		doc.FieldStatuses = map[string]intake.FieldStatus{}
		doc.CarriedOverFields = nil
		doc.Confidence = 0
		doc.ExtractedAt = nil
		doc.VerifiedAt = nil
	}
	doc.RequirementID = f.RequirementID
	doc.UpdatedAt = now
	if err := tx.UpdateDocument(ctx, doc); err != nil {
		return intake.ExtractedDocument{}, err
	}
	return doc, nil
}
