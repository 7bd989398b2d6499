// Package intake holds the records of the document intake pipeline and the
// transactional store they live in.
package intake

import (
	"fmt"
	"time"

	"intake-backend/internal/doctypes"
)

// RawFileStatus is the classification lifecycle of an uploaded file.
type RawFileStatus string

const (
	RawUploaded     RawFileStatus = "uploaded"
	RawProcessing   RawFileStatus = "processing"
	RawClassified   RawFileStatus = "classified"
	RawUnclassified RawFileStatus = "unclassified"
	RawBlurry       RawFileStatus = "blurry"
	RawDuplicate    RawFileStatus = "duplicate"
	RawLinked       RawFileStatus = "linked"
)

// HasType reports whether a file in status s must carry a classified type.
func (s RawFileStatus) HasType() bool {
	return s == RawClassified || s == RawLinked
}

// Valid reports whether s is a known status.
func (s RawFileStatus) Valid() bool {
	switch s {
	case RawUploaded, RawProcessing, RawClassified, RawUnclassified, RawBlurry, RawDuplicate, RawLinked:
		return true
	}
	return false
}

// UploadChannel records who uploaded a file.
type UploadChannel string

const (
	ChannelClientPortal UploadChannel = "client_portal"
	ChannelStaff        UploadChannel = "staff"
)

// DocumentStatus is the extraction lifecycle of a document.
type DocumentStatus string

const (
	DocPending   DocumentStatus = "pending"
	DocExtracted DocumentStatus = "extracted"
	DocPartial   DocumentStatus = "partial"
	DocVerified  DocumentStatus = "verified"
	DocFailed    DocumentStatus = "failed"
)

// HasData reports whether a document in status s carries a conformed field map.
func (s DocumentStatus) HasData() bool {
	return s == DocExtracted || s == DocPartial || s == DocVerified
}

// FieldStatus is a staff review mark on one extracted field.
type FieldStatus string

const (
	FieldUnverified FieldStatus = "unverified"
	FieldVerified   FieldStatus = "verified"
	FieldEdited     FieldStatus = "edited"
	FieldUnreadable FieldStatus = "unreadable"
)

// Valid reports whether s is a known field status.
func (s FieldStatus) Valid() bool {
	switch s {
	case FieldUnverified, FieldVerified, FieldEdited, FieldUnreadable:
		return true
	}
	return false
}

// RequirementStatus is the checklist progress of a required document.
type RequirementStatus string

const (
	ReqMissing    RequirementStatus = "missing"
	ReqHasRaw     RequirementStatus = "has_raw"
	ReqHasDigital RequirementStatus = "has_digital"
	ReqVerified   RequirementStatus = "verified"
)

// Rank orders requirement statuses; unknown values rank below missing.
func (s RequirementStatus) Rank() int {
	switch s {
	case ReqMissing:
		return 0
	case ReqHasRaw:
		return 1
	case ReqHasDigital:
		return 2
	case ReqVerified:
		return 3
	}
	return -1
}

// TriageKind names the staff work item a stage asks for.
type TriageKind string

const (
	TriageNeedsVerification   TriageKind = "needs_verification"
	TriageNeedsClassification TriageKind = "needs_classification"
	TriagePossibleDuplicate   TriageKind = "possible_duplicate"
	TriageRequestReupload     TriageKind = "request_reupload"
)

// Priority of a triage action.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// RawFile is an uploaded image or PDF awaiting or past classification.
type RawFile struct {
	ID                       string
	CaseID                   string
	StorageKey               string
	OriginalFilename         string
	DisplayName              string
	MimeType                 string
	SizeBytes                int64
	UploadChannel            UploadChannel
	Status                   RawFileStatus
	ClassifiedType           *doctypes.Type
	ClassificationConfidence *float64
	RequirementID            *string
	GroupID                  *string
	PageIndex                *int
	PageCount                *int
	IsNew                    bool
	Fingerprint              string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// CheckInvariants verifies the type and status agree.
func (f RawFile) CheckInvariants() error {
	if !f.Status.Valid() {
		return fmt.Errorf("%w: raw file %s has unknown status %q", ErrInvalidInput, f.ID, f.Status)
	}
	hasType := f.ClassifiedType != nil
	if hasType != f.Status.HasType() {
		return fmt.Errorf("%w: raw file %s status %s with classified type set=%t", ErrInvalidTransition, f.ID, f.Status, hasType)
	}
	if f.ClassificationConfidence != nil {
		c := *f.ClassificationConfidence
		if c < 0 || c > 1 {
			return fmt.Errorf("%w: raw file %s confidence %v out of range", ErrInvalidInput, f.ID, c)
		}
	}
	return nil
}

// ExtractedDocument is the structured data read from one raw file.
type ExtractedDocument struct {
	ID                string
	CaseID            string
	RawFileID         string
	DocumentType      doctypes.Type
	Status            DocumentStatus
	Fields            map[string]any
	Confidence        float64
	FieldStatuses     map[string]FieldStatus
	CarriedOverFields []string
	RequirementID     *string
	VerifiedAt        *time.Time
	ExtractedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FieldStatusOf returns the review mark for name, defaulting to unverified.
func (d ExtractedDocument) FieldStatusOf(name string) FieldStatus {
	if s, ok := d.FieldStatuses[name]; ok {
		return s
	}
	return FieldUnverified
}

// ChecklistRequirement is one document a case needs.
type ChecklistRequirement struct {
	ID            string
	CaseID        string
	TemplateID    string
	DocumentType  doctypes.Type
	Label         string
	Status        RequirementStatus
	ReceivedCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TriageAction is a staff work item created by a stage.
type TriageAction struct {
	ID          string
	CaseID      string
	Kind        TriageKind
	Priority    Priority
	Title       string
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}

func (f RawFile) clone() RawFile {
	out := f
	if f.ClassifiedType != nil {
		t := *f.ClassifiedType
		out.ClassifiedType = &t
	}
	out.ClassificationConfidence = clonePtr(f.ClassificationConfidence)
	out.RequirementID = clonePtr(f.RequirementID)
	out.GroupID = clonePtr(f.GroupID)
	out.PageIndex = clonePtr(f.PageIndex)
	out.PageCount = clonePtr(f.PageCount)
	return out
}

// Clone returns a deep copy of d.
func (d ExtractedDocument) Clone() ExtractedDocument {
	out := d
	out.Fields = CloneFields(d.Fields)
	if d.FieldStatuses != nil {
		out.FieldStatuses = make(map[string]FieldStatus, len(d.FieldStatuses))
		for k, v := range d.FieldStatuses {
			out.FieldStatuses[k] = v
		}
	}
	if d.CarriedOverFields != nil {
		out.CarriedOverFields = append([]string(nil), d.CarriedOverFields...)
	}
	out.RequirementID = clonePtr(d.RequirementID)
	out.VerifiedAt = clonePtr(d.VerifiedAt)
	out.ExtractedAt = clonePtr(d.ExtractedAt)
	return out
}

// CloneFields deep-copies a JSON-shaped field map.
func CloneFields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
