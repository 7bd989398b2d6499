package documents

import (
	"time"

	"intake-backend/internal/doctypes"
	"intake-backend/internal/intake"
	"intake-backend/internal/verification"
)

// FieldResponse is one reviewable field of a document.
type FieldResponse struct {
	Name   string `json:"name"`
	Label  string `json:"label,omitempty"`
	Value  any    `json:"value"`
	Status string `json:"status"`
}

// DocumentResponse is the outward-facing representation of an extracted document.
type DocumentResponse struct {
	ID                string          `json:"id"`
	CaseID            string          `json:"caseId"`
	RawFileID         string          `json:"rawFileId"`
	DocumentType      string          `json:"documentType"`
	DocumentLabel     string          `json:"documentLabel"`
	Status            string          `json:"status"`
	Confidence        float64         `json:"confidence"`
	Fields            []FieldResponse `json:"fields"`
	CarriedOverFields []string        `json:"carriedOverFields,omitempty"`
	RequirementID     *string         `json:"requirementId"`
	ExtractedAt       *time.Time      `json:"extractedAt"`
	VerifiedAt        *time.Time      `json:"verifiedAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func toResponse(doc intake.ExtractedDocument) DocumentResponse {
	v := verification.NewView(doc)
	fields := make([]FieldResponse, 0, len(v.Fields))
	for _, name := range v.Fields {
		fields = append(fields, FieldResponse{
			Name:   name,
			Label:  v.Labels[name],
			Value:  doc.Fields[name],
			Status: string(v.Statuses[name]),
		})
	}
	return DocumentResponse{
		ID:                doc.ID,
		CaseID:            doc.CaseID,
		RawFileID:         doc.RawFileID,
		DocumentType:      string(doc.DocumentType),
		DocumentLabel:     doctypes.Label(doc.DocumentType),
		Status:            string(doc.Status),
		Confidence:        doc.Confidence,
		Fields:            fields,
		CarriedOverFields: doc.CarriedOverFields,
		RequirementID:     doc.RequirementID,
		ExtractedAt:       doc.ExtractedAt,
		VerifiedAt:        doc.VerifiedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}
