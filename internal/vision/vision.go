// Package vision defines the document-understanding collaborator the intake
// stages call to classify uploads and read their fields.
package vision

import (
	"context"
	"errors"
	"fmt"

	"intake-backend/internal/doctypes"
)

// Client abstracts vision-capable model providers.
type Client interface {
	Classify(ctx context.Context, in ClassifyInput) (ClassifyOutput, error)
	Extract(ctx context.Context, in ExtractInput) (ExtractOutput, error)
}

// ClassifyInput is one uploaded page or PDF to identify.
type ClassifyInput struct {
	Data     []byte
	MimeType string
	FileName string
	Prompt   string
}

// ClassifyOutput is the model's verdict. Type is the model's raw answer; callers
// map it with doctypes.Parse.
type ClassifyOutput struct {
	Type       string
	Confidence float64
	Blurry     bool
	Reason     string
	Model      string
}

// ClampConfidence bounds a client's confidence to [0, 1]. NaN reads as 0.
func ClampConfidence(c float64) float64 {
	switch {
	case c > 1:
		return 1
	case c >= 0:
		return c
	default:
		return 0
	}
}

// ExtractInput asks for the fields of a document of a known type.
type ExtractInput struct {
	Data         []byte
	MimeType     string
	FileName     string
	DocumentType doctypes.Type
	Prompt       string
}

// ExtractOutput is the model's transcription. Success is false when the model
// declined or its reply could not be used.
type ExtractOutput struct {
	Success    bool
	Fields     map[string]any
	Confidence float64
	Valid      bool
	Unreadable []string
	Error      string
	Model      string
}

var (
	// ErrModelNotFound is returned when the provider does not serve the requested model.
	ErrModelNotFound = errors.New("vision: model not found")
	// ErrInvalidResponse is returned when a reply does not match the expected contract.
	ErrInvalidResponse = errors.New("vision: invalid response")
	// ErrUnsupportedMedia is returned for payloads the provider cannot accept.
	ErrUnsupportedMedia = errors.New("vision: unsupported media type")
)

// APIError is a non-2xx reply from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s http status %d: %s (%s)", e.Provider, e.StatusCode, e.Message, e.Type)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode == 408 || e.StatusCode >= 500
}

// Is lets errors.Is match ErrModelNotFound for 404s about the model.
func (e *APIError) Is(target error) bool {
	return target == ErrModelNotFound && e.StatusCode == 404
}
