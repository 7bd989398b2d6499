package intake

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported is returned when a document type has no extraction schema.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrInvalidTransition is returned when an operation is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when a write collides with an existing record.
	ErrConflict = errors.New("conflict")
	// ErrTransaction is returned when a transaction aborted on serialization or deadlock; retry is safe.
	ErrTransaction = errors.New("transaction aborted")
)
