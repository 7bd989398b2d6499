package queue

import (
	"context"
	"time"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// NewMessage builds a job message stamped with the current time and version.
func NewMessage(kind Kind, targetID, requestID string) Message {
	msg := Message{
		Kind:       kind,
		RequestID:  requestID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
	if kind == KindExtract {
		msg.DocumentID = targetID
	} else {
		msg.RawFileID = targetID
	}
	return msg
}
