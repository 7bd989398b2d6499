package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind names the stage a job runs.
type Kind string

const (
	KindClassify Kind = "classify"
	KindExtract  Kind = "extract"
)

// MessageVersion is the payload version written by this build.
const MessageVersion = 1

// Message is the payload sent to downstream queue consumers. Classify jobs
// carry RawFileID; extract jobs carry DocumentID.
type Message struct {
	Kind       Kind   `json:"kind"`
	RawFileID  string `json:"rawFileId,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	Anyway     bool   `json:"anyway,omitempty"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// Target returns the id the job operates on.
func (m Message) Target() string {
	if m.Kind == KindExtract {
		return m.DocumentID
	}
	return m.RawFileID
}

// Validate checks the kind and that the matching id is set.
func (m Message) Validate() error {
	switch m.Kind {
	case KindClassify, KindExtract:
	default:
		return fmt.Errorf("unknown job kind %q", m.Kind)
	}
	if strings.TrimSpace(m.Target()) == "" {
		return fmt.Errorf("%s job is missing its target id", m.Kind)
	}
	return nil
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
