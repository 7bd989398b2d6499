package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type classifyReply struct {
	Type       *string  `json:"type"`
	Confidence *float64 `json:"confidence"`
	Blurry     bool     `json:"blurry"`
	Reason     string   `json:"reason"`
}

// ParseClassifyResponse decodes and checks a classification reply.
func ParseClassifyResponse(raw []byte) (ClassifyOutput, error) {
	var reply classifyReply
	if err := decodeStrict(raw, &reply); err != nil {
		return ClassifyOutput{}, err
	}
	if reply.Confidence == nil {
		return ClassifyOutput{}, fmt.Errorf("%w: confidence missing", ErrInvalidResponse)
	}
	if c := *reply.Confidence; c < 0 || c > 1 {
		return ClassifyOutput{}, fmt.Errorf("%w: confidence %v out of range", ErrInvalidResponse, c)
	}
	out := ClassifyOutput{Confidence: *reply.Confidence, Blurry: reply.Blurry, Reason: reply.Reason}
	if reply.Type != nil {
		out.Type = strings.TrimSpace(*reply.Type)
	}
	if out.Type == "" && !out.Blurry {
		return ClassifyOutput{}, fmt.Errorf("%w: type missing", ErrInvalidResponse)
	}
	return out, nil
}

type extractReply struct {
	Success    *bool          `json:"success"`
	Error      string         `json:"error"`
	Fields     map[string]any `json:"fields"`
	Confidence *float64       `json:"confidence"`
	Valid      bool           `json:"valid"`
	Unreadable []string       `json:"unreadable"`
}

// ParseExtractResponse decodes and checks an extraction reply. A reply that
// explicitly reports failure parses to Success=false without an error.
func ParseExtractResponse(raw []byte) (ExtractOutput, error) {
	var reply extractReply
	if err := decodeStrict(raw, &reply); err != nil {
		return ExtractOutput{}, err
	}
	if reply.Success != nil && !*reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = "model reported failure"
		}
		return ExtractOutput{Success: false, Error: msg}, nil
	}
	if reply.Fields == nil {
		return ExtractOutput{}, fmt.Errorf("%w: fields object missing", ErrInvalidResponse)
	}
	confidence := 0.0
	if reply.Confidence != nil {
		confidence = *reply.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return ExtractOutput{}, fmt.Errorf("%w: confidence %v out of range", ErrInvalidResponse, confidence)
	}
	return ExtractOutput{
		Success:    true,
		Fields:     reply.Fields,
		Confidence: confidence,
		Valid:      reply.Valid,
		Unreadable: reply.Unreadable,
	}, nil
}

// decodeStrict accepts a bare JSON object, optionally wrapped in a markdown
// code fence, and nothing else.
func decodeStrict(raw []byte, dst any) error {
	body := bytes.TrimSpace(raw)
	if bytes.HasPrefix(body, []byte("```")) {
		body = bytes.TrimPrefix(body, []byte("```json"))
		body = bytes.TrimPrefix(body, []byte("```"))
		body = bytes.TrimSuffix(bytes.TrimSpace(body), []byte("```"))
		body = bytes.TrimSpace(body)
	}
	if len(body) == 0 || body[0] != '{' {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidResponse)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
