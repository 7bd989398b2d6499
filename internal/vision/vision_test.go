package vision

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"intake-backend/internal/shared/resilience"
)

func TestParseClassifyResponse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
		want    ClassifyOutput
	}{
		{"ok", `{"type":"W2","confidence":0.9}`, false, ClassifyOutput{Type: "W2", Confidence: 0.9}},
		{"fenced", "```json\n{\"type\":\"W2\",\"confidence\":0.5}\n```", false, ClassifyOutput{Type: "W2", Confidence: 0.5}},
		{"blurry without type", `{"type":"","confidence":0.1,"blurry":true}`, false, ClassifyOutput{Confidence: 0.1, Blurry: true}},
		{"missing confidence", `{"type":"W2"}`, true, ClassifyOutput{}},
		{"confidence too high", `{"type":"W2","confidence":1.5}`, true, ClassifyOutput{}},
		{"missing type", `{"confidence":0.9}`, true, ClassifyOutput{}},
		{"prose", `It is a W-2.`, true, ClassifyOutput{}},
		{"array", `[1,2]`, true, ClassifyOutput{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseClassifyResponse([]byte(tc.raw))
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidResponse) {
					t.Fatalf("expected ErrInvalidResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestParseExtractResponse(t *testing.T) {
	out, err := ParseExtractResponse([]byte(`{"success":false,"error":"page is a photo of a cat"}`))
	if err != nil || out.Success || out.Error == "" {
		t.Fatalf("expected declined output, got %+v err=%v", out, err)
	}
	if _, err := ParseExtractResponse([]byte(`{"confidence":0.9}`)); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse for missing fields, got %v", err)
	}
	if _, err := ParseExtractResponse([]byte(`{"fields":{},"confidence":-1}`)); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse for negative confidence, got %v", err)
	}
	out, err = ParseExtractResponse([]byte(`{"fields":{"a":1},"confidence":0.6,"valid":true,"unreadable":["b"]}`))
	if err != nil || !out.Success || !out.Valid || len(out.Unreadable) != 1 {
		t.Fatalf("unexpected %+v err=%v", out, err)
	}
}

type stubClient struct {
	calls    atomic.Int32
	classify func(n int32) (ClassifyOutput, error)
}

func (s *stubClient) Classify(ctx context.Context, in ClassifyInput) (ClassifyOutput, error) {
	n := s.calls.Add(1)
	return s.classify(n)
}

func (s *stubClient) Extract(ctx context.Context, in ExtractInput) (ExtractOutput, error) {
	s.calls.Add(1)
	return ExtractOutput{Success: true, Fields: map[string]any{}}, nil
}

func fastExecutor() *resilience.Executor {
	cfg := resilience.DefaultConfig()
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	return resilience.NewExecutor(cfg)
}

func TestResilientRetriesTemporaryErrors(t *testing.T) {
	primary := &stubClient{classify: func(n int32) (ClassifyOutput, error) {
		if n < 3 {
			return ClassifyOutput{}, &APIError{Provider: "p", StatusCode: 503}
		}
		return ClassifyOutput{Type: "W2", Confidence: 0.9}, nil
	}}
	r := NewResilient(primary, nil, fastExecutor())
	out, err := r.Classify(context.Background(), ClassifyInput{})
	if err != nil || out.Type != "W2" {
		t.Fatalf("expected success after retries, got %+v err=%v", out, err)
	}
	if primary.calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", primary.calls.Load())
	}
}

func TestResilientDoesNotRetryInvalidResponse(t *testing.T) {
	primary := &stubClient{classify: func(int32) (ClassifyOutput, error) {
		return ClassifyOutput{}, ErrInvalidResponse
	}}
	r := NewResilient(primary, nil, fastExecutor())
	if _, err := r.Classify(context.Background(), ClassifyInput{}); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if primary.calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", primary.calls.Load())
	}
}

func TestResilientFallsBackOnModelNotFound(t *testing.T) {
	primary := &stubClient{classify: func(int32) (ClassifyOutput, error) {
		return ClassifyOutput{}, &APIError{Provider: "p", StatusCode: 404, Message: "no such model"}
	}}
	fallback := &stubClient{classify: func(int32) (ClassifyOutput, error) {
		return ClassifyOutput{Type: "1098", Confidence: 0.75, Model: "fallback"}, nil
	}}
	r := NewResilient(primary, fallback, fastExecutor())
	out, err := r.Classify(context.Background(), ClassifyInput{})
	if err != nil || out.Model != "fallback" {
		t.Fatalf("expected fallback output, got %+v err=%v", out, err)
	}
	if primary.calls.Load() != 1 || fallback.calls.Load() != 1 {
		t.Fatalf("calls primary=%d fallback=%d", primary.calls.Load(), fallback.calls.Load())
	}
}

func TestClampConfidence(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.2, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{87, 1},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := ClampConfidence(tc.in); got != tc.want {
			t.Fatalf("ClampConfidence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
