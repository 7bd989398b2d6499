// Package visiontest provides a scripted vision.Client for tests.
package visiontest

import (
	"context"
	"sync"

	"intake-backend/internal/vision"
)

// Fake answers Classify and Extract from the configured funcs and counts calls.
// A nil func answers with an error.
type Fake struct {
	ClassifyFunc func(in vision.ClassifyInput) (vision.ClassifyOutput, error)
	ExtractFunc  func(in vision.ExtractInput) (vision.ExtractOutput, error)

	mu            sync.Mutex
	classifyCalls int
	extractCalls  int
}

// Classifies returns a Fake whose Classify always answers out.
func Classifies(out vision.ClassifyOutput) *Fake {
	return &Fake{ClassifyFunc: func(vision.ClassifyInput) (vision.ClassifyOutput, error) { return out, nil }}
}

// Extracts returns a Fake whose Extract always answers out.
func Extracts(out vision.ExtractOutput) *Fake {
	return &Fake{ExtractFunc: func(vision.ExtractInput) (vision.ExtractOutput, error) { return out, nil }}
}

func (f *Fake) Classify(ctx context.Context, in vision.ClassifyInput) (vision.ClassifyOutput, error) {
	f.mu.Lock()
	f.classifyCalls++
	fn := f.ClassifyFunc
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return vision.ClassifyOutput{}, err
	}
	if fn == nil {
		return vision.ClassifyOutput{}, &vision.APIError{Provider: "fake", StatusCode: 503, Message: "classify not scripted"}
	}
	return fn(in)
}

func (f *Fake) Extract(ctx context.Context, in vision.ExtractInput) (vision.ExtractOutput, error) {
	f.mu.Lock()
	f.extractCalls++
	fn := f.ExtractFunc
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return vision.ExtractOutput{}, err
	}
	if fn == nil {
		return vision.ExtractOutput{}, &vision.APIError{Provider: "fake", StatusCode: 503, Message: "extract not scripted"}
	}
	return fn(in)
}

// ClassifyCalls reports how many times Classify ran.
func (f *Fake) ClassifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classifyCalls
}

// ExtractCalls reports how many times Extract ran.
func (f *Fake) ExtractCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extractCalls
}

var _ vision.Client = (*Fake)(nil)
