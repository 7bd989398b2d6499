// Package taskstest provides an in-memory tasks.Creator for tests.
package taskstest

import (
	"context"
	"sync"

	"intake-backend/internal/intake"
	"intake-backend/internal/tasks"
)

// Recorder keeps every task it is asked to create. Err, when set, is returned
// from CreateTask after recording.
type Recorder struct {
	Err error

	mu    sync.Mutex
	tasks []tasks.Input
}

func (r *Recorder) CreateTask(ctx context.Context, in tasks.Input) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, in)
	return r.Err
}

// All returns the recorded inputs in call order.
func (r *Recorder) All() []tasks.Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tasks.Input(nil), r.tasks...)
}

// Kinds returns the recorded kinds in call order.
func (r *Recorder) Kinds() []intake.TriageKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]intake.TriageKind, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Kind)
	}
	return out
}

var _ tasks.Creator = (*Recorder)(nil)
