package intake

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memState struct {
	rawFiles     map[string]RawFile
	documents    map[string]ExtractedDocument
	requirements map[string]ChecklistRequirement
}

func (s *memState) copyMaps() *memState {
	out := &memState{
		rawFiles:     make(map[string]RawFile, len(s.rawFiles)),
		documents:    make(map[string]ExtractedDocument, len(s.documents)),
		requirements: make(map[string]ChecklistRequirement, len(s.requirements)),
	}
	for k, v := range s.rawFiles {
		out.rawFiles[k] = v
	}
	for k, v := range s.documents {
		out.documents[k] = v
	}
	for k, v := range s.requirements {
		out.requirements[k] = v
	}
	return out
}

// MemoryStore is an in-memory Store. Transactions run one at a time against a
// private copy that replaces the shared state on commit.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		rawFiles:     make(map[string]RawFile),
		documents:    make(map[string]ExtractedDocument),
		requirements: make(map[string]ChecklistRequirement),
	}}
}

// WithinTx runs fn against a snapshot and publishes it only if fn succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.state.copyMaps()
	s.mu.RUnlock()

	if err := fn(ctx, &memTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) read() *memTx {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &memTx{state: s.state}
}

func (s *MemoryStore) write(ctx context.Context, fn func(tx *memTx) error) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(tx.(*memTx))
	})
}

func (s *MemoryStore) GetRawFile(ctx context.Context, id string) (RawFile, error) {
	return s.read().GetRawFile(ctx, id)
}

func (s *MemoryStore) ListRawFiles(ctx context.Context, caseID string) ([]RawFile, error) {
	return s.read().ListRawFiles(ctx, caseID)
}

func (s *MemoryStore) CreateRawFile(ctx context.Context, f RawFile) error {
	return s.write(ctx, func(tx *memTx) error { return tx.CreateRawFile(ctx, f) })
}

func (s *MemoryStore) UpdateRawFile(ctx context.Context, f RawFile) error {
	return s.write(ctx, func(tx *memTx) error { return tx.UpdateRawFile(ctx, f) })
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (ExtractedDocument, error) {
	return s.read().GetDocument(ctx, id)
}

func (s *MemoryStore) GetDocumentByRawFile(ctx context.Context, rawFileID string) (ExtractedDocument, error) {
	return s.read().GetDocumentByRawFile(ctx, rawFileID)
}

func (s *MemoryStore) ListDocuments(ctx context.Context, caseID string) ([]ExtractedDocument, error) {
	return s.read().ListDocuments(ctx, caseID)
}

func (s *MemoryStore) CreateDocument(ctx context.Context, d ExtractedDocument) error {
	return s.write(ctx, func(tx *memTx) error { return tx.CreateDocument(ctx, d) })
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, d ExtractedDocument) error {
	return s.write(ctx, func(tx *memTx) error { return tx.UpdateDocument(ctx, d) })
}

func (s *MemoryStore) GetRequirement(ctx context.Context, id string) (ChecklistRequirement, error) {
	return s.read().GetRequirement(ctx, id)
}

func (s *MemoryStore) ListRequirements(ctx context.Context, caseID string) ([]ChecklistRequirement, error) {
	return s.read().ListRequirements(ctx, caseID)
}

func (s *MemoryStore) CreateRequirement(ctx context.Context, r ChecklistRequirement) error {
	return s.write(ctx, func(tx *memTx) error { return tx.CreateRequirement(ctx, r) })
}

func (s *MemoryStore) UpdateRequirement(ctx context.Context, r ChecklistRequirement) error {
	return s.write(ctx, func(tx *memTx) error { return tx.UpdateRequirement(ctx, r) })
}

// memTx operates on one state snapshot. Outside WithinTx it is used read-only.
type memTx struct {
	state *memState
}

func (t *memTx) GetRawFile(ctx context.Context, id string) (RawFile, error) {
	if err := ctx.Err(); err != nil {
		return RawFile{}, err
	}
	f, ok := t.state.rawFiles[id]
	if !ok {
		return RawFile{}, ErrNotFound
	}
	return f.clone(), nil
}

func (t *memTx) ListRawFiles(ctx context.Context, caseID string) ([]RawFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []RawFile{}
	for _, f := range t.state.rawFiles {
		if f.CaseID == caseID {
			out = append(out, f.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) CreateRawFile(ctx context.Context, f RawFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.CheckInvariants(); err != nil {
		return err
	}
	if _, ok := t.state.rawFiles[f.ID]; ok {
		return fmt.Errorf("%w: raw file %s exists", ErrConflict, f.ID)
	}
	t.state.rawFiles[f.ID] = f.clone()
	return nil
}

func (t *memTx) UpdateRawFile(ctx context.Context, f RawFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.CheckInvariants(); err != nil {
		return err
	}
	if _, ok := t.state.rawFiles[f.ID]; !ok {
		return ErrNotFound
	}
	t.state.rawFiles[f.ID] = f.clone()
	return nil
}

func (t *memTx) GetDocument(ctx context.Context, id string) (ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return ExtractedDocument{}, err
	}
	d, ok := t.state.documents[id]
	if !ok {
		return ExtractedDocument{}, ErrNotFound
	}
	return d.Clone(), nil
}

func (t *memTx) GetDocumentByRawFile(ctx context.Context, rawFileID string) (ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return ExtractedDocument{}, err
	}
	for _, d := range t.state.documents {
		if d.RawFileID == rawFileID {
			return d.Clone(), nil
		}
	}
	return ExtractedDocument{}, ErrNotFound
}

func (t *memTx) ListDocuments(ctx context.Context, caseID string) ([]ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []ExtractedDocument{}
	for _, d := range t.state.documents {
		if d.CaseID == caseID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) CreateDocument(ctx context.Context, d ExtractedDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.state.documents[d.ID]; ok {
		return fmt.Errorf("%w: document %s exists", ErrConflict, d.ID)
	}
	for _, existing := range t.state.documents {
		if existing.RawFileID == d.RawFileID {
			return fmt.Errorf("%w: raw file %s already has document %s", ErrConflict, d.RawFileID, existing.ID)
		}
	}
	t.state.documents[d.ID] = d.Clone()
	return nil
}

func (t *memTx) UpdateDocument(ctx context.Context, d ExtractedDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.state.documents[d.ID]; !ok {
		return ErrNotFound
	}
	t.state.documents[d.ID] = d.Clone()
	return nil
}

func (t *memTx) GetRequirement(ctx context.Context, id string) (ChecklistRequirement, error) {
	if err := ctx.Err(); err != nil {
		return ChecklistRequirement{}, err
	}
	r, ok := t.state.requirements[id]
	if !ok {
		return ChecklistRequirement{}, ErrNotFound
	}
	return r, nil
}

func (t *memTx) ListRequirements(ctx context.Context, caseID string) ([]ChecklistRequirement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []ChecklistRequirement{}
	for _, r := range t.state.requirements {
		if r.CaseID == caseID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) CreateRequirement(ctx context.Context, r ChecklistRequirement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.state.requirements[r.ID]; ok {
		return fmt.Errorf("%w: requirement %s exists", ErrConflict, r.ID)
	}
	t.state.requirements[r.ID] = r
	return nil
}

func (t *memTx) UpdateRequirement(ctx context.Context, r ChecklistRequirement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.state.requirements[r.ID]; !ok {
		return ErrNotFound
	}
	t.state.requirements[r.ID] = r
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
