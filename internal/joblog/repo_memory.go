package joblog

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repo for tests and dev mode.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

var _ Repo = (*MemoryRepo)(nil)

func (r *MemoryRepo) Append(ctx context.Context, entry Entry) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *MemoryRepo) ListByRun(ctx context.Context, runID string) ([]Entry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepo) DeleteByRun(ctx context.Context, runID string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.RunID != runID {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}
