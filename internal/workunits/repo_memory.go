package workunits

import (
	"context"
	"sort"
	"sync"

	"contrib-backend/internal/impact"
)

// MemoryRepo stores work units in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]WorkUnit
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]WorkUnit)}
}

// CreateBatch stores the units.
func (r *MemoryRepo) CreateBatch(ctx context.Context, units []WorkUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range units {
		r.byID[u.ID] = u
	}
	return nil
}

// GetByID returns a work unit by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, unitID string) (WorkUnit, error) {
	if err := ctx.Err(); err != nil {
		return WorkUnit{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[unitID]
	if !ok {
		return WorkUnit{}, ErrNotFound
	}
	return u, nil
}

// ListByRun returns all units of a run ordered by repo, then start time.
func (r *MemoryRepo) ListByRun(ctx context.Context, runID string) ([]WorkUnit, error) {
	return r.listFiltered(ctx, runID, false)
}

// ListSampledByRun returns a run's sampled units ordered by repo, then start time.
func (r *MemoryRepo) ListSampledByRun(ctx context.Context, runID string) ([]WorkUnit, error) {
	return r.listFiltered(ctx, runID, true)
}

func (r *MemoryRepo) listFiltered(ctx context.Context, runID string, sampledOnly bool) ([]WorkUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []WorkUnit
	for _, u := range r.byID {
		if u.RunID != runID {
			continue
		}
		if sampledOnly && !u.IsSampled {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Repo != out[j].Repo {
			return out[i].Repo < out[j].Repo
		}
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateScore sets a unit's impact score and factor breakdown.
func (r *MemoryRepo) UpdateScore(ctx context.Context, unitID string, score float64, factors impact.Factors) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[unitID]
	if !ok {
		return ErrNotFound
	}
	u.ImpactScore = score
	u.ImpactFactors = factors
	r.byID[unitID] = u
	return nil
}

// MarkSampled flags the listed units of a run and clears the flag elsewhere.
func (r *MemoryRepo) MarkSampled(ctx context.Context, runID string, unitIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wanted := make(map[string]bool, len(unitIDs))
	for _, id := range unitIDs {
		wanted[id] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.byID {
		if u.RunID != runID {
			continue
		}
		u.IsSampled = wanted[id]
		r.byID[id] = u
	}
	return nil
}

// DeleteByRun removes all units belonging to a run.
func (r *MemoryRepo) DeleteByRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.byID {
		if u.RunID == runID {
			delete(r.byID, id)
		}
	}
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
