package reviews

import (
	"context"
	"sort"
	"sync"

	"contrib-backend/internal/llm"
)

// MemoryRepo stores reviews in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	rows []AiReview
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

// Create appends a review row.
func (r *MemoryRepo) Create(ctx context.Context, review AiReview) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, review)
	return nil
}

// GetLatestForUnit returns the newest stage result for a work unit.
func (r *MemoryRepo) GetLatestForUnit(ctx context.Context, runID string, stage int, workUnitID string) (AiReview, error) {
	return r.latest(ctx, func(row AiReview) bool {
		return row.RunID == runID && row.Stage == stage && row.WorkUnitID == workUnitID
	})
}

// GetLatestForContributor returns the newest stage result for a contributor.
func (r *MemoryRepo) GetLatestForContributor(ctx context.Context, runID string, stage int, contributor string) (AiReview, error) {
	return r.latest(ctx, func(row AiReview) bool {
		return row.RunID == runID && row.Stage == stage && row.WorkUnitID == "" && row.Contributor == contributor
	})
}

func (r *MemoryRepo) latest(ctx context.Context, match func(AiReview) bool) (AiReview, error) {
	if err := ctx.Err(); err != nil {
		return AiReview{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		if match(r.rows[i]) {
			return r.rows[i], nil
		}
	}
	return AiReview{}, ErrNotFound
}

// ListByRunStage returns a run's rows for one stage, oldest first.
func (r *MemoryRepo) ListByRunStage(ctx context.Context, runID string, stage int) ([]AiReview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []AiReview
	for _, row := range r.rows {
		if row.RunID == runID && row.Stage == stage {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SumUsageByRun totals token usage and cost across a run's rows.
func (r *MemoryRepo) SumUsageByRun(ctx context.Context, runID string) (llm.Usage, error) {
	if err := ctx.Err(); err != nil {
		return llm.Usage{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total llm.Usage
	for _, row := range r.rows {
		if row.RunID == runID {
			total = total.Add(llm.Usage{InputTokens: row.InputTokens, OutputTokens: row.OutputTokens, CostUSD: row.CostUSD})
		}
	}
	return total, nil
}

// DeleteByRun removes all rows for a run.
func (r *MemoryRepo) DeleteByRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.RunID != runID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
