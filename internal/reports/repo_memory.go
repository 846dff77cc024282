package reports

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repo for tests and dev mode.
type MemoryRepo struct {
	mu      sync.RWMutex
	reports map[string]YearlyReport
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{reports: make(map[string]YearlyReport)}
}

var _ Repo = (*MemoryRepo)(nil)

func key(runID, contributor string) string {
	return runID + "|" + contributor
}

func (r *MemoryRepo) Upsert(ctx context.Context, report YearlyReport) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[key(report.RunID, report.Contributor)] = report
	return nil
}

func (r *MemoryRepo) GetByRunContributor(ctx context.Context, runID, contributor string) (YearlyReport, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[key(runID, contributor)]
	if !ok {
		return YearlyReport{}, ErrNotFound
	}
	return report, nil
}

func (r *MemoryRepo) ListByRun(ctx context.Context, runID string) ([]YearlyReport, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []YearlyReport
	for _, report := range r.reports {
		if report.RunID == runID {
			out = append(out, report)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contributor < out[j].Contributor })
	return out, nil
}

func (r *MemoryRepo) DeleteByRun(ctx context.Context, runID string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, report := range r.reports {
		if report.RunID == runID {
			delete(r.reports, k)
		}
	}
	return nil
}
