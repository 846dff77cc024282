package runs

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for tests and dev mode.
type MemoryRepo struct {
	mu   sync.RWMutex
	runs map[string]AnalysisRun
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{runs: make(map[string]AnalysisRun)}
}

var _ Repo = (*MemoryRepo)(nil)

func (r *MemoryRepo) Create(ctx context.Context, run AnalysisRun) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runs {
		if existing.Org == run.Org && existing.Contributor == run.Contributor &&
			existing.Year == run.Year && !IsTerminal(existing.Status) {
			return ErrActiveRunExists
		}
	}
	r.runs[run.ID] = run
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, runID string) (AnalysisRun, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	if !ok {
		return AnalysisRun{}, ErrNotFound
	}
	return run, nil
}

func (r *MemoryRepo) FindActive(ctx context.Context, org, contributor string, year int) (AnalysisRun, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.runs {
		if run.Org == org && run.Contributor == contributor && run.Year == year && !IsTerminal(run.Status) {
			return run, nil
		}
	}
	return AnalysisRun{}, ErrNotFound
}

func (r *MemoryRepo) SaveSnapshot(ctx context.Context, runID, status, phase string, progress Progress) error {
	_ = ctx
	if err := progress.Validate(); err != nil {
		return err
	}
	return r.update(runID, func(run *AnalysisRun) {
		run.Status = status
		run.Phase = phase
		run.Progress = progress
	})
}

func (r *MemoryRepo) SetStarted(ctx context.Context, runID string, at time.Time) error {
	_ = ctx
	return r.update(runID, func(run *AnalysisRun) {
		run.StartedAt = &at
	})
}

func (r *MemoryRepo) SetFinished(ctx context.Context, runID, status string, at time.Time) error {
	_ = ctx
	return r.update(runID, func(run *AnalysisRun) {
		run.Status = status
		run.FinishedAt = &at
	})
}

func (r *MemoryRepo) SetFailed(ctx context.Context, runID, phase, message string) error {
	_ = ctx
	now := time.Now().UTC()
	return r.update(runID, func(run *AnalysisRun) {
		run.Status = StatusFailed
		run.Phase = phase
		run.Error = message
		run.FinishedAt = &now
	})
}

func (r *MemoryRepo) SetStatus(ctx context.Context, runID, status string) error {
	_ = ctx
	return r.update(runID, func(run *AnalysisRun) {
		run.Status = status
	})
}

func (r *MemoryRepo) SetAIConfirmation(ctx context.Context, runID, decision string) error {
	_ = ctx
	return r.update(runID, func(run *AnalysisRun) {
		run.AIConfirmation = decision
	})
}

func (r *MemoryRepo) ClearError(ctx context.Context, runID string) error {
	_ = ctx
	return r.update(runID, func(run *AnalysisRun) {
		run.Error = ""
		run.FinishedAt = nil
	})
}

func (r *MemoryRepo) update(runID string, mutate func(*AnalysisRun)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	mutate(&run)
	run.UpdatedAt = time.Now().UTC()
	r.runs[runID] = run
	return nil
}
