package workunits

import (
	"context"
	"errors"

	"contrib-backend/internal/impact"
)

// ErrNotFound indicates no work unit matched the lookup.
var ErrNotFound = errors.New("work unit not found")

// Repo defines persistence operations for work units.
type Repo interface {
	CreateBatch(ctx context.Context, units []WorkUnit) error
	GetByID(ctx context.Context, unitID string) (WorkUnit, error)
	ListByRun(ctx context.Context, runID string) ([]WorkUnit, error)
	ListSampledByRun(ctx context.Context, runID string) ([]WorkUnit, error)
	UpdateScore(ctx context.Context, unitID string, score float64, factors impact.Factors) error
	MarkSampled(ctx context.Context, runID string, unitIDs []string) error
	DeleteByRun(ctx context.Context, runID string) error
}
