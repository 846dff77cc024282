package reviews

import (
	"context"
	"errors"

	"contrib-backend/internal/llm"
)

// ErrNotFound indicates no review matched the lookup.
var ErrNotFound = errors.New("review not found")

// Repo defines persistence operations for AI reviews.
type Repo interface {
	Create(ctx context.Context, review AiReview) error
	GetLatestForUnit(ctx context.Context, runID string, stage int, workUnitID string) (AiReview, error)
	GetLatestForContributor(ctx context.Context, runID string, stage int, contributor string) (AiReview, error)
	ListByRunStage(ctx context.Context, runID string, stage int) ([]AiReview, error)
	SumUsageByRun(ctx context.Context, runID string) (llm.Usage, error)
	DeleteByRun(ctx context.Context, runID string) error
}
