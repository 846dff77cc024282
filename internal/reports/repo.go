package reports

import (
	"context"
	"errors"
)

// ErrNotFound indicates no report matched the lookup.
var ErrNotFound = errors.New("report not found")

// Repo defines persistence operations for yearly reports. Upsert keeps
// finalization idempotent: one row per (run, contributor), last write wins.
type Repo interface {
	Upsert(ctx context.Context, report YearlyReport) error
	GetByRunContributor(ctx context.Context, runID, contributor string) (YearlyReport, error)
	ListByRun(ctx context.Context, runID string) ([]YearlyReport, error)
	DeleteByRun(ctx context.Context, runID string) error
}
