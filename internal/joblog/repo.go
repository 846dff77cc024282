package joblog

import "context"

// Repo defines persistence operations for job log entries.
type Repo interface {
	Append(ctx context.Context, entry Entry) error
	ListByRun(ctx context.Context, runID string) ([]Entry, error)
	DeleteByRun(ctx context.Context, runID string) error
}
