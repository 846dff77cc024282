package runs

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no run matched the lookup.
var ErrNotFound = errors.New("run not found")

// ErrActiveRunExists indicates a non-terminal run already holds the
// (org, contributor, year) key.
var ErrActiveRunExists = errors.New("an active run already exists for this contributor and year")

// Repo defines persistence operations for analysis runs.
type Repo interface {
	// Create inserts a run, refusing when a non-terminal run already
	// exists for the same (org, contributor, year).
	Create(ctx context.Context, run AnalysisRun) error
	GetByID(ctx context.Context, runID string) (AnalysisRun, error)
	// FindActive returns the non-terminal run for the key, if any.
	FindActive(ctx context.Context, org, contributor string, year int) (AnalysisRun, error)
	// SaveSnapshot atomically writes status, phase, and the full progress
	// snapshot.
	SaveSnapshot(ctx context.Context, runID, status, phase string, progress Progress) error
	SetStarted(ctx context.Context, runID string, at time.Time) error
	SetFinished(ctx context.Context, runID, status string, at time.Time) error
	SetFailed(ctx context.Context, runID, phase, message string) error
	SetStatus(ctx context.Context, runID, status string) error
	SetAIConfirmation(ctx context.Context, runID, decision string) error
	ClearError(ctx context.Context, runID string) error
}
