package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contrib-backend/internal/llm"
	"contrib-backend/internal/queue"
	"contrib-backend/internal/reviews"
	"contrib-backend/internal/shared/metrics"
	"contrib-backend/internal/shared/telemetry"
)

// ErrInvalidTransition indicates a control operation that the run's current
// status does not allow.
var ErrInvalidTransition = errors.New("operation not allowed in current run status")

// Runner executes the pipeline for one run. Satisfied by *Pipeline.
type Runner interface {
	Execute(ctx context.Context, runID, mode string) error
}

// Service owns run lifecycle operations. Long work is handed off to the
// queue; when no queue is configured (dev mode) the pipeline runs in a
// background goroutine instead.
type Service struct {
	Repo         Repo
	Queue        queue.Client
	Runner       Runner
	Orchestrator *reviews.Orchestrator
}

// Start creates a run and hands it off for execution. At most one
// non-terminal run may exist per (org, contributor, year).
func (s *Service) Start(ctx context.Context, org, contributor string, year int, opts Options) (AnalysisRun, error) {
	org = strings.TrimSpace(org)
	contributor = strings.TrimSpace(contributor)
	if org == "" || contributor == "" {
		return AnalysisRun{}, errors.New("org and contributor are required")
	}
	if year < 2000 || year > time.Now().UTC().Year()+1 {
		return AnalysisRun{}, fmt.Errorf("implausible year %d", year)
	}

	now := time.Now().UTC()
	run := AnalysisRun{
		ID:          uuid.NewString(),
		Org:         org,
		Contributor: contributor,
		Year:        year,
		Status:      StatusQueued,
		Phase:       StatusQueued,
		Options:     opts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.Create(ctx, run); err != nil {
		return AnalysisRun{}, err
	}

	metrics.IncRunStarted()
	telemetry.Info("runs.started", map[string]any{
		"run_id":      run.ID,
		"org":         org,
		"contributor": contributor,
		"year":        year,
	})
	if err := s.dispatch(ctx, run.ID, ModeResume); err != nil {
		return AnalysisRun{}, err
	}
	return run, nil
}

// Resume re-enters a paused or failed run in the requested mode.
func (s *Service) Resume(ctx context.Context, runID, mode string) (AnalysisRun, error) {
	switch mode {
	case "", ModeResume:
		mode = ModeResume
	case ModeFullRestart:
	default:
		return AnalysisRun{}, fmt.Errorf("unknown restart mode %q", mode)
	}

	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		return AnalysisRun{}, err
	}
	if run.Status == StatusDone && mode == ModeResume {
		return AnalysisRun{}, ErrInvalidTransition
	}
	if err := s.Repo.ClearError(ctx, runID); err != nil {
		return AnalysisRun{}, err
	}
	// Reopen before dispatch: a PAUSED or FAILED status would trip the
	// pipeline's stop check on the first iteration.
	if run.Status == StatusPaused || run.Status == StatusFailed || mode == ModeFullRestart {
		reentry := run.Phase
		if mode == ModeFullRestart || PhaseIndex(reentry) < 0 {
			reentry = StatusQueued
		}
		if err := s.Repo.SetStatus(ctx, runID, reentry); err != nil {
			return AnalysisRun{}, err
		}
	}
	if err := s.dispatch(ctx, runID, mode); err != nil {
		return AnalysisRun{}, err
	}
	return s.Repo.GetByID(ctx, runID)
}

// Pause asks the running pipeline to stop at the next check point.
func (s *Service) Pause(ctx context.Context, runID string) (AnalysisRun, error) {
	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		return AnalysisRun{}, err
	}
	if IsTerminal(run.Status) {
		return AnalysisRun{}, ErrInvalidTransition
	}
	if err := s.Repo.SetStatus(ctx, runID, StatusPaused); err != nil {
		return AnalysisRun{}, err
	}
	return s.Repo.GetByID(ctx, runID)
}

// Cancel terminates a run. Partial output stays in place for a later
// full restart.
func (s *Service) Cancel(ctx context.Context, runID string) (AnalysisRun, error) {
	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		return AnalysisRun{}, err
	}
	if IsTerminal(run.Status) {
		return AnalysisRun{}, ErrInvalidTransition
	}
	if err := s.Repo.SetFailed(ctx, runID, run.Phase, "canceled by request"); err != nil {
		return AnalysisRun{}, err
	}
	return s.Repo.GetByID(ctx, runID)
}

// Confirm records the AI review decision and unblocks the waiting run.
// skip finalizes without any provider calls.
func (s *Service) Confirm(ctx context.Context, runID string, skip bool) (AnalysisRun, error) {
	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		return AnalysisRun{}, err
	}
	if run.Status != StatusAwaitingAI {
		return AnalysisRun{}, ErrInvalidTransition
	}
	decision := ConfirmationConfirmed
	if skip {
		decision = ConfirmationSkipped
	}
	if err := s.Repo.SetAIConfirmation(ctx, runID, decision); err != nil {
		return AnalysisRun{}, err
	}
	if err := s.dispatch(ctx, runID, ModeResume); err != nil {
		return AnalysisRun{}, err
	}
	return s.Repo.GetByID(ctx, runID)
}

// Get returns a run by ID.
func (s *Service) Get(ctx context.Context, runID string) (AnalysisRun, error) {
	if runID == "" {
		return AnalysisRun{}, errors.New("runID is required")
	}
	return s.Repo.GetByID(ctx, runID)
}

// Estimate projects the AI cost of reviewing the run's sampled units.
func (s *Service) Estimate(ctx context.Context, runID string) (llm.Estimate, error) {
	if s.Orchestrator == nil {
		return llm.Estimate{}, errors.New("estimator not configured")
	}
	if _, err := s.Repo.GetByID(ctx, runID); err != nil {
		return llm.Estimate{}, err
	}
	return s.Orchestrator.EstimateForRun(ctx, runID)
}

func (s *Service) dispatch(ctx context.Context, runID, mode string) error {
	if s.Queue != nil {
		msg := queue.Message{
			RunID:      runID,
			Mode:       mode,
			RequestID:  requestIDFromContext(ctx),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			return fmt.Errorf("enqueue run: %w", err)
		}
		return nil
	}
	if s.Runner == nil {
		return errors.New("no queue or runner configured")
	}
	go func(ctx context.Context) {
		if err := s.Runner.Execute(ctx, runID, mode); err != nil {
			telemetry.Error("runs.execute_failed", map[string]any{
				"run_id": runID,
				"error":  err.Error(),
			})
		}
	}(backgroundWithRequestID(ctx))
	return nil
}
