package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"contrib-backend/internal/cluster"
	"contrib-backend/internal/commits"
	"contrib-backend/internal/impact"
	"contrib-backend/internal/joblog"
	"contrib-backend/internal/reports"
	"contrib-backend/internal/reviews"
	"contrib-backend/internal/sampling"
	"contrib-backend/internal/scan"
	"contrib-backend/internal/shared/metrics"
	"contrib-backend/internal/shared/telemetry"
	"contrib-backend/internal/workunits"
)

// Pipeline walks a run through the phase sequence. Each phase persists its
// output and a progress snapshot before the next phase starts, so a crash
// or pause loses at most the in-flight item.
type Pipeline struct {
	Runs         Repo
	Commits      commits.Repo
	Units        workunits.Repo
	Reviews      reviews.Repo
	JobLog       joblog.Repo
	Builder      *reports.Builder
	Scanner      *scan.Scanner
	Orchestrator *reviews.Orchestrator

	Cluster  cluster.Config
	Impact   impact.Config
	Sampling sampling.Config
}

var _ Runner = (*Pipeline)(nil)

// Execute drives the run from its resume point to a stopping condition:
// DONE, FAILED, PAUSED, or AWAITING_AI_CONFIRMATION.
func (p *Pipeline) Execute(ctx context.Context, runID, mode string) error {
	run, err := p.Runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	start := PhaseIndex(run.Phase)
	if start < 0 {
		start = 0
	}
	if mode == ModeFullRestart {
		start = 0
	}
	if err := p.clearForMode(ctx, runID, mode, start); err != nil {
		return p.fail(ctx, runID, run.Phase, fmt.Errorf("clear derived data: %w", err))
	}
	if run.StartedAt == nil {
		if err := p.Runs.SetStarted(ctx, runID, time.Now().UTC()); err != nil {
			return p.fail(ctx, runID, run.Phase, err)
		}
	}

	for i := start; i < len(phaseOrder); i++ {
		phase := phaseOrder[i]
		if stopped, err := p.shouldStop(ctx, runID); err != nil {
			return err
		} else if stopped {
			return nil
		}

		proceed, err := p.runPhase(ctx, runID, phase)
		if err != nil {
			return p.fail(ctx, runID, phase, err)
		}
		if !proceed {
			return nil
		}
	}
	return nil
}

// runPhase executes one phase. A false result without error means the run
// reached a deliberate stopping point.
func (p *Pipeline) runPhase(ctx context.Context, runID, phase string) (bool, error) {
	switch phase {
	case StatusQueued:
		return true, p.snapshot(ctx, runID, StatusQueued, Progress{Phase: StatusQueued, Message: "queued"})
	case StatusScanningRepos:
		return true, p.logged(ctx, runID, phase, p.scanRepos)
	case StatusScanningCommits:
		return true, p.logged(ctx, runID, phase, p.scanCommits)
	case StatusBuildingUnits:
		return true, p.logged(ctx, runID, phase, p.buildUnits)
	case StatusAwaitingAI:
		return p.awaitConfirmation(ctx, runID)
	case StatusReviewing:
		return true, p.logged(ctx, runID, phase, p.review)
	case StatusFinalizing:
		return true, p.logged(ctx, runID, phase, p.finalize)
	case StatusDone:
		if err := p.snapshot(ctx, runID, StatusDone, Progress{Phase: StatusDone, Message: "done"}); err != nil {
			return false, err
		}
		metrics.IncRunCompleted()
		now := time.Now().UTC()
		if run, err := p.Runs.GetByID(ctx, runID); err == nil && run.StartedAt != nil {
			metrics.ObserveRunDurationMs(float64(now.Sub(*run.StartedAt).Milliseconds()))
		}
		return false, p.Runs.SetFinished(ctx, runID, StatusDone, now)
	}
	return false, fmt.Errorf("unknown phase %q", phase)
}

// shouldStop reloads the run and reports whether the driving loop must
// yield. This is the cooperative cancellation check.
func (p *Pipeline) shouldStop(ctx context.Context, runID string) (bool, error) {
	run, err := p.Runs.GetByID(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.Status == StatusPaused || run.Status == StatusFailed, nil
}

func (p *Pipeline) clearForMode(ctx context.Context, runID, mode string, start int) error {
	switch mode {
	case ModeFullRestart:
		for _, clear := range []func(context.Context, string) error{
			p.Units.DeleteByRun, p.Reviews.DeleteByRun, p.Builder.Reports.DeleteByRun, p.JobLog.DeleteByRun,
		} {
			if err := clear(ctx, runID); err != nil {
				return err
			}
		}
		// The confirmation decision belongs to the cleared review output.
		if err := p.Runs.SetAIConfirmation(ctx, runID, ConfirmationPending); err != nil {
			return err
		}
	case ModeResume:
		// Units built by an incomplete BUILDING_UNITS pass reference
		// stale boundaries; reviews keyed on them go with them. Resuming
		// at or after REVIEWING keeps reviews as the stage cache.
		if start <= PhaseIndex(StatusBuildingUnits) {
			if err := p.Units.DeleteByRun(ctx, runID); err != nil {
				return err
			}
			if err := p.Reviews.DeleteByRun(ctx, runID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) scanRepos(ctx context.Context, run AnalysisRun) error {
	repos, err := p.Scanner.DiscoverRepos(ctx, run.Org, run.Year)
	if err != nil {
		return err
	}
	return p.snapshot(ctx, run.ID, StatusScanningRepos, Progress{
		Phase:     StatusScanningRepos,
		Total:     len(repos),
		Completed: len(repos),
		Message:   fmt.Sprintf("found %d active repositories", len(repos)),
	})
}

func (p *Pipeline) scanCommits(ctx context.Context, run AnalysisRun) error {
	repos, err := p.Scanner.DiscoverRepos(ctx, run.Org, run.Year)
	if err != nil {
		return err
	}
	stop := func() bool {
		stopped, err := p.shouldStop(ctx, run.ID)
		return err == nil && stopped
	}
	progress := func(completed, failed, total int, message string) {
		_ = p.snapshot(ctx, run.ID, StatusScanningCommits, Progress{
			Phase:     StatusScanningCommits,
			Total:     total,
			Completed: completed,
			Failed:    failed,
			Message:   message,
		})
	}
	outcome, err := p.Scanner.ScanCommits(ctx, run.Org, repos, run.Contributor, run.Year, stop, progress)
	if err != nil {
		return err
	}
	telemetry.Info("pipeline.commits_scanned", map[string]any{
		"run_id":  run.ID,
		"repos":   outcome.Completed,
		"failed":  outcome.Failed,
		"commits": outcome.CommitsFound,
	})
	return nil
}

func (p *Pipeline) buildUnits(ctx context.Context, run AnalysisRun) error {
	// Rebuilding is destructive per run, never per contributor history.
	if err := p.Units.DeleteByRun(ctx, run.ID); err != nil {
		return err
	}

	list, err := p.Commits.ListByAuthorYear(ctx, run.Org, run.Contributor, run.Year)
	if err != nil {
		return err
	}
	list = applyExclusions(list, run.Options.PathExclusions)

	byRepo := map[string][]commits.Commit{}
	for _, c := range list {
		slug := c.Org + "/" + c.Repo
		byRepo[slug] = append(byRepo[slug], c)
	}

	clusterCfg := p.clusterConfig(run.Options)
	impactCfg := p.impactConfig(run.Options)
	hotspots := impact.TopHotspots(impact.HotspotTable(list), impactCfg.HotspotTopN)

	now := time.Now().UTC()
	var built []workunits.WorkUnit
	var forSampling []sampling.Unit
	for slug, group := range byRepo {
		for _, u := range cluster.Build(slug, group, clusterCfg) {
			score, factors := impact.Score(u, impactCfg, hotspots)
			unit := workunits.WorkUnit{
				ID:            uuid.NewString(),
				RunID:         run.ID,
				Repo:          u.Repo,
				Contributor:   run.Contributor,
				StartAt:       u.StartAt,
				EndAt:         u.EndAt,
				CommitCount:   u.CommitCount,
				Additions:     u.Additions,
				Deletions:     u.Deletions,
				FilesChanged:  u.FilesChanged,
				Files:         u.Files,
				PrimaryPaths:  u.PrimaryPaths,
				ImpactScore:   score,
				ImpactFactors: factors,
				IsHotfix:      u.IsHotfix,
				HasRevert:     u.HasRevert,
				CommitSHAs:    u.CommitSHAs,
				CreatedAt:     now,
			}
			built = append(built, unit)
			forSampling = append(forSampling, sampling.Unit{
				ID:          unit.ID,
				Repo:        unit.Repo,
				ImpactScore: unit.ImpactScore,
				IsHotfix:    unit.IsHotfix,
				HasRevert:   unit.HasRevert,
			})
		}
	}

	if len(built) > 0 {
		if err := p.Units.CreateBatch(ctx, built); err != nil {
			return err
		}
		result := sampling.Select(forSampling, p.samplingConfig(run.Options), rand.New(rand.NewSource(time.Now().UnixNano())))
		var sampled []string
		for id, ok := range result.Selected {
			if ok {
				sampled = append(sampled, id)
			}
		}
		if err := p.Units.MarkSampled(ctx, run.ID, sampled); err != nil {
			return err
		}
	}

	return p.snapshot(ctx, run.ID, StatusBuildingUnits, Progress{
		Phase:     StatusBuildingUnits,
		Total:     len(built),
		Completed: len(built),
		Message:   fmt.Sprintf("built %d work units from %d commits", len(built), len(list)),
	})
}

// awaitConfirmation parks the run until an external confirm or skip. Runs
// with nothing to review proceed straight through.
func (p *Pipeline) awaitConfirmation(ctx context.Context, runID string) (bool, error) {
	run, err := p.Runs.GetByID(ctx, runID)
	if err != nil {
		return false, err
	}
	sampled, err := p.Units.ListSampledByRun(ctx, runID)
	if err != nil {
		return false, err
	}
	if len(sampled) == 0 {
		return true, nil
	}
	switch run.AIConfirmation {
	case ConfirmationConfirmed, ConfirmationSkipped:
		return true, nil
	}
	return false, p.snapshot(ctx, runID, StatusAwaitingAI, Progress{
		Phase:   StatusAwaitingAI,
		Total:   len(sampled),
		Message: fmt.Sprintf("awaiting confirmation to review %d sampled units", len(sampled)),
	})
}

func (p *Pipeline) review(ctx context.Context, run AnalysisRun) error {
	sampled, err := p.Units.ListSampledByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(sampled) == 0 || run.AIConfirmation == ConfirmationSkipped {
		return p.snapshot(ctx, run.ID, StatusReviewing, Progress{
			Phase:   StatusReviewing,
			Message: "review skipped",
		})
	}

	stop := func() bool {
		stopped, err := p.shouldStop(ctx, run.ID)
		return err == nil && stopped
	}
	progress := func(completed, failed, total int, message string) {
		_ = p.snapshot(ctx, run.ID, StatusReviewing, Progress{
			Phase:     StatusReviewing,
			Total:     total,
			Completed: completed,
			Failed:    failed,
			Message:   message,
		})
	}
	outcome, err := p.Orchestrator.RunStage1(ctx, run.ID, run.Contributor, run.Year, stop, progress)
	if err != nil {
		return err
	}
	if outcome.Completed+outcome.Failed < outcome.Total {
		// Interrupted mid-batch; the next resume picks up the rest.
		return nil
	}

	mtr, err := p.contributorMetrics(ctx, run)
	if err != nil {
		return err
	}
	return p.Orchestrator.RunContributorStages(ctx, run.ID, run.Contributor, mtr)
}

func (p *Pipeline) finalize(ctx context.Context, run AnalysisRun) error {
	report, err := p.Builder.Finalize(ctx, run.ID, run.Org, run.Contributor, run.Year)
	if err != nil {
		return err
	}
	message := "report finalized"
	if report.Placeholder {
		message = "placeholder report written (no activity)"
	}
	return p.snapshot(ctx, run.ID, StatusFinalizing, Progress{
		Phase:     StatusFinalizing,
		Total:     1,
		Completed: 1,
		Message:   message,
	})
}

func (p *Pipeline) contributorMetrics(ctx context.Context, run AnalysisRun) (reviews.ContributorMetrics, error) {
	list, err := p.Commits.ListByAuthorYear(ctx, run.Org, run.Contributor, run.Year)
	if err != nil {
		return reviews.ContributorMetrics{}, err
	}
	mtr := reviews.ContributorMetrics{Year: run.Year, TotalCommits: len(list)}
	repos := map[string]bool{}
	for _, c := range list {
		mtr.TotalAdditions += c.Additions
		mtr.TotalDeletions += c.Deletions
		repos[c.Org+"/"+c.Repo] = true
	}
	mtr.ReposTouched = len(repos)

	units, err := p.Units.ListByRun(ctx, run.ID)
	if err != nil {
		return reviews.ContributorMetrics{}, err
	}
	mtr.WorkUnits = len(units)
	for _, u := range units {
		if u.IsSampled {
			mtr.SampledUnits++
		}
	}
	return mtr, nil
}

func (p *Pipeline) snapshot(ctx context.Context, runID, status string, progress Progress) error {
	return p.Runs.SaveSnapshot(ctx, runID, status, progress.Phase, progress)
}

// logged wraps a phase with joblog bookkeeping.
func (p *Pipeline) logged(ctx context.Context, runID, phase string, fn func(context.Context, AnalysisRun) error) error {
	run, err := p.Runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if err := p.snapshot(ctx, runID, phase, Progress{Phase: phase, Message: phaseMessage(phase)}); err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	entry := joblog.Entry{
		ID:        uuid.NewString(),
		RunID:     runID,
		JobType:   phase,
		Status:    joblog.StatusStarted,
		Input:     mustJSON(map[string]any{"phase": phase}),
		StartedAt: startedAt,
		CreatedAt: startedAt,
	}
	_ = p.JobLog.Append(ctx, entry)

	err = fn(ctx, run)
	finishedAt := time.Now().UTC()
	entry.ID = uuid.NewString()
	entry.FinishedAt = &finishedAt
	entry.CreatedAt = finishedAt
	if err != nil {
		entry.Status = joblog.StatusFailed
		entry.Error = err.Error()
	} else {
		entry.Status = joblog.StatusCompleted
	}
	_ = p.JobLog.Append(ctx, entry)
	return err
}

func (p *Pipeline) fail(ctx context.Context, runID, phase string, cause error) error {
	telemetry.Error("pipeline.phase_failed", map[string]any{
		"run_id": runID,
		"phase":  phase,
		"error":  cause.Error(),
	})
	metrics.IncRunFailed()
	if err := p.Runs.SetFailed(ctx, runID, phase, sanitizeError(cause)); err != nil {
		telemetry.Error("pipeline.mark_failed_error", map[string]any{
			"run_id": runID,
			"error":  err.Error(),
		})
	}
	return cause
}

// sanitizeError flattens an error message to a single bounded line before it
// is persisted on the run record.
func sanitizeError(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}

func (p *Pipeline) clusterConfig(opts Options) cluster.Config {
	cfg := p.Cluster
	if opts.GapThresholdHours > 0 {
		cfg.GapThreshold = time.Duration(opts.GapThresholdHours) * time.Hour
	}
	if opts.MaxUnitDays > 0 {
		cfg.MaxUnitDuration = time.Duration(opts.MaxUnitDays) * 24 * time.Hour
	}
	if opts.MaxCommitsPerUnit > 0 {
		cfg.MaxCommitsPerUnit = opts.MaxCommitsPerUnit
	}
	return cfg
}

func (p *Pipeline) impactConfig(opts Options) impact.Config {
	cfg := p.Impact
	if cfg.HotspotTopN == 0 {
		cfg = impact.DefaultConfig()
	}
	if opts.HotfixBonus != 0 {
		cfg.HotfixBonus = opts.HotfixBonus
	}
	return cfg
}

func (p *Pipeline) samplingConfig(opts Options) sampling.Config {
	cfg := p.Sampling
	if opts.HeuristicThreshold > 0 {
		cfg.HeuristicThreshold = opts.HeuristicThreshold
	}
	if opts.MaxTotalSamples > 0 {
		cfg.MaxTotalSamples = opts.MaxTotalSamples
	}
	return cfg
}

// applyExclusions drops excluded file paths from each commit, recomputing
// line stats from the remaining files when per-file stats exist.
func applyExclusions(list []commits.Commit, patterns []string) []commits.Commit {
	if len(patterns) == 0 {
		return list
	}
	out := make([]commits.Commit, 0, len(list))
	for _, c := range list {
		if len(c.Files) == 0 {
			out = append(out, c)
			continue
		}
		kept := make([]commits.CommitFile, 0, len(c.Files))
		for _, f := range c.Files {
			if excludedPath(f.Path, patterns) {
				continue
			}
			kept = append(kept, f)
		}
		if len(kept) == len(c.Files) {
			out = append(out, c)
			continue
		}
		trimmed := c
		trimmed.Files = kept
		trimmed.Additions = 0
		trimmed.Deletions = 0
		for _, f := range kept {
			trimmed.Additions += f.Additions
			trimmed.Deletions += f.Deletions
		}
		out = append(out, trimmed)
	}
	return out
}

func excludedPath(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if impact.MatchPath(pattern, p) {
			return true
		}
	}
	return false
}

func phaseMessage(phase string) string {
	switch phase {
	case StatusScanningRepos:
		return "discovering repositories"
	case StatusScanningCommits:
		return "scanning commits"
	case StatusBuildingUnits:
		return "building work units"
	case StatusReviewing:
		return "running AI review"
	case StatusFinalizing:
		return "finalizing report"
	}
	return ""
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
