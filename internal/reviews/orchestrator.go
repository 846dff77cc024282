package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"contrib-backend/internal/commits"
	"contrib-backend/internal/llm"
	"contrib-backend/internal/shared/telemetry"
	"contrib-backend/internal/workunits"
)

const (
	defaultConcurrency  = 5
	defaultAvgInTokens  = 2500
	defaultAvgOutTokens = 600
)

// Orchestrator drives the four-stage review cascade against a pluggable
// provider. Stage 1 fans out over sampled work units with bounded
// concurrency; stages 2-4 run sequentially per contributor. Every stage
// result is persisted, so a resumed run reuses stored rows instead of
// re-calling the provider.
type Orchestrator struct {
	Reviews     Repo
	Units       workunits.Repo
	Commits     commits.Repo
	LLM         llm.Client
	Concurrency int

	AvgInputTokens  int
	AvgOutputTokens int
}

// Stage1Outcome summarizes a Stage 1 pass. Completion requires only that
// every unit was attempted; failures are counted, not fatal.
type Stage1Outcome struct {
	Total     int
	Completed int
	Failed    int
	Reused    int
}

// Progress is invoked after every settled unit so callers can persist
// incremental progress.
type Progress func(completed, failed, total int, message string)

// EstimateForRun projects token usage and cost before committing to review.
func (o *Orchestrator) EstimateForRun(ctx context.Context, runID string) (llm.Estimate, error) {
	if o.LLM == nil {
		return llm.Estimate{}, errors.New("missing llm client")
	}
	sampled, err := o.Units.ListSampledByRun(ctx, runID)
	if err != nil {
		return llm.Estimate{}, fmt.Errorf("list sampled units: %w", err)
	}
	// One call per sampled unit plus the three contributor stages.
	return o.LLM.EstimateCost(llm.EstimateInput{
		Calls:           len(sampled) + 3,
		AvgInputTokens:  o.avgIn(),
		AvgOutputTokens: o.avgOut(),
	}), nil
}

// RunStage1 reviews every sampled unit of a run. Units with a stored result
// are reused; units with no reviewable content get the neutral default
// without a provider call. stop is checked between units for cooperative
// cancellation.
func (o *Orchestrator) RunStage1(ctx context.Context, runID, contributor string, year int, stop func() bool, progress Progress) (Stage1Outcome, error) {
	if o.LLM == nil {
		return Stage1Outcome{}, errors.New("missing llm client")
	}
	units, err := o.Units.ListSampledByRun(ctx, runID)
	if err != nil {
		return Stage1Outcome{}, fmt.Errorf("list sampled units: %w", err)
	}

	outcome := Stage1Outcome{Total: len(units)}
	if len(units) == 0 {
		return outcome, nil
	}

	client := newRetryingClient(o.LLM, runID)
	lookup := newCommitLookup(o.Commits, contributor, year)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.concurrency())

	settle := func(reused, failed bool) {
		mu.Lock()
		defer mu.Unlock()
		if failed {
			outcome.Failed++
		} else {
			outcome.Completed++
			if reused {
				outcome.Reused++
			}
		}
		if progress != nil {
			done := outcome.Completed + outcome.Failed
			progress(outcome.Completed, outcome.Failed, outcome.Total,
				fmt.Sprintf("reviewing work units (%d/%d)", done, outcome.Total))
		}
	}

	for _, unit := range units {
		if stop != nil && stop() {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(u workunits.WorkUnit) {
			defer wg.Done()
			defer func() { <-sem }()
			reused, err := o.reviewUnit(ctx, client, lookup, runID, u)
			if err != nil {
				telemetry.Error("review.stage1.unit_failed", map[string]any{
					"run_id":  runID,
					"unit_id": u.ID,
					"repo":    u.Repo,
					"error":   err.Error(),
				})
				settle(false, true)
				return
			}
			settle(reused, false)
		}(unit)
	}
	wg.Wait()
	return outcome, nil
}

// reviewUnit produces (or reuses) the Stage 1 row for one unit. The bool
// result reports whether a stored row was reused.
func (o *Orchestrator) reviewUnit(ctx context.Context, client llm.Client, lookup *commitLookup, runID string, unit workunits.WorkUnit) (bool, error) {
	if _, err := o.Reviews.GetLatestForUnit(ctx, runID, StageCodeQuality, unit.ID); err == nil {
		return true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("stage 1 lookup: %w", err)
	}

	unitCommits, err := lookup.forUnit(ctx, unit)
	if err != nil {
		// Commit context is best-effort; review on unit stats alone.
		unitCommits = nil
	}

	// Nothing reviewable: substitute the neutral default instead of calling.
	if unit.FilesChanged == 0 && len(unitCommits) == 0 {
		return false, o.persistStage1(ctx, runID, unit.ID, NeutralStage1(), llm.Usage{}, "")
	}

	system, user := BuildStage1Prompt(unit, unitCommits)
	var promptHash string
	raw, usage, err := client.GenerateReview(llm.WithPromptHashCapture(ctx, &promptHash), llm.ReviewInput{
		Stage:         StageCodeQuality,
		PromptVersion: PromptVersion,
		System:        system,
		User:          user,
	})
	if err != nil {
		return false, fmt.Errorf("stage 1 call: %w", err)
	}

	result, err := ParseStage1(raw)
	if err != nil {
		// Unparseable provider output degrades to the neutral default.
		telemetry.Error("review.stage1.parse_failed", map[string]any{
			"run_id":  runID,
			"unit_id": unit.ID,
			"error":   err.Error(),
		})
		result = NeutralStage1()
	}
	return false, o.persistStage1(ctx, runID, unit.ID, result, usage, promptHash)
}

func (o *Orchestrator) persistStage1(ctx context.Context, runID, unitID string, result Stage1Result, usage llm.Usage, promptHash string) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal stage 1 result: %w", err)
	}
	return o.Reviews.Create(ctx, AiReview{
		ID:            uuid.NewString(),
		RunID:         runID,
		Stage:         StageCodeQuality,
		WorkUnitID:    unitID,
		Result:        payload,
		PromptVersion: PromptVersion,
		PromptHash:    promptHash,
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		CostUSD:       usage.CostUSD,
		CreatedAt:     time.Now().UTC(),
	})
}

// RunContributorStages runs stages 2-4 sequentially. Each stage reuses a
// stored result when present, otherwise calls the provider and persists.
func (o *Orchestrator) RunContributorStages(ctx context.Context, runID, contributor string, metrics ContributorMetrics) error {
	if o.LLM == nil {
		return errors.New("missing llm client")
	}
	client := newRetryingClient(o.LLM, runID)

	agg, err := o.aggregateStage1(ctx, runID)
	if err != nil {
		return err
	}

	pattern, err := o.stage2(ctx, client, runID, contributor, agg, metrics)
	if err != nil {
		return err
	}
	growth, err := o.stage3(ctx, client, runID, contributor, agg, pattern, metrics)
	if err != nil {
		return err
	}
	if _, err := o.stage4(ctx, client, runID, contributor, agg, pattern, growth, metrics); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) aggregateStage1(ctx context.Context, runID string) (Stage1Aggregate, error) {
	rows, err := o.Reviews.ListByRunStage(ctx, runID, StageCodeQuality)
	if err != nil {
		return Stage1Aggregate{}, fmt.Errorf("list stage 1 rows: %w", err)
	}
	var results []Stage1Result
	for _, row := range rows {
		parsed, err := ParseStage1(row.Result)
		if err != nil {
			continue
		}
		results = append(results, parsed)
	}
	return AggregateStage1(results, 5), nil
}

func (o *Orchestrator) stage2(ctx context.Context, client llm.Client, runID, contributor string, agg Stage1Aggregate, metrics ContributorMetrics) (Stage2Result, error) {
	var result Stage2Result
	raw, err := o.contributorStage(ctx, client, runID, contributor, StageWorkPattern, func() (string, string) {
		return BuildStage2Prompt(agg, metrics)
	})
	if err != nil {
		return Stage2Result{}, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return Stage2Result{}, fmt.Errorf("stage 2 payload: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) stage3(ctx context.Context, client llm.Client, runID, contributor string, agg Stage1Aggregate, pattern Stage2Result, metrics ContributorMetrics) (Stage3Result, error) {
	var result Stage3Result
	raw, err := o.contributorStage(ctx, client, runID, contributor, StageGrowth, func() (string, string) {
		return BuildStage3Prompt(agg, pattern, metrics)
	})
	if err != nil {
		return Stage3Result{}, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return Stage3Result{}, fmt.Errorf("stage 3 payload: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) stage4(ctx context.Context, client llm.Client, runID, contributor string, agg Stage1Aggregate, pattern Stage2Result, growth Stage3Result, metrics ContributorMetrics) (Stage4Result, error) {
	raw, err := o.contributorStage(ctx, client, runID, contributor, StageSummary, func() (string, string) {
		return BuildStage4Prompt(agg, pattern, growth, metrics)
	})
	if err != nil {
		return Stage4Result{}, err
	}
	return ParseStage4(raw)
}

// contributorStage returns the stored payload for (run, contributor, stage)
// or calls the provider and persists a new row.
func (o *Orchestrator) contributorStage(ctx context.Context, client llm.Client, runID, contributor string, stage int, build func() (string, string)) (json.RawMessage, error) {
	if cached, err := o.Reviews.GetLatestForContributor(ctx, runID, stage, contributor); err == nil {
		return cached.Result, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("stage %d lookup: %w", stage, err)
	}

	system, user := build()
	var promptHash string
	raw, usage, err := client.GenerateReview(llm.WithPromptHashCapture(ctx, &promptHash), llm.ReviewInput{
		Stage:         stage,
		PromptVersion: PromptVersion,
		System:        system,
		User:          user,
	})
	if err != nil {
		return nil, fmt.Errorf("stage %d call: %w", stage, err)
	}
	if err := o.Reviews.Create(ctx, AiReview{
		ID:            uuid.NewString(),
		RunID:         runID,
		Stage:         stage,
		Contributor:   contributor,
		Result:        raw,
		PromptVersion: PromptVersion,
		PromptHash:    promptHash,
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		CostUSD:       usage.CostUSD,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("persist stage %d: %w", stage, err)
	}
	return raw, nil
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return defaultConcurrency
}

func (o *Orchestrator) avgIn() int {
	if o.AvgInputTokens > 0 {
		return o.AvgInputTokens
	}
	return defaultAvgInTokens
}

func (o *Orchestrator) avgOut() int {
	if o.AvgOutputTokens > 0 {
		return o.AvgOutputTokens
	}
	return defaultAvgOutTokens
}

// commitLookup lazily loads a contributor's commits per repository and
// serves the ones falling inside a unit's time range.
type commitLookup struct {
	repo        commits.Repo
	contributor string
	year        int

	mu     sync.Mutex
	byRepo map[string][]commits.Commit
}

func newCommitLookup(repo commits.Repo, contributor string, year int) *commitLookup {
	return &commitLookup{
		repo:        repo,
		contributor: contributor,
		year:        year,
		byRepo:      make(map[string][]commits.Commit),
	}
}

func (m *commitLookup) forUnit(ctx context.Context, unit workunits.WorkUnit) ([]commits.Commit, error) {
	if m.repo == nil {
		return nil, nil
	}
	m.mu.Lock()
	list, ok := m.byRepo[unit.Repo]
	m.mu.Unlock()
	if !ok {
		org, name := splitRepo(unit.Repo)
		var err error
		list, err = m.repo.ListByRepoAuthorYear(ctx, org, name, m.contributor, m.year)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.byRepo[unit.Repo] = list
		m.mu.Unlock()
	}
	var out []commits.Commit
	for _, c := range list {
		if !c.CommittedAt.Before(unit.StartAt) && !c.CommittedAt.After(unit.EndAt) {
			out = append(out, c)
		}
	}
	return out, nil
}

// splitRepo breaks an "org/name" slug into its parts. A bare name comes
// back with an empty org.
func splitRepo(slug string) (org, name string) {
	for i := 0; i < len(slug); i++ {
		if slug[i] == '/' {
			return slug[:i], slug[i+1:]
		}
	}
	return "", slug
}
