package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contrib-backend/internal/commits"
	"contrib-backend/internal/reviews"
	"contrib-backend/internal/workunits"
)

const placeholderSummary = "No recorded activity for this contributor in the target year."

// Builder assembles the yearly report during finalization. It never calls
// the provider: everything it needs is already persisted.
type Builder struct {
	Commits commits.Repo
	Units   workunits.Repo
	Reviews reviews.Repo
	Reports Repo
}

// Finalize writes exactly one report row for the contributor. A contributor
// with zero commits gets a placeholder report; a run whose review stages
// were skipped gets stats with empty narrative sections.
func (b *Builder) Finalize(ctx context.Context, runID, org, contributor string, year int) (YearlyReport, error) {
	stats, err := b.collectStats(ctx, runID, org, contributor, year)
	if err != nil {
		return YearlyReport{}, err
	}

	report := YearlyReport{
		ID:          uuid.NewString(),
		RunID:       runID,
		Org:         org,
		Contributor: contributor,
		Year:        year,
		Stats:       stats,
		CreatedAt:   time.Now().UTC(),
	}

	if stats.TotalCommits == 0 {
		report.Placeholder = true
		report.Sections.Summary = placeholderSummary
		if err := b.Reports.Upsert(ctx, report); err != nil {
			return YearlyReport{}, fmt.Errorf("persist placeholder report: %w", err)
		}
		return report, nil
	}

	sections, err := b.collectSections(ctx, runID, contributor)
	if err != nil {
		return YearlyReport{}, err
	}
	report.Sections = sections

	usage, err := b.Reviews.SumUsageByRun(ctx, runID)
	if err != nil {
		return YearlyReport{}, fmt.Errorf("sum review usage: %w", err)
	}
	report.Usage = usage

	if err := b.Reports.Upsert(ctx, report); err != nil {
		return YearlyReport{}, fmt.Errorf("persist report: %w", err)
	}
	return report, nil
}

func (b *Builder) collectStats(ctx context.Context, runID, org, contributor string, year int) (ReportStats, error) {
	list, err := b.Commits.ListByAuthorYear(ctx, org, contributor, year)
	if err != nil {
		return ReportStats{}, fmt.Errorf("list commits: %w", err)
	}
	stats := ReportStats{TotalCommits: len(list)}
	repos := map[string]bool{}
	for _, c := range list {
		stats.TotalAdditions += c.Additions
		stats.TotalDeletions += c.Deletions
		repos[c.Org+"/"+c.Repo] = true
	}
	stats.ReposTouched = len(repos)

	units, err := b.Units.ListByRun(ctx, runID)
	if err != nil {
		return ReportStats{}, fmt.Errorf("list work units: %w", err)
	}
	stats.WorkUnits = len(units)
	for _, u := range units {
		if u.IsSampled {
			stats.SampledUnits++
		}
	}
	return stats, nil
}

// collectSections reads the stored stage 2-4 rows. Missing rows are not an
// error: the report ships with whatever stages completed.
func (b *Builder) collectSections(ctx context.Context, runID, contributor string) (ReportSections, error) {
	var sections ReportSections

	if row, err := b.Reviews.GetLatestForContributor(ctx, runID, reviews.StageWorkPattern, contributor); err == nil {
		if err := json.Unmarshal(row.Result, &sections.WorkPattern); err != nil {
			return ReportSections{}, fmt.Errorf("decode work pattern: %w", err)
		}
	} else if !errors.Is(err, reviews.ErrNotFound) {
		return ReportSections{}, fmt.Errorf("load work pattern: %w", err)
	}

	if row, err := b.Reviews.GetLatestForContributor(ctx, runID, reviews.StageGrowth, contributor); err == nil {
		if err := json.Unmarshal(row.Result, &sections.Growth); err != nil {
			return ReportSections{}, fmt.Errorf("decode growth: %w", err)
		}
	} else if !errors.Is(err, reviews.ErrNotFound) {
		return ReportSections{}, fmt.Errorf("load growth: %w", err)
	}

	if row, err := b.Reviews.GetLatestForContributor(ctx, runID, reviews.StageSummary, contributor); err == nil {
		parsed, err := reviews.ParseStage4(row.Result)
		if err != nil {
			return ReportSections{}, err
		}
		sections.Summary = parsed.Summary
		sections.Assessment = parsed.Assessment
	} else if !errors.Is(err, reviews.ErrNotFound) {
		return ReportSections{}, fmt.Errorf("load summary: %w", err)
	}

	return sections, nil
}
