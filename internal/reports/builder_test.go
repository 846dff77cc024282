package reports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contrib-backend/internal/commits"
	"contrib-backend/internal/reviews"
	"contrib-backend/internal/workunits"
)

func newTestBuilder() (*Builder, *commits.MemoryRepo, *workunits.MemoryRepo, *reviews.MemoryRepo, *MemoryRepo) {
	c := commits.NewMemoryRepo()
	u := workunits.NewMemoryRepo()
	rv := reviews.NewMemoryRepo()
	rp := NewMemoryRepo()
	return &Builder{Commits: c, Units: u, Reviews: rv, Reports: rp}, c, u, rv, rp
}

func seedCommits(t *testing.T, repo commits.Repo, n int) {
	t.Helper()
	base := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	batch := make([]commits.Commit, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, commits.Commit{
			SHA:         "sha-" + string(rune('a'+i)),
			Org:         "acme",
			Repo:        "widgets",
			AuthorLogin: "octocat",
			Message:     "change",
			CommittedAt: base.Add(time.Duration(i) * time.Hour),
			Additions:   10,
			Deletions:   2,
		})
	}
	require.NoError(t, repo.UpsertBatch(context.Background(), batch))
}

func seedContributorStage(t *testing.T, repo reviews.Repo, runID string, stage int, payload string) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), reviews.AiReview{
		ID:          "rev-" + string(rune('0'+stage)),
		RunID:       runID,
		Stage:       stage,
		Contributor: "octocat",
		Result:      json.RawMessage(payload),
		InputTokens: 100,
		CostUSD:     0.02,
		CreatedAt:   time.Now().UTC(),
	}))
}

func TestFinalizePlaceholderForZeroCommits(t *testing.T) {
	builder, _, _, _, reports := newTestBuilder()

	report, err := builder.Finalize(context.Background(), "run-1", "acme", "octocat", 2024)
	require.NoError(t, err)

	assert.True(t, report.Placeholder)
	assert.Equal(t, 0, report.Stats.TotalCommits)
	assert.Equal(t, placeholderSummary, report.Sections.Summary)

	stored, err := reports.GetByRunContributor(context.Background(), "run-1", "octocat")
	require.NoError(t, err)
	assert.True(t, stored.Placeholder)
}

func TestFinalizeAggregatesStatsAndSections(t *testing.T) {
	builder, c, u, rv, _ := newTestBuilder()
	seedCommits(t, c, 5)
	require.NoError(t, u.CreateBatch(context.Background(), []workunits.WorkUnit{
		{ID: "unit-a", RunID: "run-1", Repo: "acme/widgets", Contributor: "octocat", IsSampled: true},
		{ID: "unit-b", RunID: "run-1", Repo: "acme/widgets", Contributor: "octocat"},
	}))
	seedContributorStage(t, rv, "run-1", reviews.StageWorkPattern,
		`{"narrative":"steady","topStrengths":["naming"],"topWeaknesses":[],"topPatterns":[]}`)
	seedContributorStage(t, rv, "run-1", reviews.StageGrowth,
		`{"narrative":"improving","growthPoints":["tests"]}`)
	seedContributorStage(t, rv, "run-1", reviews.StageSummary,
		`{"summary":"solid year","assessment":{"productivity":8,"codeQuality":7,"diversity":5,"collaboration":6,"growth":7}}`)

	report, err := builder.Finalize(context.Background(), "run-1", "acme", "octocat", 2024)
	require.NoError(t, err)

	assert.False(t, report.Placeholder)
	assert.Equal(t, 5, report.Stats.TotalCommits)
	assert.Equal(t, 50, report.Stats.TotalAdditions)
	assert.Equal(t, 1, report.Stats.ReposTouched)
	assert.Equal(t, 2, report.Stats.WorkUnits)
	assert.Equal(t, 1, report.Stats.SampledUnits)
	assert.Equal(t, "solid year", report.Sections.Summary)
	assert.Equal(t, 8, report.Sections.Assessment.Productivity)
	assert.Equal(t, "steady", report.Sections.WorkPattern.Narrative)
	assert.Equal(t, []string{"tests"}, report.Sections.Growth.GrowthPoints)
	assert.Equal(t, 300, report.Usage.InputTokens)
}

func TestFinalizeToleratesMissingStageRows(t *testing.T) {
	builder, c, _, _, _ := newTestBuilder()
	seedCommits(t, c, 2)

	report, err := builder.Finalize(context.Background(), "run-1", "acme", "octocat", 2024)
	require.NoError(t, err)

	assert.False(t, report.Placeholder)
	assert.Empty(t, report.Sections.Summary)
	assert.Equal(t, 2, report.Stats.TotalCommits)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	builder, c, _, _, reports := newTestBuilder()
	seedCommits(t, c, 3)

	_, err := builder.Finalize(context.Background(), "run-1", "acme", "octocat", 2024)
	require.NoError(t, err)
	_, err = builder.Finalize(context.Background(), "run-1", "acme", "octocat", 2024)
	require.NoError(t, err)

	list, err := reports.ListByRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
