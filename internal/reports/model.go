package reports

import (
	"time"

	"contrib-backend/internal/llm"
	"contrib-backend/internal/reviews"
)

// ReportStats is the deterministic productivity block of a yearly report.
// These come straight from ingested commits and built work units, never
// from the AI stages.
type ReportStats struct {
	TotalCommits   int `json:"totalCommits"`
	TotalAdditions int `json:"totalAdditions"`
	TotalDeletions int `json:"totalDeletions"`
	ReposTouched   int `json:"reposTouched"`
	WorkUnits      int `json:"workUnits"`
	SampledUnits   int `json:"sampledUnits"`
}

// ReportSections carries the narrative output of the review cascade.
type ReportSections struct {
	Summary     string                   `json:"summary"`
	Assessment  reviews.Stage4Assessment `json:"assessment"`
	WorkPattern reviews.Stage2Result     `json:"workPattern"`
	Growth      reviews.Stage3Result     `json:"growth"`
}

// YearlyReport is the final artifact of a run: exactly one per
// (run, contributor) after finalization, placeholder included.
type YearlyReport struct {
	ID          string         `json:"id"`
	RunID       string         `json:"runId"`
	Org         string         `json:"org"`
	Contributor string         `json:"contributor"`
	Year        int            `json:"year"`
	Stats       ReportStats    `json:"stats"`
	Sections    ReportSections `json:"sections"`
	Usage       llm.Usage      `json:"usage"`
	Placeholder bool           `json:"placeholder"`
	CreatedAt   time.Time      `json:"createdAt"`
}
