package workunits

import (
	"time"

	"contrib-backend/internal/impact"
)

// WorkUnit is a scored cluster of commits owned by one analysis run.
type WorkUnit struct {
	ID            string         `json:"id"`
	RunID         string         `json:"runId"`
	Repo          string         `json:"repo"`
	Contributor   string         `json:"contributor"`
	StartAt       time.Time      `json:"startAt"`
	EndAt         time.Time      `json:"endAt"`
	CommitCount   int            `json:"commitCount"`
	Additions     int            `json:"additions"`
	Deletions     int            `json:"deletions"`
	FilesChanged  int            `json:"filesChanged"`
	Files         []string       `json:"files,omitempty"`
	PrimaryPaths  []string       `json:"primaryPaths,omitempty"`
	ImpactScore   float64        `json:"impactScore"`
	ImpactFactors impact.Factors `json:"impactFactors"`
	IsHotfix      bool           `json:"isHotfix"`
	HasRevert     bool           `json:"hasRevert"`
	IsSampled     bool           `json:"isSampled"`
	CommitSHAs    []string       `json:"commitShas,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}
