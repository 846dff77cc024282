package runs

import "time"

// Run statuses. The happy path walks the phase sequence in order; PAUSED
// and FAILED are reachable from any non-terminal status.
const (
	StatusQueued          = "QUEUED"
	StatusScanningRepos   = "SCANNING_REPOS"
	StatusScanningCommits = "SCANNING_COMMITS"
	StatusBuildingUnits   = "BUILDING_UNITS"
	StatusAwaitingAI      = "AWAITING_AI_CONFIRMATION"
	StatusReviewing       = "REVIEWING"
	StatusFinalizing      = "FINALIZING"
	StatusDone            = "DONE"
	StatusFailed          = "FAILED"
	StatusPaused          = "PAUSED"
)

// Restart modes.
const (
	ModeResume      = "resume"
	ModeFullRestart = "full_restart"
)

// AI confirmation decisions recorded on the run.
const (
	ConfirmationPending   = ""
	ConfirmationConfirmed = "CONFIRMED"
	ConfirmationSkipped   = "SKIPPED"
)

// phaseOrder is the canonical phase sequence. Phase names reuse the status
// constants; a paused or failed run keeps its last phase for resume.
var phaseOrder = []string{
	StatusQueued,
	StatusScanningRepos,
	StatusScanningCommits,
	StatusBuildingUnits,
	StatusAwaitingAI,
	StatusReviewing,
	StatusFinalizing,
	StatusDone,
}

// IsTerminal reports whether a status ends the run.
func IsTerminal(status string) bool {
	return status == StatusDone || status == StatusFailed
}

// PhaseIndex returns the position of a phase in the sequence, or -1.
func PhaseIndex(phase string) int {
	for i, p := range phaseOrder {
		if p == phase {
			return i
		}
	}
	return -1
}

// Options tunes one run. Zero values mean package defaults.
type Options struct {
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"model,omitempty"`
	PathExclusions []string `json:"pathExclusions,omitempty"`

	GapThresholdHours  int     `json:"gapThresholdHours,omitempty"`
	MaxUnitDays        int     `json:"maxUnitDays,omitempty"`
	MaxCommitsPerUnit  int     `json:"maxCommitsPerUnit,omitempty"`
	HeuristicThreshold int     `json:"heuristicThreshold,omitempty"`
	MaxTotalSamples    int     `json:"maxTotalSamples,omitempty"`
	HotfixBonus        float64 `json:"hotfixBonus,omitempty"`
}

// AnalysisRun is one pipeline execution for (org, contributor, year).
type AnalysisRun struct {
	ID             string     `json:"id"`
	Org            string     `json:"org"`
	Contributor    string     `json:"contributor"`
	Year           int        `json:"year"`
	Status         string     `json:"status"`
	Phase          string     `json:"phase"`
	Progress       Progress   `json:"progress"`
	Options        Options    `json:"options"`
	AIConfirmation string     `json:"aiConfirmation,omitempty"`
	Error          string     `json:"error,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
