package reviews

import (
	"encoding/json"
	"time"
)

// Review stage numbers. Stage 1 is scoped to a work unit; stages 2-4 are
// scoped to the contributor.
const (
	StageCodeQuality = 1
	StageWorkPattern = 2
	StageGrowth      = 3
	StageSummary     = 4
)

// AiReview is one persisted stage result. Rows are append-only; re-runs
// create new rows and lookups take the latest.
type AiReview struct {
	ID            string          `json:"id"`
	RunID         string          `json:"runId"`
	Stage         int             `json:"stage"`
	WorkUnitID    string          `json:"workUnitId,omitempty"`
	Contributor   string          `json:"contributor,omitempty"`
	Result        json.RawMessage `json:"result"`
	PromptVersion string          `json:"promptVersion"`
	PromptHash    string          `json:"promptHash,omitempty"`
	InputTokens   int             `json:"inputTokens"`
	OutputTokens  int             `json:"outputTokens"`
	CostUSD       float64         `json:"costUsd"`
	CreatedAt     time.Time       `json:"createdAt"`
}
