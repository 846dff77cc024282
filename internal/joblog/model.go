package joblog

import (
	"encoding/json"
	"time"
)

// Job statuses.
const (
	StatusStarted   = "STARTED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Entry is one append-only audit record for a coarse-grained job execution.
// The pipeline only ever writes these; nothing reads them for control flow.
type Entry struct {
	ID         string          `json:"id"`
	RunID      string          `json:"runId"`
	JobType    string          `json:"jobType"`
	Status     string          `json:"status"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
