package runs

import (
	"encoding/json"
	"fmt"
)

// Progress is one phase-tagged snapshot. Every write replaces the whole
// snapshot; nothing ever merges into a stored one.
type Progress struct {
	Phase       string `json:"phase"`
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Message     string `json:"message,omitempty"`
	CurrentItem string `json:"currentItem,omitempty"`
}

// Validate rejects snapshots that could not have come from a phase loop.
func (p Progress) Validate() error {
	if p.Phase != "" && PhaseIndex(p.Phase) < 0 {
		return fmt.Errorf("unknown progress phase %q", p.Phase)
	}
	if p.Total < 0 || p.Completed < 0 || p.Failed < 0 {
		return fmt.Errorf("negative progress counters")
	}
	if p.Total > 0 && p.Completed+p.Failed > p.Total {
		return fmt.Errorf("progress counters exceed total")
	}
	return nil
}

// EncodeProgress serializes a validated snapshot.
func EncodeProgress(p Progress) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// DecodeProgress parses and validates a stored snapshot. An empty payload
// decodes to the zero snapshot.
func DecodeProgress(payload []byte) (Progress, error) {
	if len(payload) == 0 {
		return Progress{}, nil
	}
	var p Progress
	if err := json.Unmarshal(payload, &p); err != nil {
		return Progress{}, fmt.Errorf("decode progress: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Progress{}, err
	}
	return p, nil
}
