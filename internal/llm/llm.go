package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts LLM providers for review generation. Adapters own all
// backend-specific request shaping; callers see one uniform surface.
type Client interface {
	GenerateReview(ctx context.Context, input ReviewInput) (json.RawMessage, Usage, error)
	EstimateCost(input EstimateInput) Estimate
}

// ReviewInput is one structured review request.
type ReviewInput struct {
	Stage         int
	PromptVersion string
	System        string
	User          string
	MaxTokens     int
}

// Usage records token consumption and estimated cost for one call.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// Add accumulates usage across calls.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		CostUSD:      u.CostUSD + other.CostUSD,
	}
}

// EstimateInput describes a planned batch of calls.
type EstimateInput struct {
	Calls           int
	AvgInputTokens  int
	AvgOutputTokens int
}

// Estimate is a pre-flight token/cost projection.
type Estimate struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

type promptHashSinkKey struct{}

// WithPromptHashCapture returns a context that asks adapters to record the
// hash of the prompt they actually sent.
func WithPromptHashCapture(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, promptHashSinkKey{}, sink)
}

// PromptHashSinkFromContext returns the capture sink, if any.
func PromptHashSinkFromContext(ctx context.Context) (*string, bool) {
	sink, ok := ctx.Value(promptHashSinkKey{}).(*string)
	return sink, ok
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation for environments without a
// configured provider.
type PlaceholderClient struct{}

// GenerateReview returns ErrNotImplemented.
func (PlaceholderClient) GenerateReview(ctx context.Context, input ReviewInput) (json.RawMessage, Usage, error) {
	_ = ctx
	_ = input
	return nil, Usage{}, ErrNotImplemented
}

// EstimateCost returns a zero estimate.
func (PlaceholderClient) EstimateCost(input EstimateInput) Estimate {
	return Estimate{Calls: input.Calls}
}
