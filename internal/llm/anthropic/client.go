package anthropic

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"contrib-backend/internal/llm"
)

const (
	apiURL     = "https://api.anthropic.com/v1/messages"
	apiVersion = "2023-06-01"
)

// Client implements llm.Client using the Anthropic Messages API.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new Anthropic client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for Anthropic")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("ANTHROPIC_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type messageRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateReview sends a review request and returns the raw JSON payload.
// The Messages API has no system role; system instructions travel in the
// top-level system field.
func (c *Client) GenerateReview(ctx context.Context, input llm.ReviewInput) (json.RawMessage, llm.Usage, error) {
	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	reqBody := messageRequest{
		Model:     c.model,
		System:    input.System,
		Messages:  []chatMessage{{Role: "user", Content: input.User}},
		MaxTokens: maxTokens,
	}
	if sink, ok := llm.PromptHashSinkFromContext(ctx); ok && sink != nil {
		*sink = hashPrompt(input.System, input.User)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, llm.Usage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, llm.Usage{}, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, llm.Usage{}, fmt.Errorf("anthropic request timeout: %w", err)
		}
		return nil, llm.Usage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Usage{}, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, llm.Usage{}, fmt.Errorf("anthropic rate limited: http status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, llm.Usage{}, fmt.Errorf("anthropic server error: http status %d", resp.StatusCode)
	}

	var parsed messageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, llm.Usage{}, fmt.Errorf("anthropic response parse: %w", err)
	}
	if parsed.Error != nil {
		return nil, llm.Usage{}, fmt.Errorf("anthropic error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Content) == 0 {
		return nil, llm.Usage{}, fmt.Errorf("anthropic response missing content")
	}

	content := strings.TrimSpace(parsed.Content[0].Text)
	// The model may wrap JSON in a markdown fence.
	content = stripFence(content)
	if content == "" {
		return nil, llm.Usage{}, fmt.Errorf("anthropic response empty content")
	}
	usage := toUsage(c.model, parsed.Usage)
	log.Printf("llm response model=%s stage=%d prompt_version=%s input_tokens=%d output_tokens=%d cost_usd=%.6f",
		c.model, input.Stage, input.PromptVersion, usage.InputTokens, usage.OutputTokens, usage.CostUSD)
	if !json.Valid([]byte(content)) {
		return nil, usage, fmt.Errorf("invalid JSON from Anthropic")
	}
	return json.RawMessage(content), usage, nil
}

// EstimateCost projects token usage and cost for a planned batch.
func (c *Client) EstimateCost(input llm.EstimateInput) llm.Estimate {
	inTokens := input.Calls * input.AvgInputTokens
	outTokens := input.Calls * input.AvgOutputTokens
	inPrice, outPrice := pricing(c.model)
	return llm.Estimate{
		Calls:        input.Calls,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		CostUSD:      float64(inTokens)/1e6*inPrice + float64(outTokens)/1e6*outPrice,
	}
}

// pricing returns USD per million input/output tokens.
func pricing(model string) (float64, float64) {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.Contains(m, "haiku"):
		return 0.80, 4.00
	case strings.Contains(m, "opus"):
		return 15.00, 75.00
	default: // sonnet
		return 3.00, 15.00
	}
}

func toUsage(model string, raw *struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}) llm.Usage {
	if raw == nil {
		return llm.Usage{}
	}
	inPrice, outPrice := pricing(model)
	return llm.Usage{
		InputTokens:  raw.InputTokens,
		OutputTokens: raw.OutputTokens,
		CostUSD:      float64(raw.InputTokens)/1e6*inPrice + float64(raw.OutputTokens)/1e6*outPrice,
	}
}

func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func hashPrompt(system, user string) string {
	sum := sha256.Sum256([]byte("system: " + system + "\n\nuser: " + user))
	return hex.EncodeToString(sum[:])
}

var _ llm.Client = (*Client)(nil)
