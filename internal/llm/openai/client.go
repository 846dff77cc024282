package openai

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
	apiURL = "https://api.openai.com/v1/chat/completions"
)

// Client implements llm.Client using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GenerateReview sends a review request and returns the raw JSON payload.
func (c *Client) GenerateReview(ctx context.Context, input llm.ReviewInput) (json.RawMessage, llm.Usage, error) {
	messages := buildMessages(c.model, input)
	if sink, ok := llm.PromptHashSinkFromContext(ctx); ok && sink != nil {
		*sink = hashMessages(messages)
	}

	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: responseFormat{
			Type: "json_object",
		},
	}
	if input.MaxTokens > 0 {
		reqBody.MaxTokens = input.MaxTokens
	}
	// Reasoning models reject explicit temperature.
	if !isReasoningModel(c.model) {
		temp := float32(0)
		reqBody.Temperature = &temp
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, llm.Usage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, llm.Usage{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, llm.Usage{}, fmt.Errorf("openai request timeout: %w", err)
		}
		return nil, llm.Usage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Usage{}, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, llm.Usage{}, fmt.Errorf("openai rate limited: http status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, llm.Usage{}, fmt.Errorf("openai server error: http status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, llm.Usage{}, fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return nil, llm.Usage{}, fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return nil, llm.Usage{}, fmt.Errorf("openai response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, llm.Usage{}, fmt.Errorf("openai response empty content")
	}
	usage := toUsage(c.model, parsed.Usage)
	logUsage(c.model, input, usage)
	if !json.Valid([]byte(content)) {
		return nil, usage, fmt.Errorf("invalid JSON from OpenAI")
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

// buildMessages shapes the request for the target model family. Reasoning
// models do not accept a system role, so system instructions are folded into
// the user turn for them.
func buildMessages(model string, input llm.ReviewInput) []chatMessage {
	if isReasoningModel(model) {
		combined := input.User
		if strings.TrimSpace(input.System) != "" {
			combined = input.System + "\n\n" + input.User
		}
		return []chatMessage{{Role: "user", Content: combined}}
	}
	var messages []chatMessage
	if strings.TrimSpace(input.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: input.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: input.User})
	return messages
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gpt-5") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}

// pricing returns USD per million input/output tokens.
func pricing(model string) (float64, float64) {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gpt-5-mini"):
		return 0.25, 2.00
	case strings.HasPrefix(m, "gpt-5"):
		return 1.25, 10.00
	case strings.HasPrefix(m, "gpt-4o-mini"):
		return 0.15, 0.60
	case strings.HasPrefix(m, "gpt-4o"):
		return 2.50, 10.00
	default:
		return 1.00, 4.00
	}
}

func toUsage(model string, raw *struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}) llm.Usage {
	if raw == nil {
		return llm.Usage{}
	}
	inPrice, outPrice := pricing(model)
	return llm.Usage{
		InputTokens:  raw.PromptTokens,
		OutputTokens: raw.CompletionTokens,
		CostUSD:      float64(raw.PromptTokens)/1e6*inPrice + float64(raw.CompletionTokens)/1e6*outPrice,
	}
}

func logUsage(model string, input llm.ReviewInput, usage llm.Usage) {
	log.Printf("llm response model=%s stage=%d prompt_version=%s input_tokens=%d output_tokens=%d cost_usd=%.6f",
		model, input.Stage, input.PromptVersion, usage.InputTokens, usage.OutputTokens, usage.CostUSD)
}

func hashMessages(messages []chatMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

var _ llm.Client = (*Client)(nil)
