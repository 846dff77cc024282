package main

// Iterate on review prompts against a live provider without running the
// full pipeline:
//   go run ./cmd/prompttest -stage 1 -unit ./testdata/unit.json -call

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"contrib-backend/internal/commits"
	"contrib-backend/internal/llm"
	"contrib-backend/internal/llm/anthropic"
	openai "contrib-backend/internal/llm/openai"
	"contrib-backend/internal/reviews"
	"contrib-backend/internal/shared/config"
	"contrib-backend/internal/workunits"
)

func main() {
	cfg := config.Load()

	stage := flag.Int("stage", 1, "Review stage (1-4)")
	unitPath := flag.String("unit", "", "Path to a work unit JSON file (stage 1)")
	messagesPath := flag.String("messages", "", "Path to a newline-separated commit message file (stage 1, optional)")
	contextPath := flag.String("context", "", "Path to a stage context JSON file (stages 2-4)")
	call := flag.Bool("call", false, "Send the prompt to the provider instead of printing it")
	outPath := flag.String("out", "", "Path to write raw JSON output (optional)")
	provider := flag.String("provider", cfg.LLMProvider, "LLM provider")
	model := flag.String("model", cfg.LLMModel, "LLM model")
	flag.Parse()

	system, user, err := buildPrompt(*stage, *unitPath, *messagesPath, *contextPath)
	if err != nil {
		exitErr(err.Error())
	}

	if !*call {
		fmt.Printf("--- system ---\n%s\n--- user ---\n%s\n", system, user)
		return
	}

	client, err := buildClient(*provider, *model)
	if err != nil {
		exitErr(err.Error())
	}

	raw, usage, err := client.GenerateReview(context.Background(), llm.ReviewInput{
		Stage:         *stage,
		PromptVersion: reviews.PromptVersion,
		System:        system,
		User:          user,
	})
	if err != nil {
		exitErr(fmt.Sprintf("llm call: %v", err))
	}
	if err := validateStage(*stage, raw); err != nil {
		exitErr(err.Error())
	}

	pretty, err := prettyJSON(raw)
	if err != nil {
		exitErr(fmt.Sprintf("format json: %v", err))
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, pretty, 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}

	if _, err := os.Stdout.Write(pretty); err != nil {
		exitErr(fmt.Sprintf("write stdout: %v", err))
	}
	if len(pretty) == 0 || pretty[len(pretty)-1] != '\n' {
		_, _ = os.Stdout.Write([]byte("\n"))
	}
	fmt.Fprintf(os.Stderr, "tokens in=%d out=%d cost=%.4f\n", usage.InputTokens, usage.OutputTokens, usage.CostUSD)
}

// stageContext is the optional input for stages 2-4. Missing sections fall
// back to zero values so a minimal file still produces a usable prompt.
type stageContext struct {
	Stage1      reviews.Stage1Aggregate    `json:"stage1"`
	WorkPattern reviews.Stage2Result       `json:"workPattern"`
	Growth      reviews.Stage3Result       `json:"growth"`
	Metrics     reviews.ContributorMetrics `json:"metrics"`
}

func buildPrompt(stage int, unitPath, messagesPath, contextPath string) (string, string, error) {
	if stage == 1 {
		if strings.TrimSpace(unitPath) == "" {
			return "", "", fmt.Errorf("stage 1 requires -unit")
		}
		var unit workunits.WorkUnit
		if err := readJSON(unitPath, &unit); err != nil {
			return "", "", fmt.Errorf("read unit: %w", err)
		}
		var unitCommits []commits.Commit
		if strings.TrimSpace(messagesPath) != "" {
			data, err := os.ReadFile(messagesPath)
			if err != nil {
				return "", "", fmt.Errorf("read messages: %w", err)
			}
			for _, line := range strings.Split(string(data), "\n") {
				if trimmed := strings.TrimSpace(line); trimmed != "" {
					unitCommits = append(unitCommits, commits.Commit{Message: trimmed})
				}
			}
		}
		system, user := reviews.BuildStage1Prompt(unit, unitCommits)
		return system, user, nil
	}

	var sc stageContext
	if strings.TrimSpace(contextPath) != "" {
		if err := readJSON(contextPath, &sc); err != nil {
			return "", "", fmt.Errorf("read context: %w", err)
		}
	}
	switch stage {
	case 2:
		system, user := reviews.BuildStage2Prompt(sc.Stage1, sc.Metrics)
		return system, user, nil
	case 3:
		system, user := reviews.BuildStage3Prompt(sc.Stage1, sc.WorkPattern, sc.Metrics)
		return system, user, nil
	case 4:
		system, user := reviews.BuildStage4Prompt(sc.Stage1, sc.WorkPattern, sc.Growth, sc.Metrics)
		return system, user, nil
	default:
		return "", "", fmt.Errorf("unsupported stage: %d", stage)
	}
}

func validateStage(stage int, raw json.RawMessage) error {
	switch stage {
	case 1:
		if _, err := reviews.ParseStage1(raw); err != nil {
			return fmt.Errorf("invalid stage 1 json: %w", err)
		}
	case 4:
		if _, err := reviews.ParseStage4(raw); err != nil {
			return fmt.Errorf("invalid stage 4 json: %w", err)
		}
	default:
		var probe map[string]any
		if err := json.Unmarshal(raw, &probe); err != nil {
			return fmt.Errorf("invalid json: %w", err)
		}
	}
	return nil
}

func buildClient(provider, model string) (llm.Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return openai.NewClient(os.Getenv("OPENAI_API_KEY"), model)
	case "anthropic":
		return anthropic.NewClient(os.Getenv("ANTHROPIC_API_KEY"), model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func readJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func prettyJSON(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exitErr(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
