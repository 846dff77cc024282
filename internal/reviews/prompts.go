package reviews

import (
	"encoding/json"
	"fmt"
	"strings"

	"contrib-backend/internal/commits"
	"contrib-backend/internal/workunits"
)

// PromptVersion tags persisted reviews with the prompt generation that
// produced them.
const PromptVersion = "v1"

// Character budgets for the work-unit context block in Stage 1 prompts.
// Diff samples come last so the tail truncation trims code before metadata.
const (
	stage1ContextBudget = 24000
	stage1DiffBudget    = 16000
)

// ContributorMetrics is the productivity context attached to stage 2-4 prompts.
type ContributorMetrics struct {
	Year           int `json:"year"`
	TotalCommits   int `json:"totalCommits"`
	TotalAdditions int `json:"totalAdditions"`
	TotalDeletions int `json:"totalDeletions"`
	ReposTouched   int `json:"reposTouched"`
	WorkUnits      int `json:"workUnits"`
	SampledUnits   int `json:"sampledUnits"`
}

const stage1System = `You are a senior engineer reviewing a cluster of commits (a "work unit").
Assess code quality from the unit's commit messages, changed files, and diff samples.
Respond with a single JSON object:
{"readability": 1-10, "maintainability": 1-10, "bestPractices": 1-10, "overall": 1-10,
 "strengths": [...], "weaknesses": [...], "patterns": [...], "suggestions": [...]}`

// BuildStage1Prompt renders the per-unit code quality request from the
// unit's commits. The context block is truncated to a fixed budget so
// oversized units cannot blow up token spend.
func BuildStage1Prompt(unit workunits.WorkUnit, unitCommits []commits.Commit) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", unit.Repo)
	fmt.Fprintf(&b, "Time range: %s .. %s\n", unit.StartAt.Format("2006-01-02"), unit.EndAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Commits: %d, +%d/-%d lines, %d files\n", unit.CommitCount, unit.Additions, unit.Deletions, unit.FilesChanged)
	if len(unit.PrimaryPaths) > 0 {
		fmt.Fprintf(&b, "Primary paths: %s\n", strings.Join(unit.PrimaryPaths, ", "))
	}
	if unit.IsHotfix {
		b.WriteString("Flagged as hotfix work.\n")
	}
	if unit.HasRevert {
		b.WriteString("Contains revert commits.\n")
	}
	if len(unitCommits) > 0 {
		b.WriteString("\nCommit messages:\n")
		for _, c := range unitCommits {
			fmt.Fprintf(&b, "- %s\n", firstLine(c.Message))
		}
	}
	if len(unit.Files) > 0 {
		b.WriteString("\nChanged files:\n")
		for _, f := range unit.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if samples := diffSamples(unitCommits, stage1DiffBudget); samples != "" {
		b.WriteString("\nDiff samples:\n")
		b.WriteString(samples)
	}
	return stage1System, truncate(b.String(), stage1ContextBudget)
}

// diffSamples concatenates per-file patch excerpts until the budget is
// spent. Files without a captured patch are skipped.
func diffSamples(unitCommits []commits.Commit, budget int) string {
	var b strings.Builder
	for _, c := range unitCommits {
		for _, f := range c.Files {
			if f.Patch == "" {
				continue
			}
			if b.Len() >= budget {
				return b.String()
			}
			fmt.Fprintf(&b, "--- %s (%s)\n", f.Path, shortSHA(c.SHA))
			patch := f.Patch
			if remaining := budget - b.Len(); len(patch) > remaining {
				patch = patch[:remaining] + "\n[truncated]"
			}
			b.WriteString(patch)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

const stage2System = `You are analyzing a software contributor's working pattern over one year.
Given aggregated per-unit review findings and productivity metrics, describe how they work.
Respond with a single JSON object:
{"narrative": "...", "topStrengths": [...], "topWeaknesses": [...], "topPatterns": [...]}`

// BuildStage2Prompt renders the per-contributor work pattern request.
func BuildStage2Prompt(agg Stage1Aggregate, metrics ContributorMetrics) (string, string) {
	return stage2System, contextJSON(map[string]any{
		"stage1":  agg,
		"metrics": metrics,
	})
}

const stage3System = `You are identifying growth opportunities for a software contributor.
Given their review findings, work pattern, and productivity metrics, name concrete growth points.
Respond with a single JSON object:
{"narrative": "...", "growthPoints": [...]}`

// BuildStage3Prompt renders the per-contributor growth request.
func BuildStage3Prompt(agg Stage1Aggregate, pattern Stage2Result, metrics ContributorMetrics) (string, string) {
	return stage3System, contextJSON(map[string]any{
		"stage1":      agg,
		"workPattern": pattern,
		"metrics":     metrics,
	})
}

const stage4System = `You are writing the final narrative of a contributor's annual report.
Given all prior analysis stages and productivity metrics, summarize the year and score five dimensions 1-10.
Respond with a single JSON object:
{"summary": "...", "assessment": {"productivity": n, "codeQuality": n, "diversity": n, "collaboration": n, "growth": n}}`

// BuildStage4Prompt renders the final summary request.
func BuildStage4Prompt(agg Stage1Aggregate, pattern Stage2Result, growth Stage3Result, metrics ContributorMetrics) (string, string) {
	return stage4System, contextJSON(map[string]any{
		"year":        metrics.Year,
		"stage1":      agg,
		"workPattern": pattern,
		"growth":      growth,
		"metrics":     metrics,
	})
}

func contextJSON(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}

func truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + "\n[truncated]"
}
