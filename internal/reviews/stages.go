package reviews

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Stage1Result is the per-unit code quality payload.
type Stage1Result struct {
	Readability     int      `json:"readability"`
	Maintainability int      `json:"maintainability"`
	BestPractices   int      `json:"bestPractices"`
	Overall         int      `json:"overall"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Patterns        []string `json:"patterns"`
	Suggestions     []string `json:"suggestions"`
}

// Stage2Result is the per-contributor work pattern payload.
type Stage2Result struct {
	Narrative     string   `json:"narrative"`
	TopStrengths  []string `json:"topStrengths"`
	TopWeaknesses []string `json:"topWeaknesses"`
	TopPatterns   []string `json:"topPatterns"`
}

// Stage3Result is the per-contributor growth payload.
type Stage3Result struct {
	Narrative    string   `json:"narrative"`
	GrowthPoints []string `json:"growthPoints"`
}

// Stage4Assessment scores the contributor across five dimensions.
type Stage4Assessment struct {
	Productivity  int `json:"productivity"`
	CodeQuality   int `json:"codeQuality"`
	Diversity     int `json:"diversity"`
	Collaboration int `json:"collaboration"`
	Growth        int `json:"growth"`
}

// Stage4Result is the final narrative summary payload.
type Stage4Result struct {
	Summary    string           `json:"summary"`
	Assessment Stage4Assessment `json:"assessment"`
}

const (
	scoreMin = 1
	scoreMax = 10
	scoreMid = 5
)

func clampScore(v int) int {
	if v < scoreMin {
		return scoreMin
	}
	if v > scoreMax {
		return scoreMax
	}
	return v
}

// NeutralStage1 is the substitute result for units with missing or empty
// diff input: midpoint sub-scores, empty lists.
func NeutralStage1() Stage1Result {
	return Stage1Result{
		Readability:     scoreMid,
		Maintainability: scoreMid,
		BestPractices:   scoreMid,
		Overall:         scoreMid,
		Strengths:       []string{},
		Weaknesses:      []string{},
		Patterns:        []string{},
		Suggestions:     []string{},
	}
}

// ParseStage1 decodes and clamps a Stage 1 payload.
func ParseStage1(raw json.RawMessage) (Stage1Result, error) {
	var result Stage1Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Stage1Result{}, fmt.Errorf("stage 1 payload: %w", err)
	}
	result.Readability = clampScore(result.Readability)
	result.Maintainability = clampScore(result.Maintainability)
	result.BestPractices = clampScore(result.BestPractices)
	result.Overall = clampScore(result.Overall)
	return result, nil
}

// ParseStage4 decodes and clamps a Stage 4 payload.
func ParseStage4(raw json.RawMessage) (Stage4Result, error) {
	var result Stage4Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Stage4Result{}, fmt.Errorf("stage 4 payload: %w", err)
	}
	result.Assessment.Productivity = clampScore(result.Assessment.Productivity)
	result.Assessment.CodeQuality = clampScore(result.Assessment.CodeQuality)
	result.Assessment.Diversity = clampScore(result.Assessment.Diversity)
	result.Assessment.Collaboration = clampScore(result.Assessment.Collaboration)
	result.Assessment.Growth = clampScore(result.Assessment.Growth)
	return result, nil
}

// Stage1Aggregate is the frequency-ranked rollup of Stage 1 results that
// feeds stages 2-4.
type Stage1Aggregate struct {
	Reviewed      int      `json:"reviewed"`
	AvgOverall    float64  `json:"avgOverall"`
	TopStrengths  []string `json:"topStrengths"`
	TopWeaknesses []string `json:"topWeaknesses"`
	TopPatterns   []string `json:"topPatterns"`
}

// AggregateStage1 rolls Stage 1 results up by frequency.
func AggregateStage1(results []Stage1Result, topN int) Stage1Aggregate {
	if topN <= 0 {
		topN = 5
	}
	agg := Stage1Aggregate{Reviewed: len(results)}
	if len(results) == 0 {
		agg.TopStrengths = []string{}
		agg.TopWeaknesses = []string{}
		agg.TopPatterns = []string{}
		return agg
	}
	totalOverall := 0
	strengths := map[string]int{}
	weaknesses := map[string]int{}
	patterns := map[string]int{}
	for _, r := range results {
		totalOverall += r.Overall
		countAll(strengths, r.Strengths)
		countAll(weaknesses, r.Weaknesses)
		countAll(patterns, r.Patterns)
	}
	agg.AvgOverall = float64(totalOverall) / float64(len(results))
	agg.TopStrengths = topByFrequency(strengths, topN)
	agg.TopWeaknesses = topByFrequency(weaknesses, topN)
	agg.TopPatterns = topByFrequency(patterns, topN)
	return agg
}

func countAll(counts map[string]int, items []string) {
	for _, item := range items {
		if item != "" {
			counts[item]++
		}
	}
}

func topByFrequency(counts map[string]int, n int) []string {
	items := make([]string, 0, len(counts))
	for item := range counts {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if counts[items[i]] != counts[items[j]] {
			return counts[items[i]] > counts[items[j]]
		}
		return items[i] < items[j]
	})
	if len(items) > n {
		items = items[:n]
	}
	return items
}
