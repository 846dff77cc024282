// Package impact assigns a weighted score and factor breakdown to work units.
package impact

import (
	"math"
	"path"
	"sort"
	"strings"

	"contrib-backend/internal/cluster"
	"contrib-backend/internal/commits"
)

// PathRule weights work that lands in a critical path.
type PathRule struct {
	Pattern string  `json:"pattern"`
	Weight  float64 `json:"weight"`
}

// Config holds organization-level scoring knobs.
type Config struct {
	CriticalPaths []PathRule `json:"criticalPaths,omitempty"`
	HotspotTopN   int        `json:"hotspotTopN,omitempty"`
	HotspotWeight float64    `json:"hotspotWeight,omitempty"`
	HotfixBonus   float64    `json:"hotfixBonus,omitempty"`
	RevertPenalty float64    `json:"revertPenalty,omitempty"`
}

// DefaultConfig returns the default scoring parameters.
func DefaultConfig() Config {
	return Config{
		HotspotTopN:   20,
		HotspotWeight: 0.5,
		HotfixBonus:   2.0,
		RevertPenalty: -1.0,
	}
}

func (c Config) normalized() Config {
	out := c
	if out.HotspotTopN <= 0 {
		out.HotspotTopN = 20
	}
	if out.HotspotWeight == 0 {
		out.HotspotWeight = 0.5
	}
	return out
}

// Factors is the per-factor breakdown behind a score.
type Factors struct {
	Size            float64 `json:"size"`
	PathCriticality float64 `json:"pathCriticality"`
	HotspotOverlap  float64 `json:"hotspotOverlap"`
	RiskAdjustment  float64 `json:"riskAdjustment"`
}

// HotspotTable counts per-file touches across a contributor's whole-year commit set.
func HotspotTable(list []commits.Commit) map[string]int {
	table := make(map[string]int)
	for _, c := range list {
		for _, f := range c.Files {
			table[f.Path]++
		}
	}
	return table
}

// TopHotspots returns the n most frequently touched files as a membership set.
// Ties are broken lexically so the selection is stable.
func TopHotspots(table map[string]int, n int) map[string]bool {
	if n <= 0 || len(table) == 0 {
		return map[string]bool{}
	}
	files := make([]string, 0, len(table))
	for f := range table {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if table[files[i]] != table[files[j]] {
			return table[files[i]] > table[files[j]]
		}
		return files[i] < files[j]
	})
	if len(files) > n {
		files = files[:n]
	}
	out := make(map[string]bool, len(files))
	for _, f := range files {
		out[f] = true
	}
	return out
}

// Score combines change size, path criticality, hotspot overlap and risk
// flags into a scalar plus its breakdown. The size factor is sqrt-scaled so
// raw volume is rewarded sub-linearly; the score is monotonically
// non-decreasing in additions+deletions with other factors held fixed.
func Score(unit cluster.Unit, cfg Config, hotspots map[string]bool) (float64, Factors) {
	cfg = cfg.normalized()

	size := math.Sqrt(float64(unit.Additions + unit.Deletions))

	pathMult := 1.0
	for _, rule := range cfg.CriticalPaths {
		if rule.Weight <= 0 {
			continue
		}
		for _, p := range unit.PrimaryPaths {
			if matchPath(rule.Pattern, p) {
				pathMult += rule.Weight
				break
			}
		}
	}

	hotspotMult := 1.0
	if unit.FilesChanged > 0 && len(hotspots) > 0 {
		overlap := 0
		for _, f := range unit.Files {
			if hotspots[f] {
				overlap++
			}
		}
		hotspotMult += cfg.HotspotWeight * float64(overlap) / float64(unit.FilesChanged)
	}

	risk := 0.0
	if unit.IsHotfix {
		risk += cfg.HotfixBonus
	}
	if unit.HasRevert {
		risk += cfg.RevertPenalty
	}

	factors := Factors{
		Size:            size,
		PathCriticality: pathMult,
		HotspotOverlap:  hotspotMult,
		RiskAdjustment:  risk,
	}
	score := size*pathMult*hotspotMult + risk
	if score < 0 {
		score = 0
	}
	return score, factors
}

// MatchPath reports whether a file path matches a rule pattern. A trailing
// "/**" matches the whole subtree; anything else uses path.Match semantics.
func MatchPath(pattern, p string) bool {
	return matchPath(pattern, p)
}

func matchPath(pattern, p string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	ok, err := path.Match(pattern, p)
	return err == nil && ok
}
