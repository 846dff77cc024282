// Package sampling picks a bounded, representative subset of scored work
// units for AI review.
package sampling

import (
	"math/rand"
	"sort"
)

// Unit is the slice of a work unit the selector needs.
type Unit struct {
	ID          string
	Repo        string
	ImpactScore float64
	IsHotfix    bool
	HasRevert   bool
}

// Config bounds the sample.
type Config struct {
	HeuristicThreshold int `json:"heuristicThreshold,omitempty"`
	TopImpactPerRepo   int `json:"topImpactPerRepo,omitempty"`
	MaxFlaggedExtra    int `json:"maxFlaggedExtra,omitempty"`
	MaxPerRepo         int `json:"maxPerRepo,omitempty"`
	MaxTotalSamples    int `json:"maxTotalSamples,omitempty"`
}

// DefaultConfig returns the default sampling bounds.
func DefaultConfig() Config {
	return Config{
		HeuristicThreshold: 5,
		TopImpactPerRepo:   4,
		MaxFlaggedExtra:    2,
		MaxPerRepo:         8,
		MaxTotalSamples:    20,
	}
}

func (c Config) normalized() Config {
	out := c
	if out.HeuristicThreshold <= 0 {
		out.HeuristicThreshold = 5
	}
	if out.TopImpactPerRepo <= 0 {
		out.TopImpactPerRepo = 4
	}
	if out.MaxFlaggedExtra < 0 {
		out.MaxFlaggedExtra = 0
	}
	if out.MaxPerRepo <= 0 {
		out.MaxPerRepo = 8
	}
	if out.MaxPerRepo < out.TopImpactPerRepo {
		out.MaxPerRepo = out.TopImpactPerRepo
	}
	return out
}

// RepoSummary reports how one repository was sampled.
type RepoSummary struct {
	Repo         string `json:"repo"`
	TotalUnits   int    `json:"totalUnits"`
	SampledUnits int    `json:"sampledUnits"`
	TookAll      bool   `json:"tookAll"`
}

// Result is the selected subset plus per-repository summaries.
type Result struct {
	Selected  map[string]bool
	Summaries []RepoSummary
}

// Select marks the sampled subset. Per repository: at or below the heuristic
// threshold everything is sampled; otherwise top-impact units, a bounded
// number of hotfix/revert extras, and a random diversity fill up to the
// per-repo cap. The single highest-impact unit of every repository is always
// included unless the global cap forces it out. rng may be nil.
func Select(units []Unit, cfg Config, rng *rand.Rand) Result {
	cfg = cfg.normalized()
	byRepo := make(map[string][]Unit)
	var repoOrder []string
	for _, u := range units {
		if _, ok := byRepo[u.Repo]; !ok {
			repoOrder = append(repoOrder, u.Repo)
		}
		byRepo[u.Repo] = append(byRepo[u.Repo], u)
	}
	sort.Strings(repoOrder)

	selected := make(map[string]bool)
	topPicks := make(map[string]bool) // per-repo top units, protected from the global cap
	var summaries []RepoSummary

	for _, repo := range repoOrder {
		repoUnits := byRepo[repo]
		sortByImpact(repoUnits)

		summary := RepoSummary{Repo: repo, TotalUnits: len(repoUnits)}
		if len(repoUnits) <= cfg.HeuristicThreshold {
			for _, u := range repoUnits {
				selected[u.ID] = true
			}
			if len(repoUnits) > 0 {
				topPicks[repoUnits[0].ID] = true
			}
			summary.SampledUnits = len(repoUnits)
			summary.TookAll = true
			summaries = append(summaries, summary)
			continue
		}

		picked := make(map[string]bool)
		for i := 0; i < cfg.TopImpactPerRepo && i < len(repoUnits); i++ {
			picked[repoUnits[i].ID] = true
		}
		topPicks[repoUnits[0].ID] = true

		flagged := 0
		for _, u := range repoUnits {
			if flagged >= cfg.MaxFlaggedExtra || len(picked) >= cfg.MaxPerRepo {
				break
			}
			if picked[u.ID] || (!u.IsHotfix && !u.HasRevert) {
				continue
			}
			picked[u.ID] = true
			flagged++
		}

		var rest []Unit
		for _, u := range repoUnits {
			if !picked[u.ID] {
				rest = append(rest, u)
			}
		}
		shuffle(rest, rng)
		for _, u := range rest {
			if len(picked) >= cfg.MaxPerRepo {
				break
			}
			picked[u.ID] = true
		}

		for id := range picked {
			selected[id] = true
		}
		summary.SampledUnits = len(picked)
		summaries = append(summaries, summary)
	}

	if cfg.MaxTotalSamples > 0 && len(selected) > cfg.MaxTotalSamples {
		applyGlobalCap(units, selected, topPicks, cfg.MaxTotalSamples)
		recount(summaries, byRepo, selected)
	}
	return Result{Selected: selected, Summaries: summaries}
}

// applyGlobalCap trims the selection to the cap, preferring per-repo top
// units, then higher impact.
func applyGlobalCap(units []Unit, selected, topPicks map[string]bool, limit int) {
	var kept []Unit
	for _, u := range units {
		if selected[u.ID] {
			kept = append(kept, u)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		ti, tj := topPicks[kept[i].ID], topPicks[kept[j].ID]
		if ti != tj {
			return ti
		}
		if kept[i].ImpactScore != kept[j].ImpactScore {
			return kept[i].ImpactScore > kept[j].ImpactScore
		}
		return kept[i].ID < kept[j].ID
	})
	for i, u := range kept {
		if i >= limit {
			delete(selected, u.ID)
		}
	}
}

func recount(summaries []RepoSummary, byRepo map[string][]Unit, selected map[string]bool) {
	for i := range summaries {
		n := 0
		for _, u := range byRepo[summaries[i].Repo] {
			if selected[u.ID] {
				n++
			}
		}
		summaries[i].SampledUnits = n
		summaries[i].TookAll = summaries[i].TookAll && n == summaries[i].TotalUnits
	}
}

func sortByImpact(list []Unit) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].ImpactScore != list[j].ImpactScore {
			return list[i].ImpactScore > list[j].ImpactScore
		}
		return list[i].ID < list[j].ID
	})
}

func shuffle(list []Unit, rng *rand.Rand) {
	swap := func(i, j int) { list[i], list[j] = list[j], list[i] }
	if rng != nil {
		rng.Shuffle(len(list), swap)
		return
	}
	rand.Shuffle(len(list), swap)
}
