// Package cluster groups a contributor's commits into work units using
// time-gap heuristics. Clustering is deterministic: identical input and
// config always produce identical unit boundaries.
package cluster

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"contrib-backend/internal/commits"
)

// Config controls unit boundary detection and aggregation.
type Config struct {
	GapThreshold      time.Duration
	MaxUnitDuration   time.Duration
	MaxCommitsPerUnit int
	PrimaryPathLimit  int
}

// DefaultConfig returns the default clustering parameters.
func DefaultConfig() Config {
	return Config{
		GapThreshold:      4 * time.Hour,
		MaxUnitDuration:   72 * time.Hour,
		MaxCommitsPerUnit: 50,
		PrimaryPathLimit:  3,
	}
}

func (c Config) normalized() Config {
	out := c
	if out.GapThreshold <= 0 {
		out.GapThreshold = 4 * time.Hour
	}
	if out.MaxUnitDuration <= 0 {
		out.MaxUnitDuration = 72 * time.Hour
	}
	if out.MaxCommitsPerUnit <= 0 {
		out.MaxCommitsPerUnit = 50
	}
	if out.PrimaryPathLimit <= 0 {
		out.PrimaryPathLimit = 3
	}
	return out
}

// Unit is a contiguous cluster of one contributor's commits in one repository.
type Unit struct {
	Repo         string
	StartAt      time.Time
	EndAt        time.Time
	CommitSHAs   []string
	CommitCount  int
	Additions    int
	Deletions    int
	Files        []string
	FilesChanged int
	PrimaryPaths []string
	IsHotfix     bool
	HasRevert    bool
}

var (
	hotfixPattern = regexp.MustCompile(`(?i)\b(hotfix|hot fix|urgent|emergency|critical fix)\b`)
	revertPattern = regexp.MustCompile(`(?i)(^revert\b|\brevert(s|ed|ing)?\s+(commit|pr|pull|change|"))`)
)

// IsHotfixMessage reports whether a commit message matches the hotfix lexicon.
func IsHotfixMessage(msg string) bool { return hotfixPattern.MatchString(msg) }

// IsRevertMessage reports whether a commit message matches the revert lexicon.
func IsRevertMessage(msg string) bool { return revertPattern.MatchString(msg) }

// Build clusters a time-ordered commit list for one repository into units.
// Input commits may arrive unsorted; they are ordered by timestamp (sha as
// tiebreaker) before boundary detection. A single commit forms a valid unit.
func Build(repo string, list []commits.Commit, cfg Config) []Unit {
	if len(list) == 0 {
		return nil
	}
	cfg = cfg.normalized()

	sorted := make([]commits.Commit, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CommittedAt.Equal(sorted[j].CommittedAt) {
			return sorted[i].SHA < sorted[j].SHA
		}
		return sorted[i].CommittedAt.Before(sorted[j].CommittedAt)
	})

	var units []Unit
	var current []commits.Commit
	for _, c := range sorted {
		if len(current) > 0 {
			prev := current[len(current)-1]
			gapExceeded := c.CommittedAt.Sub(prev.CommittedAt) > cfg.GapThreshold
			durationExceeded := c.CommittedAt.Sub(current[0].CommittedAt) > cfg.MaxUnitDuration
			countReached := len(current) >= cfg.MaxCommitsPerUnit
			if gapExceeded || durationExceeded || countReached {
				units = append(units, aggregate(repo, current, cfg))
				current = nil
			}
		}
		current = append(current, c)
	}
	if len(current) > 0 {
		units = append(units, aggregate(repo, current, cfg))
	}
	return units
}

func aggregate(repo string, group []commits.Commit, cfg Config) Unit {
	unit := Unit{
		Repo:        repo,
		StartAt:     group[0].CommittedAt,
		EndAt:       group[len(group)-1].CommittedAt,
		CommitCount: len(group),
	}

	seenFiles := make(map[string]bool)
	dirCounts := make(map[string]int)
	dirFirstSeen := make(map[string]int)
	order := 0

	for _, c := range group {
		unit.CommitSHAs = append(unit.CommitSHAs, c.SHA)
		unit.Additions += c.Additions
		unit.Deletions += c.Deletions
		if IsHotfixMessage(c.Message) {
			unit.IsHotfix = true
		}
		if IsRevertMessage(c.Message) {
			unit.HasRevert = true
		}

		// Directories keep the file-list order so first-seen tiebreaks
		// are stable across runs.
		var commitDirs []string
		commitDirSeen := make(map[string]bool)
		for _, f := range c.Files {
			if !seenFiles[f.Path] {
				seenFiles[f.Path] = true
				unit.Files = append(unit.Files, f.Path)
			}
			if dir := primaryDir(f.Path); !commitDirSeen[dir] {
				commitDirSeen[dir] = true
				commitDirs = append(commitDirs, dir)
			}
		}
		// Each commit counts once per touched directory.
		for _, dir := range commitDirs {
			if _, ok := dirFirstSeen[dir]; !ok {
				dirFirstSeen[dir] = order
				order++
			}
			dirCounts[dir]++
		}
	}
	unit.FilesChanged = len(unit.Files)

	dirs := make([]string, 0, len(dirCounts))
	for dir := range dirCounts {
		dirs = append(dirs, dir)
	}
	sort.Slice(dirs, func(i, j int) bool {
		if dirCounts[dirs[i]] != dirCounts[dirs[j]] {
			return dirCounts[dirs[i]] > dirCounts[dirs[j]]
		}
		return dirFirstSeen[dirs[i]] < dirFirstSeen[dirs[j]]
	})
	if len(dirs) > cfg.PrimaryPathLimit {
		dirs = dirs[:cfg.PrimaryPathLimit]
	}
	unit.PrimaryPaths = dirs
	return unit
}

// primaryDir reduces a file path to its top-level/second-level directory.
func primaryDir(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) <= 1 {
		return "."
	}
	depth := len(parts) - 1
	if depth > 2 {
		depth = 2
	}
	return strings.Join(parts[:depth], "/")
}
