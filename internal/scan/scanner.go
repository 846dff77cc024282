package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"contrib-backend/internal/commits"
	"contrib-backend/internal/shared/telemetry"
)

const defaultConcurrency = 5

// Progress is invoked after every settled repository.
type Progress func(completed, failed, total int, message string)

// Outcome summarizes one commit scan pass.
type Outcome struct {
	Total        int
	Completed    int
	Failed       int
	CommitsFound int
}

// Scanner drives repository discovery and per-repo commit ingestion with
// bounded concurrency. Ingested commits are upserted, so re-scanning after
// a resume is idempotent.
type Scanner struct {
	Provider    Provider
	Commits     commits.Repo
	Concurrency int
}

// DiscoverRepos lists the organization's repositories active in the year.
func (s *Scanner) DiscoverRepos(ctx context.Context, org string, year int) ([]string, error) {
	repos, err := s.Provider.ListOrgRepos(ctx, org, year)
	if err != nil {
		return nil, fmt.Errorf("list org repos: %w", err)
	}
	return repos, nil
}

// ScanCommits ingests the contributor's commits for every repository. A
// repository that fails is counted and skipped; the pass continues. stop is
// checked between repositories for cooperative cancellation.
func (s *Scanner) ScanCommits(ctx context.Context, org string, repos []string, authorLogin string, year int, stop func() bool, progress Progress) (Outcome, error) {
	outcome := Outcome{Total: len(repos)}
	if len(repos) == 0 {
		return outcome, nil
	}

	since := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency())

	settle := func(found int, failed bool) {
		mu.Lock()
		defer mu.Unlock()
		if failed {
			outcome.Failed++
		} else {
			outcome.Completed++
			outcome.CommitsFound += found
		}
		if progress != nil {
			done := outcome.Completed + outcome.Failed
			progress(outcome.Completed, outcome.Failed, outcome.Total,
				fmt.Sprintf("scanning commits (%d/%d repos)", done, outcome.Total))
		}
	}

	for _, repo := range repos {
		if stop != nil && stop() {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(repo string) {
			defer wg.Done()
			defer func() { <-sem }()
			found, err := s.scanRepo(ctx, org, repo, authorLogin, since, until)
			if err != nil {
				telemetry.Error("scan.repo_failed", map[string]any{
					"org":   org,
					"repo":  repo,
					"error": err.Error(),
				})
				settle(0, true)
				return
			}
			settle(found, false)
		}(repo)
	}
	wg.Wait()
	return outcome, nil
}

func (s *Scanner) scanRepo(ctx context.Context, org, repo, authorLogin string, since, until time.Time) (int, error) {
	shallow, err := s.Provider.ListCommits(ctx, org, repo, authorLogin, since, until)
	if err != nil {
		return 0, fmt.Errorf("list commits: %w", err)
	}
	if len(shallow) == 0 {
		return 0, nil
	}

	batch := make([]commits.Commit, 0, len(shallow))
	for _, c := range shallow {
		detail, err := s.Provider.GetCommit(ctx, org, repo, c.SHA)
		if err != nil {
			// A single unfetchable commit keeps its shallow record.
			telemetry.Error("scan.commit_detail_failed", map[string]any{
				"org":   org,
				"repo":  repo,
				"sha":   c.SHA,
				"error": err.Error(),
			})
			detail = c
		}
		detail.Org = org
		detail.Repo = repo
		detail.AuthorLogin = authorLogin
		batch = append(batch, detail)
	}
	if err := s.Commits.UpsertBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("upsert commits: %w", err)
	}
	return len(batch), nil
}

func (s *Scanner) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return defaultConcurrency
}
