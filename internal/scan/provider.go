package scan

import (
	"context"
	"time"

	"contrib-backend/internal/commits"
)

// Provider abstracts the version-control backend used by the scanning
// phases. Adapters own pagination and API quirks.
type Provider interface {
	// ListOrgRepos returns the names of repositories in the organization
	// that saw any push activity at or after the start of the year.
	ListOrgRepos(ctx context.Context, org string, year int) ([]string, error)
	// ListCommits returns shallow commit records (no file stats) authored
	// by the login in the given window, oldest first.
	ListCommits(ctx context.Context, org, repo, authorLogin string, since, until time.Time) ([]commits.Commit, error)
	// GetCommit returns one commit with its per-file change stats.
	GetCommit(ctx context.Context, org, repo, sha string) (commits.Commit, error)
}
