package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"contrib-backend/internal/commits"
	"contrib-backend/internal/scan"
)

const perPage = 100

// Provider implements scan.Provider against the GitHub REST API.
type Provider struct {
	client *gh.Client
}

var _ scan.Provider = (*Provider)(nil)

// NewProvider builds a token-authenticated GitHub provider.
func NewProvider(ctx context.Context, token string) *Provider {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Provider{client: gh.NewClient(oauth2.NewClient(ctx, ts))}
}

// NewProviderWithClient wraps an existing client. Used by tests.
func NewProviderWithClient(client *gh.Client) *Provider {
	return &Provider{client: client}
}

// ListOrgRepos pages through the organization's repositories and keeps the
// ones pushed at or after the start of the year. Archived repositories are
// skipped.
func (p *Provider) ListOrgRepos(ctx context.Context, org string, year int) ([]string, error) {
	cutoff := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := &gh.RepositoryListByOrgOptions{
		Sort:        "pushed",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	var names []string
	for {
		repos, resp, err := p.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("list repos for %s: %w", org, err)
		}
		for _, repo := range repos {
			if repo.GetArchived() {
				continue
			}
			if repo.GetPushedAt().Time.Before(cutoff) {
				continue
			}
			names = append(names, repo.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

// ListCommits pages through the author's commits in the window. Results
// come back oldest first.
func (p *Provider) ListCommits(ctx context.Context, org, repo, authorLogin string, since, until time.Time) ([]commits.Commit, error) {
	opts := &gh.CommitsListOptions{
		Author:      authorLogin,
		Since:       since,
		Until:       until,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	var out []commits.Commit
	for {
		page, resp, err := p.client.Repositories.ListCommits(ctx, org, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list commits for %s/%s: %w", org, repo, err)
		}
		for _, rc := range page {
			out = append(out, shallowCommit(rc))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	// The API returns newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetCommit fetches one commit with per-file change stats.
func (p *Provider) GetCommit(ctx context.Context, org, repo, sha string) (commits.Commit, error) {
	rc, _, err := p.client.Repositories.GetCommit(ctx, org, repo, sha, nil)
	if err != nil {
		return commits.Commit{}, fmt.Errorf("get commit %s: %w", sha, err)
	}
	c := shallowCommit(rc)
	c.Additions = rc.GetStats().GetAdditions()
	c.Deletions = rc.GetStats().GetDeletions()
	for _, f := range rc.Files {
		c.Files = append(c.Files, commits.CommitFile{
			Path:      f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Patch:     boundedPatch(f.GetPatch()),
		})
	}
	return c, nil
}

// maxPatchChars bounds the diff excerpt stored per file.
const maxPatchChars = 2000

func boundedPatch(patch string) string {
	if len(patch) > maxPatchChars {
		return patch[:maxPatchChars] + "\n[truncated]"
	}
	return patch
}

func shallowCommit(rc *gh.RepositoryCommit) commits.Commit {
	return commits.Commit{
		SHA:         rc.GetSHA(),
		AuthorLogin: rc.GetAuthor().GetLogin(),
		Message:     rc.GetCommit().GetMessage(),
		CommittedAt: rc.GetCommit().GetAuthor().GetDate().Time.UTC(),
	}
}
