package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contrib-backend/internal/commits"
)

type fakeProvider struct {
	mu            sync.Mutex
	byRepo        map[string][]commits.Commit
	failList      map[string]bool
	failDetail    map[string]bool
	detailCalls   int
	listedWindows []time.Time
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		byRepo:     map[string][]commits.Commit{},
		failList:   map[string]bool{},
		failDetail: map[string]bool{},
	}
}

func (f *fakeProvider) ListOrgRepos(ctx context.Context, org string, year int) ([]string, error) {
	var names []string
	for name := range f.byRepo {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeProvider) ListCommits(ctx context.Context, org, repo, authorLogin string, since, until time.Time) ([]commits.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedWindows = append(f.listedWindows, since, until)
	if f.failList[repo] {
		return nil, errors.New("api error")
	}
	return f.byRepo[repo], nil
}

func (f *fakeProvider) GetCommit(ctx context.Context, org, repo, sha string) (commits.Commit, error) {
	f.mu.Lock()
	f.detailCalls++
	f.mu.Unlock()
	if f.failDetail[sha] {
		return commits.Commit{}, errors.New("detail error")
	}
	for _, c := range f.byRepo[repo] {
		if c.SHA == sha {
			detailed := c
			detailed.Additions = 10
			detailed.Deletions = 2
			detailed.Files = []commits.CommitFile{{Path: "main.go", Status: "modified", Additions: 10, Deletions: 2}}
			return detailed, nil
		}
	}
	return commits.Commit{}, errors.New("unknown sha")
}

func seedProvider(p *fakeProvider, repo string, shas ...string) {
	base := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	for i, sha := range shas {
		p.byRepo[repo] = append(p.byRepo[repo], commits.Commit{
			SHA:         sha,
			Message:     "change " + sha,
			CommittedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
}

func TestScanCommitsIngestsAllRepos(t *testing.T) {
	provider := newFakeProvider()
	seedProvider(provider, "widgets", "aaa", "bbb")
	seedProvider(provider, "gadgets", "ccc")
	store := commits.NewMemoryRepo()
	scanner := &Scanner{Provider: provider, Commits: store, Concurrency: 2}

	outcome, err := scanner.ScanCommits(context.Background(), "acme", []string{"widgets", "gadgets"}, "octocat", 2024, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Completed)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, 3, outcome.CommitsFound)

	stored, err := store.ListByAuthorYear(context.Background(), "acme", "octocat", 2024)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for _, c := range stored {
		assert.Equal(t, "acme", c.Org)
		assert.Equal(t, "octocat", c.AuthorLogin)
		assert.Equal(t, 10, c.Additions)
		require.Len(t, c.Files, 1)
	}
}

func TestScanCommitsIsolatesRepoFailures(t *testing.T) {
	provider := newFakeProvider()
	seedProvider(provider, "widgets", "aaa")
	seedProvider(provider, "broken", "bbb")
	provider.failList["broken"] = true
	store := commits.NewMemoryRepo()
	scanner := &Scanner{Provider: provider, Commits: store, Concurrency: 1}

	outcome, err := scanner.ScanCommits(context.Background(), "acme", []string{"widgets", "broken"}, "octocat", 2024, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Completed)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 1, outcome.CommitsFound)
}

func TestScanCommitsKeepsShallowRecordOnDetailFailure(t *testing.T) {
	provider := newFakeProvider()
	seedProvider(provider, "widgets", "aaa")
	provider.failDetail["aaa"] = true
	store := commits.NewMemoryRepo()
	scanner := &Scanner{Provider: provider, Commits: store}

	outcome, err := scanner.ScanCommits(context.Background(), "acme", []string{"widgets"}, "octocat", 2024, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.CommitsFound)

	stored, err := store.ListByAuthorYear(context.Background(), "acme", "octocat", 2024)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 0, stored[0].Additions)
	assert.Empty(t, stored[0].Files)
}

func TestScanCommitsUsesYearWindow(t *testing.T) {
	provider := newFakeProvider()
	seedProvider(provider, "widgets", "aaa")
	scanner := &Scanner{Provider: provider, Commits: commits.NewMemoryRepo()}

	_, err := scanner.ScanCommits(context.Background(), "acme", []string{"widgets"}, "octocat", 2024, nil, nil)
	require.NoError(t, err)

	require.Len(t, provider.listedWindows, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), provider.listedWindows[0])
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), provider.listedWindows[1])
}

func TestScanCommitsStopsBetweenRepos(t *testing.T) {
	provider := newFakeProvider()
	for _, repo := range []string{"r1", "r2", "r3", "r4"} {
		seedProvider(provider, repo, repo+"-sha")
	}
	scanner := &Scanner{Provider: provider, Commits: commits.NewMemoryRepo(), Concurrency: 1}

	checks := 0
	stop := func() bool {
		checks++
		return checks > 2
	}
	outcome, err := scanner.ScanCommits(context.Background(), "acme", []string{"r1", "r2", "r3", "r4"}, "octocat", 2024, stop, nil)
	require.NoError(t, err)
	assert.Less(t, outcome.Completed, 4)
}

func TestScanCommitsEmptyRepoList(t *testing.T) {
	scanner := &Scanner{Provider: newFakeProvider(), Commits: commits.NewMemoryRepo()}
	outcome, err := scanner.ScanCommits(context.Background(), "acme", nil, "octocat", 2024, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Outcome{}, outcome)
}
