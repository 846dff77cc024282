package commits

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo stores commits in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu    sync.RWMutex
	bySHA map[string]Commit
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bySHA: make(map[string]Commit)}
}

// UpsertBatch inserts or replaces commits keyed by (org, repo, sha).
func (r *MemoryRepo) UpsertBatch(ctx context.Context, batch []Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range batch {
		r.bySHA[c.Org+"/"+c.Repo+"@"+c.SHA] = c
	}
	return nil
}

// ListByAuthorYear returns all commits for an author within a year, ordered by timestamp.
func (r *MemoryRepo) ListByAuthorYear(ctx context.Context, org, authorLogin string, year int) ([]Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Commit
	for _, c := range r.bySHA {
		if c.Org == org && c.AuthorLogin == authorLogin && c.CommittedAt.Year() == year {
			out = append(out, c)
		}
	}
	sortByTime(out)
	return out, nil
}

// ListByRepoAuthorYear returns an author's commits in one repository for a year, ordered by timestamp.
func (r *MemoryRepo) ListByRepoAuthorYear(ctx context.Context, org, repo, authorLogin string, year int) ([]Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Commit
	for _, c := range r.bySHA {
		if c.Org == org && c.Repo == repo && c.AuthorLogin == authorLogin && c.CommittedAt.Year() == year {
			out = append(out, c)
		}
	}
	sortByTime(out)
	return out, nil
}

// CountByAuthorYear returns the number of commits an author made within a year.
func (r *MemoryRepo) CountByAuthorYear(ctx context.Context, org, authorLogin string, year int) (int, error) {
	list, err := r.ListByAuthorYear(ctx, org, authorLogin, year)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func sortByTime(list []Commit) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CommittedAt.Equal(list[j].CommittedAt) {
			return list[i].SHA < list[j].SHA
		}
		return list[i].CommittedAt.Before(list[j].CommittedAt)
	})
}

var _ Repo = (*MemoryRepo)(nil)
