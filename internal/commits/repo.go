package commits

import (
	"context"
	"errors"
)

// ErrNotFound indicates no commit matched the lookup.
var ErrNotFound = errors.New("commit not found")

// Repo defines persistence operations for raw commits.
type Repo interface {
	UpsertBatch(ctx context.Context, batch []Commit) error
	ListByAuthorYear(ctx context.Context, org, authorLogin string, year int) ([]Commit, error)
	ListByRepoAuthorYear(ctx context.Context, org, repo, authorLogin string, year int) ([]Commit, error)
	CountByAuthorYear(ctx context.Context, org, authorLogin string, year int) (int, error)
}
