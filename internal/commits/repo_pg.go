package commits

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// UpsertBatch inserts commits, replacing existing rows for the same (org, repo, sha).
func (r *PGRepo) UpsertBatch(ctx context.Context, batch []Commit) error {
	if len(batch) == 0 {
		return nil
	}
	const query = `
INSERT INTO commits (sha, org, repo, author_login, message, committed_at, additions, deletions, files)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (org, repo, sha) DO UPDATE SET
	author_login = EXCLUDED.author_login,
	message = EXCLUDED.message,
	committed_at = EXCLUDED.committed_at,
	additions = EXCLUDED.additions,
	deletions = EXCLUDED.deletions,
	files = EXCLUDED.files`
	for _, c := range batch {
		files, err := json.Marshal(c.Files)
		if err != nil {
			return fmt.Errorf("marshal commit files sha=%s: %w", c.SHA, err)
		}
		if _, err := r.DB.ExecContext(ctx, query,
			c.SHA, c.Org, c.Repo, c.AuthorLogin, c.Message, c.CommittedAt, c.Additions, c.Deletions, files,
		); err != nil {
			return fmt.Errorf("upsert commit sha=%s: %w", c.SHA, err)
		}
	}
	return nil
}

// ListByAuthorYear returns all commits for an author within a year, ordered by timestamp.
func (r *PGRepo) ListByAuthorYear(ctx context.Context, org, authorLogin string, year int) ([]Commit, error) {
	const query = `
SELECT sha, org, repo, author_login, message, committed_at, additions, deletions, files
FROM commits
WHERE org = $1 AND author_login = $2 AND EXTRACT(YEAR FROM committed_at) = $3
ORDER BY committed_at, sha`
	return r.list(ctx, query, org, authorLogin, year)
}

// ListByRepoAuthorYear returns an author's commits in one repository for a year, ordered by timestamp.
func (r *PGRepo) ListByRepoAuthorYear(ctx context.Context, org, repo, authorLogin string, year int) ([]Commit, error) {
	const query = `
SELECT sha, org, repo, author_login, message, committed_at, additions, deletions, files
FROM commits
WHERE org = $1 AND repo = $2 AND author_login = $3 AND EXTRACT(YEAR FROM committed_at) = $4
ORDER BY committed_at, sha`
	return r.list(ctx, query, org, repo, authorLogin, year)
}

// CountByAuthorYear returns the number of commits an author made within a year.
func (r *PGRepo) CountByAuthorYear(ctx context.Context, org, authorLogin string, year int) (int, error) {
	const query = `
SELECT COUNT(*)
FROM commits
WHERE org = $1 AND author_login = $2 AND EXTRACT(YEAR FROM committed_at) = $3`
	var count int
	if err := r.DB.QueryRowContext(ctx, query, org, authorLogin, year).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]Commit, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Commit
	for rows.Next() {
		var c Commit
		var files []byte
		if err := rows.Scan(&c.SHA, &c.Org, &c.Repo, &c.AuthorLogin, &c.Message, &c.CommittedAt, &c.Additions, &c.Deletions, &files); err != nil {
			return nil, err
		}
		if len(files) > 0 {
			if err := json.Unmarshal(files, &c.Files); err != nil {
				return nil, fmt.Errorf("unmarshal commit files sha=%s: %w", c.SHA, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
