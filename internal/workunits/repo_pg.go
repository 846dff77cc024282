package workunits

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"contrib-backend/internal/impact"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// CreateBatch inserts units and their commit link rows in one transaction.
func (r *PGRepo) CreateBatch(ctx context.Context, units []WorkUnit) error {
	if len(units) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const unitQuery = `
INSERT INTO work_units (
	id, run_id, repo, contributor, start_at, end_at, commit_count, additions, deletions,
	files_changed, files, primary_paths, impact_score, impact_factors,
	is_hotfix, has_revert, is_sampled, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	const linkQuery = `
INSERT INTO work_unit_commits (work_unit_id, sha, position) VALUES ($1, $2, $3)`

	for _, u := range units {
		files, err := json.Marshal(u.Files)
		if err != nil {
			return fmt.Errorf("marshal unit files id=%s: %w", u.ID, err)
		}
		paths, err := json.Marshal(u.PrimaryPaths)
		if err != nil {
			return fmt.Errorf("marshal unit paths id=%s: %w", u.ID, err)
		}
		factors, err := json.Marshal(u.ImpactFactors)
		if err != nil {
			return fmt.Errorf("marshal unit factors id=%s: %w", u.ID, err)
		}
		if _, err := tx.ExecContext(ctx, unitQuery,
			u.ID, u.RunID, u.Repo, u.Contributor, u.StartAt, u.EndAt, u.CommitCount,
			u.Additions, u.Deletions, u.FilesChanged, files, paths,
			u.ImpactScore, factors, u.IsHotfix, u.HasRevert, u.IsSampled, u.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert work unit id=%s: %w", u.ID, err)
		}
		for i, sha := range u.CommitSHAs {
			if _, err := tx.ExecContext(ctx, linkQuery, u.ID, sha, i); err != nil {
				return fmt.Errorf("insert work unit commit id=%s sha=%s: %w", u.ID, sha, err)
			}
		}
	}
	return tx.Commit()
}

// GetByID returns a work unit by its ID.
func (r *PGRepo) GetByID(ctx context.Context, unitID string) (WorkUnit, error) {
	const query = selectColumns + ` WHERE id = $1 LIMIT 1`
	rows, err := r.DB.QueryContext(ctx, query, unitID)
	if err != nil {
		return WorkUnit{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return WorkUnit{}, err
		}
		return WorkUnit{}, ErrNotFound
	}
	return scanUnit(rows)
}

const selectColumns = `
SELECT id, run_id, repo, contributor, start_at, end_at, commit_count, additions, deletions,
       files_changed, files, primary_paths, impact_score, impact_factors,
       is_hotfix, has_revert, is_sampled, created_at
FROM work_units`

// ListByRun returns all units of a run ordered by repo, then start time.
func (r *PGRepo) ListByRun(ctx context.Context, runID string) ([]WorkUnit, error) {
	const query = selectColumns + ` WHERE run_id = $1 ORDER BY repo, start_at, id`
	return r.list(ctx, query, runID)
}

// ListSampledByRun returns a run's sampled units ordered by repo, then start time.
func (r *PGRepo) ListSampledByRun(ctx context.Context, runID string) ([]WorkUnit, error) {
	const query = selectColumns + ` WHERE run_id = $1 AND is_sampled ORDER BY repo, start_at, id`
	return r.list(ctx, query, runID)
}

// UpdateScore sets a unit's impact score and factor breakdown.
func (r *PGRepo) UpdateScore(ctx context.Context, unitID string, score float64, factors impact.Factors) error {
	payload, err := json.Marshal(factors)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE work_units SET impact_score = $2, impact_factors = $3 WHERE id = $1`,
		unitID, score, payload)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkSampled flags the listed units of a run and clears the flag elsewhere.
func (r *PGRepo) MarkSampled(ctx context.Context, runID string, unitIDs []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE work_units SET is_sampled = FALSE WHERE run_id = $1`, runID); err != nil {
		return err
	}
	for _, id := range unitIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE work_units SET is_sampled = TRUE WHERE run_id = $1 AND id = $2`, runID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteByRun removes all units of a run, including commit links.
func (r *PGRepo) DeleteByRun(ctx context.Context, runID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM work_unit_commits WHERE work_unit_id IN (SELECT id FROM work_units WHERE run_id = $1)`,
		runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM work_units WHERE run_id = $1`, runID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]WorkUnit, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUnit(rows *sql.Rows) (WorkUnit, error) {
	var u WorkUnit
	var files, paths, factors []byte
	if err := rows.Scan(
		&u.ID, &u.RunID, &u.Repo, &u.Contributor, &u.StartAt, &u.EndAt, &u.CommitCount,
		&u.Additions, &u.Deletions, &u.FilesChanged, &files, &paths,
		&u.ImpactScore, &factors, &u.IsHotfix, &u.HasRevert, &u.IsSampled, &u.CreatedAt,
	); err != nil {
		return WorkUnit{}, err
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &u.Files); err != nil {
			return WorkUnit{}, fmt.Errorf("unmarshal unit files id=%s: %w", u.ID, err)
		}
	}
	if len(paths) > 0 {
		if err := json.Unmarshal(paths, &u.PrimaryPaths); err != nil {
			return WorkUnit{}, fmt.Errorf("unmarshal unit paths id=%s: %w", u.ID, err)
		}
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &u.ImpactFactors); err != nil {
			return WorkUnit{}, fmt.Errorf("unmarshal unit factors id=%s: %w", u.ID, err)
		}
	}
	return u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
