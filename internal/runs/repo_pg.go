package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres. Non-terminal uniqueness is backed
// by a partial unique index on (org, contributor, year).
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

func (r *PGRepo) Create(ctx context.Context, run AnalysisRun) error {
	progress, err := EncodeProgress(run.Progress)
	if err != nil {
		return err
	}
	options, err := json.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	const query = `
INSERT INTO analysis_runs (
	id, org, contributor, year, status, phase, progress, options,
	ai_confirmation, error, started_at, finished_at, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.DB.ExecContext(ctx, query,
		run.ID, run.Org, run.Contributor, run.Year, run.Status, run.Phase,
		progress, options, nullStr(run.AIConfirmation), nullStr(run.Error),
		nullTime(run.StartedAt), nullTime(run.FinishedAt), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrActiveRunExists
	}
	return err
}

const selectColumns = `
SELECT id, org, contributor, year, status, phase, progress, options,
       ai_confirmation, error, started_at, finished_at, created_at, updated_at
FROM analysis_runs`

func (r *PGRepo) GetByID(ctx context.Context, runID string) (AnalysisRun, error) {
	const query = selectColumns + ` WHERE id = $1`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisRun{}, ErrNotFound
	}
	return run, err
}

func (r *PGRepo) FindActive(ctx context.Context, org, contributor string, year int) (AnalysisRun, error) {
	const query = selectColumns + `
WHERE org = $1 AND contributor = $2 AND year = $3 AND status NOT IN ('DONE', 'FAILED')
LIMIT 1`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, org, contributor, year))
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisRun{}, ErrNotFound
	}
	return run, err
}

func (r *PGRepo) SaveSnapshot(ctx context.Context, runID, status, phase string, progress Progress) error {
	payload, err := EncodeProgress(progress)
	if err != nil {
		return err
	}
	const query = `
UPDATE analysis_runs
SET status = $2, phase = $3, progress = $4, updated_at = NOW()
WHERE id = $1`
	return r.exec(ctx, query, runID, status, phase, payload)
}

func (r *PGRepo) SetStarted(ctx context.Context, runID string, at time.Time) error {
	const query = `UPDATE analysis_runs SET started_at = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, runID, at)
}

func (r *PGRepo) SetFinished(ctx context.Context, runID, status string, at time.Time) error {
	const query = `UPDATE analysis_runs SET status = $2, finished_at = $3, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, runID, status, at)
}

func (r *PGRepo) SetFailed(ctx context.Context, runID, phase, message string) error {
	const query = `
UPDATE analysis_runs
SET status = 'FAILED', phase = $2, error = $3, finished_at = NOW(), updated_at = NOW()
WHERE id = $1`
	return r.exec(ctx, query, runID, phase, message)
}

func (r *PGRepo) SetStatus(ctx context.Context, runID, status string) error {
	const query = `UPDATE analysis_runs SET status = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, runID, status)
}

func (r *PGRepo) SetAIConfirmation(ctx context.Context, runID, decision string) error {
	const query = `UPDATE analysis_runs SET ai_confirmation = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, runID, nullStr(decision))
}

func (r *PGRepo) ClearError(ctx context.Context, runID string) error {
	const query = `UPDATE analysis_runs SET error = NULL, finished_at = NULL, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, runID)
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (AnalysisRun, error) {
	var run AnalysisRun
	var progress, options []byte
	var confirmation, errMsg sql.NullString
	var started, finished sql.NullTime
	if err := row.Scan(
		&run.ID, &run.Org, &run.Contributor, &run.Year, &run.Status, &run.Phase,
		&progress, &options, &confirmation, &errMsg, &started, &finished,
		&run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return AnalysisRun{}, err
	}
	decoded, err := DecodeProgress(progress)
	if err != nil {
		return AnalysisRun{}, err
	}
	run.Progress = decoded
	if len(options) > 0 {
		if err := json.Unmarshal(options, &run.Options); err != nil {
			return AnalysisRun{}, fmt.Errorf("decode options: %w", err)
		}
	}
	if confirmation.Valid {
		run.AIConfirmation = confirmation.String
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if started.Valid {
		t := started.Time
		run.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
