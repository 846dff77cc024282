package joblog

import (
	"context"
	"database/sql"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

// Append inserts one audit row.
func (r *PGRepo) Append(ctx context.Context, entry Entry) error {
	const query = `
INSERT INTO job_logs (
	id, run_id, job_type, status, input, output, error, started_at, finished_at, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	var input, output []byte
	if len(entry.Input) > 0 {
		input = []byte(entry.Input)
	}
	if len(entry.Output) > 0 {
		output = []byte(entry.Output)
	}
	var errMsg sql.NullString
	if entry.Error != "" {
		errMsg = sql.NullString{String: entry.Error, Valid: true}
	}
	var finished sql.NullTime
	if entry.FinishedAt != nil {
		finished = sql.NullTime{Time: *entry.FinishedAt, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, query,
		entry.ID, entry.RunID, entry.JobType, entry.Status,
		input, output, errMsg, entry.StartedAt, finished, entry.CreatedAt,
	)
	return err
}

// ListByRun returns a run's audit rows, oldest first.
func (r *PGRepo) ListByRun(ctx context.Context, runID string) ([]Entry, error) {
	const query = `
SELECT id, run_id, job_type, status, input, output, error, started_at, finished_at, created_at
FROM job_logs
WHERE run_id = $1
ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var entry Entry
		var input, output []byte
		var errMsg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(
			&entry.ID, &entry.RunID, &entry.JobType, &entry.Status,
			&input, &output, &errMsg, &entry.StartedAt, &finished, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(input) > 0 {
			entry.Input = input
		}
		if len(output) > 0 {
			entry.Output = output
		}
		if errMsg.Valid {
			entry.Error = errMsg.String
		}
		if finished.Valid {
			t := finished.Time
			entry.FinishedAt = &t
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeleteByRun removes a run's audit rows. Used only by full restart.
func (r *PGRepo) DeleteByRun(ctx context.Context, runID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM job_logs WHERE run_id = $1`, runID)
	return err
}
