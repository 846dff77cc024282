package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

// Upsert writes a report row, replacing any prior finalization output for
// the same (run, contributor).
func (r *PGRepo) Upsert(ctx context.Context, report YearlyReport) error {
	stats, err := json.Marshal(report.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	sections, err := json.Marshal(report.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	usage, err := json.Marshal(report.Usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	const query = `
INSERT INTO yearly_reports (
	id, run_id, org, contributor, year, stats, sections, usage, placeholder, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id, contributor) DO UPDATE SET
	stats = EXCLUDED.stats,
	sections = EXCLUDED.sections,
	usage = EXCLUDED.usage,
	placeholder = EXCLUDED.placeholder,
	created_at = EXCLUDED.created_at`
	_, err = r.DB.ExecContext(ctx, query,
		report.ID, report.RunID, report.Org, report.Contributor, report.Year,
		stats, sections, usage, report.Placeholder, report.CreatedAt,
	)
	return err
}

const selectColumns = `
SELECT id, run_id, org, contributor, year, stats, sections, usage, placeholder, created_at
FROM yearly_reports`

func (r *PGRepo) GetByRunContributor(ctx context.Context, runID, contributor string) (YearlyReport, error) {
	const query = selectColumns + ` WHERE run_id = $1 AND contributor = $2`
	report, err := scanReport(r.DB.QueryRowContext(ctx, query, runID, contributor))
	if errors.Is(err, sql.ErrNoRows) {
		return YearlyReport{}, ErrNotFound
	}
	return report, err
}

func (r *PGRepo) ListByRun(ctx context.Context, runID string) ([]YearlyReport, error) {
	const query = selectColumns + ` WHERE run_id = $1 ORDER BY contributor`
	rows, err := r.DB.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []YearlyReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

func (r *PGRepo) DeleteByRun(ctx context.Context, runID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM yearly_reports WHERE run_id = $1`, runID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (YearlyReport, error) {
	var report YearlyReport
	var stats, sections, usage []byte
	if err := row.Scan(
		&report.ID, &report.RunID, &report.Org, &report.Contributor, &report.Year,
		&stats, &sections, &usage, &report.Placeholder, &report.CreatedAt,
	); err != nil {
		return YearlyReport{}, err
	}
	if err := json.Unmarshal(stats, &report.Stats); err != nil {
		return YearlyReport{}, fmt.Errorf("decode stats: %w", err)
	}
	if err := json.Unmarshal(sections, &report.Sections); err != nil {
		return YearlyReport{}, fmt.Errorf("decode sections: %w", err)
	}
	if err := json.Unmarshal(usage, &report.Usage); err != nil {
		return YearlyReport{}, fmt.Errorf("decode usage: %w", err)
	}
	return report, nil
}
