package reviews

import (
	"context"
	"database/sql"

	"contrib-backend/internal/llm"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create appends a review row.
func (r *PGRepo) Create(ctx context.Context, review AiReview) error {
	const query = `
INSERT INTO ai_reviews (
	id, run_id, stage, work_unit_id, contributor, result, prompt_version, prompt_hash,
	input_tokens, output_tokens, cost_usd, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.DB.ExecContext(ctx, query,
		review.ID, review.RunID, review.Stage, nullString(review.WorkUnitID), nullString(review.Contributor),
		[]byte(review.Result), review.PromptVersion, nullString(review.PromptHash),
		review.InputTokens, review.OutputTokens, review.CostUSD, review.CreatedAt,
	)
	return err
}

const selectColumns = `
SELECT id, run_id, stage, work_unit_id, contributor, result, prompt_version, prompt_hash,
       input_tokens, output_tokens, cost_usd, created_at
FROM ai_reviews`

// GetLatestForUnit returns the newest stage result for a work unit.
func (r *PGRepo) GetLatestForUnit(ctx context.Context, runID string, stage int, workUnitID string) (AiReview, error) {
	const query = selectColumns + `
WHERE run_id = $1 AND stage = $2 AND work_unit_id = $3
ORDER BY created_at DESC, id DESC
LIMIT 1`
	return r.one(ctx, query, runID, stage, workUnitID)
}

// GetLatestForContributor returns the newest stage result for a contributor.
func (r *PGRepo) GetLatestForContributor(ctx context.Context, runID string, stage int, contributor string) (AiReview, error) {
	const query = selectColumns + `
WHERE run_id = $1 AND stage = $2 AND work_unit_id IS NULL AND contributor = $3
ORDER BY created_at DESC, id DESC
LIMIT 1`
	return r.one(ctx, query, runID, stage, contributor)
}

// ListByRunStage returns a run's rows for one stage, oldest first.
func (r *PGRepo) ListByRunStage(ctx context.Context, runID string, stage int) ([]AiReview, error) {
	const query = selectColumns + ` WHERE run_id = $1 AND stage = $2 ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, runID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AiReview
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, review)
	}
	return out, rows.Err()
}

// SumUsageByRun totals token usage and cost across a run's rows.
func (r *PGRepo) SumUsageByRun(ctx context.Context, runID string) (llm.Usage, error) {
	const query = `
SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
FROM ai_reviews
WHERE run_id = $1`
	var usage llm.Usage
	if err := r.DB.QueryRowContext(ctx, query, runID).Scan(&usage.InputTokens, &usage.OutputTokens, &usage.CostUSD); err != nil {
		return llm.Usage{}, err
	}
	return usage, nil
}

// DeleteByRun removes all rows for a run.
func (r *PGRepo) DeleteByRun(ctx context.Context, runID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM ai_reviews WHERE run_id = $1`, runID)
	return err
}

func (r *PGRepo) one(ctx context.Context, query string, args ...any) (AiReview, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return AiReview{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return AiReview{}, err
		}
		return AiReview{}, ErrNotFound
	}
	return scanReview(rows)
}

func scanReview(rows *sql.Rows) (AiReview, error) {
	var review AiReview
	var workUnitID, contributor, promptHash sql.NullString
	var result []byte
	if err := rows.Scan(
		&review.ID, &review.RunID, &review.Stage, &workUnitID, &contributor, &result,
		&review.PromptVersion, &promptHash, &review.InputTokens, &review.OutputTokens,
		&review.CostUSD, &review.CreatedAt,
	); err != nil {
		return AiReview{}, err
	}
	review.WorkUnitID = workUnitID.String
	review.Contributor = contributor.String
	review.PromptHash = promptHash.String
	review.Result = result
	return review, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Repo = (*PGRepo)(nil)
