package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tradeassist/engine/internal/domain"
)

const evalResultColumns = `
	SELECT eval_id, run_id, eval_name, score, reasons_json, evaluator_type, eval_category,
	       thresholds_json, details_json, explanation, explanation_source, created_at
	FROM eval_results`

func scanEvalResult(row pgx.Row) (*domain.EvalResult, error) {
	var (
		r           domain.EvalResult
		category    string
		reasonsJSON []byte
		createdAt   time.Time
	)
	if err := row.Scan(&r.EvalID, &r.RunID, &r.EvalName, &r.Score, &reasonsJSON, &r.EvaluatorType,
		&category, &r.Thresholds, &r.Details, &r.Explanation, &r.ExplanationSource, &createdAt); err != nil {
		return nil, err
	}
	r.EvalCategory = domain.EvalCategory(category)
	_ = jsonUnmarshal(reasonsJSON, &r.Reasons)
	return &r, nil
}

// ResultsByRun fetches every eval_results row for one run, in the fixed
// registry order they were written.
func (s *Store) ResultsByRun(ctx context.Context, runID string) ([]domain.EvalResult, error) {
	rows, err := s.pool.Query(ctx, evalResultColumns+` WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: results by run: %w", err)
	}
	defer rows.Close()
	return scanEvalResults(rows)
}

// ResultsSince fetches every eval_results row created at or after a
// cutoff, for the eval dashboard's windowed summary (24h/48h/7d).
func (s *Store) ResultsSince(ctx context.Context, since time.Time) ([]domain.EvalResult, error) {
	rows, err := s.pool.Query(ctx, evalResultColumns+` WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("store: results since: %w", err)
	}
	defer rows.Close()
	return scanEvalResults(rows)
}

func scanEvalResults(rows pgx.Rows) ([]domain.EvalResult, error) {
	var results []domain.EvalResult
	for rows.Next() {
		r, err := scanEvalResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// RecordExplanation stamps one eval_results row with a human-readable
// explanation for why it scored the way it did, for POST
// /run/{run_id}/explain. explanationSource names where the text came
// from ("template" for the rule-based summaries this build generates).
func (s *Store) RecordExplanation(ctx context.Context, runID, evalName, explanation, explanationSource string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE eval_results SET explanation = $3, explanation_source = $4
		WHERE run_id = $1 AND eval_name = $2
	`, runID, evalName, explanation, explanationSource)
	if err != nil {
		return fmt.Errorf("store: record eval explanation: %w", err)
	}
	return nil
}
