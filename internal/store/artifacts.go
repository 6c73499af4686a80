package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

// WriteArtifact persists the generic append-only evidence row every node
// writes, and additionally fans out three recognized shapes into their
// dedicated tables (rankings, policy_events, market_candles_batches) so
// the eval harness's FactsLoader and any ad-hoc reporting query can read
// them without parsing run_artifacts JSON by type string. Satisfies
// dag.ArtifactWriter.
func (s *Store) WriteArtifact(ctx context.Context, artifact domain.RunArtifact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_artifacts (run_id, step_name, artifact_type, artifact_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, artifact.RunID, artifact.StepName, string(artifact.ArtifactType), artifact.ArtifactJSON, artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: write artifact: %w", err)
	}

	switch artifact.ArtifactType {
	case "rankings":
		s.fanOutRanking(ctx, artifact)
	case "policy_event":
		s.fanOutPolicyEvent(ctx, artifact)
	case domain.ArtifactCandleBatch:
		s.fanOutCandleBatch(ctx, artifact)
	}
	return nil
}

// LatestArtifact returns the most recent artifact of the given type
// written by a run, used by the portfolio-analysis lookup path to read
// back the brief a just-finished PortfolioNode wrote. Returns ok=false
// with no error when the run never wrote one (e.g. it failed before
// reaching that node).
func (s *Store) LatestArtifact(ctx context.Context, runID string, artifactType domain.ArtifactType) (*domain.RunArtifact, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, step_name, artifact_type, artifact_json, created_at
		FROM run_artifacts
		WHERE run_id = $1 AND artifact_type = $2
		ORDER BY created_at DESC LIMIT 1
	`, runID, string(artifactType))

	var (
		artifact     domain.RunArtifact
		artifactKind string
		artifactJSON []byte
	)
	err := row.Scan(&artifact.RunID, &artifact.StepName, &artifactKind, &artifactJSON, &artifact.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: latest artifact: %w", err)
	}
	artifact.ArtifactType = domain.ArtifactType(artifactKind)
	artifact.ArtifactJSON = artifactJSON
	return &artifact, true, nil
}

// fanOutRanking and its siblings are best-effort: a failed fan-out write
// never fails the artifact write it rides alongside, since run_artifacts
// already holds the authoritative copy.
func (s *Store) fanOutRanking(ctx context.Context, artifact domain.RunArtifact) {
	var ranking domain.Ranking
	if err := json.Unmarshal(artifact.ArtifactJSON, &ranking); err != nil {
		return
	}
	if ranking.RankingID == "" {
		ranking.RankingID = symbols.NewID(symbols.PrefixRanking)
	}
	_, _ = s.pool.Exec(ctx, `
		INSERT INTO rankings (ranking_id, run_id, window, metric, table_json, selected_symbol, selected_score, rationale, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ranking.RankingID, artifact.RunID, ranking.Window, ranking.Metric, symbols.SafeJSON(ranking.Table),
		ranking.SelectedSymbol, ranking.SelectedScore, ranking.Rationale, artifact.CreatedAt)
}

func (s *Store) fanOutPolicyEvent(ctx context.Context, artifact domain.RunArtifact) {
	var event domain.PolicyEvent
	if err := json.Unmarshal(artifact.ArtifactJSON, &event); err != nil {
		return
	}
	_, _ = s.pool.Exec(ctx, `
		INSERT INTO policy_events (run_id, decision, reasons_json, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO UPDATE SET decision = $2, reasons_json = $3, created_at = $4
	`, artifact.RunID, string(event.Decision), symbols.SafeJSON(event.Reasons), artifact.CreatedAt)
}

func (s *Store) fanOutCandleBatch(ctx context.Context, artifact domain.RunArtifact) {
	var batch domain.CandleBatch
	if err := json.Unmarshal(artifact.ArtifactJSON, &batch); err != nil {
		return
	}
	_, _ = s.pool.Exec(ctx, `
		INSERT INTO market_candles_batches (run_id, product, interval, candles_json, query_params_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, artifact.RunID, batch.Product, batch.Interval, symbols.SafeJSON(batch.Candles), nullableJSON(batch.QueryParams), artifact.CreatedAt)
}
