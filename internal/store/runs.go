package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

// ErrRunNotFound is returned when a run row does not exist (or does not
// belong to the given tenant, for the tenant-scoped lookups).
var ErrRunNotFound = errors.New("store: run not found")

// CreateRun inserts a new run row, generating a run_id if the caller
// did not set one, and returns the final run_id. Satisfies
// endpoint.RunStore.
func (s *Store) CreateRun(ctx context.Context, run domain.Run) (string, error) {
	if run.RunID == "" {
		run.RunID = symbols.NewID(symbols.PrefixRun)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = domain.RunCreated
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (
			run_id, tenant_id, execution_mode, source_run_id, asset_class, news_enabled,
			conversation_id, locked_product_id, tradability_verified, command_text, intent,
			execution_plan_json, trade_proposal_json, status, failure_code, failure_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, run.RunID, run.TenantID, string(run.ExecutionMode), run.SourceRunID, string(run.AssetClass),
		run.NewsEnabled, run.ConversationID, run.LockedProductID, run.TradabilityVerified, run.CommandText, string(run.Intent),
		nullableJSON(run.ExecutionPlan), nullableJSON(symbols.SafeJSON(run.TradeProposal)), string(run.Status),
		run.FailureCode, run.FailureReason, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("store: create run: %w", err)
	}
	return run.RunID, nil
}

// ActiveRunID reports the tenant's most recent CREATED or RUNNING run, if any.
// Satisfies endpoint.RunStore and backs the active-run guard.
func (s *Store) ActiveRunID(ctx context.Context, tenantID string) (string, bool, error) {
	var runID string
	err := s.pool.QueryRow(ctx, `
		SELECT run_id FROM runs
		WHERE tenant_id = $1 AND status IN ('CREATED', 'RUNNING')
		ORDER BY created_at DESC LIMIT 1
	`, tenantID).Scan(&runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: active run id: %w", err)
	}
	return runID, true, nil
}

// GetRun fetches a run scoped to tenantID. Satisfies endpoint.RunStore.
func (s *Store) GetRun(ctx context.Context, tenantID, runID string) (*domain.Run, error) {
	row := s.pool.QueryRow(ctx, runColumns+` FROM runs WHERE run_id = $1 AND tenant_id = $2`, runID, tenantID)
	return scanRun(row)
}

// GetRunForExecution fetches a run without a tenant scope, the DAG
// runner's trusted-internal-lookup path. Satisfies dag.RunStore.
func (s *Store) GetRunForExecution(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.pool.QueryRow(ctx, runColumns+` FROM runs WHERE run_id = $1`, runID)
	return scanRun(row)
}

// UpdateStatus transitions a run's status, stamping failure detail and
// completed_at when the new status is terminal. Satisfies dag.RunStore.
func (s *Store) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, failureCode, failureReason string) error {
	var completedAt *time.Time
	if status == domain.RunCompleted || status == domain.RunFailed {
		now := time.Now().UTC()
		completedAt = &now
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE runs
		SET status = $1, failure_code = $2, failure_reason = $3, updated_at = NOW(), completed_at = COALESCE($4, completed_at)
		WHERE run_id = $5
	`, string(status), failureCode, failureReason, completedAt, runID)
	if err != nil {
		return fmt.Errorf("store: update run status: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs across all tenants, newest
// first, for the eval dashboard's GET /runs?limit&offset surface.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]domain.Run, error) {
	rows, err := s.pool.Query(ctx, runColumns+`
		FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ListRunsByConversation returns every run created from a conversation,
// newest first, for the eval dashboard's GET /conversations/{id} surface.
func (s *Store) ListRunsByConversation(ctx context.Context, conversationID string) ([]domain.Run, error) {
	rows, err := s.pool.Query(ctx, runColumns+`
		FROM runs WHERE conversation_id = $1 ORDER BY created_at DESC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list runs by conversation: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows pgx.Rows) ([]domain.Run, error) {
	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkTradabilityVerified flips the run's tradability_verified flag,
// the gate the execution node checks before an unattended LIVE order.
// Satisfies dag.RunStore.
func (s *Store) MarkTradabilityVerified(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE runs SET tradability_verified = TRUE, updated_at = NOW() WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("store: mark tradability verified: %w", err)
	}
	return nil
}

const runColumns = `
	SELECT run_id, tenant_id, execution_mode, source_run_id, asset_class, news_enabled,
	       conversation_id, locked_product_id, tradability_verified, command_text, intent,
	       execution_plan_json, trade_proposal_json, status, failure_code, failure_reason,
	       created_at, updated_at, completed_at`

func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		r              domain.Run
		mode           string
		assetClass     string
		intent         string
		status         string
		executionPlan  []byte
		tradeProposal  []byte
	)
	err := row.Scan(
		&r.RunID, &r.TenantID, &mode, &r.SourceRunID, &assetClass, &r.NewsEnabled,
		&r.ConversationID, &r.LockedProductID, &r.TradabilityVerified, &r.CommandText, &intent,
		&executionPlan, &tradeProposal, &status, &r.FailureCode, &r.FailureReason,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("store: scan run: %w", err)
	}
	r.ExecutionMode = domain.ExecutionMode(mode)
	r.AssetClass = domain.AssetClass(assetClass)
	r.Intent = domain.IntentType(intent)
	r.Status = domain.RunStatus(status)
	if len(executionPlan) > 0 {
		r.ExecutionPlan = executionPlan
	}
	if len(tradeProposal) > 0 && string(tradeProposal) != "null" {
		var proposal domain.TradeProposal
		if err := jsonUnmarshal(tradeProposal, &proposal); err != nil {
			return nil, fmt.Errorf("store: unmarshal trade proposal: %w", err)
		}
		r.TradeProposal = &proposal
	}
	return &r, nil
}
