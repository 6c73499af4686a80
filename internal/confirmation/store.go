// Package confirmation implements the durable Confirmation Store: the
// three-state (PENDING -> CONFIRMED | CANCELLED | EXPIRED) record a user
// must explicitly approve before a trade proceeds to execution. The
// legacy in-memory store the original system kept alongside the durable
// one is deliberately not ported — see the Open Questions resolution in
// the design notes; this is the only confirmation path.
package confirmation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

// ErrNotFound is returned when a confirmation row does not exist (or does
// not belong to the given tenant).
var ErrNotFound = errors.New("confirmation: not found")

// DefaultTTL is the pending-confirmation lifetime applied by CreatePending
// when the caller doesn't override it.
const DefaultTTL = 300 * time.Second

// Pool is the subset of *pgxpool.Pool the store needs, narrowed so tests
// can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store is the pgx-backed Confirmation Store.
type Store struct {
	pool Pool
}

func New(pool Pool) *Store {
	return &Store{pool: pool}
}

// CreatePending inserts a new PENDING confirmation row and returns its ID.
func (s *Store) CreatePending(ctx context.Context, tenantID, conversationID string, proposal domain.TradeProposal, mode domain.ExecutionMode, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := symbols.NewID(symbols.PrefixConfirmation)
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	proposalJSON := symbols.SafeJSON(proposal)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_confirmations (
			id, tenant_id, conversation_id, proposal_json, mode, status, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, 'PENDING', $6, $7)
	`, id, tenantID, conversationID, proposalJSON, string(mode), now, expiresAt)
	if err != nil {
		return "", fmt.Errorf("confirmation: create pending: %w", err)
	}
	return id, nil
}

// GetByID fetches a confirmation scoped to tenantID.
func (s *Store) GetByID(ctx context.Context, tenantID, id string) (*domain.PendingConfirmation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, conversation_id, proposal_json, mode, status,
		       created_at, expires_at, confirmed_at, run_id, insight_json
		FROM trade_confirmations
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanConfirmation(row)
}

// GetLatestPendingForConversation fetches the most recent PENDING
// confirmation for a conversation, used when the user types CONFIRM/CANCEL
// without an explicit confirmation_id.
func (s *Store) GetLatestPendingForConversation(ctx context.Context, tenantID, conversationID string) (*domain.PendingConfirmation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, conversation_id, proposal_json, mode, status,
		       created_at, expires_at, confirmed_at, run_id, insight_json
		FROM trade_confirmations
		WHERE conversation_id = $1 AND tenant_id = $2 AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID, tenantID)
	return scanConfirmation(row)
}

// MarkConfirmed is the atomic compare-and-set idempotency backbone:
// it transitions PENDING -> CONFIRMED and stamps run_id, but only for the
// first caller. Subsequent callers — concurrent or retried — get false
// and must read back the row to discover the run_id the first caller set.
func (s *Store) MarkConfirmed(ctx context.Context, tenantID, id, runID string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE trade_confirmations
		SET status = 'CONFIRMED', confirmed_at = $1, run_id = $2
		WHERE id = $3 AND tenant_id = $4 AND status = 'PENDING'
	`, time.Now().UTC(), runID, id, tenantID)
	if err != nil {
		return false, fmt.Errorf("confirmation: mark confirmed: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkCancelled transitions PENDING -> CANCELLED. A no-op (not an error)
// if the row is already terminal.
func (s *Store) MarkCancelled(ctx context.Context, tenantID, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trade_confirmations
		SET status = 'CANCELLED'
		WHERE id = $1 AND tenant_id = $2 AND status = 'PENDING'
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("confirmation: mark cancelled: %w", err)
	}
	return nil
}

// MarkExpired transitions PENDING -> EXPIRED. Called when a read observes
// now > expires_at; expiry is detected on read, not by a background sweep.
func (s *Store) MarkExpired(ctx context.Context, tenantID, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trade_confirmations
		SET status = 'EXPIRED'
		WHERE id = $1 AND tenant_id = $2 AND status = 'PENDING'
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("confirmation: mark expired: %w", err)
	}
	return nil
}

// UpdateProposal overwrites proposal_json, used when the selection engine
// locks a concrete product_id into the proposal after staging.
func (s *Store) UpdateProposal(ctx context.Context, id string, proposal domain.TradeProposal) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trade_confirmations SET proposal_json = $1 WHERE id = $2
	`, symbols.SafeJSON(proposal), id)
	if err != nil {
		return fmt.Errorf("confirmation: update proposal: %w", err)
	}
	return nil
}

// UpdateInsight persists the pre-confirm explanation.
func (s *Store) UpdateInsight(ctx context.Context, id string, insight json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trade_confirmations SET insight_json = $1 WHERE id = $2
	`, insight, id)
	if err != nil {
		return fmt.Errorf("confirmation: update insight: %w", err)
	}
	return nil
}

func scanConfirmation(row pgx.Row) (*domain.PendingConfirmation, error) {
	var (
		c            domain.PendingConfirmation
		proposalJSON []byte
		mode         string
		status       string
		confirmedAt  *time.Time
		runID        *string
		insightJSON  []byte
	)

	err := row.Scan(
		&c.ID, &c.TenantID, &c.ConversationID, &proposalJSON, &mode, &status,
		&c.CreatedAt, &c.ExpiresAt, &confirmedAt, &runID, &insightJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("confirmation: scan: %w", err)
	}

	c.Mode = domain.ExecutionMode(mode)
	c.Status = domain.ConfirmationStatus(status)
	c.ConfirmedAt = confirmedAt
	c.RunID = runID
	c.Insight = json.RawMessage(insightJSON)

	if len(proposalJSON) > 0 {
		if err := json.Unmarshal(proposalJSON, &c.Proposal); err != nil {
			return nil, fmt.Errorf("confirmation: unmarshal proposal: %w", err)
		}
	}

	return &c, nil
}
