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

// CreateTicket inserts a manually-settled ASSISTED_LIVE/STOCK trade
// ticket and returns its ID. Satisfies dag.TicketStore.
func (s *Store) CreateTicket(ctx context.Context, ticket domain.TradeTicket) (string, error) {
	if ticket.ID == "" {
		ticket.ID = symbols.NewID(symbols.PrefixTicket)
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_tickets (id, run_id, symbol, side, notional_usd, tif, expires_at, status, receipt_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ticket.ID, ticket.RunID, ticket.Symbol, string(ticket.Side), ticket.NotionalUSD, ticket.TIF,
		ticket.ExpiresAt, string(ticket.Status), nullableJSON(ticket.Receipt), ticket.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("store: create ticket: %w", err)
	}
	return ticket.ID, nil
}

// ErrTicketNotFound is returned when a trade ticket row does not exist.
var ErrTicketNotFound = fmt.Errorf("store: ticket not found")

const ticketColumns = `
	SELECT id, run_id, symbol, side, notional_usd, tif, expires_at, status, receipt_json, created_at
	FROM trade_tickets`

func scanTicket(row pgx.Row) (*domain.TradeTicket, error) {
	var (
		t       domain.TradeTicket
		side    string
		status  string
		receipt []byte
	)
	if err := row.Scan(&t.ID, &t.RunID, &t.Symbol, &side, &t.NotionalUSD, &t.TIF, &t.ExpiresAt, &status, &receipt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	t.Status = domain.TicketStatus(status)
	if len(receipt) > 0 {
		t.Receipt = receipt
	}
	return &t, nil
}

// GetTicket fetches one ticket by ID.
func (s *Store) GetTicket(ctx context.Context, ticketID string) (*domain.TradeTicket, error) {
	row := s.pool.QueryRow(ctx, ticketColumns+` WHERE id = $1`, ticketID)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("store: get ticket: %w", err)
	}
	return t, nil
}

// TicketsByRun lists every ticket created for a run.
func (s *Store) TicketsByRun(ctx context.Context, runID string) ([]domain.TradeTicket, error) {
	rows, err := s.pool.Query(ctx, ticketColumns+` WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: tickets by run: %w", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListPendingTickets lists every PENDING ticket, newest first, for the
// ASSISTED_LIVE trade-ticket inbox surface.
func (s *Store) ListPendingTickets(ctx context.Context) ([]domain.TradeTicket, error) {
	rows, err := s.pool.Query(ctx, ticketColumns+` WHERE status = 'PENDING' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list pending tickets: %w", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.TradeTicket, error) {
	var tickets []domain.TradeTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

// TicketReceipt carries the manually-reported fill details for an
// ASSISTED_LIVE ticket settled outside the system (the operator places
// the order on the broker's own UI and reports back what filled).
type TicketReceipt struct {
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	FilledQty     float64   `json:"filled_qty,omitempty"`
	FilledPrice   float64   `json:"filled_price,omitempty"`
	Fees          float64   `json:"fees,omitempty"`
	FillTime      time.Time `json:"fill_time,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// RecordReceipt stores a manually-reported fill and marks the ticket
// EXECUTED.
func (s *Store) RecordReceipt(ctx context.Context, ticketID string, receipt TicketReceipt) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trade_tickets SET status = 'EXECUTED', receipt_json = $2
		WHERE id = $1 AND status = 'PENDING'
	`, ticketID, symbols.SafeJSON(receipt))
	if err != nil {
		return fmt.Errorf("store: record ticket receipt: %w", err)
	}
	return nil
}

// CancelTicket marks a PENDING ticket CANCELLED.
func (s *Store) CancelTicket(ctx context.Context, ticketID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trade_tickets SET status = 'CANCELLED'
		WHERE id = $1 AND status = 'PENDING'
	`, ticketID)
	if err != nil {
		return fmt.Errorf("store: cancel ticket: %w", err)
	}
	return nil
}

// Enabled reports the tenant's kill_switch_enabled flag. A missing
// tenant row is treated as not-killed rather than an error, so the
// policy node degrades to its other checks instead of hard-failing on
// a tenant the onboarding flow hasn't yet written a row for. Satisfies
// dag.KillSwitch.
func (s *Store) Enabled(ctx context.Context, tenantID string) (bool, error) {
	var killed bool
	err := s.pool.QueryRow(ctx, `SELECT kill_switch_enabled FROM tenants WHERE tenant_id = $1`, tenantID).Scan(&killed)
	if err != nil {
		return false, nil
	}
	return killed, nil
}
