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

// LatestSnapshot fetches a tenant's most recent portfolio snapshot, used
// by the portfolio node's PAPER path to seed balances when the run
// itself doesn't move the ledger. Satisfies dag.PortfolioSnapshotReader.
func (s *Store) LatestSnapshot(ctx context.Context, tenantID string) (*domain.PortfolioSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT tenant_id, run_id, balances_json, positions_json, cash_usd, total_value_usd, ts
		FROM portfolio_snapshots
		WHERE tenant_id = $1
		ORDER BY ts DESC LIMIT 1
	`, tenantID)

	var (
		snap         domain.PortfolioSnapshot
		runID        *string
		balancesJSON []byte
		positionsJSON []byte
	)
	err := row.Scan(&snap.TenantID, &runID, &balancesJSON, &positionsJSON, &snap.CashUSD, &snap.TotalValue, &snap.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: latest snapshot: %w", err)
	}
	if runID != nil {
		snap.RunID = *runID
	}
	_ = jsonUnmarshal(balancesJSON, &snap.Balances)
	_ = jsonUnmarshal(positionsJSON, &snap.Positions)
	return &snap, nil
}

// WriteSnapshot appends a new portfolio snapshot row. Satisfies
// dag.PortfolioSnapshotWriter.
func (s *Store) WriteSnapshot(ctx context.Context, snapshot domain.PortfolioSnapshot) error {
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}
	var runID interface{}
	if snapshot.RunID != "" {
		runID = snapshot.RunID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO portfolio_snapshots (tenant_id, run_id, balances_json, positions_json, cash_usd, total_value_usd, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, snapshot.TenantID, runID, symbols.SafeJSON(snapshot.Balances), symbols.SafeJSON(snapshot.Positions),
		snapshot.CashUSD, snapshot.TotalValue, snapshot.Timestamp)
	if err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	return nil
}

// RecentFilledOrders returns a tenant's FILLED orders since the given
// time, most recent first, capped at limit. Satisfies
// dag.OrderHistoryStore.
func (s *Store) RecentFilledOrders(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, run_id, tenant_id, symbol, side, notional_usd, status,
		       filled_qty, avg_fill_price, fees, client_order_id, created_at
		FROM orders
		WHERE tenant_id = $1 AND created_at >= $2 AND status = 'FILLED'
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent filled orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var side, status string
		if err := rows.Scan(&o.OrderID, &o.RunID, &o.TenantID, &o.Symbol, &side, &o.NotionalUSD,
			&status, &o.FilledQty, &o.AvgFillPrice, &o.Fees, &o.ClientOrderID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		o.Side = domain.Side(side)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// BackfillFill updates an order's fill accounting after the broker
// reports it. A no-op when the broker fills synchronously (PAPER
// already wrote these fields at placement) since the UPDATE is
// idempotent. Satisfies dag.OrderBackfiller.
func (s *Store) BackfillFill(ctx context.Context, clientOrderID string, filledQty, avgFillPrice float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders SET filled_qty = $1, avg_fill_price = $2, status = 'FILLED'
		WHERE client_order_id = $3
	`, filledQty, avgFillPrice, clientOrderID)
	if err != nil {
		return fmt.Errorf("store: backfill fill: %w", err)
	}
	return nil
}
