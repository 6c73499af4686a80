package market

import (
	"context"
	"time"

	"github.com/tradeassist/engine/internal/domain"
)

// PlaceOrderRequest is a market (notional-denominated) order request.
// RunID/TenantID are carried only for attribution on the persisted order
// row (LIVE exchange orders don't need them to place the order itself);
// a PAPER broker books the simulated account ledger regardless of tenant.
type PlaceOrderRequest struct {
	ProductID     string
	Side          domain.Side
	NotionalUSD   float64
	ClientOrderID string
	RunID         string
	TenantID      string
}

// Broker is the order-placement boundary the execution node talks to.
// PAPER mode is served by a simulated broker that mirrors this
// interface; LIVE mode is served by the exchange's real order API.
type Broker interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error)
	GetOrderFills(ctx context.Context, orderID string) ([]domain.Fill, error)
	GetBalances(ctx context.Context) ([]domain.Holding, error)

	// GetOrderHistory returns FILLED orders since the given time, most
	// recent first, capped at limit. Used by the portfolio node's
	// trading-behavior summary; never invoked by the trade pipeline
	// itself.
	GetOrderHistory(ctx context.Context, since time.Time, limit int) ([]domain.Order, error)
}
