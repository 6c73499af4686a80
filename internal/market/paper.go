package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

// defaultSimPrice is the fallback mid-price used when no Provider is wired
// or a quote can't be fetched, matching the teacher mock exchange's
// hardcoded simulation price.
const defaultSimPrice = 50000.0

// FeeModel is the slippage/market-impact/fee model a PaperBroker fills
// orders against, grounded on the teacher's MockExchange simulation
// parameters.
type FeeModel struct {
	BaseSlippage float64
	MarketImpact float64
	MaxSlippage  float64
	TakerFee     float64
}

// DefaultFeeModel matches the teacher's Binance-like defaults.
func DefaultFeeModel() FeeModel {
	return FeeModel{BaseSlippage: 0.0005, MarketImpact: 0.0001, MaxSlippage: 0.003, TakerFee: 0.001}
}

// Pool is the subset of *pgxpool.Pool the paper broker needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PaperBroker is a simulated single-account Broker: market orders fill
// immediately against a provider-sourced (or fallback) price with slippage
// and a flat taker fee, booked against a shared ledger table.
type PaperBroker struct {
	pool     Pool
	provider Provider
	fees     FeeModel
	mu       sync.Mutex
}

func NewPaperBroker(pool Pool, provider Provider, fees FeeModel) *PaperBroker {
	return &PaperBroker{pool: pool, provider: provider, fees: fees}
}

func (b *PaperBroker) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if req.NotionalUSD <= 0 {
		return nil, fmt.Errorf("paper broker: notional must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	midPrice := b.quote(ctx, req.ProductID)
	slippage := b.slippage(req.NotionalUSD)

	var fillPrice float64
	switch req.Side {
	case domain.SideBuy:
		fillPrice = midPrice * (1 + slippage)
	case domain.SideSell:
		fillPrice = midPrice * (1 - slippage)
	default:
		return nil, fmt.Errorf("paper broker: invalid side %q", req.Side)
	}

	fee := req.NotionalUSD * b.fees.TakerFee
	qty := req.NotionalUSD / fillPrice
	now := time.Now().UTC()

	base := symbols.ToBase(req.ProductID)
	if err := b.applyLedger(ctx, req.Side, base, qty, req.NotionalUSD, fee); err != nil {
		return nil, fmt.Errorf("paper broker: apply ledger: %w", err)
	}

	order := domain.Order{
		OrderID:       symbols.NewID(symbols.PrefixOrder),
		RunID:         req.RunID,
		TenantID:      req.TenantID,
		Symbol:        req.ProductID,
		Side:          req.Side,
		NotionalUSD:   req.NotionalUSD,
		Status:        domain.OrderStatusFilled,
		FilledQty:     qty,
		AvgFillPrice:  fillPrice,
		Fees:          fee,
		ClientOrderID: req.ClientOrderID,
		CreatedAt:     now,
	}

	_, err := b.pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, run_id, tenant_id, symbol, side, notional_usd, status,
			filled_qty, avg_fill_price, fees, client_order_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, order.OrderID, order.RunID, order.TenantID, order.Symbol, string(order.Side),
		order.NotionalUSD, string(order.Status), order.FilledQty, order.AvgFillPrice,
		order.Fees, order.ClientOrderID, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("paper broker: insert order: %w", err)
	}

	_, err = b.pool.Exec(ctx, `
		INSERT INTO fills (order_id, qty, price, fee, timestamp) VALUES ($1, $2, $3, $4, $5)
	`, order.OrderID, qty, fillPrice, fee, now)
	if err != nil {
		return nil, fmt.Errorf("paper broker: insert fill: %w", err)
	}

	return &order, nil
}

// quote fetches the latest close from the provider, falling back to a
// fixed simulation price when no provider is wired or the fetch fails —
// the same degrade-gracefully behavior the teacher mock exchange uses
// for symbols it has no live price for.
func (b *PaperBroker) quote(ctx context.Context, productID string) float64 {
	if b.provider == nil {
		return defaultSimPrice
	}
	candles, err := b.provider.FetchCandles(ctx, productID, time.Hour, GranularityOneMinute)
	if err != nil || len(candles) == 0 {
		return defaultSimPrice
	}
	return candles[len(candles)-1].Close
}

// slippage mirrors the teacher's size-scaled slippage model: a base rate
// plus a market-impact term proportional to order size in millions of
// USD, capped at MaxSlippage.
func (b *PaperBroker) slippage(notionalUSD float64) float64 {
	impact := b.fees.MarketImpact * (notionalUSD / 1_000_000)
	total := b.fees.BaseSlippage + impact
	if total > b.fees.MaxSlippage {
		return b.fees.MaxSlippage
	}
	return total
}

func (b *PaperBroker) applyLedger(ctx context.Context, side domain.Side, base string, qty, notionalUSD, fee float64) error {
	baseDelta, usdDelta := qty, -(notionalUSD + fee)
	if side == domain.SideSell {
		baseDelta, usdDelta = -qty, notionalUSD-fee
	}
	if err := b.adjustBalance(ctx, base, baseDelta); err != nil {
		return err
	}
	return b.adjustBalance(ctx, "USD", usdDelta)
}

func (b *PaperBroker) adjustBalance(ctx context.Context, symbol string, delta float64) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO paper_ledger (symbol, quantity, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (symbol) DO UPDATE SET quantity = paper_ledger.quantity + $2, updated_at = NOW()
	`, symbol, delta)
	return err
}

func (b *PaperBroker) GetOrderFills(ctx context.Context, orderID string) ([]domain.Fill, error) {
	rows, err := b.pool.Query(ctx, `SELECT order_id, qty, price, fee, timestamp FROM fills WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("paper broker: get order fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(&f.OrderID, &f.Qty, &f.Price, &f.Fee, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("paper broker: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func (b *PaperBroker) GetBalances(ctx context.Context) ([]domain.Holding, error) {
	rows, err := b.pool.Query(ctx, `SELECT symbol, quantity FROM paper_ledger WHERE quantity != 0`)
	if err != nil {
		return nil, fmt.Errorf("paper broker: get balances: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var symbol string
		var qty float64
		if err := rows.Scan(&symbol, &qty); err != nil {
			return nil, fmt.Errorf("paper broker: scan balance: %w", err)
		}
		price := 1.0
		if symbol != "USD" {
			price = b.quote(ctx, symbol+"-USD")
		}
		holdings = append(holdings, domain.Holding{Symbol: symbol, Quantity: qty, Price: price, USDValue: qty * price})
	}
	return holdings, rows.Err()
}

func (b *PaperBroker) GetOrderHistory(ctx context.Context, since time.Time, limit int) ([]domain.Order, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT order_id, run_id, tenant_id, symbol, side, notional_usd, status,
		       filled_qty, avg_fill_price, fees, client_order_id, created_at
		FROM orders
		WHERE created_at >= $1 AND status = 'FILLED'
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("paper broker: get order history: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var side, status string
		if err := rows.Scan(&o.OrderID, &o.RunID, &o.TenantID, &o.Symbol, &side, &o.NotionalUSD,
			&status, &o.FilledQty, &o.AvgFillPrice, &o.Fees, &o.ClientOrderID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("paper broker: scan order: %w", err)
		}
		o.Side = domain.Side(side)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
