package market

import (
	"context"
	"fmt"

	"github.com/tradeassist/engine/internal/domain"
)

// BalanceReader satisfies preflight.BalanceSource against whichever
// Broker is live for the requested mode. The deployment runs a single
// PAPER account and, when configured, a single LIVE account — neither
// is partitioned per tenant, so tenantID is accepted only to satisfy
// the interface; see the paper ledger's own single-row-per-symbol
// design for the same assumption.
type BalanceReader struct {
	Paper Broker
	Live  Broker // nil when LIVE credentials are not configured
}

func NewBalanceReader(paper, live Broker) *BalanceReader {
	return &BalanceReader{Paper: paper, Live: live}
}

func (b *BalanceReader) broker(mode domain.ExecutionMode) Broker {
	if mode == domain.ModeLive && b.Live != nil {
		return b.Live
	}
	return b.Paper
}

// AssetBalanceUSD returns the USD value of a tenant's holding in symbol.
func (b *BalanceReader) AssetBalanceUSD(ctx context.Context, tenantID, symbol string, mode domain.ExecutionMode) (float64, error) {
	holdings, err := b.broker(mode).GetBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("balance reader: get balances: %w", err)
	}
	for _, h := range holdings {
		if h.Symbol == symbol {
			return h.USDValue, nil
		}
	}
	return 0, nil
}

// CashBalanceUSD returns the USD cash balance.
func (b *BalanceReader) CashBalanceUSD(ctx context.Context, tenantID string, mode domain.ExecutionMode) (float64, error) {
	return b.AssetBalanceUSD(ctx, tenantID, "USD", mode)
}

// NonTargetHoldings returns all non-zero holdings excluding excludeSymbol
// and cash, for the auto-sell search.
func (b *BalanceReader) NonTargetHoldings(ctx context.Context, tenantID, excludeSymbol string, mode domain.ExecutionMode) ([]domain.Holding, error) {
	holdings, err := b.broker(mode).GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("balance reader: get balances: %w", err)
	}
	var out []domain.Holding
	for _, h := range holdings {
		if h.Symbol == excludeSymbol || h.Symbol == "USD" {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// StaticMinNotional supplies known per-product minimums from a fixed
// table, the closest the system gets to a live exchange lookup without
// a real exchange client wired. Unknown products fall back to the
// validator's own DefaultMinNotionalUSD, reported stale.
type StaticMinNotional struct {
	Minimums map[string]float64
}

// DefaultMinNotionals mirrors Coinbase's published per-product minimums
// for the handful of majors this system's universe scans typically
// surface; anything outside this table is treated as stale.
func DefaultMinNotionals() *StaticMinNotional {
	return &StaticMinNotional{Minimums: map[string]float64{
		"BTC-USD": 1.0,
		"ETH-USD": 1.0,
		"SOL-USD": 1.0,
		"DOGE-USD": 1.0,
	}}
}

func (m *StaticMinNotional) MinNotionalUSD(ctx context.Context, productID string) (float64, bool, error) {
	if v, ok := m.Minimums[productID]; ok {
		return v, false, nil
	}
	return 1.0, true, nil
}
