package market

import (
	"context"
	"time"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

// CompositeProvider routes between a crypto and a stock Provider so the
// DAG nodes (which hold a single market.Provider field) can serve both
// asset classes. Routing is by base symbol membership in the stock
// provider's configured watchlist; everything else is treated as crypto.
type CompositeProvider struct {
	Crypto Provider
	Stock  Provider
	stocks map[string]bool
}

func NewCompositeProvider(crypto, stock Provider, stockWatchlist []string) *CompositeProvider {
	stocks := make(map[string]bool, len(stockWatchlist))
	for _, s := range stockWatchlist {
		stocks[s] = true
	}
	return &CompositeProvider{Crypto: crypto, Stock: stock, stocks: stocks}
}

func (c *CompositeProvider) route(productID string) Provider {
	if c.stocks[symbols.ToBase(productID)] {
		return c.Stock
	}
	return c.Crypto
}

func (c *CompositeProvider) ListProducts(ctx context.Context, quote string) ([]Product, error) {
	cryptoProducts, err := c.Crypto.ListProducts(ctx, quote)
	if err != nil {
		return nil, err
	}
	stockProducts, err := c.Stock.ListProducts(ctx, quote)
	if err != nil {
		return cryptoProducts, nil
	}
	return append(cryptoProducts, stockProducts...), nil
}

func (c *CompositeProvider) FetchCandles(ctx context.Context, productID string, lookback time.Duration, gran Granularity) ([]domain.Candle, error) {
	return c.route(productID).FetchCandles(ctx, productID, lookback, gran)
}

func (c *CompositeProvider) VerifyTradeable(ctx context.Context, productID string) (bool, error) {
	return c.route(productID).VerifyTradeable(ctx, productID)
}
