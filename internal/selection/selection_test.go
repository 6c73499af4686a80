package selection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

type fakeProvider struct {
	products         []market.Product
	candles          map[string][]domain.Candle
	nonTradeable     map[string]bool
	listProductsErr  error
}

func (f *fakeProvider) ListProducts(ctx context.Context, quote string) ([]market.Product, error) {
	if f.listProductsErr != nil {
		return nil, f.listProductsErr
	}
	return f.products, nil
}

func (f *fakeProvider) FetchCandles(ctx context.Context, productID string, lookback time.Duration, gran market.Granularity) ([]domain.Candle, error) {
	return f.candles[productID], nil
}

func (f *fakeProvider) VerifyTradeable(ctx context.Context, productID string) (bool, error) {
	return !f.nonTradeable[productID], nil
}

func candleSeries(open, close float64, volume float64, n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		o := open
		c := close
		if i > 0 {
			o = close
		}
		if i < n-1 {
			c = open
		}
		out[i] = domain.Candle{Open: o, Close: c, Volume: volume}
	}
	out[0].Open = open
	out[n-1].Close = close
	return out
}

func TestSelectHighestReturn(t *testing.T) {
	provider := &fakeProvider{
		products: []market.Product{
			{ProductID: "BTC-USD", BaseCurrency: "BTC", Volume24h: 1000},
			{ProductID: "ETH-USD", BaseCurrency: "ETH", Volume24h: 900},
			{ProductID: "SOL-USD", BaseCurrency: "SOL", Volume24h: 800},
		},
		candles: map[string][]domain.Candle{
			"BTC-USD": candleSeries(100, 105, 10, 3),
			"ETH-USD": candleSeries(100, 120, 10, 3),
			"SOL-USD": candleSeries(100, 95, 10, 3),
		},
		nonTradeable: map[string]bool{},
	}
	engine := NewEngine(provider)

	result, err := engine.Select(context.Background(), Request{
		Criteria:           "highest_return",
		LookbackHours:      24,
		UniverseConstraint: UniverseTop25Volume,
		AssetClass:         domain.AssetClassCrypto,
	})
	require.NoError(t, err)
	assert.Equal(t, "ETH", result.SelectedSymbol)
	assert.InDelta(t, 20.0, result.SelectedReturnPct, 0.01)
	assert.Equal(t, 3, result.UniverseSize)
	assert.Equal(t, 3, result.EvaluatedCount)
}

func TestSelectSkipsNonTradeable(t *testing.T) {
	provider := &fakeProvider{
		products: []market.Product{
			{ProductID: "ETH-USD", BaseCurrency: "ETH", Volume24h: 900},
			{ProductID: "BTC-USD", BaseCurrency: "BTC", Volume24h: 1000},
		},
		candles: map[string][]domain.Candle{
			"BTC-USD": candleSeries(100, 105, 10, 3),
			"ETH-USD": candleSeries(100, 120, 10, 3),
		},
		nonTradeable: map[string]bool{"ETH-USD": true},
	}
	engine := NewEngine(provider)

	result, err := engine.Select(context.Background(), Request{
		Criteria:           "highest_return",
		LookbackHours:      24,
		UniverseConstraint: UniverseTop25Volume,
		AssetClass:         domain.AssetClassCrypto,
	})
	require.NoError(t, err)
	assert.Equal(t, "BTC", result.SelectedSymbol)
}

func TestSelectNoTradeableAsset(t *testing.T) {
	provider := &fakeProvider{
		products: []market.Product{
			{ProductID: "BTC-USD", BaseCurrency: "BTC", Volume24h: 1000},
		},
		candles: map[string][]domain.Candle{
			"BTC-USD": candleSeries(100, 105, 10, 3),
		},
		nonTradeable: map[string]bool{"BTC-USD": true},
	}
	engine := NewEngine(provider)

	_, err := engine.Select(context.Background(), Request{
		Criteria:           "highest_return",
		LookbackHours:      24,
		UniverseConstraint: UniverseTop25Volume,
		AssetClass:         domain.AssetClassCrypto,
	})
	require.Error(t, err)
	assert.True(t, IsNoTradeableAsset(err))
}

func TestSelectNoMarketData(t *testing.T) {
	provider := &fakeProvider{
		products: []market.Product{
			{ProductID: "BTC-USD", BaseCurrency: "BTC", Volume24h: 1000},
		},
		candles: map[string][]domain.Candle{},
	}
	engine := NewEngine(provider)

	_, err := engine.Select(context.Background(), Request{
		Criteria:           "highest_return",
		LookbackHours:      24,
		UniverseConstraint: UniverseTop25Volume,
		AssetClass:         domain.AssetClassCrypto,
	})
	require.Error(t, err)
	assert.True(t, IsNoMarketData(err))
}

func TestSelectExcludesStablecoins(t *testing.T) {
	provider := &fakeProvider{
		products: []market.Product{
			{ProductID: "USDC-USD", BaseCurrency: "USDC", Volume24h: 5000},
			{ProductID: "BTC-USD", BaseCurrency: "BTC", Volume24h: 1000},
		},
		candles: map[string][]domain.Candle{
			"USDC-USD": candleSeries(1, 1, 10, 3),
			"BTC-USD":  candleSeries(100, 110, 10, 3),
		},
		nonTradeable: map[string]bool{},
	}
	engine := NewEngine(provider)

	result, err := engine.Select(context.Background(), Request{
		Criteria:           "highest_return",
		LookbackHours:      24,
		UniverseConstraint: UniverseTop25Volume,
		AssetClass:         domain.AssetClassCrypto,
	})
	require.NoError(t, err)
	assert.Equal(t, "BTC", result.SelectedSymbol)
	assert.Equal(t, 1, result.UniverseSize)
}

func TestSelectStockWatchlist(t *testing.T) {
	provider := &fakeProvider{
		candles: map[string][]domain.Candle{
			"AAPL": candleSeries(100, 102, 10, 3),
			"MSFT": candleSeries(100, 108, 10, 3),
		},
	}
	engine := NewEngine(provider)

	result, err := engine.Select(context.Background(), Request{
		Criteria:       "highest_return",
		LookbackHours:  24,
		AssetClass:     domain.AssetClassStock,
		StockWatchlist: []string{"AAPL", "MSFT"},
	})
	require.NoError(t, err)
	assert.Equal(t, "MSFT", result.SelectedSymbol)
}
