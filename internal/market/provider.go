// Package market defines the Market-Data Provider boundary: product
// listings, candles, and tradability checks against the configured
// exchange (Coinbase for crypto, an EOD provider for stocks). Both
// implementations sit behind the same interface so the selection engine,
// preflight validator, and DAG research node never depend on a concrete
// HTTP client.
package market

import (
	"context"
	"time"

	"github.com/tradeassist/engine/internal/domain"
)

// Product is one tradeable instrument as listed by the exchange.
type Product struct {
	ProductID    string
	BaseCurrency string
	QuoteCurrency string
	Status       string
	Volume24h    float64
}

// Granularity is a candle bucket width, named the way the exchange API
// names them rather than as a raw duration.
type Granularity string

const (
	GranularityOneMinute    Granularity = "ONE_MINUTE"
	GranularityFiveMinute   Granularity = "FIVE_MINUTE"
	GranularityFifteenMin   Granularity = "FIFTEEN_MINUTE"
	GranularityOneHour      Granularity = "ONE_HOUR"
	GranularitySixHour      Granularity = "SIX_HOUR"
)

// Provider is the Market-Data Provider contract. Implementations must be
// safe for concurrent use; the selection engine fans out candle fetches
// across many goroutines bounded by a semaphore.
type Provider interface {
	// ListProducts returns instruments quoted in the given currency
	// (e.g. "USD"). Crypto providers hit the exchange listing endpoint;
	// stock providers return the configured watchlist.
	ListProducts(ctx context.Context, quote string) ([]Product, error)

	// FetchCandles returns OHLCV bars for productID between now and
	// lookback, at the given granularity. An empty slice (not an error)
	// is returned when the provider has no data for the window.
	FetchCandles(ctx context.Context, productID string, lookback time.Duration, gran Granularity) ([]domain.Candle, error)

	// VerifyTradeable reports whether productID is tradeable. Exchange
	// listing membership is authoritative; CoinbaseProvider checks only
	// the listing and makes no broker-metadata probe.
	VerifyTradeable(ctx context.Context, productID string) (bool, error)
}

// GranularityForWindow picks the coarsest granularity that still gives a
// useful number of candles across the requested lookback window.
func GranularityForWindow(lookbackHours float64) Granularity {
	switch {
	case lookbackHours <= 1:
		return GranularityOneMinute
	case lookbackHours <= 6:
		return GranularityFiveMinute
	case lookbackHours <= 24:
		return GranularityFifteenMin
	case lookbackHours <= 168:
		return GranularityOneHour
	default:
		return GranularitySixHour
	}
}
