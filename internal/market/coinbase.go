package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/metrics"
	"github.com/tradeassist/engine/internal/risk"
)

const coinbaseAPIBase = "https://api.exchange.coinbase.com"

// CoinbaseProvider implements market.Provider against Coinbase's
// Exchange REST surface: public product listings and candles need no
// auth. KeyName/PrivateKey are only checked for presence in
// VerifyTradeable; no signed request is made with them. Request/response shapes
// here are the public contract Coinbase documents; per this system's
// own scope, the wire format is a contract, not a certified client.
type CoinbaseProvider struct {
	httpClient *http.Client
	baseURL    string
	keyName    string
	privateKey string
	cache      *productCache
	retry      RetryConfig
	breaker    *gobreaker.CircuitBreaker
}

func NewCoinbaseProvider(keyName, privateKey string) *CoinbaseProvider {
	return &CoinbaseProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    coinbaseAPIBase,
		keyName:    keyName,
		privateKey: privateKey,
		cache:      newProductCache(),
		retry:      DefaultProviderRetryConfig(),
		breaker:    risk.NewCircuitBreakerManager().Exchange(),
	}
}

type coinbaseProduct struct {
	ID            string `json:"id"`
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	Status        string `json:"status"`
	Volume24h     string `json:"volume_24h"`
}

func (p *CoinbaseProvider) ListProducts(ctx context.Context, quote string) ([]Product, error) {
	if cached, ok := p.cache.get(quote); ok {
		return cached, nil
	}

	var raw []coinbaseProduct
	start := time.Now()
	err := WithProviderBreaker(ctx, p.breaker, p.retry, func() error {
		return p.getJSON(ctx, "/products", &raw)
	})
	metrics.RecordExchangeAPICall("coinbase", "list_products", float64(time.Since(start).Milliseconds()), err)
	if err != nil {
		return nil, fmt.Errorf("market: coinbase list products: %w", err)
	}

	products := make([]Product, 0, len(raw))
	for _, rp := range raw {
		if rp.QuoteCurrency != quote {
			continue
		}
		vol, _ := strconv.ParseFloat(rp.Volume24h, 64)
		products = append(products, Product{
			ProductID:     rp.ID,
			BaseCurrency:  rp.BaseCurrency,
			QuoteCurrency: rp.QuoteCurrency,
			Status:        rp.Status,
			Volume24h:     vol,
		})
	}
	p.cache.set(quote, products)
	return products, nil
}

type coinbaseCandle [6]float64 // [time, low, high, open, close, volume]

func (p *CoinbaseProvider) FetchCandles(ctx context.Context, productID string, lookback time.Duration, gran Granularity) ([]domain.Candle, error) {
	end := time.Now().UTC()
	start := end.Add(-lookback)
	granSeconds := coinbaseGranularitySeconds(gran)

	path := fmt.Sprintf("/products/%s/candles?start=%s&end=%s&granularity=%d",
		productID, start.Format(time.RFC3339), end.Format(time.RFC3339), granSeconds)

	var raw []coinbaseCandle
	fetchStart := time.Now()
	err := WithProviderBreaker(ctx, p.breaker, p.retry, func() error {
		return p.getJSON(ctx, path, &raw)
	})
	metrics.RecordExchangeAPICall("coinbase", "fetch_candles", float64(time.Since(fetchStart).Milliseconds()), err)
	if err != nil {
		return nil, fmt.Errorf("market: coinbase fetch candles: %w", err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, c := range raw {
		candles = append(candles, domain.Candle{
			Time:   time.Unix(int64(c[0]), 0).UTC(),
			Low:    c[1],
			High:   c[2],
			Open:   c[3],
			Close:  c[4],
			Volume: c[5],
		})
	}
	// Coinbase returns newest-first; callers expect chronological order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// VerifyTradeable checks exchange listing membership: the product must be
// in the USD listing with status "online". No broker-metadata probe is
// made; whether or not key credentials are configured, a listed product
// is reported tradeable.
func (p *CoinbaseProvider) VerifyTradeable(ctx context.Context, productID string) (bool, error) {
	products, err := p.ListProducts(ctx, "USD")
	if err != nil {
		return false, fmt.Errorf("market: coinbase verify tradeable: %w", err)
	}
	listed := false
	for _, prod := range products {
		if prod.ProductID == productID && prod.Status == "online" {
			listed = true
			break
		}
	}
	if !listed {
		return false, nil
	}
	if p.keyName == "" || p.privateKey == "" {
		return true, nil
	}
	// No signed request is made; the listing check above decides.
	return true, nil
}

func coinbaseGranularitySeconds(g Granularity) int {
	switch g {
	case GranularityOneMinute:
		return 60
	case GranularityFiveMinute:
		return 300
	case GranularityFifteenMin:
		return 900
	case GranularityOneHour:
		return 3600
	case GranularitySixHour:
		return 21600
	default:
		return 3600
	}
}

func (p *CoinbaseProvider) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
