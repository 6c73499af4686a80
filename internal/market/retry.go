package market

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// RetryConfig mirrors internal/exchange's retry policy shape, tuned to
// the wider budget a market-data HTTP call can tolerate versus an order
// placement call: base 1s, cap 10s, 3 retries.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

func DefaultProviderRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}
}

// IsRetryableProviderError classifies the network/HTTP-status errors a
// market-data fetch can hit as worth retrying, the same substring-match
// approach internal/exchange/retry.go uses.
func IsRetryableProviderError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, substr := range []string{"connection refused", "connection reset", "timeout", "too many requests", "rate limit", "status 429", "status 500", "status 502", "status 503", "status 504"} {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// WithProviderRetry runs operation with exponential backoff, matching
// internal/exchange.WithRetry's control flow against this package's own
// retryability classifier.
func WithProviderRetry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("market: operation cancelled: %w", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableProviderError(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("market: provider call failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("market: operation cancelled during backoff: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return fmt.Errorf("market: operation failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// WithProviderBreaker wraps WithProviderRetry in a gobreaker circuit
// breaker: a provider that keeps exhausting its retries trips the
// breaker and fails fast instead of piling up retry loops (up to 7s of
// backoff each) against a downstream that is already down.
func WithProviderBreaker(ctx context.Context, breaker *gobreaker.CircuitBreaker, cfg RetryConfig, operation func() error) error {
	if breaker == nil {
		return WithProviderRetry(ctx, cfg, operation)
	}
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, WithProviderRetry(ctx, cfg, operation)
	})
	return err
}
