package config

import (
	"context"
	"strings"

	"github.com/spf13/viper"
)

// RuntimeConfig holds the command-orchestration pipeline's own
// environment, read the same viper-driven way Load reads the legacy
// Config above, but keyed directly off the flat env var names the
// pipeline's operators set (no nested YAML section, no CRYPTOFUNK_
// prefix) since these are pipeline-specific, not exchange-bot settings.
type RuntimeConfig struct {
	ExecutionModeDefault   string  `mapstructure:"execution_mode_default"`
	EnableLiveTrading      bool    `mapstructure:"enable_live_trading"`
	TradingDisableLive     bool    `mapstructure:"trading_disable_live"`
	ForcePaperMode         bool    `mapstructure:"force_paper_mode"`
	CoinbaseAPIKeyName     string  `mapstructure:"coinbase_api_key_name"`
	CoinbaseAPIPrivateKey  string  `mapstructure:"coinbase_api_private_key"`
	PolygonAPIKey          string  `mapstructure:"polygon_api_key"`
	OpenAIAPIKey           string  `mapstructure:"openai_api_key"`
	OpenAIModel            string  `mapstructure:"openai_model"`
	MaxNotionalPerOrderUSD float64 `mapstructure:"max_notional_per_order_usd"`
	SymbolAllowlist        string  `mapstructure:"symbol_allowlist"`
	StockWatchlist         string  `mapstructure:"stock_watchlist"`
	PushoverToken          string  `mapstructure:"pushover_token"`
	PushoverUser           string  `mapstructure:"pushover_user"`
	DatabaseURL            string  `mapstructure:"database_url"`
}

// LoadRuntime reads the pipeline's env-var surface, applying the same
// safe-by-default posture the trading system's Risk/Trading sections
// do: live trading is opt-in, paper mode is the floor.
func LoadRuntime() (*RuntimeConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("execution_mode_default", "PAPER")
	v.SetDefault("enable_live_trading", false)
	v.SetDefault("trading_disable_live", true)
	v.SetDefault("force_paper_mode", true)
	v.SetDefault("openai_model", "gpt-4-turbo")
	v.SetDefault("max_notional_per_order_usd", 1000.0)

	for _, key := range []string{
		"execution_mode_default", "enable_live_trading", "trading_disable_live", "force_paper_mode",
		"coinbase_api_key_name", "coinbase_api_private_key", "polygon_api_key", "openai_api_key",
		"openai_model", "max_notional_per_order_usd", "symbol_allowlist", "stock_watchlist",
		"pushover_token", "pushover_user", "database_url",
	} {
		_ = v.BindEnv(key)
	}

	var cfg RuntimeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LiveTradingAllowed implements preflight.LiveTradingGate. The
// pipeline's kill switches are global, not per-tenant, so tenantID is
// accepted only to satisfy the interface.
func (c *RuntimeConfig) LiveTradingAllowed(tenantID string) bool {
	if c.ForcePaperMode || c.TradingDisableLive {
		return false
	}
	return c.EnableLiveTrading
}

// EndpointLiveGate adapts RuntimeConfig to endpoint.LiveTradingGate,
// whose ctx-based, tenant-less signature differs from preflight's.
type EndpointLiveGate struct {
	Runtime *RuntimeConfig
}

func (g EndpointLiveGate) LiveTradingAllowed(ctx context.Context) (bool, error) {
	return g.Runtime.LiveTradingAllowed(""), nil
}
