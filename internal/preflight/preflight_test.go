package preflight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

type fakeMinNotional struct {
	value float64
	err   error
}

func (f *fakeMinNotional) MinNotionalUSD(ctx context.Context, productID string) (float64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	return f.value, false, nil
}

type fakeBalances struct {
	assetUSD map[string]float64
	cashUSD  float64
	holdings []domain.Holding
}

func (f *fakeBalances) AssetBalanceUSD(ctx context.Context, tenantID, symbol string, mode domain.ExecutionMode) (float64, error) {
	return f.assetUSD[symbol], nil
}

func (f *fakeBalances) CashBalanceUSD(ctx context.Context, tenantID string, mode domain.ExecutionMode) (float64, error) {
	return f.cashUSD, nil
}

func (f *fakeBalances) NonTargetHoldings(ctx context.Context, tenantID, excludeSymbol string, mode domain.ExecutionMode) ([]domain.Holding, error) {
	var out []domain.Holding
	for _, h := range f.holdings {
		if h.Symbol != excludeSymbol {
			out = append(out, h)
		}
	}
	return out, nil
}

type alwaysAllow struct{}

func (alwaysAllow) LiveTradingAllowed(tenantID string) bool { return true }

type alwaysDeny struct{}

func (alwaysDeny) LiveTradingAllowed(tenantID string) bool { return false }

func TestValidateMinNotionalTooLow(t *testing.T) {
	v := NewValidator(&fakeMinNotional{value: 10}, &fakeBalances{cashUSD: 1000}, alwaysAllow{})
	result, err := v.Validate(context.Background(), Input{
		Side: domain.SideBuy, Asset: "BTC", ProductID: "BTC-USD", AmountUSD: 5, Mode: domain.ModePaper,
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonMinNotionalTooLow, result.ReasonCode)
}

func TestValidateBuyOK(t *testing.T) {
	v := NewValidator(&fakeMinNotional{value: 1}, &fakeBalances{cashUSD: 1000}, alwaysAllow{})
	result, err := v.Validate(context.Background(), Input{
		Side: domain.SideBuy, Asset: "BTC", ProductID: "BTC-USD", AmountUSD: 50, Mode: domain.ModePaper,
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.False(t, result.RequiresAutoSell)
	assert.InDelta(t, 50*CryptoMarketOrderFeeRate, result.EstimatedFeeUSD, 0.0001)
}

func TestValidateSellInsufficientBalance(t *testing.T) {
	v := NewValidator(&fakeMinNotional{value: 1}, &fakeBalances{assetUSD: map[string]float64{"ETH": 10}}, alwaysAllow{})
	result, err := v.Validate(context.Background(), Input{
		Side: domain.SideSell, Asset: "ETH", ProductID: "ETH-USD", AmountUSD: 50, Mode: domain.ModePaper,
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInsufficientBalance, result.ReasonCode)
}

func TestValidateBuyAutoSell(t *testing.T) {
	v := NewValidator(&fakeMinNotional{value: 1}, &fakeBalances{
		cashUSD: 10,
		holdings: []domain.Holding{
			{Symbol: "SOL", USDValue: 200},
			{Symbol: "ADA", USDValue: 45},
		},
	}, alwaysAllow{})
	result, err := v.Validate(context.Background(), Input{
		Side: domain.SideBuy, Asset: "BTC", ProductID: "BTC-USD", AmountUSD: 50, Mode: domain.ModePaper,
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.RequiresAutoSell)
	require.NotNil(t, result.AutoSellProposal)
	assert.Equal(t, "ADA", result.AutoSellProposal.SellBaseSymbol)
}

func TestValidateBuyInsufficientCashNoAutoSell(t *testing.T) {
	v := NewValidator(&fakeMinNotional{value: 1}, &fakeBalances{cashUSD: 5}, alwaysAllow{})
	result, err := v.Validate(context.Background(), Input{
		Side: domain.SideBuy, Asset: "BTC", ProductID: "BTC-USD", AmountUSD: 50, Mode: domain.ModePaper,
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInsufficientCash, result.ReasonCode)
}

func TestValidateLiveDisabled(t *testing.T) {
	v := NewValidator(&fakeMinNotional{value: 1}, &fakeBalances{cashUSD: 1000}, alwaysDeny{})
	result, err := v.Validate(context.Background(), Input{
		Side: domain.SideBuy, Asset: "BTC", ProductID: "BTC-USD", AmountUSD: 50, Mode: domain.ModeLive,
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonLiveDisabled, result.ReasonCode)
}

func TestValidateAutoAssetSkipsBalanceCheck(t *testing.T) {
	v := NewValidator(&fakeMinNotional{value: 1}, &fakeBalances{}, alwaysAllow{})
	result, err := v.Validate(context.Background(), Input{
		Side: domain.SideSell, Asset: "AUTO", ProductID: "BTC-USD", AmountUSD: 50, Mode: domain.ModePaper,
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
