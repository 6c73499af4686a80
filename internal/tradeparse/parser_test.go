package tradeparse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradeassist/engine/internal/domain"
)

func TestParseDirectBuy(t *testing.T) {
	cmd, err := Parse("buy $10 of BTC")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, cmd.Side)
	assert.Equal(t, "BTC", cmd.Asset)
	require.NotNil(t, cmd.AmountUSD)
	assert.Equal(t, 10.0, *cmd.AmountUSD)
	assert.Equal(t, domain.AssetClassCrypto, cmd.AssetClass)
}

func TestParseSellPercent(t *testing.T) {
	cmd, err := Parse("sell 25% of my ETH")
	require.NoError(t, err)
	assert.Equal(t, SideSell, cmd.Side)
	assert.Equal(t, "ETH", cmd.Asset)
	require.NotNil(t, cmd.SellPercent)
	assert.Equal(t, 25.0, *cmd.SellPercent)
}

func TestParseMissingAmount(t *testing.T) {
	_, err := Parse("buy some BTC")
	assert.True(t, errors.Is(err, ErrMissingAmount))
}

func TestParseMissingAsset(t *testing.T) {
	_, err := Parse("buy $10")
	assert.True(t, errors.Is(err, ErrMissingAsset))
}

func TestParseMostProfitableExemptFromMissingAsset(t *testing.T) {
	cmd, err := Parse("buy me the most profitable crypto of the last 24 hours for $10")
	require.NoError(t, err)
	assert.True(t, cmd.IsMostProfitable)
	assert.Equal(t, "highest_return", cmd.SelectionCriteria)
	assert.Equal(t, 24.0, cmd.LookbackHours)
}

func TestParseSellLastPurchaseExemptFromMissingAsset(t *testing.T) {
	cmd, err := Parse("sell my last purchase")
	require.NoError(t, err)
	assert.True(t, cmd.IsSellLastPurchase)
}

func TestParseAmbiguousAssetClass(t *testing.T) {
	cmd, err := Parse("buy $10 of the most profitable crypto or stock")
	require.NoError(t, err)
	assert.Equal(t, domain.AssetClassAmbiguous, cmd.AssetClass)
}

func TestParseNaturalWindows(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"buy the most profitable crypto of the last 10 minutes for $10", 10.0 / 60.0},
		{"buy the most profitable crypto of the last week for $10", 168},
		{"buy the most profitable crypto of the last 7 weeks for $10", 1176},
		{"buy the most profitable crypto of the last hour for $10", 1},
	}
	for _, c := range cases {
		cmd, err := Parse(c.text)
		require.NoError(t, err, c.text)
		assert.InDelta(t, c.want, cmd.LookbackHours, 0.001, c.text)
	}
}

func TestParseThresholdPct(t *testing.T) {
	cmd, err := Parse("buy the most profitable crypto that is up 20% for $10")
	require.NoError(t, err)
	require.NotNil(t, cmd.ThresholdPct)
	assert.Equal(t, 20.0, *cmd.ThresholdPct)
}

func TestParseAssetAlias(t *testing.T) {
	cmd, err := Parse("buy $20 of bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "BTC", cmd.Asset)
}

func TestParseExecutionMode(t *testing.T) {
	cmd, err := Parse("buy $10 of BTC in live mode")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, cmd.Mode)
}

func TestParseUniverseConstraint(t *testing.T) {
	cmd, err := Parse("buy the most profitable major crypto for $10")
	require.NoError(t, err)
	assert.Equal(t, UniverseMajorsOnly, cmd.UniverseConstraint)
}
