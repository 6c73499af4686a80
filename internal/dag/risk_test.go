package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

func TestRiskNode_ComputesAnalysisFromRanking(t *testing.T) {
	run := baseRun()
	rc, artifacts, _, toolCalls := newTestRunContext(run)
	rc.Prior = domain.Ranking{SelectedSymbol: "BTC-USD"}

	provider := &fakeProvider{candles: map[string][]domain.Candle{
		"BTC-USD": candleSeries(100, 102, 101, 103, 105, 104),
	}}
	node := &RiskNode{Provider: provider, Limits: DefaultRiskLimits()}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	analysis := out.(domain.RiskAnalysis)
	assert.Equal(t, 100.0, analysis.PositionSizeUSD)
	assert.True(t, analysis.Approved)
	assert.Empty(t, analysis.Violations)
	assert.Len(t, toolCalls.calls, 1)

	_, ok := artifacts.byType("risk_analysis")
	assert.True(t, ok)
}

func TestRiskNode_FlagsPositionSizeViolation(t *testing.T) {
	run := baseRun()
	run.TradeProposal.AmountUSD = 20000
	rc, _, _, _ := newTestRunContext(run)
	rc.Prior = domain.Ranking{SelectedSymbol: "BTC-USD"}

	provider := &fakeProvider{candles: map[string][]domain.Candle{
		"BTC-USD": candleSeries(100, 101, 102),
	}}
	node := &RiskNode{Provider: provider, Limits: DefaultRiskLimits()}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	analysis := out.(domain.RiskAnalysis)
	assert.False(t, analysis.Approved)
	assert.NotEmpty(t, analysis.Violations)
}

func TestRiskNode_NoSymbolIsHardError(t *testing.T) {
	run := baseRun()
	run.TradeProposal = nil
	rc, _, _, _ := newTestRunContext(run)

	node := &RiskNode{Provider: &fakeProvider{}, Limits: DefaultRiskLimits()}
	_, err := node.Run(context.Background(), rc)
	assert.Error(t, err)
}

func TestHistoricalVaR(t *testing.T) {
	returns := []float64{-0.05, -0.02, 0.01, 0.03, -0.01}
	varVal, cvarVal := historicalVaR(returns, 0.95)
	assert.Greater(t, varVal, 0.0)
	assert.GreaterOrEqual(t, cvarVal, varVal)
}

func TestKellyFraction_NegativeEdgeReturnsZero(t *testing.T) {
	returns := []float64{-0.05, -0.03, -0.01, 0.01}
	assert.Equal(t, 0.0, kellyFraction(returns))
}
