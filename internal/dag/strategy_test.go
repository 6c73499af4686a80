package dag

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

func TestStrategyNode_SelectsTopReturn(t *testing.T) {
	run := baseRun()
	rc, artifacts, _, _ := newTestRunContext(run)
	rc.Prior = []rankedCandidate{
		{Symbol: "BTC-USD", ProductID: "BTC-USD", ReturnPct: 5.0},
		{Symbol: "ETH-USD", ProductID: "ETH-USD", ReturnPct: 12.0},
	}

	node := &StrategyNode{Metric: MetricReturn}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	ranking, ok := out.(domain.Ranking)
	require.True(t, ok)
	assert.Equal(t, "ETH-USD", ranking.SelectedSymbol)
	assert.Equal(t, 12.0, ranking.SelectedScore)

	_, ok = artifacts.byType(domain.ArtifactStrategyDecision)
	assert.True(t, ok)
	_, ok = artifacts.byType(domain.ArtifactSelectionBasis)
	assert.True(t, ok)

	var plan map[string]interface{}
	require.NoError(t, json.Unmarshal(rc.Run.ExecutionPlan, &plan))
	assert.Equal(t, "ETH-USD", plan["selected_asset"])
}

func TestStrategyNode_RefetchesWhenPriorMissing(t *testing.T) {
	run := baseRun()
	run.TradeProposal = &domain.TradeProposal{Side: domain.SideBuy, Asset: "BTC", AmountUSD: 100}
	rc, _, _, _ := newTestRunContext(run)

	provider := &fakeProvider{candles: map[string][]domain.Candle{
		"BTC-USD": candleSeries(100, 101, 105, 110),
	}}
	node := &StrategyNode{Provider: provider, Metric: MetricReturn}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	ranking := out.(domain.Ranking)
	assert.Equal(t, "BTC-USD", ranking.SelectedSymbol)
}

func TestStrategyNode_NoCandidatesFailsRunGracefully(t *testing.T) {
	run := baseRun()
	run.TradeProposal = &domain.TradeProposal{Side: domain.SideBuy, Asset: "BTC", AmountUSD: 100}
	rc, artifacts, runs, _ := newTestRunContext(run)

	provider := &fakeProvider{candles: map[string][]domain.Candle{}}
	node := &StrategyNode{Provider: provider}
	out, err := node.Run(context.Background(), rc)

	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, "STRATEGY_NO_CANDIDATES", runs.failureCode)
	_, ok := artifacts.byType(domain.ArtifactStrategyFailure)
	assert.True(t, ok)
}
