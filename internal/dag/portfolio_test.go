package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

func TestPortfolioNode_PaperFallsBackToDeterministicSeed(t *testing.T) {
	run := baseRun()
	rc, artifacts, _, _ := newTestRunContext(run)

	provider := &fakeProvider{candles: map[string][]domain.Candle{
		"BTC-USD": candleSeries(100, 101, 103),
		"ETH-USD": candleSeries(10, 10.2, 10.5),
	}}
	node := &PortfolioNode{Provider: provider, Snapshots: &fakeSnapshotReader{}}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	brief := out.(domain.PortfolioBrief)
	assert.Equal(t, domain.ModePaper, brief.Mode)
	assert.Equal(t, 10000.0, brief.CashUSD)
	assert.Nil(t, brief.Failure)
	assert.NotEmpty(t, brief.Warnings)
	assert.Len(t, brief.Holdings, 2)

	_, ok := artifacts.byType(domain.ArtifactPortfolioBrief)
	assert.True(t, ok)
}

func TestPortfolioNode_PaperUsesLatestSnapshot(t *testing.T) {
	run := baseRun()
	rc, _, _, _ := newTestRunContext(run)

	snapshot := &domain.PortfolioSnapshot{
		Balances: []domain.Holding{{Symbol: "USD", Quantity: 500}, {Symbol: "BTC", Quantity: 1}},
	}
	provider := &fakeProvider{candles: map[string][]domain.Candle{"BTC-USD": candleSeries(200, 210, 220)}}
	orders := &fakeOrderHistoryStore{orders: []domain.Order{
		{Symbol: "BTC-USD", Side: domain.SideBuy, NotionalUSD: 100},
	}}
	node := &PortfolioNode{Provider: provider, Snapshots: &fakeSnapshotReader{snapshot: snapshot}, Orders: orders}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	brief := out.(domain.PortfolioBrief)
	assert.Equal(t, 500.0, brief.CashUSD)
	require.NotNil(t, brief.TradeSummary)
	assert.Equal(t, 1, brief.TradeSummary.TotalTrades)
}

func TestPortfolioNode_LiveDegradesSafelyOnBrokerFailure(t *testing.T) {
	run := baseRun()
	run.ExecutionMode = domain.ModeLive
	rc, artifacts, _, _ := newTestRunContext(run)

	broker := &fakeBroker{balancesErr: assertError("broker unreachable")}
	node := &PortfolioNode{Broker: broker, Provider: &fakeProvider{}, LiveCredentialsAvailable: true}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	brief := out.(domain.PortfolioBrief)
	assert.Equal(t, domain.ModePaper, brief.Mode)
	assert.Equal(t, "UNKNOWN", brief.Risk.RiskLevel)
	require.NotNil(t, brief.Failure)
	assert.Equal(t, "PORTFOLIO_ANALYSIS_FAILED", brief.Failure.ErrorCode)
	assert.True(t, brief.Failure.Recoverable)

	_, ok := artifacts.byType(domain.ArtifactPortfolioBrief)
	assert.True(t, ok)
}

func TestPortfolioNode_LiveFetchesBalancesAndHoldingsRawArtifact(t *testing.T) {
	run := baseRun()
	run.ExecutionMode = domain.ModeLive
	rc, artifacts, _, toolCalls := newTestRunContext(run)

	broker := &fakeBroker{
		balances: []domain.Holding{{Symbol: "USD", Quantity: 1000}, {Symbol: "BTC", Quantity: 2}},
		history:  []domain.Order{{Symbol: "BTC-USD", Side: domain.SideSell, NotionalUSD: 50}},
	}
	provider := &fakeProvider{candles: map[string][]domain.Candle{"BTC-USD": candleSeries(300, 305, 310)}}
	node := &PortfolioNode{Broker: broker, Provider: provider, LiveCredentialsAvailable: true}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	brief := out.(domain.PortfolioBrief)
	assert.Equal(t, domain.ModeLive, brief.Mode)
	assert.Nil(t, brief.Failure)

	_, ok := artifacts.byType(domain.ArtifactHoldingsRaw)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, len(toolCalls.calls), 2)
}

func TestComputeRiskSnapshot_NoNonCashHoldingsIsUnknown(t *testing.T) {
	risk := computeRiskSnapshot([]domain.AllocationRow{{Symbol: "USD", Pct: 100}}, nil)
	assert.Equal(t, "UNKNOWN", risk.RiskLevel)
}

func TestGenerateRecommendations_FallsBackToHealthy(t *testing.T) {
	risk := domain.RiskSnapshot{ConcentrationPctTop1: 10, DiversificationScore: 0.9}
	recs := generateRecommendations(risk, &domain.TradeSummary{TotalTrades: 2, WindowDays: 30})
	require.Len(t, recs, 1)
	assert.Equal(t, "Portfolio Looks Healthy", recs[0].Title)
}
