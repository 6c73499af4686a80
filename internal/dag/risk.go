package dag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

// RiskLimits bounds the risk node's portfolio-exposure checks. Defaults
// match the teacher's position-sizing guardrails.
type RiskLimits struct {
	MaxPositionSize  float64
	MaxTotalExposure float64
	MaxConcentration float64
}

func DefaultRiskLimits() RiskLimits {
	return RiskLimits{MaxPositionSize: 10000, MaxTotalExposure: 50000, MaxConcentration: 0.4}
}

// RiskNode computes position sizing and Sharpe/VaR against the selected
// asset's recent return series. Only Limits.MaxPositionSize produces a
// violation; MaxTotalExposure only scales PortfolioExposurePct, and
// MaxConcentration is not checked.
type RiskNode struct {
	Provider market.Provider
	Limits   RiskLimits
}

func (n *RiskNode) Name() domain.DagNodeName { return domain.NodeRisk }

func (n *RiskNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	ranking, _ := rc.Prior.(domain.Ranking)
	symbol := ranking.SelectedSymbol
	if symbol == "" && rc.Run.TradeProposal != nil {
		symbol = rc.Run.TradeProposal.Asset + "-USD"
	}
	if symbol == "" {
		return nil, fmt.Errorf("risk: no selected symbol available from strategy output")
	}

	amountUSD := 0.0
	if rc.Run.TradeProposal != nil {
		amountUSD = rc.Run.TradeProposal.AmountUSD
	}

	candles, err := n.Provider.FetchCandles(ctx, symbol, 30*24*time.Hour, market.GranularityOneHour)
	start := time.Now()
	latency := time.Since(start).Milliseconds()
	status := domain.ToolCallSuccess
	errText := ""
	if err != nil {
		status = domain.ToolCallFailed
		errText = err.Error()
	}
	rc.ToolCalls.Record(ctx, domain.ToolCall{
		RunID: rc.Run.RunID, ToolName: "market.fetch_candles", MCPServer: "market-data",
		Status: status, LatencyMs: latency, Attempt: 1, ErrorText: errText,
	})

	returns := hourlyReturns(candles)

	var (
		sharpe  float64
		varVal  float64
		cvarVal float64
	)
	if len(returns) > 1 {
		sharpe = sharpeRatio(returns)
		varVal, cvarVal = historicalVaR(returns, 0.95)
	}

	exposurePct := 0.0
	if n.Limits.MaxTotalExposure > 0 {
		exposurePct = amountUSD / n.Limits.MaxTotalExposure * 100
	}

	var violations []string
	if amountUSD > n.Limits.MaxPositionSize {
		violations = append(violations, fmt.Sprintf("position size %.2f exceeds limit %.2f", amountUSD, n.Limits.MaxPositionSize))
	}

	analysis := domain.RiskAnalysis{
		PositionSizeUSD:      amountUSD,
		KellyFraction:        kellyFraction(returns),
		VaR95:                varVal,
		CVaR95:               cvarVal,
		SharpeProxy:          sharpe,
		PortfolioExposurePct: exposurePct,
		Violations:           violations,
		Approved:             len(violations) == 0,
	}

	_ = rc.Artifacts.WriteArtifact(ctx, domain.RunArtifact{
		RunID:        rc.Run.RunID,
		StepName:     string(domain.NodeRisk),
		ArtifactType: "risk_analysis",
		ArtifactJSON: marshalOrNull(analysis),
		CreatedAt:    time.Now().UTC(),
	})

	return analysis, nil
}

func hourlyReturns(candles []domain.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev)
	}
	return returns
}

func sharpeRatio(returns []float64) float64 {
	mean := meanOf(returns)
	std := stddevOf(returns, mean)
	if std == 0 {
		return 0
	}
	return mean / std
}

func historicalVaR(returns []float64, confidence float64) (varVal, cvarVal float64) {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	percentile := 1 - confidence
	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	varVal = -sorted[index]
	var sum float64
	for i := 0; i <= index; i++ {
		sum += sorted[i]
	}
	cvarVal = -sum / float64(index+1)
	return
}

func kellyFraction(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins, total := 0, 0
	var avgWin, avgLoss float64
	for _, r := range returns {
		total++
		if r > 0 {
			wins++
			avgWin += r
		} else {
			avgLoss += -r
		}
	}
	if wins == 0 || wins == total {
		return 0
	}
	winRate := float64(wins) / float64(total)
	avgWin /= float64(wins)
	avgLoss /= float64(total - wins)
	if avgLoss == 0 {
		return 0
	}
	b := avgWin / avgLoss
	kelly := winRate - (1-winRate)/b
	if kelly < 0 {
		return 0
	}
	return kelly
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
