package dag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

// StrategyMetric selects which score the strategy node ranks candidates by.
type StrategyMetric string

const (
	MetricReturn      StrategyMetric = "return"
	MetricSharpeProxy StrategyMetric = "sharpe_proxy"
	MetricMomentum    StrategyMetric = "momentum"
)

// StrategyNode scores and ranks research's candidates, picking the run's
// selected asset.
type StrategyNode struct {
	Provider market.Provider
	Metric   StrategyMetric
}

func (n *StrategyNode) Name() domain.DagNodeName { return domain.NodeStrategy }

type strategyDecision struct {
	Metric         string  `json:"metric"`
	SelectedSymbol string  `json:"selected_symbol"`
	SelectedScore  float64 `json:"selected_score"`
	CandidateCount int     `json:"candidate_count"`
}

type selectionBasis struct {
	Reasoning string   `json:"reasoning"`
	RunnersUp []string `json:"runners_up"`
}

type strategyFailure struct {
	ReasonCode string `json:"reason_code"`
	Detail     string `json:"detail"`
}

func (n *StrategyNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	metric := n.Metric
	if metric == "" {
		metric = MetricReturn
	}

	candidates, ok := rc.Prior.([]rankedCandidate)
	if !ok || len(candidates) == 0 {
		fetched, err := n.refetch(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("strategy: refetch candles: %w", err)
		}
		candidates = fetched
	}

	if len(candidates) == 0 {
		_ = writeArtifact(ctx, rc, string(domain.NodeStrategy), domain.ArtifactStrategyFailure, strategyFailure{
			ReasonCode: "STRATEGY_NO_CANDIDATES",
			Detail:     "no ranked candidates survived research or the strategy refetch",
		})
		rc.Run.Status = domain.RunFailed
		_ = rc.Runs.UpdateStatus(ctx, rc.Run.RunID, domain.RunFailed, "STRATEGY_NO_CANDIDATES", "strategy node had nothing to rank")
		return nil, nil
	}

	table := make([]domain.RankingRow, len(candidates))
	for i, c := range candidates {
		table[i] = domain.RankingRow{
			Symbol:      c.Symbol,
			Score:       scoreFor(metric, c),
			Volume24h:   0,
			CandleCount: 0,
		}
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].Score != table[j].Score {
			return table[i].Score > table[j].Score
		}
		if table[i].Volume24h != table[j].Volume24h {
			return table[i].Volume24h > table[j].Volume24h
		}
		return table[i].Symbol < table[j].Symbol
	})

	ranking := domain.Ranking{
		RunID:          rc.Run.RunID,
		Window:         "24h",
		Metric:         string(metric),
		Table:          table,
		SelectedSymbol: table[0].Symbol,
		SelectedScore:  table[0].Score,
		Rationale:      fmt.Sprintf("ranked %d candidates by %s, selected top scorer %s", len(table), metric, table[0].Symbol),
	}

	_ = writeArtifactRanking(ctx, rc, ranking)

	_ = writeArtifact(ctx, rc, string(domain.NodeStrategy), domain.ArtifactStrategyDecision, strategyDecision{
		Metric:         string(metric),
		SelectedSymbol: ranking.SelectedSymbol,
		SelectedScore:  ranking.SelectedScore,
		CandidateCount: len(table),
	})

	runnersUp := make([]string, 0, 3)
	for _, row := range table[1:] {
		runnersUp = append(runnersUp, row.Symbol)
		if len(runnersUp) == 3 {
			break
		}
	}
	_ = writeArtifact(ctx, rc, string(domain.NodeStrategy), domain.ArtifactSelectionBasis, selectionBasis{
		Reasoning: ranking.Rationale,
		RunnersUp: runnersUp,
	})

	plan := mergeExecutionPlan(rc.Run.ExecutionPlan, map[string]interface{}{
		"selected_asset": ranking.SelectedSymbol,
		"selected_order": table,
	})
	rc.Run.ExecutionPlan = plan

	return ranking, nil
}

func (n *StrategyNode) refetch(ctx context.Context, rc *RunContext) ([]rankedCandidate, error) {
	productIDs, _, err := (&ResearchNode{Provider: n.Provider}).resolveUniverse(ctx, rc)
	if err != nil {
		return nil, err
	}

	gran := market.GranularityForWindow(24)
	sem := semaphore.NewWeighted(researchConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	results := make([]*rankedCandidate, len(productIDs))

	for i, productID := range productIDs {
		i, productID := i, productID
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			candles, err := n.Provider.FetchCandles(gctx, productID, 30*time.Hour, gran)
			if err != nil || len(candles) < 2 {
				return nil
			}
			first, last := candles[0], candles[len(candles)-1]
			if first.Open <= 0 {
				return nil
			}
			results[i] = &rankedCandidate{Symbol: productID, ProductID: productID, ReturnPct: (last.Close - first.Open) / first.Open * 100}
			return nil
		})
	}
	_ = g.Wait()

	var kept []rankedCandidate
	for _, r := range results {
		if r != nil {
			kept = append(kept, *r)
		}
	}
	return kept, nil
}

func scoreFor(metric StrategyMetric, c rankedCandidate) float64 {
	switch metric {
	case MetricSharpeProxy:
		// Without a full return series at this layer, sharpe_proxy
		// degrades to the raw return scaled by a fixed proxy volatility;
		// the risk node computes the real Sharpe from frozen candles.
		return c.ReturnPct / 2.0
	case MetricMomentum:
		return c.ReturnPct
	default:
		return c.ReturnPct
	}
}

func writeArtifactRanking(ctx context.Context, rc *RunContext, ranking domain.Ranking) error {
	return rc.Artifacts.WriteArtifact(ctx, domain.RunArtifact{
		RunID:        rc.Run.RunID,
		StepName:     string(domain.NodeStrategy),
		ArtifactType: "rankings",
		ArtifactJSON: marshalOrNull(ranking),
		CreatedAt:    time.Now().UTC(),
	})
}

func mergeExecutionPlan(existing json.RawMessage, patch map[string]interface{}) json.RawMessage {
	merged := map[string]interface{}{}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &merged)
	}
	for k, v := range patch {
		merged[k] = v
	}
	return marshalOrNull(merged)
}
