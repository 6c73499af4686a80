package dag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

// researchConcurrency bounds per-symbol candle fan-out, matching the
// asset-selection engine's provider rate-limit budget.
const researchConcurrency = 10

// ResearchNode gathers market evidence for the run's target asset (or,
// absent a locked product, a filtered universe) and ranks it by return.
type ResearchNode struct {
	Provider market.Provider
}

func (n *ResearchNode) Name() domain.DagNodeName { return domain.NodeResearch }

type universeSnapshot struct {
	Filters        []string `json:"filters"`
	ProductIDs     []string `json:"product_ids"`
	Source         string   `json:"source"`
}

type researchSummary struct {
	Requested       int            `json:"requested"`
	Kept            int            `json:"kept"`
	Dropped         int            `json:"dropped"`
	DropReasons     map[string]int `json:"drop_reasons"`
	APICallCount    int            `json:"api_call_count"`
	GranularityUsed string         `json:"granularity_used"`
}

type rankedCandidate struct {
	Symbol    string  `json:"symbol"`
	ProductID string  `json:"product_id"`
	ReturnPct float64 `json:"return_pct"`
}

type financialBrief struct {
	Candidates []rankedCandidate `json:"candidates"`
}

type researchFailure struct {
	ReasonCode        string   `json:"reason_code"`
	RootCauseGuess    string   `json:"root_cause_guess"`
	RecommendedFix    string   `json:"recommended_fix"`
	TopExamples       []string `json:"top_examples"`
}

func (n *ResearchNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	if rc.Run.SourceRunID != nil && *rc.Run.SourceRunID != "" {
		return n.replay(ctx, rc)
	}

	lookbackHours := 24.0
	gran := market.GranularityForWindow(lookbackHours)
	bufferHours := maxFloat(lookbackHours*1.25, lookbackHours+12)
	window := time.Duration(bufferHours * float64(time.Hour))

	productIDs, universeSource, err := n.resolveUniverse(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("research: resolve universe: %w", err)
	}

	_ = writeArtifact(ctx, rc, string(domain.NodeResearch), domain.ArtifactUniverseSnapshot, universeSnapshot{
		Filters:    []string{"status=online", "quote=USD", "exclude_stablecoins"},
		ProductIDs: productIDs,
		Source:     universeSource,
	})

	needCandles := int(maxFloat(0.75*lookbackHours, 2))

	var (
		kept     []rankedCandidate
		dropReasons = map[string]int{}
		apiCalls    int
	)
	sem := semaphore.NewWeighted(researchConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	results := make([]*rankedCandidate, len(productIDs))
	reasons := make([]string, len(productIDs))

	for i, productID := range productIDs {
		i, productID := i, productID
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			start := time.Now()
			candles, err := n.Provider.FetchCandles(gctx, productID, window, gran)
			latency := time.Since(start).Milliseconds()
			status := domain.ToolCallSuccess
			errText := ""
			if err != nil {
				status = domain.ToolCallFailed
				errText = err.Error()
			}
			rc.ToolCalls.Record(gctx, domain.ToolCall{
				RunID: rc.Run.RunID, ToolName: "market.fetch_candles", MCPServer: "market-data",
				Status: status, LatencyMs: latency, Attempt: 1, ErrorText: errText,
			})
			if err != nil {
				reasons[i] = "api_error_" + classifyError(err)
				return nil
			}
			if len(candles) < needCandles {
				reasons[i] = fmt.Sprintf("insufficient_candles_%d_need_%d", len(candles), needCandles)
				return nil
			}
			_ = writeArtifact(gctx, rc, string(domain.NodeResearch), domain.ArtifactCandleBatch, domain.CandleBatch{
				Product:     productID,
				Interval:    string(gran),
				Candles:     candles,
				QueryParams: marshalOrNull(map[string]interface{}{"lookback_hours": lookbackHours, "window": window.String()}),
			})
			first := candles[0]
			last := candles[len(candles)-1]
			if first.Open <= 0 {
				reasons[i] = "invalid_price_zero_open"
				return nil
			}
			results[i] = &rankedCandidate{
				Symbol:    productID,
				ProductID: productID,
				ReturnPct: (last.Close - first.Open) / first.Open * 100,
			}
			return nil
		})
	}
	_ = g.Wait()

	apiCalls = len(productIDs)
	for i, r := range results {
		if r != nil {
			kept = append(kept, *r)
		} else if reasons[i] != "" {
			dropReasons[reasons[i]]++
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].ReturnPct > kept[j].ReturnPct })

	_ = writeArtifact(ctx, rc, string(domain.NodeResearch), domain.ArtifactResearchSummary, researchSummary{
		Requested:       len(productIDs),
		Kept:            len(kept),
		Dropped:         len(productIDs) - len(kept),
		DropReasons:     dropReasons,
		APICallCount:    apiCalls,
		GranularityUsed: string(gran),
	})

	if len(kept) == 0 {
		topExamples := make([]string, 0, 3)
		for reason := range dropReasons {
			topExamples = append(topExamples, reason)
			if len(topExamples) == 3 {
				break
			}
		}
		_ = writeArtifact(ctx, rc, string(domain.NodeResearch), domain.ArtifactResearchFailure, researchFailure{
			ReasonCode:     "RESEARCH_EMPTY_RANKINGS",
			RootCauseGuess: "provider returned no usable candle series for the requested universe",
			RecommendedFix: "retry with a shorter lookback window or a different asset",
			TopExamples:    topExamples,
		})
		rc.Run.Status = domain.RunFailed
		_ = rc.Runs.UpdateStatus(ctx, rc.Run.RunID, domain.RunFailed, "RESEARCH_EMPTY_RANKINGS", "no tradeable candidate survived research")
		return nil, nil
	}

	_ = writeArtifact(ctx, rc, string(domain.NodeResearch), domain.ArtifactFinancialBrief, financialBrief{Candidates: kept})

	return kept, nil
}

func (n *ResearchNode) replay(ctx context.Context, rc *RunContext) (interface{}, error) {
	// A run with a source_run_id makes no provider calls here and
	// returns no candidates. The source run's research artifacts are not
	// copied into this run, and with no candidates in Prior the strategy
	// node falls back to its own provider refetch.
	return nil, nil
}

func (n *ResearchNode) resolveUniverse(ctx context.Context, rc *RunContext) ([]string, string, error) {
	if rc.Run.LockedProductID != "" {
		return []string{rc.Run.LockedProductID}, "locked_product_id", nil
	}
	if rc.Run.TradeProposal != nil && rc.Run.TradeProposal.Asset != "" {
		return []string{rc.Run.TradeProposal.Asset + "-USD"}, "proposal_asset", nil
	}

	products, err := n.Provider.ListProducts(ctx, "USD")
	if err != nil {
		return nil, "", err
	}
	var ids []string
	for _, p := range products {
		if p.Status != "online" {
			continue
		}
		ids = append(ids, p.ProductID)
		if len(ids) >= 50 {
			break
		}
	}
	return ids, "provider_universe_scan", nil
}

func classifyError(err error) string {
	msg := err.Error()
	switch {
	case contains(msg, "rate limit"):
		return "rate_limited"
	case contains(msg, "timeout") || contains(msg, "deadline"):
		return "timeout"
	default:
		return "unknown"
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
