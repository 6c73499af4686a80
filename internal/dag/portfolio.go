package dag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

const portfolioTradeWindowDays = 30

// PortfolioSnapshotReader serves the PAPER fallback: the latest balances
// snapshot on record for a tenant, or nil if none exists yet.
type PortfolioSnapshotReader interface {
	LatestSnapshot(ctx context.Context, tenantID string) (*domain.PortfolioSnapshot, error)
}

// OrderHistoryStore serves the PAPER order-history read; LIVE mode asks
// the broker directly instead.
type OrderHistoryStore interface {
	RecentFilledOrders(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.Order, error)
}

// PortfolioNode fetches real (LIVE) or snapshotted (PAPER) holdings and
// produces a tool-grounded PortfolioBrief. It runs standalone, outside
// the trade pipeline, followed only by the eval node.
type PortfolioNode struct {
	Broker                   market.Broker
	Provider                 market.Provider
	Snapshots                PortfolioSnapshotReader
	Orders                   OrderHistoryStore
	LiveCredentialsAvailable bool
}

func (n *PortfolioNode) Name() domain.DagNodeName { return domain.NodePortfolio }

func (n *PortfolioNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	useLive := rc.Run.ExecutionMode == domain.ModeLive && n.LiveCredentialsAvailable
	var (
		brief domain.PortfolioBrief
		err   error
	)
	if useLive {
		brief, err = n.runLive(ctx, rc)
	} else {
		brief, err = n.runPaper(ctx, rc)
	}
	if err != nil {
		// Safe-response pattern: a failure after the holdings fetch never
		// invents data, it degrades to the minimal guaranteed response
		// with a failure sub-object instead of propagating a Go error.
		brief = domain.PortfolioBrief{
			AsOf: time.Now().UTC(),
			Mode: domain.ModePaper,
			Risk: domain.RiskSnapshot{RiskLevel: "UNKNOWN"},
			Failure: &domain.FailureDetail{
				ErrorCode:       "PORTFOLIO_ANALYSIS_FAILED",
				ErrorMessage:    err.Error(),
				Recoverable:     true,
				SuggestedAction: "retry, or execute a trade to create a portfolio snapshot",
			},
		}
	}

	_ = writeArtifact(ctx, rc, string(domain.NodePortfolio), domain.ArtifactPortfolioBrief, brief)
	return brief, nil
}

func (n *PortfolioNode) runLive(ctx context.Context, rc *RunContext) (domain.PortfolioBrief, error) {
	start := time.Now()
	balances, err := n.Broker.GetBalances(ctx)
	n.recordToolCall(ctx, rc, "broker.get_balances", start, err)
	if err != nil {
		return domain.PortfolioBrief{}, fmt.Errorf("portfolio: fetch balances: %w", err)
	}
	if len(balances) == 0 {
		return domain.PortfolioBrief{}, fmt.Errorf("portfolio: no balances returned")
	}

	_ = writeArtifact(ctx, rc, string(domain.NodePortfolio), domain.ArtifactHoldingsRaw, holdingsRaw(balances, rc.Run.TenantID, "LIVE"))

	cashUSD, qty := splitCash(balances)
	prices := n.fetchPrices(ctx, rc, qty)

	start = time.Now()
	history, err := n.Broker.GetOrderHistory(ctx, time.Now().Add(-portfolioTradeWindowDays*24*time.Hour), 100)
	n.recordToolCall(ctx, rc, "broker.get_order_history", start, err)
	if err != nil {
		history = nil
	}

	return assemblePortfolioBrief(domain.ModeLive, cashUSD, qty, prices, history, nil), nil
}

func (n *PortfolioNode) runPaper(ctx context.Context, rc *RunContext) (domain.PortfolioBrief, error) {
	var warnings []string
	var balances []domain.Holding
	var asOf time.Time

	snap, err := n.Snapshots.LatestSnapshot(ctx, rc.Run.TenantID)
	if err == nil && snap != nil {
		balances = snap.Balances
		asOf = snap.Timestamp
		warnings = append(warnings, fmt.Sprintf("using PAPER snapshot from %s", snap.Timestamp.Format(time.RFC3339)))
	} else {
		// Deterministic PAPER seed used whenever no snapshot history exists
		// yet for the tenant.
		balances = []domain.Holding{
			{Symbol: "USD", Quantity: 10000},
			{Symbol: "BTC", Quantity: 0.5},
			{Symbol: "ETH", Quantity: 5},
		}
		asOf = time.Now().UTC()
		warnings = append(warnings, "no portfolio history found; using deterministic PAPER seed")
	}

	cashUSD, qty := splitCash(balances)
	prices := n.fetchPrices(ctx, rc, qty)

	var history []domain.Order
	if n.Orders != nil {
		history, err = n.Orders.RecentFilledOrders(ctx, rc.Run.TenantID, time.Now().Add(-portfolioTradeWindowDays*24*time.Hour), 100)
		if err != nil {
			history = nil
			warnings = append(warnings, "order history unavailable right now")
		}
	}

	brief := assemblePortfolioBrief(domain.ModePaper, cashUSD, qty, prices, history, warnings)
	brief.AsOf = asOf
	return brief, nil
}

type assetPrice struct {
	price float64
	vol   float64 // stddev of hourly returns over the lookback window
}

// fetchPrices fetches 24h hourly candles per held asset, bounded to
// researchConcurrency in flight, to derive both the current price and a
// per-asset volatility proxy.
func (n *PortfolioNode) fetchPrices(ctx context.Context, rc *RunContext, qty map[string]float64) map[string]assetPrice {
	prices := make(map[string]assetPrice, len(qty))
	var mu sync.Mutex

	sem := semaphore.NewWeighted(researchConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for symbol := range qty {
		symbol := symbol
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			productID := symbol + "-USD"
			start := time.Now()
			candles, err := n.Provider.FetchCandles(gctx, productID, 24*time.Hour, market.GranularityOneHour)
			n.recordToolCall(gctx, rc, "market.fetch_candles", start, err)
			if err != nil || len(candles) == 0 {
				return nil
			}
			returns := hourlyReturns(candles)
			ap := assetPrice{price: candles[len(candles)-1].Close}
			if len(returns) > 1 {
				ap.vol = stddevOf(returns, meanOf(returns))
			}
			mu.Lock()
			prices[symbol] = ap
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return prices
}

func assemblePortfolioBrief(mode domain.ExecutionMode, cashUSD float64, qty map[string]float64, prices map[string]assetPrice, history []domain.Order, warnings []string) domain.PortfolioBrief {
	symbols := make([]string, 0, len(qty))
	for symbol := range qty {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	holdings := make([]domain.Holding, 0, len(symbols))
	for _, symbol := range symbols {
		q := qty[symbol]
		ap, ok := prices[symbol]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no price available for %s, USD value set to 0", symbol))
			holdings = append(holdings, domain.Holding{Symbol: symbol, Quantity: q})
			continue
		}
		holdings = append(holdings, domain.Holding{Symbol: symbol, Quantity: q, Price: ap.price, USDValue: q * ap.price})
	}

	totalHoldingsUSD := 0.0
	for _, h := range holdings {
		totalHoldingsUSD += h.USDValue
	}
	totalValueUSD := totalHoldingsUSD + cashUSD

	allocation := make([]domain.AllocationRow, 0, len(holdings)+1)
	for _, h := range holdings {
		pct := 0.0
		if totalValueUSD > 0 {
			pct = h.USDValue / totalValueUSD * 100
		}
		allocation = append(allocation, domain.AllocationRow{Symbol: h.Symbol, Pct: pct, USDValue: h.USDValue})
	}
	sort.Slice(allocation, func(i, j int) bool { return allocation[i].USDValue > allocation[j].USDValue })
	if cashUSD > 0 && totalValueUSD > 0 {
		allocation = append(allocation, domain.AllocationRow{Symbol: "USD", Pct: cashUSD / totalValueUSD * 100, USDValue: cashUSD})
	}

	vol := make(map[string]float64, len(prices))
	for symbol, ap := range prices {
		vol[symbol] = ap.vol
	}

	risk := computeRiskSnapshot(allocation, vol)
	tradeSummary := computeTradeSummary(history, portfolioTradeWindowDays)
	recommendations := generateRecommendations(risk, tradeSummary)

	return domain.PortfolioBrief{
		AsOf:            time.Now().UTC(),
		Mode:            mode,
		TotalValueUSD:   totalValueUSD,
		CashUSD:         cashUSD,
		Holdings:        holdings,
		Allocation:      allocation,
		TradeSummary:    tradeSummary,
		Risk:            risk,
		Recommendations: recommendations,
		Warnings:        warnings,
	}
}

func computeRiskSnapshot(allocation []domain.AllocationRow, vol map[string]float64) domain.RiskSnapshot {
	var nonCash []domain.AllocationRow
	for _, a := range allocation {
		if a.Symbol != "USD" {
			nonCash = append(nonCash, a)
		}
	}
	if len(nonCash) == 0 {
		return domain.RiskSnapshot{RiskLevel: "UNKNOWN"}
	}
	sort.Slice(nonCash, func(i, j int) bool { return nonCash[i].Pct > nonCash[j].Pct })

	top1 := nonCash[0].Pct
	top3 := 0.0
	for i := 0; i < len(nonCash) && i < 3; i++ {
		top3 += nonCash[i].Pct
	}

	var volSum float64
	var volCount int
	for _, v := range vol {
		if v > 0 {
			volSum += v
			volCount++
		}
	}
	var volProxy *float64
	if volCount > 0 {
		avg := volSum / float64(volCount)
		volProxy = &avg
	}

	hhi := 0.0
	for _, a := range nonCash {
		frac := a.Pct / 100
		hhi += frac * frac
	}
	diversification := 0.0
	if hhi < 1 {
		diversification = 1 - hhi
	}

	var level string
	switch {
	case top1 >= 80:
		level = "VERY_HIGH"
	case top1 >= 60:
		level = "HIGH"
	case top1 >= 40:
		level = "MEDIUM"
	default:
		level = "LOW"
	}

	return domain.RiskSnapshot{
		ConcentrationPctTop1: top1,
		ConcentrationPctTop3: top3,
		VolatilityProxy:      volProxy,
		DiversificationScore: diversification,
		RiskLevel:            level,
	}
}

func computeTradeSummary(orders []domain.Order, windowDays int) *domain.TradeSummary {
	summary := &domain.TradeSummary{WindowDays: windowDays}
	if len(orders) == 0 {
		return summary
	}
	assetCounts := map[string]int{}
	for _, o := range orders {
		summary.TotalTrades++
		if o.Side == domain.SideBuy {
			summary.Buys++
		} else {
			summary.Sells++
		}
		summary.TotalNotionalUSD += o.NotionalUSD
		asset := o.Symbol
		if idx := strings.IndexByte(asset, '-'); idx > 0 {
			asset = asset[:idx]
		}
		assetCounts[asset]++
	}
	if summary.TotalTrades > 0 {
		summary.AvgTradeUSD = summary.TotalNotionalUSD / float64(summary.TotalTrades)
	}
	summary.TopAssets = topN(assetCounts, 5)
	return summary
}

func generateRecommendations(risk domain.RiskSnapshot, trade *domain.TradeSummary) []domain.PortfolioRecommendation {
	var recs []domain.PortfolioRecommendation

	switch {
	case risk.ConcentrationPctTop1 >= 70:
		recs = append(recs, domain.PortfolioRecommendation{
			Category: "REBALANCING", Priority: "HIGH", Title: "High Concentration Risk",
			Description:    fmt.Sprintf("%.1f%% of the portfolio sits in a single asset; consider diversifying.", risk.ConcentrationPctTop1),
			ActionRequired: true,
		})
	case risk.ConcentrationPctTop1 >= 50:
		recs = append(recs, domain.PortfolioRecommendation{
			Category: "REBALANCING", Priority: "MEDIUM", Title: "Moderate Concentration",
			Description: fmt.Sprintf("Top asset is %.1f%% of the portfolio; consider spreading positions more evenly.", risk.ConcentrationPctTop1),
		})
	}

	if risk.DiversificationScore > 0 && risk.DiversificationScore < 0.3 {
		recs = append(recs, domain.PortfolioRecommendation{
			Category: "DIVERSIFICATION", Priority: "MEDIUM", Title: "Low Diversification",
			Description: "Portfolio is concentrated in few assets; consider adding positions in different asset types.",
		})
	}

	if trade != nil && trade.TotalTrades > 50 {
		recs = append(recs, domain.PortfolioRecommendation{
			Category: "POSITION_SIZING", Priority: "LOW", Title: "High Trading Frequency",
			Description: fmt.Sprintf("%d trades in %d days; high frequency may increase costs.", trade.TotalTrades, trade.WindowDays),
		})
	}

	if risk.VolatilityProxy != nil && *risk.VolatilityProxy > 0.05 {
		recs = append(recs, domain.PortfolioRecommendation{
			Category: "RISK_CAP", Priority: "MEDIUM", Title: "High Volatility Exposure",
			Description: fmt.Sprintf("Portfolio shows elevated volatility (%.2f%%); consider reducing position sizes.", *risk.VolatilityProxy*100),
		})
	}

	if len(recs) == 0 {
		recs = append(recs, domain.PortfolioRecommendation{
			Category: "OTHER", Priority: "LOW", Title: "Portfolio Looks Healthy",
			Description: "No immediate concerns identified. Continue monitoring.",
		})
	}
	return recs
}

func (n *PortfolioNode) recordToolCall(ctx context.Context, rc *RunContext, tool string, start time.Time, err error) {
	status := domain.ToolCallSuccess
	errText := ""
	if err != nil {
		status = domain.ToolCallFailed
		errText = err.Error()
	}
	rc.ToolCalls.Record(ctx, domain.ToolCall{
		RunID: rc.Run.RunID, ToolName: tool, MCPServer: "market-data",
		Status: status, LatencyMs: time.Since(start).Milliseconds(), Attempt: 1, ErrorText: errText,
	})
}

// holdingsRaw redacts account identity down to a short hash of the
// fetched symbol set plus a non-zero balance summary; never the raw
// balances themselves. The Broker boundary surfaces holdings by symbol
// rather than by account UUID, so the scope hash covers the sorted
// symbol set actually fetched rather than underlying account IDs.
func holdingsRaw(balances []domain.Holding, tenantID, mode string) map[string]interface{} {
	var symbols []string
	var summary []map[string]interface{}
	for _, b := range balances {
		if b.Quantity <= 0 {
			continue
		}
		symbols = append(symbols, b.Symbol)
		summary = append(summary, map[string]interface{}{
			"currency":          b.Symbol,
			"available_balance": b.Quantity,
		})
	}
	sort.Strings(symbols)
	hash := sha256.Sum256([]byte(strings.Join(symbols, "|")))
	keyScopeHash := hex.EncodeToString(hash[:])[:12]

	return map[string]interface{}{
		"fetch_ts":         time.Now().UTC(),
		"key_scope_hash":   keyScopeHash,
		"account_count":    len(symbols),
		"accounts_summary": summary,
		"mode":             mode,
		"tenant_id":        tenantID,
	}
}

func splitCash(balances []domain.Holding) (cashUSD float64, qty map[string]float64) {
	qty = make(map[string]float64)
	for _, b := range balances {
		if b.Quantity <= 0 {
			continue
		}
		if b.Symbol == "USD" {
			cashUSD += b.Quantity
			continue
		}
		qty[b.Symbol] += b.Quantity
	}
	return
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		k string
		v int
	}
	kvs := make([]kv, 0, len(counts))
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].v > kvs[j].v })
	out := make([]string, 0, n)
	for i := 0; i < len(kvs) && i < n; i++ {
		out = append(out, kvs[i].k)
	}
	return out
}
