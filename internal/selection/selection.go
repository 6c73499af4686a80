// Package selection implements the Asset-Selection Engine: given a
// natural-language selection criterion ("most profitable", "worst
// performer") it builds a candidate universe, ranks it by return over a
// lookback window, and walks the ranking until it finds a candidate that
// passes the tradability gate.
//
// The two refusal conditions the component contract names — no candle
// data at all, and no candidate surviving the tradability gate — are
// modeled as typed errors rather than a silent fallback to a default
// asset, per the redesign note on exception-based control flow.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

// ErrNoMarketData is returned when not a single candidate in the universe
// produced enough candle data to compute a return.
type ErrNoMarketData struct {
	Window        string
	UniverseSize  int
	ExclusionsCount int
}

func (e *ErrNoMarketData) Error() string {
	return fmt.Sprintf(
		"no candle data available for %d candidates in the %s (%d exclusions)",
		e.UniverseSize, e.Window, e.ExclusionsCount,
	)
}

// ErrNoTradeableAsset is returned when every ranked candidate fails the
// tradability gate.
type ErrNoTradeableAsset struct {
	Evaluated int
	Skipped   []string
}

func (e *ErrNoTradeableAsset) Error() string {
	shown := e.Skipped
	if len(shown) > 5 {
		shown = shown[:5]
	}
	return fmt.Sprintf(
		"none of the top %d performers are tradeable; skipped: %s",
		e.Evaluated, strings.Join(shown, ", "),
	)
}

// Concurrency caps the number of in-flight candle fetches.
const Concurrency = 10

const (
	UniverseTop25Volume        = "top_25_volume"
	UniverseMajorsOnly         = "majors_only"
	UniverseExcludeStablecoins = "exclude_stablecoins"
)

var majorCryptos = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "XRP": true, "DOGE": true,
	"ADA": true, "AVAX": true, "DOT": true, "LINK": true, "MATIC": true,
	"ATOM": true, "LTC": true, "UNI": true, "BCH": true,
}

var stablecoins = map[string]bool{
	"USDC": true, "USDT": true, "DAI": true, "BUSD": true, "TUSD": true,
	"USDP": true, "GUSD": true, "FRAX": true, "USDD": true, "PYUSD": true,
}

// Request parameters for a selection run.
type Request struct {
	Criteria           string
	LookbackHours      float64
	UniverseConstraint string
	ThresholdPct       *float64
	AssetClass         domain.AssetClass
	StockWatchlist     []string
}

// CandidateMetrics is one scored candidate in the ranking.
type CandidateMetrics struct {
	Symbol      string
	ProductID   string
	ReturnPct   float64
	FirstPrice  float64
	LastPrice   float64
	CandleCount int
	Volume24h   float64
}

// Result mirrors the SelectionResult fields the component contract names.
type Result struct {
	SelectedSymbol      string
	SelectedProductID   string
	SelectedReturnPct   float64
	TopCandidates       []CandidateMetrics
	UniverseDescription string
	WindowDescription   string
	WhyExplanation      string
	LookbackHours       float64
	UniverseSize        int
	EvaluatedCount      int
	DataCoveragePct     float64
	RankingConfidence   float64
	ExclusionsCount     int
	ExclusionReasons    []string
}

// Engine runs the selection algorithm against a configured Provider.
type Engine struct {
	Provider market.Provider
}

func NewEngine(provider market.Provider) *Engine {
	return &Engine{Provider: provider}
}

// Select builds the universe, ranks it, and returns the first tradeable
// candidate. It returns *ErrNoMarketData or *ErrNoTradeableAsset — never a
// default-asset fallback — when the algorithm cannot produce a selection.
func (e *Engine) Select(ctx context.Context, req Request) (*Result, error) {
	products, universeDesc, err := e.buildUniverse(ctx, req)
	if err != nil {
		return nil, err
	}
	universeSize := len(products)
	windowDesc := humanizeWindow(req.LookbackHours)

	if universeSize == 0 {
		return nil, &ErrNoMarketData{Window: windowDesc, UniverseSize: 0, ExclusionsCount: 0}
	}

	gran := market.GranularityForWindow(req.LookbackHours)
	rankings, exclusionsCount, exclusionReasons := e.rankCandidates(ctx, products, req, gran)

	if len(rankings) == 0 {
		return nil, &ErrNoMarketData{
			Window:          windowDesc,
			UniverseSize:    universeSize,
			ExclusionsCount: exclusionsCount,
		}
	}

	sortRankings(rankings, req.Criteria)

	selected, selectedIdx, skipped, err := e.applyTradabilityGate(ctx, rankings)
	if err != nil {
		return nil, err
	}

	confidence := rankingConfidence(rankings, selectedIdx)
	top := rankings
	if len(top) > 3 {
		top = top[:3]
	}

	dataCoveragePct := 0.0
	if universeSize > 0 {
		dataCoveragePct = float64(len(rankings)) / float64(universeSize) * 100
	}

	result := &Result{
		SelectedSymbol:      selected.Symbol,
		SelectedProductID:   selected.ProductID,
		SelectedReturnPct:   round2(selected.ReturnPct),
		TopCandidates:       top,
		UniverseDescription: universeDesc,
		WindowDescription:   windowDesc,
		WhyExplanation:      explain(selected, rankings, windowDesc),
		LookbackHours:       req.LookbackHours,
		UniverseSize:        universeSize,
		EvaluatedCount:      len(rankings),
		DataCoveragePct:     round1(dataCoveragePct),
		RankingConfidence:   round2(confidence),
		ExclusionsCount:     exclusionsCount,
		ExclusionReasons:    firstN(exclusionReasons, 5),
	}
	_ = skipped
	return result, nil
}

func (e *Engine) buildUniverse(ctx context.Context, req Request) ([]market.Product, string, error) {
	if req.AssetClass == domain.AssetClassStock {
		products := make([]market.Product, 0, len(req.StockWatchlist))
		for _, sym := range req.StockWatchlist {
			products = append(products, market.Product{ProductID: sym, BaseCurrency: sym, QuoteCurrency: "USD"})
		}
		return products, "configured stock watchlist", nil
	}

	all, err := e.Provider.ListProducts(ctx, "USD")
	if err != nil {
		return nil, "", fmt.Errorf("selection: list products: %w", err)
	}

	switch req.UniverseConstraint {
	case UniverseMajorsOnly:
		filtered := filterProducts(all, func(p market.Product) bool {
			return majorCryptos[strings.ToUpper(p.BaseCurrency)]
		})
		return filtered, "major cryptocurrencies", nil
	case UniverseExcludeStablecoins:
		filtered := filterProducts(all, func(p market.Product) bool {
			return !stablecoins[strings.ToUpper(p.BaseCurrency)]
		})
		return filtered, "cryptocurrencies (excluding stablecoins)", nil
	default:
		filtered := filterProducts(all, func(p market.Product) bool {
			return p.BaseCurrency != "" && !stablecoins[strings.ToUpper(p.BaseCurrency)]
		})
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].Volume24h > filtered[j].Volume24h })
		if len(filtered) > 25 {
			filtered = filtered[:25]
		}
		return filtered, "top 25 cryptocurrencies by 24h volume", nil
	}
}

func filterProducts(products []market.Product, keep func(market.Product) bool) []market.Product {
	out := make([]market.Product, 0, len(products))
	for _, p := range products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// rankCandidates fetches candles for every product concurrently, bounded
// by Concurrency in-flight fetches, and returns the candidates that
// produced a usable return.
func (e *Engine) rankCandidates(ctx context.Context, products []market.Product, req Request, gran market.Granularity) ([]CandidateMetrics, int, []string) {
	type outcome struct {
		metrics *CandidateMetrics
		reason  string
	}

	outcomes := make([]outcome, len(products))
	sem := semaphore.NewWeighted(Concurrency)
	g, gctx := errgroup.WithContext(ctx)

	lookback := time.Duration(req.LookbackHours * float64(time.Hour))

	for i, p := range products {
		i, p := i, p
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				outcomes[i] = outcome{reason: "fetch_error: " + err.Error()}
				return nil
			}
			defer sem.Release(1)

			candles, err := e.Provider.FetchCandles(gctx, p.ProductID, lookback, gran)
			if err != nil {
				outcomes[i] = outcome{reason: "fetch_error: " + truncate(err.Error(), 50)}
				return nil
			}
			if len(candles) < 2 {
				outcomes[i] = outcome{reason: "insufficient_candles"}
				return nil
			}

			avgVolume := averageVolume(candles)
			if avgVolume <= 0 {
				outcomes[i] = outcome{reason: "no_trading_volume"}
				return nil
			}

			returnPct := computeReturn(candles)
			if req.ThresholdPct != nil && !passesThreshold(req.Criteria, returnPct, *req.ThresholdPct) {
				outcomes[i] = outcome{reason: "below_threshold"}
				return nil
			}

			outcomes[i] = outcome{metrics: &CandidateMetrics{
				Symbol:      p.BaseCurrency,
				ProductID:   p.ProductID,
				ReturnPct:   returnPct,
				FirstPrice:  candles[0].Open,
				LastPrice:   candles[len(candles)-1].Close,
				CandleCount: len(candles),
				Volume24h:   p.Volume24h,
			}}
			return nil
		})
	}
	_ = g.Wait()

	rankings := make([]CandidateMetrics, 0, len(products))
	var exclusionReasons []string
	exclusionsCount := 0
	for _, o := range outcomes {
		if o.metrics != nil {
			rankings = append(rankings, *o.metrics)
			continue
		}
		exclusionsCount++
		if o.reason != "" {
			exclusionReasons = append(exclusionReasons, o.reason)
		}
	}
	return rankings, exclusionsCount, exclusionReasons
}

func (e *Engine) applyTradabilityGate(ctx context.Context, rankings []CandidateMetrics) (CandidateMetrics, int, []string, error) {
	var skipped []string
	for idx, candidate := range rankings {
		ok, err := e.Provider.VerifyTradeable(ctx, candidate.ProductID)
		if err != nil || !ok {
			skipped = append(skipped, candidate.Symbol)
			continue
		}
		return candidate, idx, skipped, nil
	}
	return CandidateMetrics{}, -1, skipped, &ErrNoTradeableAsset{Evaluated: len(rankings), Skipped: skipped}
}

func sortRankings(rankings []CandidateMetrics, criteria string) {
	if isDescendingCriteria(criteria) {
		sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].ReturnPct > rankings[j].ReturnPct })
	} else {
		sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].ReturnPct < rankings[j].ReturnPct })
	}
}

func isDescendingCriteria(criteria string) bool {
	switch criteria {
	case "lowest_return", "worst performing", "worst return", "falling":
		return false
	default:
		return true
	}
}

func passesThreshold(criteria string, returnPct, thresholdPct float64) bool {
	if isDescendingCriteria(criteria) {
		return returnPct >= thresholdPct
	}
	return returnPct <= -thresholdPct
}

func computeReturn(candles []domain.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	firstOpen := candles[0].Open
	lastClose := candles[len(candles)-1].Close
	if firstOpen <= 0 {
		return 0
	}
	return (lastClose - firstOpen) / firstOpen * 100
}

func averageVolume(candles []domain.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	total := 0.0
	for _, c := range candles {
		total += c.Volume
	}
	return total / float64(len(candles))
}

func rankingConfidence(rankings []CandidateMetrics, selectedIdx int) float64 {
	if len(rankings) < 2 || selectedIdx < 0 {
		return 1.0
	}
	var runnerUp CandidateMetrics
	found := false
	for i, r := range rankings {
		if i == selectedIdx {
			continue
		}
		runnerUp = r
		found = true
		break
	}
	if !found {
		return 1.0
	}
	gap := rankings[selectedIdx].ReturnPct - runnerUp.ReturnPct
	if gap < 0 {
		gap = -gap
	}
	confidence := gap / 10.0
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func explain(selected CandidateMetrics, rankings []CandidateMetrics, windowDesc string) string {
	direction := "up"
	if selected.ReturnPct < 0 {
		direction = "down"
	}
	abs := selected.ReturnPct
	if abs < 0 {
		abs = -abs
	}
	s := fmt.Sprintf(
		"%s was selected as the top performer from %d assets in the %s. It returned %.2f%% (%s), moving from $%.4f to $%.4f.",
		selected.Symbol, len(rankings), windowDesc, abs, direction, selected.FirstPrice, selected.LastPrice,
	)
	if len(rankings) >= 2 {
		runnerUp := rankings[0]
		if rankings[0].Symbol == selected.Symbol && len(rankings) > 1 {
			runnerUp = rankings[1]
		}
		s += fmt.Sprintf(" Runner-up: %s at %+.2f%%.", runnerUp.Symbol, runnerUp.ReturnPct)
	}
	return s
}

func humanizeWindow(hours float64) string {
	switch {
	case hours < 1:
		minutes := int(hours * 60)
		return pluralize(minutes, "minute")
	case hours == 1:
		return "last hour"
	case hours < 24:
		return pluralize(int(hours), "hour")
	case hours == 24:
		return "last 24 hours"
	case hours < 168:
		return pluralize(int(hours/24), "day")
	case hours == 168:
		return "last week"
	default:
		return pluralize(int(hours/168), "week")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("last %d %s", n, unit)
	}
	return fmt.Sprintf("last %d %ss", n, unit)
}

func round1(v float64) float64 { return float64(int(v*10+0.5)) / 10 }
func round2(v float64) float64 { return float64(int(v*100+0.5)) / 100 }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsNoMarketData reports whether err is an *ErrNoMarketData.
func IsNoMarketData(err error) bool {
	var target *ErrNoMarketData
	return errors.As(err, &target)
}

// IsNoTradeableAsset reports whether err is an *ErrNoTradeableAsset.
func IsNoTradeableAsset(err error) bool {
	var target *ErrNoTradeableAsset
	return errors.As(err, &target)
}
