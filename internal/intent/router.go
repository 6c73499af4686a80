// Package intent classifies free-form chat text into one of eight intents
// via a deterministic, ordered set of pattern and keyword checks. No ML,
// no LLM — every classification is explainable from the pattern that fired.
package intent

import (
	"regexp"
	"strings"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

var greetingPatterns = compileAll(
	`^(hi|hello|hey|yo|sup|howdy|greetings)\b`,
	`^good (morning|afternoon|evening|day)\b`,
	`^how are you\b`,
	`^what'?s up\b`,
)

var capabilitiesKeywords = []string{
	"capabilities", "what can you do", "what do you do", "help", "examples", "example",
	"how do i use", "how to use", "commands", "supported queries", "features",
	"what are you", "who are you", "introduce yourself",
}

var outOfScopePatterns = compileAll(
	`who is (the )?(president|prime minister|senator|governor|mayor)`,
	`\b(election|vote|voting|ballot|campaign)\b`,
	`\b(democrat|republican|liberal|conservative|party)\b`,
	`capital of`,
	`history of`,
	`when was .+ (born|founded|created|invented)`,
	`where is .+ located`,
	`(sports? score|game score|who won the (game|match|championship))`,
	`\b(nfl|nba|mlb|nhl|fifa|olympics)\b`,
	`(celebrity|actor|actress|singer|movie|film|tv show)`,
	`who (starred|played|sang)`,
	`what is the (tallest|biggest|smallest|longest)`,
	`how many .+ in the world`,
)

var financeKeywords = []string{
	"buy", "sell", "trade", "order", "execute", "purchase",
	"portfolio", "pnl", "profit", "loss", "gain", "return",
	"risk", "volatility", "drawdown", "sharpe", "allocation", "exposure",
	"btc", "eth", "sol", "ada", "crypto", "bitcoin", "ethereum",
	"candles", "ohlc", "price", "volume", "market cap",
	"technical", "indicator", "moving average", "rsi", "macd",
	"bullish", "bearish", "trend", "support", "resistance",
	"most profitable", "top gainer", "top loser", "best performer",
	"analyze", "analysis", "compare", "comparison",
	"slippage", "limit", "market order", "stop loss",
}

var tradeExecutionKeywords = []string{
	"buy", "sell", "purchase", "order", "execute", "trade",
	"long", "short", "position",
}

var portfolioKeywords = []string{
	"portfolio", "holdings", "positions", "allocation", "exposure",
	"pnl", "profit and loss", "performance", "returns",
	"diversification", "risk", "drawdown",
}

var portfolioAnalysisPatterns = compileAll(
	`analyze\s+(my\s+)?(crypto\s+|stock\s+)?portfolio`,
	`portfolio\s+analysis`,
	`analyze\s+(my\s+)?holdings`,
	`analyze\s+(my\s+)?positions`,
	`analyze\s+(my\s+)?allocation`,
	`portfolio\s+risk\s+analysis`,
	`risk\s+analysis\s+(of\s+)?(my\s+)?portfolio`,
	`how\s+is\s+(my\s+)?portfolio\s+doing`,
	`portfolio\s+health`,
	`portfolio\s+summary`,
	`full\s+portfolio\s+analysis`,
	`deep\s+portfolio\s+analysis`,
	`portfolio\s+breakdown`,
	`trading\s+behavior\s+analysis`,
	`trading\s+summary`,
)

var holdingsQueryPatterns = compileAll(
	`how\s+much\s+(\w+)\s+do\s+i\s+(own|have)`,
	`what\s+is\s+(my\s+)?(\w+)\s+(balance|holding|holdings)`,
	`do\s+i\s+(own|have)\s+(any\s+)?(\w+)`,
	`(my\s+)?(\w+)\s+balance\b`,
	`show\s+(me\s+)?(my\s+)?(\w+)\s+(balance|holdings?)`,
	`what'?s\s+(my\s+)?(\w+)\s*(balance|holding)?`,
	`check\s+(my\s+)?(\w+)\s+(balance|holdings?)`,
)

var pricePatterns = compileAll(
	`price of`,
	`current price`,
	`what'?s the price`,
	`how much is (\w+) worth`,
	`(\w+) price\b`,
)

var cryptoSymbols = map[string]bool{
	"btc": true, "bitcoin": true, "eth": true, "ethereum": true,
	"sol": true, "solana": true, "ada": true, "cardano": true,
	"dot": true, "polkadot": true, "matic": true, "polygon": true,
	"avax": true, "avalanche": true, "link": true, "chainlink": true,
	"uni": true, "uniswap": true, "atom": true, "cosmos": true,
	"xrp": true, "ripple": true, "doge": true, "dogecoin": true,
	"shib": true, "ltc": true, "litecoin": true, "xlm": true, "stellar": true,
}

var appDiagnosticKeywords = []string{
	"telemetry", "evals", "evaluations", "runs", "run history",
	"steps panel", "trace", "latency", "errors", "logs",
	"why was", "what happened", "debug", "status",
	"charts", "graph", "visualization",
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(keywords []string, text string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func countMatches(keywords []string, text string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

// Classify runs the ordered decision table from the component contract and
// returns the single matching IntentType. It is a pure function of
// normalized text.
func Classify(text string) domain.IntentType {
	normalized := symbols.NormalizeText(text)

	if normalized == "" {
		return domain.IntentOutOfScope
	}
	if matchesAny(greetingPatterns, normalized) {
		return domain.IntentGreeting
	}
	if containsAny(capabilitiesKeywords, normalized) {
		return domain.IntentCapabilitiesHelp
	}
	if isOutOfScope(normalized) {
		return domain.IntentOutOfScope
	}
	if containsAny(appDiagnosticKeywords, normalized) {
		return domain.IntentAppDiagnostics
	}
	if matchesAny(portfolioAnalysisPatterns, normalized) {
		return domain.IntentPortfolioAnalysis
	}
	if isHoldingsQuery(normalized) {
		return domain.IntentPortfolioAnalysis
	}
	if containsAny(tradeExecutionKeywords, normalized) {
		return domain.IntentTradeExecution
	}

	hasPortfolio := containsAny(portfolioKeywords, normalized)
	hasFinance := containsAny(financeKeywords, normalized)
	if hasPortfolio && hasFinance && mentionsCryptoSymbol(normalized) {
		return domain.IntentFinanceAnalysis
	}
	if hasPortfolio {
		return domain.IntentPortfolio
	}
	if hasFinance {
		return domain.IntentFinanceAnalysis
	}

	return domain.IntentOutOfScope
}

// isOutOfScope checks the hard out-of-scope patterns, with the finance-
// context escape hatch: a match is forgiven when the text also carries
// two or more finance keywords (e.g. "how could an election affect BTC
// volatility").
func isOutOfScope(normalized string) bool {
	if !matchesAny(outOfScopePatterns, normalized) {
		return false
	}
	if countMatches(financeKeywords, normalized) >= 2 {
		return false
	}
	return true
}

// isHoldingsQuery recognizes specific-asset balance questions ("how much
// BTC do I own"), excluding price queries which share similar phrasing.
func isHoldingsQuery(normalized string) bool {
	if matchesAny(pricePatterns, normalized) {
		return false
	}
	for _, p := range holdingsQueryPatterns {
		m := p.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		for _, g := range m[1:] {
			if cryptoSymbols[g] {
				return true
			}
		}
	}
	return false
}

func mentionsCryptoSymbol(normalized string) bool {
	for sym := range cryptoSymbols {
		if strings.Contains(normalized, sym) {
			return true
		}
	}
	return false
}
