// Package tradeparse extracts a structured trade command from free-form
// text: side, asset, asset class, dollar/percentage amount, execution
// mode, lookback window, and asset-selection hints. It never calls out to
// a market-data provider or the database; it is a pure function of text.
package tradeparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

// ErrMissingAmount is returned when the command has no dollar amount and
// is not a percentage sale.
var ErrMissingAmount = errors.New("tradeparse: missing_amount")

// ErrMissingAsset is returned when the command names no asset and is not
// an asset-selection query ("most profitable").
var ErrMissingAsset = errors.New("tradeparse: missing_asset")

// Command is the structured result of parsing a trade command.
type Command struct {
	Side                Side
	Asset               string
	AssetClass          domain.AssetClass
	AmountUSD           *float64
	BaseSize            *float64
	SellPercent         *float64
	Mode                domain.ExecutionMode
	IsMostProfitable    bool
	IsSellLastPurchase  bool
	LookbackHours       float64
	SelectionCriteria   string
	ThresholdPct        *float64
	UniverseConstraint  string
	RawText             string
}

// Side mirrors domain.Side but is kept local so a parse that finds no
// directional keyword can distinguish "unset" from "BUY" without
// overloading the domain enum's zero value.
type Side string

const (
	SideUnspecified Side = ""
	SideBuy         Side = Side(domain.SideBuy)
	SideSell        Side = Side(domain.SideSell)
)

const (
	UniverseTop25Volume        = "top_25_volume"
	UniverseMajorsOnly         = "majors_only"
	UniverseExcludeStablecoins = "exclude_stablecoins"
)

var assetAliases = map[string]string{
	"bitcoin":   "BTC",
	"btc":       "BTC",
	"ethereum":  "ETH",
	"eth":       "ETH",
	"solana":    "SOL",
	"sol":       "SOL",
	"polygon":   "MATIC",
	"matic":     "MATIC",
	"avalanche": "AVAX",
	"avax":      "AVAX",
	"cardano":   "ADA",
	"ada":       "ADA",
	"dogecoin":  "DOGE",
	"doge":      "DOGE",
	"ripple":    "XRP",
	"xrp":       "XRP",
	"litecoin":  "LTC",
	"ltc":       "LTC",
	"chainlink": "LINK",
	"link":      "LINK",
	"uniswap":   "UNI",
	"cosmos":    "ATOM",
	"atom":      "ATOM",
	"stellar":   "XLM",
	"xlm":       "XLM",
	"polkadot":  "DOT",
	"dot":       "DOT",
}

var (
	dollarPattern  = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)
	percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	thresholdUp    = regexp.MustCompile(`up\s+(\d+(?:\.\d+)?)\s*%`)
	thresholdDown  = regexp.MustCompile(`down\s+(\d+(?:\.\d+)?)\s*%`)

	windowPattern = regexp.MustCompile(
		`last\s+(\d+)\s*(minute|minutes|min|hour|hours|hr|hrs|day|days|week|weeks)\b`)
	lastHourPattern  = regexp.MustCompile(`\blast\s+hour\b`)
	lastWeekPattern  = regexp.MustCompile(`\blast\s+week\b`)
	lastMonthPattern = regexp.MustCompile(`\blast\s+month\b`)

	sellLastPurchasePattern = regexp.MustCompile(`sell\s+(my\s+)?last\s+purchase`)
	mostProfitablePattern   = regexp.MustCompile(
		`most\s+profitable|best\s+perform(er|ing)|top\s+(gainer|performer)|highest\s+return`)
	worstPerformerPattern = regexp.MustCompile(
		`worst\s+perform(er|ing)|lowest\s+return|biggest\s+loser|falling`)
)

const defaultLookbackHours = 24.0

// Parse extracts a Command from raw chat text. It returns ErrMissingAmount
// or ErrMissingAsset when a required field cannot be located and the
// command is not one of the exemptions (percentage sale, asset-selection
// query) the component contract names.
func Parse(text string) (Command, error) {
	normalized := symbols.NormalizeText(text)

	cmd := Command{
		RawText:       text,
		LookbackHours: defaultLookbackHours,
	}

	cmd.Side = parseSide(normalized)
	cmd.Mode = parseMode(normalized)
	cmd.AssetClass = parseAssetClass(normalized)
	cmd.IsMostProfitable = mostProfitablePattern.MatchString(normalized)
	cmd.IsSellLastPurchase = sellLastPurchasePattern.MatchString(normalized)
	cmd.SelectionCriteria = parseSelectionCriteria(normalized)
	cmd.UniverseConstraint = parseUniverseConstraint(normalized)
	cmd.LookbackHours = parseLookbackHours(normalized)
	cmd.ThresholdPct = parseThresholdPct(normalized)
	cmd.Asset = parseAsset(normalized)

	amount, percent := parseAmount(normalized)
	cmd.AmountUSD = amount
	cmd.SellPercent = percent

	if cmd.AmountUSD == nil && cmd.SellPercent == nil {
		return cmd, ErrMissingAmount
	}
	if cmd.Asset == "" && !cmd.IsMostProfitable && !cmd.IsSellLastPurchase {
		return cmd, ErrMissingAsset
	}

	return cmd, nil
}

func parseSide(normalized string) Side {
	if strings.Contains(normalized, "sell") {
		return SideSell
	}
	if strings.Contains(normalized, "buy") {
		return SideBuy
	}
	return SideUnspecified
}

func parseMode(normalized string) domain.ExecutionMode {
	switch {
	case strings.Contains(normalized, "assisted"):
		return domain.ModeAssistedLive
	case strings.Contains(normalized, "live"):
		return domain.ModeLive
	case strings.Contains(normalized, "paper"):
		return domain.ModePaper
	case strings.Contains(normalized, "replay") || strings.Contains(normalized, "backtest"):
		return domain.ModeReplay
	default:
		return ""
	}
}

func parseAssetClass(normalized string) domain.AssetClass {
	hasCrypto := strings.Contains(normalized, "crypto") || strings.Contains(normalized, "coin")
	hasStock := strings.Contains(normalized, "stock") || strings.Contains(normalized, "equity") ||
		strings.Contains(normalized, "equities") || strings.Contains(normalized, "share")
	switch {
	case hasCrypto && hasStock:
		return domain.AssetClassAmbiguous
	case hasStock:
		return domain.AssetClassStock
	case hasCrypto:
		return domain.AssetClassCrypto
	default:
		return domain.AssetClassCrypto
	}
}

func parseAsset(normalized string) string {
	for alias, symbol := range assetAliases {
		if containsWord(normalized, alias) {
			return symbol
		}
	}
	return ""
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	if idx < 0 {
		return false
	}
	before := idx == 0 || !isWordByte(text[idx-1])
	after := idx+len(word) >= len(text) || !isWordByte(text[idx+len(word)])
	return before && after
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func parseAmount(normalized string) (amountUSD *float64, sellPercent *float64) {
	if m := dollarPattern.FindStringSubmatch(normalized); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			amountUSD = &v
		}
	}
	if strings.Contains(normalized, "sell") {
		if m := percentPattern.FindStringSubmatch(normalized); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				sellPercent = &v
			}
		}
	}
	return amountUSD, sellPercent
}

func parseThresholdPct(normalized string) *float64 {
	if m := thresholdUp.FindStringSubmatch(normalized); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &v
		}
	}
	if m := thresholdDown.FindStringSubmatch(normalized); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			negated := -v
			return &negated
		}
	}
	return nil
}

func parseSelectionCriteria(normalized string) string {
	switch {
	case mostProfitablePattern.MatchString(normalized):
		return "highest_return"
	case worstPerformerPattern.MatchString(normalized):
		return "lowest_return"
	default:
		return ""
	}
}

func parseUniverseConstraint(normalized string) string {
	switch {
	case strings.Contains(normalized, "exclude stablecoin") || strings.Contains(normalized, "excluding stablecoin"):
		return UniverseExcludeStablecoins
	case strings.Contains(normalized, "major") || strings.Contains(normalized, "blue chip"):
		return UniverseMajorsOnly
	default:
		return UniverseTop25Volume
	}
}

// parseLookbackHours recognizes explicit "last N <unit>" phrasing plus the
// fixed-phrase shortcuts ("last hour", "last week", "last month"), falling
// back to defaultLookbackHours when no window is named.
func parseLookbackHours(normalized string) float64 {
	if m := windowPattern.FindStringSubmatch(normalized); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return unitToHours(m[2], n)
		}
	}
	switch {
	case lastHourPattern.MatchString(normalized):
		return 1
	case lastWeekPattern.MatchString(normalized):
		return 168
	case lastMonthPattern.MatchString(normalized):
		return 720
	default:
		return defaultLookbackHours
	}
}

func unitToHours(unit string, n float64) float64 {
	switch unit {
	case "minute", "minutes", "min":
		return n / 60.0
	case "hour", "hours", "hr", "hrs":
		return n
	case "day", "days":
		return n * 24.0
	case "week", "weeks":
		return n * 168.0
	default:
		return n
	}
}
