// Package symbols normalizes trading symbols and product IDs, generates
// stable opaque IDs, and provides a safe JSON encoder for domain values.
package symbols

import (
	"strings"
)

// ToProductID converts a bare base asset or an already-qualified product
// ID into canonical BASE-QUOTE form, defaulting the quote to USD.
//
//	ToProductID("SOL")     -> "SOL-USD"
//	ToProductID("sol-usd") -> "SOL-USD"
//	ToProductID("BTC-USD") -> "BTC-USD"
func ToProductID(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, "-") {
		return s
	}
	return s + "-USD"
}

// ToBase strips the quote currency, returning the bare base asset.
//
//	ToBase("SOL-USD") -> "SOL"
//	ToBase("btc")     -> "BTC"
func ToBase(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.Index(s, "-"); i >= 0 {
		return s[:i]
	}
	return s
}

// NormalizeText lowercases and collapses whitespace, the pure function the
// Intent Router and Trade-Command Parser both run text through before
// classification. Idempotent: NormalizeText(NormalizeText(t)) == NormalizeText(t).
func NormalizeText(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	return strings.Join(fields, " ")
}

// StripControlBytes removes ASCII control characters (everything below
// 0x20 except the bytes Fields/TrimSpace already treat as whitespace, and
// 0x7F) from free-form client input before it is persisted or classified.
func StripControlBytes(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
