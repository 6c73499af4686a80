package symbols

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToProductID(t *testing.T) {
	cases := map[string]string{
		"SOL":     "SOL-USD",
		"sol-usd": "SOL-USD",
		"BTC-USD": "BTC-USD",
		" btc ":   "BTC-USD",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToProductID(in), "input=%q", in)
	}
}

func TestToBase(t *testing.T) {
	cases := map[string]string{
		"SOL-USD": "SOL",
		"btc":     "BTC",
		"ETH-USD": "ETH",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToBase(in), "input=%q", in)
	}
}

func TestToProductIDToBaseRoundTrip(t *testing.T) {
	for _, s := range []string{"BTC", "eth", "SOL-USD", "doge"} {
		assert.Equal(t, ToProductID(ToBase(s)), ToProductID(s))
	}
}

func TestNormalizeTextIdempotent(t *testing.T) {
	in := "  Buy   $10   of   BTC  "
	once := NormalizeText(in)
	twice := NormalizeText(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, "buy $10 of btc", once)
}

func TestStripControlBytes(t *testing.T) {
	in := "hello\x00world\x07!"
	out := StripControlBytes(in)
	assert.False(t, strings.ContainsAny(out, "\x00\x07"))
	assert.Equal(t, "helloworld!", out)
}

func TestNewIDHasPrefix(t *testing.T) {
	id := NewID(PrefixRun)
	assert.True(t, strings.HasPrefix(id, PrefixRun))
}
