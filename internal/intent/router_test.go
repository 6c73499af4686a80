package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tradeassist/engine/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want domain.IntentType
	}{
		{"Hi", domain.IntentGreeting},
		{"hello there", domain.IntentGreeting},
		{"What can you do?", domain.IntentCapabilitiesHelp},
		{"Who is the president?", domain.IntentOutOfScope},
		{"What's the capital of France?", domain.IntentOutOfScope},
		{"How much BTC do I own?", domain.IntentPortfolioAnalysis},
		{"What's my ETH balance?", domain.IntentPortfolioAnalysis},
		{"What's the price of BTC?", domain.IntentFinanceAnalysis},
		{"Analyze my portfolio", domain.IntentPortfolioAnalysis},
		{"Buy $50 of SOL", domain.IntentTradeExecution},
		{"Sell half my ETH position", domain.IntentTradeExecution},
		{"Show me my portfolio", domain.IntentPortfolio},
		{"What's my portfolio PnL and BTC exposure?", domain.IntentFinanceAnalysis},
		{"What happened on my last run?", domain.IntentAppDiagnostics},
		{"", domain.IntentOutOfScope},
		{"   ", domain.IntentOutOfScope},
		{"how could an election affect BTC volatility and my portfolio risk", domain.IntentFinanceAnalysis},
		{"Who won the game last night?", domain.IntentOutOfScope},
	}
	for _, c := range cases {
		got := Classify(c.text)
		assert.Equal(t, c.want, got, "text=%q", c.text)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	text := "Analyze my crypto portfolio risk"
	first := Classify(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(text))
	}
}
