package endpoint

import (
	"fmt"

	"github.com/tradeassist/engine/internal/domain"
)

const (
	greetingReply        = "Hi! I can help you research assets, check your portfolio, or place a trade. What would you like to do?"
	capabilitiesReply    = "I can execute trades (paper or live), analyze your portfolio, and answer questions about market conditions for supported assets. I can't help with anything outside trading and portfolio analysis."
	outOfScopeReply      = "That's outside what I can help with here. I handle trading, portfolio analysis, and market questions for supported assets."
	appDiagnosticsReply  = "I couldn't find anything wrong on my end. If a run failed, ask me what happened on your last run and I'll pull the details."
)

func cannedResponse(req Request, message string) Response {
	return Response{
		RequestID: req.RequestID,
		Status:    domain.StatusCompleted,
		Message:   message,
	}
}

func confirmationPrompt(p domain.TradeProposal) string {
	verb := "buy"
	if p.Side == domain.SideSell {
		verb = "sell"
	}
	return fmt.Sprintf("Confirm: %s $%.2f of %s in %s mode? Reply CONFIRM or CANCEL.", verb, p.AmountUSD, p.Asset, p.Mode)
}
