package eval

import (
	"fmt"

	"github.com/tradeassist/engine/internal/domain"
)

func complianceEvaluators() []Evaluator {
	return []Evaluator{
		{Name: "policy_compliance", Category: domain.EvalCategoryCompliance, EvaluatorType: "rule_based", Fn: evalPolicyCompliance},
		{Name: "live_trade_truthfulness", Category: domain.EvalCategoryCompliance, EvaluatorType: "rule_based", Fn: evalLiveTradeTruthfulness},
		{Name: "confirm_trade_idempotency", Category: domain.EvalCategoryCompliance, EvaluatorType: "rule_based", Fn: evalConfirmTradeIdempotency},
		{Name: "insufficient_balance_truthfulness", Category: domain.EvalCategoryCompliance, EvaluatorType: "rule_based", Fn: evalInsufficientBalanceTruthfulness},
	}
}

func evalPolicyCompliance(f *Facts) Verdict {
	if f.PolicyEvent == nil {
		return Verdict{Score: 1.0, Reasons: []string{"no policy event for this run"}}
	}
	if f.PolicyEvent.Decision == domain.PolicyBlocked && len(f.Orders) > 0 {
		return Verdict{Score: 0, Reasons: []string{fmt.Sprintf("policy BLOCKED but %d orders were placed", len(f.Orders))}}
	}
	return Verdict{Score: 1.0, Reasons: []string{fmt.Sprintf("policy %s consistent with %d orders", f.PolicyEvent.Decision, len(f.Orders))}}
}

func evalLiveTradeTruthfulness(f *Facts) Verdict {
	if len(f.Orders) == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no orders for this run (vacuously true)"}}
	}
	totalFilled, truthful := 0, 0
	var issues []string
	for _, o := range f.Orders {
		if o.Status != domain.OrderStatusFilled {
			continue
		}
		totalFilled++
		if o.FilledQty > 0 && o.AvgFillPrice > 0 {
			truthful++
		} else {
			issues = append(issues, fmt.Sprintf("order %s claims FILLED but lacks fill evidence", o.OrderID))
		}
	}
	if totalFilled == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no FILLED orders to verify"}}
	}
	score := float64(truthful) / float64(totalFilled)
	if score == 1.0 {
		return Verdict{Score: 1.0, Reasons: []string{fmt.Sprintf("all %d FILLED orders have fill evidence", totalFilled)}}
	}
	return Verdict{Score: score, Reasons: issues}
}

func evalConfirmTradeIdempotency(f *Facts) Verdict {
	if len(f.Orders) == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no orders for this run (vacuously idempotent)"}}
	}
	seenClientID := map[string]int{}
	seenSymbolSide := map[string]int{}
	for _, o := range f.Orders {
		seenClientID[o.ClientOrderID]++
		seenSymbolSide[string(o.Side)+":"+o.Symbol]++
	}
	var issues []string
	for id, count := range seenClientID {
		if count > 1 {
			issues = append(issues, fmt.Sprintf("duplicate client_order_id %q appeared %d times", id, count))
		}
	}
	for key, count := range seenSymbolSide {
		if count > 1 {
			issues = append(issues, fmt.Sprintf("duplicate symbol+side %q appeared %d times", key, count))
		}
	}
	if len(issues) == 0 {
		return Verdict{Score: 1.0, Reasons: []string{fmt.Sprintf("%d orders, no duplicates", len(f.Orders))}}
	}
	return Verdict{Score: 0, Reasons: issues}
}

func evalInsufficientBalanceTruthfulness(f *Facts) Verdict {
	if f.Run == nil || f.Run.TradeProposal == nil || f.Run.TradeProposal.AutoSell == nil {
		return Verdict{Score: 1.0, Reasons: []string{"no auto-sell remediation on this run"}}
	}
	for _, o := range f.Orders {
		if o.NotionalUSD <= 0 {
			continue
		}
		reduction := (f.Run.TradeProposal.AmountUSD - o.NotionalUSD) / f.Run.TradeProposal.AmountUSD
		if reduction > 0.05 {
			return Verdict{Score: 0, Reasons: []string{fmt.Sprintf("order notional silently reduced by %.1f%%, exceeds 5%% tolerance", reduction*100)}}
		}
	}
	return Verdict{Score: 1.0, Reasons: []string{"no silent notional reduction beyond tolerance"}}
}
