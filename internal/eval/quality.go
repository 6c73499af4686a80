package eval

import (
	"fmt"

	"github.com/tradeassist/engine/internal/domain"
)

func qualityEvaluators() []Evaluator {
	return []Evaluator{
		{Name: "ranking_correctness", Category: domain.EvalCategoryQuality, EvaluatorType: "rule_based", Fn: evalRankingCorrectness},
		{Name: "profit_ranking_correctness", Category: domain.EvalCategoryQuality, EvaluatorType: "oracle", Fn: evalProfitRankingCorrectness},
		{Name: "plan_completeness", Category: domain.EvalCategoryQuality, EvaluatorType: "rule_based", Fn: evalPlanCompleteness},
		{Name: "ux_completeness", Category: domain.EvalCategoryQuality, EvaluatorType: "rule_based", Fn: evalUXCompleteness},
		{Name: "evidence_sufficiency", Category: domain.EvalCategoryQuality, EvaluatorType: "rule_based", Fn: evalEvidenceSufficiency},
	}
}

func evalRankingCorrectness(f *Facts) Verdict {
	if len(f.Rankings) == 0 {
		return Verdict{Score: 0, Reasons: []string{"no rankings found for this run"}}
	}
	ranking := f.Rankings[len(f.Rankings)-1]
	if len(ranking.Table) == 0 {
		return Verdict{Score: 0, Reasons: []string{"rankings table is empty"}}
	}
	top := ranking.Table[0].Symbol
	if ranking.SelectedSymbol == top {
		return Verdict{Score: 1.0, Reasons: []string{fmt.Sprintf("selected %s matches top-ranked symbol", top)}}
	}
	return Verdict{Score: 0, Reasons: []string{fmt.Sprintf("selected %s does not match top-ranked %s", ranking.SelectedSymbol, top)}}
}

// evalProfitRankingCorrectness compares the chosen asset against an
// oracle re-derived straight from the frozen candle batches, independent
// of whatever the strategy node computed.
func evalProfitRankingCorrectness(f *Facts) Verdict {
	if len(f.CandleBatches) == 0 {
		return Verdict{Score: 0.5, Reasons: []string{"no frozen candle data available for oracle comparison"}}
	}
	if len(f.Rankings) == 0 {
		return Verdict{Score: 0, Reasons: []string{"no agent ranking found for this run"}}
	}

	type oracleRow struct {
		Symbol string
		Return float64
	}
	var oracle []oracleRow
	for _, b := range f.CandleBatches {
		if len(b.Candles) < 2 {
			continue
		}
		first, last := b.Candles[0], b.Candles[len(b.Candles)-1]
		if first.Open <= 0 {
			continue
		}
		oracle = append(oracle, oracleRow{Symbol: b.Product, Return: (last.Close - first.Open) / first.Open})
	}
	if len(oracle) == 0 {
		return Verdict{Score: 0.5, Reasons: []string{"no frozen candle data available for oracle comparison"}}
	}
	for i := 0; i < len(oracle); i++ {
		for j := i + 1; j < len(oracle); j++ {
			if oracle[j].Return > oracle[i].Return {
				oracle[i], oracle[j] = oracle[j], oracle[i]
			}
		}
	}

	selected := f.Rankings[len(f.Rankings)-1].SelectedSymbol
	if selected == oracle[0].Symbol {
		return Verdict{Score: 1.0, Reasons: []string{fmt.Sprintf("agent selected %s, matching oracle top asset", selected)}}
	}
	top3 := map[string]bool{}
	for _, o := range oracle[:min(3, len(oracle))] {
		top3[o.Symbol] = true
	}
	if top3[selected] {
		return Verdict{Score: 0.5, Reasons: []string{fmt.Sprintf("agent selected %s, in oracle top-3 but not top-1 (%s)", selected, oracle[0].Symbol)}}
	}
	return Verdict{Score: 0, Reasons: []string{fmt.Sprintf("agent selected %s, oracle top was %s", selected, oracle[0].Symbol)}}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func evalPlanCompleteness(f *Facts) Verdict {
	required := []domain.DagNodeName{domain.NodeResearch, domain.NodeStrategy, domain.NodeProposal, domain.NodeExecution}
	if f.Run != nil && f.Run.Intent == domain.IntentPortfolioAnalysis {
		required = []domain.DagNodeName{domain.NodePortfolio}
	}
	var missing, present []string
	for _, name := range required {
		if _, ok := f.Nodes[name]; ok {
			present = append(present, string(name))
		} else {
			missing = append(missing, string(name))
		}
	}
	score := float64(len(present)) / float64(len(required))
	var reasons []string
	if len(missing) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing required steps: %v", missing))
	}
	if len(present) > 0 {
		reasons = append(reasons, fmt.Sprintf("present required steps: %v", present))
	}
	return Verdict{Score: score, Reasons: reasons, Thresholds: map[string]interface{}{"min_score": 1.0}}
}

func evalUXCompleteness(f *Facts) Verdict {
	if len(f.Nodes) == 0 {
		return Verdict{Score: 0, Reasons: []string{"no nodes found"}}
	}
	starts := map[string]bool{}
	finishes := map[string]bool{}
	for _, e := range f.RunEvents {
		switch e.EventType {
		case domain.EventStepStarted:
			starts[e.StepName] = true
		case domain.EventStepFinished:
			finishes[e.StepName] = true
		}
	}
	var missingStart, missingFinish []string
	for name := range f.Nodes {
		if !starts[string(name)] {
			missingStart = append(missingStart, string(name))
		}
		if !finishes[string(name)] {
			missingFinish = append(missingFinish, string(name))
		}
	}
	total := len(f.Nodes) * 2
	complete := total - len(missingStart) - len(missingFinish)
	score := 1.0
	if total > 0 {
		score = float64(complete) / float64(total)
	}
	var reasons []string
	if len(missingStart) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing STEP_STARTED for: %v", missingStart))
	}
	if len(missingFinish) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing STEP_FINISHED for: %v", missingFinish))
	}
	return Verdict{Score: score, Reasons: appendIfEmpty(reasons, "every node has STARTED and FINISHED events")}
}

func evalEvidenceSufficiency(f *Facts) Verdict {
	checks, passed := 0, 0
	var reasons []string

	checks++
	if len(f.Rankings) > 0 && len(f.Rankings[len(f.Rankings)-1].Table) > 0 {
		passed++
		reasons = append(reasons, fmt.Sprintf("rankings table has %d candidates", len(f.Rankings[len(f.Rankings)-1].Table)))
	} else {
		reasons = append(reasons, "rankings table missing or empty")
	}

	checks++
	if _, ok := f.Artifact(domain.ArtifactFinancialBrief); ok {
		passed++
		reasons = append(reasons, "research outputs have a financial brief")
	} else {
		reasons = append(reasons, "research outputs missing financial brief")
	}

	checks++
	if _, ok := f.Artifact(domain.ArtifactStrategyDecision); ok {
		passed++
		reasons = append(reasons, "strategy node produced a decision with evidence")
	} else {
		reasons = append(reasons, "strategy decision missing")
	}

	return Verdict{Score: float64(passed) / float64(checks), Reasons: reasons}
}
