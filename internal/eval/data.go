package eval

import (
	"fmt"

	"github.com/tradeassist/engine/internal/domain"
)

func dataEvaluators() []Evaluator {
	return []Evaluator{
		{Name: "schema_validity", Category: domain.EvalCategoryData, EvaluatorType: "rule_based", Fn: evalSchemaValidity},
		{Name: "market_evidence_integrity", Category: domain.EvalCategoryData, EvaluatorType: "rule_based", Fn: evalMarketEvidenceIntegrity},
		{Name: "data_freshness", Category: domain.EvalCategoryData, EvaluatorType: "rule_based", Fn: evalDataFreshness},
		{Name: "coinbase_data_integrity", Category: domain.EvalCategoryData, EvaluatorType: "rule_based", Fn: evalCoinbaseDataIntegrity},
	}
}

func evalSchemaValidity(f *Facts) Verdict {
	if f.Run == nil {
		return Verdict{Score: 0, Reasons: []string{"run not found"}}
	}
	var missing []string
	if f.Run.RunID == "" {
		missing = append(missing, "run_id")
	}
	if f.Run.Intent == "" {
		missing = append(missing, "intent")
	}
	if f.Run.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return Verdict{Score: 0, Reasons: []string{fmt.Sprintf("run row missing required fields: %v", missing)}}
	}
	return Verdict{Score: 1.0, Reasons: []string{"run row has all required fields"}}
}

func evalMarketEvidenceIntegrity(f *Facts) Verdict {
	brief, ok := f.Artifact(domain.ArtifactFinancialBrief)
	if !ok {
		return Verdict{Score: 1.0, Reasons: []string{"no financial_brief artifact; evaluation not applicable"}}
	}
	_ = brief
	evidenced := map[string]bool{}
	for _, b := range f.CandleBatches {
		evidenced[b.Product] = true
	}
	if len(f.Rankings) == 0 {
		return Verdict{Score: 0.5, Reasons: []string{"no rankings to cross-check against candle batches"}}
	}
	missing := 0
	for _, row := range f.Rankings[len(f.Rankings)-1].Table {
		if !evidenced[row.Symbol] {
			missing++
		}
	}
	if missing == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"every ranked symbol has candle evidence"}}
	}
	return Verdict{Score: 1.0 - float64(missing)/float64(len(f.Rankings[len(f.Rankings)-1].Table)),
		Reasons: []string{fmt.Sprintf("%d ranked symbols missing candle evidence", missing)}}
}

func evalDataFreshness(f *Facts) Verdict {
	if f.Run == nil || f.Run.AssetClass != domain.AssetClassStock {
		return Verdict{Score: 1.0, Reasons: []string{"not applicable to crypto runs"}}
	}
	if len(f.CandleBatches) == 0 {
		return Verdict{Score: 0.5, Reasons: []string{"no candle batches to check freshness"}}
	}
	last := f.CandleBatches[len(f.CandleBatches)-1]
	if len(last.Candles) == 0 {
		return Verdict{Score: 0.5, Reasons: []string{"empty candle batch"}}
	}
	age := nowUTC().Sub(last.Candles[len(last.Candles)-1].Time)
	if age.Hours() <= 48 {
		return Verdict{Score: 1.0, Reasons: []string{fmt.Sprintf("last candle is %.1fh old, within the 48h EOD tolerance", age.Hours())}}
	}
	return Verdict{Score: 0, Reasons: []string{fmt.Sprintf("last candle is %.1fh old, exceeds 48h EOD tolerance", age.Hours())}}
}

func evalCoinbaseDataIntegrity(f *Facts) Verdict {
	if len(f.CandleBatches) == 0 {
		return Verdict{Score: 0.5, Reasons: []string{"no candle batches found for this run"}}
	}
	var total float64
	var reasons []string
	for _, batch := range f.CandleBatches {
		if len(batch.Candles) == 0 {
			reasons = append(reasons, batch.Product+": empty candle series")
			continue
		}
		ordered := true
		for i := 1; i < len(batch.Candles); i++ {
			if !batch.Candles[i].Time.After(batch.Candles[i-1].Time) {
				ordered = false
				break
			}
		}
		coverage := coverageScore(batch)
		score := coverage
		if !ordered {
			score = 0
			reasons = append(reasons, batch.Product+": candles out of order")
		}
		total += score
	}
	avg := total / float64(len(f.CandleBatches))
	return Verdict{Score: avg, Reasons: appendIfEmpty(reasons, "candle series ordered with sufficient coverage")}
}

func coverageScore(batch domain.CandleBatch) float64 {
	if len(batch.Candles) < 2 {
		return 0.5
	}
	gaps := 0
	var deltas []float64
	for i := 1; i < len(batch.Candles); i++ {
		deltas = append(deltas, batch.Candles[i].Time.Sub(batch.Candles[i-1].Time).Seconds())
	}
	median := medianOf(deltas)
	for _, d := range deltas {
		if median > 0 && d > 2*median {
			gaps++
		}
	}
	if len(deltas) == 0 {
		return 0.5
	}
	return 1.0 - float64(gaps)/float64(len(deltas))
}

func medianOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func appendIfEmpty(reasons []string, fallback string) []string {
	if len(reasons) == 0 {
		return []string{fallback}
	}
	return reasons
}
