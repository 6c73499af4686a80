package eval

import (
	"fmt"

	"github.com/tradeassist/engine/internal/domain"
)

const (
	totalRunSLOMs = 90_000
	stepSLOMs     = 20_000
)

func performanceEvaluators() []Evaluator {
	return []Evaluator{
		{Name: "latency_slo", Category: domain.EvalCategoryPerformance, EvaluatorType: "rule_based", Fn: evalLatencySLO},
		{Name: "time_window_correctness", Category: domain.EvalCategoryPerformance, EvaluatorType: "oracle", Fn: evalTimeWindowCorrectness},
		{Name: "tool_error_rate", Category: domain.EvalCategoryPerformance, EvaluatorType: "rule_based", Fn: evalToolErrorRate},
	}
}

func evalLatencySLO(f *Facts) Verdict {
	if f.Run == nil {
		return Verdict{Score: 0, Reasons: []string{"run not found"}}
	}
	checks, passed := 0, 0
	var reasons []string

	checks++
	if f.Run.CompletedAt != nil {
		total := f.Run.CompletedAt.Sub(f.Run.CreatedAt).Milliseconds()
		if total <= totalRunSLOMs {
			passed++
			reasons = append(reasons, fmt.Sprintf("total run duration %dms <= %dms SLO", total, totalRunSLOMs))
		} else {
			reasons = append(reasons, fmt.Sprintf("total run duration %dms exceeds %dms SLO", total, totalRunSLOMs))
		}
	} else {
		reasons = append(reasons, "run not completed yet")
	}

	checks++
	slowSteps := 0
	for _, n := range f.Nodes {
		if n.StartedAt == nil || n.EndedAt == nil {
			continue
		}
		if n.EndedAt.Sub(*n.StartedAt).Milliseconds() > stepSLOMs {
			slowSteps++
		}
	}
	if slowSteps == 0 {
		passed++
		reasons = append(reasons, "all steps within per-step SLO")
	} else {
		reasons = append(reasons, fmt.Sprintf("%d steps exceeded the %dms per-step SLO", slowSteps, stepSLOMs))
	}

	return Verdict{Score: float64(passed) / float64(checks), Reasons: reasons,
		Thresholds: map[string]interface{}{"total_run_slo_ms": totalRunSLOMs, "step_slo_ms": stepSLOMs}}
}

func evalTimeWindowCorrectness(f *Facts) Verdict {
	if f.Run == nil {
		return Verdict{Score: 0.5, Reasons: []string{"no run data available for time window computation"}}
	}
	if len(f.CandleBatches) == 0 {
		return Verdict{Score: 0, Reasons: []string{"no candle batches found for this run"}}
	}
	var start, end *domain.Candle
	for _, b := range f.CandleBatches {
		for i := range b.Candles {
			c := &b.Candles[i]
			if start == nil || c.Time.Before(start.Time) {
				start = c
			}
			if end == nil || c.Time.After(end.Time) {
				end = c
			}
		}
	}
	if start == nil || end == nil {
		return Verdict{Score: 0, Reasons: []string{"candle batches contained no candles"}}
	}
	coveredHours := end.Time.Sub(start.Time).Hours()
	expectedHours := 24.0 // default research lookback
	coverage := coveredHours / expectedHours
	if coverage > 1 {
		coverage = 1
	}
	if coverage >= 0.9 {
		return Verdict{Score: 1.0, Reasons: []string{fmt.Sprintf("candle window covers %.0f%% of expected lookback", coverage*100)}}
	}
	return Verdict{Score: coverage, Reasons: []string{fmt.Sprintf("candle window covers only %.0f%% of expected lookback", coverage*100)}}
}

func evalToolErrorRate(f *Facts) Verdict {
	if len(f.ToolCalls) == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no tool calls (evaluation skipped)"}}
	}
	failed := 0
	withLatency := 0
	for _, tc := range f.ToolCalls {
		if tc.Status == domain.ToolCallFailed {
			failed++
		}
		if tc.LatencyMs > 0 {
			withLatency++
		}
	}
	errorRate := float64(failed) / float64(len(f.ToolCalls))
	latencyCoverage := float64(withLatency) / float64(len(f.ToolCalls))

	checks, passed := 0, 0
	checks++
	if errorRate <= 0.10 {
		passed++
	}
	checks++
	if latencyCoverage >= 0.90 {
		passed++
	}
	return Verdict{
		Score: float64(passed) / float64(checks),
		Reasons: []string{
			fmt.Sprintf("error rate %.1f%% (threshold 10%%)", errorRate*100),
			fmt.Sprintf("latency recorded for %.1f%% of calls (threshold 90%%)", latencyCoverage*100),
		},
	}
}
