package eval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

type fakeFactsLoader struct {
	facts *Facts
	err   error
}

func (f *fakeFactsLoader) Load(ctx context.Context, runID, tenantID string) (*Facts, error) {
	return f.facts, f.err
}

type fakeResultWriter struct {
	written []domain.EvalResult
}

func (f *fakeResultWriter) WriteResult(ctx context.Context, result domain.EvalResult) error {
	f.written = append(f.written, result)
	return nil
}

func TestRunner_RunWritesOneResultPerEvaluator(t *testing.T) {
	loader := &fakeFactsLoader{facts: &Facts{Run: &domain.Run{RunID: "run_1", Intent: domain.IntentTradeExecution, Status: domain.RunCompleted}}}
	writer := &fakeResultWriter{}
	runner := NewRunner(loader, writer)

	results, err := runner.Run(context.Background(), "run_1", "tenant_1")
	require.NoError(t, err)
	assert.Len(t, results, len(Registry))
	assert.Len(t, writer.written, len(Registry))
}

func TestRunner_FactsLoadErrorIsHardFailure(t *testing.T) {
	loader := &fakeFactsLoader{err: errors.New("load failed")}
	writer := &fakeResultWriter{}
	runner := NewRunner(loader, writer)

	_, err := runner.Run(context.Background(), "run_1", "tenant_1")
	assert.Error(t, err)
	assert.Empty(t, writer.written)
}

func TestRunOne_PanickingEvaluatorScoresZeroInsteadOfAborting(t *testing.T) {
	e := Evaluator{Name: "boom", Category: domain.EvalCategoryData, EvaluatorType: "rule_based", Fn: func(f *Facts) Verdict {
		panic("evaluator exploded")
	}}
	result := runOne(e, &Facts{}, "run_1", false)
	assert.Equal(t, 0.0, result.Score)
	assert.Contains(t, result.Reasons[0], "evaluator panicked")
}

func TestRunOne_NewsGatedEvaluatorSkippedWhenNewsDisabled(t *testing.T) {
	e := Evaluator{Name: "news_freshness", Category: domain.EvalCategoryRAG, EvaluatorType: "rule_based", Fn: func(f *Facts) Verdict {
		t.Fatal("should not be invoked when news is disabled")
		return Verdict{}
	}}
	result := runOne(e, &Facts{}, "run_1", false)
	assert.Equal(t, 1.0, result.Score)
	assert.Contains(t, result.Reasons[0], "news disabled")
}

func TestEvalSchemaValidity_MissingFieldsScoresZero(t *testing.T) {
	v := evalSchemaValidity(&Facts{Run: &domain.Run{RunID: "run_1"}})
	assert.Equal(t, 0.0, v.Score)
}

func TestEvalSchemaValidity_CompleteRunScoresFull(t *testing.T) {
	v := evalSchemaValidity(&Facts{Run: &domain.Run{RunID: "run_1", Intent: domain.IntentTradeExecution, Status: domain.RunCompleted}})
	assert.Equal(t, 1.0, v.Score)
}

func TestEvalLatencySLO_WithinBudgetScoresFull(t *testing.T) {
	start := time.Now().UTC()
	completed := start.Add(5 * time.Second)
	v := evalLatencySLO(&Facts{Run: &domain.Run{CreatedAt: start, CompletedAt: &completed}})
	assert.Equal(t, 1.0, v.Score)
}

func TestEvalLatencySLO_ExceedsBudgetScoresHalf(t *testing.T) {
	start := time.Now().UTC()
	completed := start.Add(200 * time.Second)
	v := evalLatencySLO(&Facts{Run: &domain.Run{CreatedAt: start, CompletedAt: &completed}})
	assert.Equal(t, 0.5, v.Score)
}

func TestEvalToolErrorRate_NoCallsSkipped(t *testing.T) {
	v := evalToolErrorRate(&Facts{})
	assert.Equal(t, 1.0, v.Score)
}

func TestEvalToolErrorRate_HighFailureRateScoresHalf(t *testing.T) {
	v := evalToolErrorRate(&Facts{ToolCalls: []domain.ToolCall{
		{Status: domain.ToolCallFailed, LatencyMs: 10},
		{Status: domain.ToolCallSuccess, LatencyMs: 10},
	}})
	assert.Equal(t, 0.5, v.Score)
}
