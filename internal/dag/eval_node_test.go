package dag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/eval"
)

type fakeFactsLoader struct {
	facts *eval.Facts
	err   error
}

func (f *fakeFactsLoader) Load(ctx context.Context, runID, tenantID string) (*eval.Facts, error) {
	return f.facts, f.err
}

type fakeEvalResultWriter struct {
	written []domain.EvalResult
}

func (f *fakeEvalResultWriter) WriteResult(ctx context.Context, result domain.EvalResult) error {
	f.written = append(f.written, result)
	return nil
}

type fakeAnalytics struct {
	runID   string
	results []domain.EvalResult
}

func (f *fakeAnalytics) EmitEvalComplete(runID string, results []domain.EvalResult) {
	f.runID = runID
	f.results = results
}

func TestEvalNode_RunsFullRegistryAndEmitsAnalytics(t *testing.T) {
	run := baseRun()
	rc, _, _, _ := newTestRunContext(run)

	loader := &fakeFactsLoader{facts: &eval.Facts{Run: run}}
	writer := &fakeEvalResultWriter{}
	analytics := &fakeAnalytics{}
	node := &EvalNode{Runner: eval.NewRunner(loader, writer), Analytics: analytics}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	results := out.([]domain.EvalResult)
	assert.Len(t, results, len(eval.Registry))
	assert.Len(t, writer.written, len(eval.Registry))
	assert.Equal(t, run.RunID, analytics.runID)
	assert.Len(t, analytics.results, len(eval.Registry))
}

func TestEvalNode_FactsLoadFailureIsHardError(t *testing.T) {
	run := baseRun()
	rc, _, _, _ := newTestRunContext(run)

	loader := &fakeFactsLoader{err: errors.New("facts unavailable")}
	writer := &fakeEvalResultWriter{}
	node := &EvalNode{Runner: eval.NewRunner(loader, writer)}

	_, err := node.Run(context.Background(), rc)
	assert.Error(t, err)
}

func TestEvalNode_ToleratesNilAnalytics(t *testing.T) {
	run := baseRun()
	rc, _, _, _ := newTestRunContext(run)

	loader := &fakeFactsLoader{facts: &eval.Facts{Run: run}}
	writer := &fakeEvalResultWriter{}
	node := &EvalNode{Runner: eval.NewRunner(loader, writer)}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.NotNil(t, out)
}
