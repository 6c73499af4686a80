package dag

import (
	"context"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/eval"
)

// AnalyticsEmitter fires one best-effort event per completed eval pass,
// the same best-effort/never-fails-the-caller contract as the tool-call
// audit bus.
type AnalyticsEmitter interface {
	EmitEvalComplete(runID string, results []domain.EvalResult)
}

// EvalNode runs the full eval registry against a just-finished run. It
// is the last node in both the trade and portfolio-analysis sequences
// and, per its contract, must never abort the run regardless of what
// any individual grader does.
type EvalNode struct {
	Runner    *eval.Runner
	Analytics AnalyticsEmitter
}

func (n *EvalNode) Name() domain.DagNodeName { return domain.NodeEval }

func (n *EvalNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	results, err := n.Runner.Run(ctx, rc.Run.RunID, rc.Run.TenantID)
	if err != nil {
		// Facts could not even be loaded; this is the one condition the
		// eval node treats as a hard failure, since without Facts no
		// grader ran at all.
		return nil, err
	}

	if n.Analytics != nil {
		func() {
			defer func() { _ = recover() }()
			n.Analytics.EmitEvalComplete(rc.Run.RunID, results)
		}()
	}

	return results, nil
}
