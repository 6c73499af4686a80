// Package dag implements the DAG Runner & Nodes: the ordered pipeline
// that turns a confirmed Run into research, a ranked strategy decision,
// a risk-gated trade proposal, a policy check, execution, post-trade
// accounting, and a final eval pass. Nodes never call each other
// directly; each reads prior state from artifacts and the DB and writes
// its own artifacts for the next node to read.
package dag

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tradeassist/engine/internal/domain"
)

// Order is the fixed execution sequence for a trade run.
var Order = []domain.DagNodeName{
	domain.NodeResearch,
	domain.NodeStrategy,
	domain.NodeRisk,
	domain.NodeProposal,
	domain.NodePolicyCheck,
	domain.NodeExecution,
	domain.NodePostTrade,
	domain.NodeEval,
}

// PortfolioOrder is the sequence for a PORTFOLIO_ANALYSIS run.
var PortfolioOrder = []domain.DagNodeName{
	domain.NodePortfolio,
	domain.NodeEval,
}

// ArtifactWriter persists append-only evidence rows.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, artifact domain.RunArtifact) error
}

// NodeStore tracks each node's lifecycle row on the Run.
type NodeStore interface {
	StartNode(ctx context.Context, runID string, name domain.DagNodeName, inputs json.RawMessage) (nodeID string, err error)
	CompleteNode(ctx context.Context, nodeID string, outputs json.RawMessage) error
	FailNode(ctx context.Context, nodeID string, outputs json.RawMessage) error
}

// RunStore is the subset of run persistence the DAG runner needs to
// read the run under execution and update its terminal state. Unlike
// the Command Endpoint's RunStore, lookups here are not tenant-scoped:
// the runner is trusted internal code dispatching on a runID it issued
// itself, never on untrusted caller input.
type RunStore interface {
	GetRunForExecution(ctx context.Context, runID string) (*domain.Run, error)
	UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, failureCode, failureReason string) error
	MarkTradabilityVerified(ctx context.Context, runID string) error
}

// Node is one pipeline step. Its return value is both marshaled into the
// dag_node row's outputs and threaded in-process to the next node via
// RunContext.Prior, so a downstream node (e.g. strategy reading
// research's ranked candidates) can avoid re-deriving or re-fetching
// what an upstream node already computed. Implementations must be safe
// to call with a context that may already carry a deadline from the
// runner's overall run-level timeout.
type Node interface {
	Name() domain.DagNodeName
	Run(ctx context.Context, rc *RunContext) (interface{}, error)
}

// RunContext is the shared, read-mostly state threaded through every
// node for one Run's execution.
type RunContext struct {
	Run       *domain.Run
	NodeID    string
	Artifacts ArtifactWriter
	Nodes     NodeStore
	Runs      RunStore
	ToolCalls ToolCallRecorder
	StartedAt time.Time
	// Prior is the previous node's return value, set by the runner
	// after each step completes.
	Prior interface{}
}

// ToolCallRecorder is the narrow seam onto internal/audit.ToolCallLogger
// that nodes use to record external I/O without importing the audit
// package directly (keeps dag's dependency graph one-directional).
type ToolCallRecorder interface {
	Record(ctx context.Context, call domain.ToolCall)
}

func writeArtifact(ctx context.Context, rc *RunContext, step string, artifactType domain.ArtifactType, v interface{}) error {
	return rc.Artifacts.WriteArtifact(ctx, domain.RunArtifact{
		RunID:        rc.Run.RunID,
		StepName:     step,
		ArtifactType: artifactType,
		ArtifactJSON: marshalOrNull(v),
		CreatedAt:    time.Now().UTC(),
	})
}

func marshalOrNull(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
