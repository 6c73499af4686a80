package dag

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeassist/engine/internal/domain"
)

// RunTimeout bounds a single run's wall-clock; the latency_slo eval
// checks against a tighter 90s budget, but the runner itself allows
// headroom for a slow provider before it gives up entirely.
const RunTimeout = 5 * time.Minute

// Runner dispatches a Run onto a background goroutine and walks it
// through its ordered nodes, stopping at the first hard failure.
type Runner struct {
	runs      RunStore
	artifacts ArtifactWriter
	nodeStore NodeStore
	toolCalls ToolCallRecorder
	nodes     map[domain.DagNodeName]Node
	tradeFlow []domain.DagNodeName
	portfolio []domain.DagNodeName
}

func NewRunner(runs RunStore, artifacts ArtifactWriter, nodeStore NodeStore, toolCalls ToolCallRecorder, nodes []Node) *Runner {
	index := make(map[domain.DagNodeName]Node, len(nodes))
	for _, n := range nodes {
		index[n.Name()] = n
	}
	return &Runner{
		runs:      runs,
		artifacts: artifacts,
		nodeStore: nodeStore,
		toolCalls: toolCalls,
		nodes:     index,
		tradeFlow: Order,
		portfolio: PortfolioOrder,
	}
}

// Dispatch satisfies internal/endpoint.Dispatcher: it enqueues the run
// onto a worker goroutine and returns immediately.
func (r *Runner) Dispatch(runID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
		defer cancel()
		_, _ = r.executeWithContext(ctx, runID)
	}()
}

// RunSync walks a run to completion on the caller's goroutine, bounded
// by the caller's context rather than RunTimeout. Used by the
// PORTFOLIO_ANALYSIS read path, which must return its result inline
// rather than poll for an async run to finish.
func (r *Runner) RunSync(ctx context.Context, runID string) (interface{}, error) {
	return r.executeWithContext(ctx, runID)
}

// executeWithContext is the shared walk: load the run, mark it
// RUNNING, step through its node sequence, and mark it terminal.
// Returns the last node's output (the eval node's results, in both
// sequences) so a synchronous caller doesn't have to re-read it back
// from storage.
func (r *Runner) executeWithContext(ctx context.Context, runID string) (interface{}, error) {
	logger := log.With().Str("run_id", runID).Logger()

	run, err := r.runs.GetRunForExecution(ctx, runID)
	if err != nil {
		logger.Error().Err(err).Msg("dag runner: failed to load run")
		return nil, err
	}

	if err := r.runs.UpdateStatus(ctx, runID, domain.RunRunning, "", ""); err != nil {
		logger.Error().Err(err).Msg("dag runner: failed to mark run running")
		return nil, err
	}

	sequence := r.tradeFlow
	if run.Intent == domain.IntentPortfolioAnalysis {
		sequence = r.portfolio
	}

	rc := &RunContext{
		Run:       run,
		Artifacts: r.artifacts,
		Nodes:     r.nodeStore,
		Runs:      r.runs,
		ToolCalls: r.toolCalls,
		StartedAt: time.Now().UTC(),
	}

	for _, name := range sequence {
		node, ok := r.nodes[name]
		if !ok {
			logger.Warn().Str("node", string(name)).Msg("dag runner: no implementation registered, skipping")
			continue
		}

		nodeLogger := logger.With().Str("node", string(name)).Logger()
		nodeID, err := r.nodeStore.StartNode(ctx, runID, name, marshalOrNull(rc.Prior))
		if err != nil {
			nodeLogger.Error().Err(err).Msg("failed to record node start")
		}
		rc.NodeID = nodeID
		nodeLogger.Info().Msg("node starting")

		output, err := node.Run(ctx, rc)
		if err != nil {
			nodeLogger.Error().Err(err).Msg("node failed")
			_ = r.nodeStore.FailNode(ctx, nodeID, marshalOrNull(map[string]string{"error": err.Error()}))
			_ = r.runs.UpdateStatus(ctx, runID, domain.RunFailed, "NODE_"+string(name)+"_FAILED", err.Error())
			return nil, err
		}
		_ = r.nodeStore.CompleteNode(ctx, nodeID, marshalOrNull(output))
		nodeLogger.Info().Msg("node completed")

		if run.Status == domain.RunFailed {
			// A node may set the run to FAILED itself (e.g. research
			// finding an empty universe) without returning an error,
			// since that is a modeled business outcome, not a bug.
			return rc.Prior, nil
		}

		rc.Prior = output
	}

	if err := r.runs.UpdateStatus(ctx, runID, domain.RunCompleted, "", ""); err != nil {
		logger.Error().Err(err).Msg("dag runner: failed to mark run completed")
	}
	return rc.Prior, nil
}
