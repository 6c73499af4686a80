package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

// StartNode inserts a new dag_node row in RUNNING state and emits the
// STEP_STARTED run event the ux_completeness eval reads back. Satisfies
// dag.NodeStore.
func (s *Store) StartNode(ctx context.Context, runID string, name domain.DagNodeName, inputs json.RawMessage) (string, error) {
	nodeID := symbols.NewID(symbols.PrefixDagNode)
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dag_nodes (node_id, run_id, name, status, inputs_json, started_at)
		VALUES ($1, $2, $3, 'RUNNING', $4, $5)
	`, nodeID, runID, string(name), nullableJSON(inputs), now)
	if err != nil {
		return "", fmt.Errorf("store: start node: %w", err)
	}

	s.writeRunEvent(ctx, runID, domain.EventStepStarted, string(name), nil)
	return nodeID, nil
}

// CompleteNode marks a dag_node COMPLETED and emits STEP_FINISHED.
// Satisfies dag.NodeStore.
func (s *Store) CompleteNode(ctx context.Context, nodeID string, outputs json.RawMessage) error {
	return s.finishNode(ctx, nodeID, domain.DagNodeCompleted, outputs)
}

// FailNode marks a dag_node FAILED and emits STEP_FINISHED. Satisfies
// dag.NodeStore.
func (s *Store) FailNode(ctx context.Context, nodeID string, outputs json.RawMessage) error {
	return s.finishNode(ctx, nodeID, domain.DagNodeFailed, outputs)
}

func (s *Store) finishNode(ctx context.Context, nodeID string, status domain.DagNodeStatus, outputs json.RawMessage) error {
	var runID, name string
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx, `
		UPDATE dag_nodes SET status = $1, outputs_json = $2, ended_at = $3
		WHERE node_id = $4
		RETURNING run_id, name
	`, string(status), nullableJSON(outputs), now, nodeID).Scan(&runID, &name)
	if err != nil {
		return fmt.Errorf("store: finish node: %w", err)
	}

	s.writeRunEvent(ctx, runID, domain.EventStepFinished, name, symbols.SafeJSON(map[string]string{"status": string(status)}))
	return nil
}

// writeRunEvent is best-effort: a lost lifecycle marker must never fail
// the node whose lifecycle it describes, the same contract audit.Logger
// applies to tool-call rows.
func (s *Store) writeRunEvent(ctx context.Context, runID string, eventType domain.RunEventType, stepName string, payload json.RawMessage) {
	_, _ = s.pool.Exec(ctx, `
		INSERT INTO run_events (run_id, event_type, step_name, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, runID, string(eventType), stepName, nullableJSON(payload), time.Now().UTC())
}
