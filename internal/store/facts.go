package store

import (
	"context"
	"fmt"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/eval"
	"github.com/tradeassist/engine/internal/symbols"
)

// Load assembles every Facts field the eval registry needs for one run
// from its persisted evidence. Satisfies eval.FactsLoader. tenantID is
// accepted to match the interface (a future multi-tenant audit trail
// might scope reads by it) but every row here is already uniquely keyed
// by run_id, so it goes unused.
func (s *Store) Load(ctx context.Context, runID, tenantID string) (*eval.Facts, error) {
	run, err := s.GetRunForExecution(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load facts: %w", err)
	}

	facts := &eval.Facts{Run: run}

	if facts.Nodes, err = s.loadNodes(ctx, runID); err != nil {
		return nil, err
	}
	if facts.Artifacts, err = s.loadArtifacts(ctx, runID); err != nil {
		return nil, err
	}
	facts.PolicyEvent = s.loadPolicyEvent(ctx, runID)
	if facts.Orders, err = s.loadOrders(ctx, runID); err != nil {
		return nil, err
	}
	if facts.Fills, err = s.loadFills(ctx, runID); err != nil {
		return nil, err
	}
	if facts.ToolCalls, err = s.loadToolCalls(ctx, runID); err != nil {
		return nil, err
	}
	if facts.Rankings, err = s.loadRankings(ctx, runID); err != nil {
		return nil, err
	}
	if facts.CandleBatches, err = s.loadCandleBatches(ctx, runID); err != nil {
		return nil, err
	}
	if facts.RunEvents, err = s.loadRunEvents(ctx, runID); err != nil {
		return nil, err
	}
	if facts.NewsEvidence, err = s.loadNewsEvidence(ctx, runID); err != nil {
		return nil, err
	}

	return facts, nil
}

func (s *Store) loadNodes(ctx context.Context, runID string) (map[domain.DagNodeName]domain.DagNode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT node_id, run_id, name, status, inputs_json, outputs_json, started_at, ended_at
		FROM dag_nodes WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load nodes: %w", err)
	}
	defer rows.Close()

	nodes := make(map[domain.DagNodeName]domain.DagNode)
	for rows.Next() {
		var n domain.DagNode
		var name, status string
		var inputs, outputs []byte
		if err := rows.Scan(&n.NodeID, &n.RunID, &name, &status, &inputs, &outputs, &n.StartedAt, &n.EndedAt); err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		n.Name = domain.DagNodeName(name)
		n.Status = domain.DagNodeStatus(status)
		n.Inputs = inputs
		n.Outputs = outputs
		nodes[n.Name] = n
	}
	return nodes, rows.Err()
}

func (s *Store) loadArtifacts(ctx context.Context, runID string) ([]domain.RunArtifact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, step_name, artifact_type, artifact_json, created_at
		FROM run_artifacts WHERE run_id = $1 ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []domain.RunArtifact
	for rows.Next() {
		var a domain.RunArtifact
		var artifactType string
		var artifactJSON []byte
		if err := rows.Scan(&a.RunID, &a.StepName, &artifactType, &artifactJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan artifact: %w", err)
		}
		a.ArtifactType = domain.ArtifactType(artifactType)
		a.ArtifactJSON = artifactJSON
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// loadPolicyEvent degrades to nil (no policy event yet, e.g. the run
// failed upstream of the policy node) rather than surfacing an error —
// the compliance/safety evals already treat a nil PolicyEvent as a
// finding, not a load failure.
func (s *Store) loadPolicyEvent(ctx context.Context, runID string) *domain.PolicyEvent {
	var event domain.PolicyEvent
	var decision string
	var reasonsJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT run_id, decision, reasons_json, created_at FROM policy_events WHERE run_id = $1`, runID).
		Scan(&event.RunID, &decision, &reasonsJSON, &event.CreatedAt)
	if err != nil {
		return nil
	}
	event.Decision = domain.PolicyDecision(decision)
	_ = jsonUnmarshal(reasonsJSON, &event.Reasons)
	return &event
}

func (s *Store) loadOrders(ctx context.Context, runID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, run_id, tenant_id, symbol, side, notional_usd, status,
		       filled_qty, avg_fill_price, fees, client_order_id, created_at
		FROM orders WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var side, status string
		if err := rows.Scan(&o.OrderID, &o.RunID, &o.TenantID, &o.Symbol, &side, &o.NotionalUSD,
			&status, &o.FilledQty, &o.AvgFillPrice, &o.Fees, &o.ClientOrderID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		o.Side = domain.Side(side)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) loadFills(ctx context.Context, runID string) (map[string][]domain.Fill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.order_id, f.qty, f.price, f.fee, f.timestamp
		FROM fills f JOIN orders o ON o.order_id = f.order_id
		WHERE o.run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load fills: %w", err)
	}
	defer rows.Close()

	fills := make(map[string][]domain.Fill)
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(&f.OrderID, &f.Qty, &f.Price, &f.Fee, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan fill: %w", err)
		}
		fills[f.OrderID] = append(fills[f.OrderID], f)
	}
	return fills, rows.Err()
}

func (s *Store) loadToolCalls(ctx context.Context, runID string) ([]domain.ToolCall, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, node_id, tool_name, mcp_server, request_json, response_json,
		       status, latency_ms, attempt, http_status, error_text, created_at
		FROM tool_calls WHERE run_id = $1 ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load tool calls: %w", err)
	}
	defer rows.Close()

	var calls []domain.ToolCall
	for rows.Next() {
		var c domain.ToolCall
		var status string
		var nodeID *string
		var httpStatus *int
		var request, response []byte
		if err := rows.Scan(&c.ID, &c.RunID, &nodeID, &c.ToolName, &c.MCPServer, &request, &response,
			&status, &c.LatencyMs, &c.Attempt, &httpStatus, &c.ErrorText, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan tool call: %w", err)
		}
		c.Status = domain.ToolCallStatus(status)
		c.Request = request
		c.Response = response
		if nodeID != nil {
			c.NodeID = *nodeID
		}
		if httpStatus != nil {
			c.HTTPStatus = *httpStatus
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func (s *Store) loadRankings(ctx context.Context, runID string) ([]domain.Ranking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ranking_id, run_id, window, metric, table_json, selected_symbol, selected_score, rationale
		FROM rankings WHERE run_id = $1 ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load rankings: %w", err)
	}
	defer rows.Close()

	var rankings []domain.Ranking
	for rows.Next() {
		var r domain.Ranking
		var tableJSON []byte
		if err := rows.Scan(&r.RankingID, &r.RunID, &r.Window, &r.Metric, &tableJSON, &r.SelectedSymbol, &r.SelectedScore, &r.Rationale); err != nil {
			return nil, fmt.Errorf("store: scan ranking: %w", err)
		}
		_ = jsonUnmarshal(tableJSON, &r.Table)
		rankings = append(rankings, r)
	}
	return rankings, rows.Err()
}

func (s *Store) loadCandleBatches(ctx context.Context, runID string) ([]domain.CandleBatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product, interval, candles_json, query_params_json
		FROM market_candles_batches WHERE run_id = $1 ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load candle batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.CandleBatch
	for rows.Next() {
		var b domain.CandleBatch
		var candlesJSON, queryParams []byte
		if err := rows.Scan(&b.Product, &b.Interval, &candlesJSON, &queryParams); err != nil {
			return nil, fmt.Errorf("store: scan candle batch: %w", err)
		}
		_ = jsonUnmarshal(candlesJSON, &b.Candles)
		b.QueryParams = queryParams
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (s *Store) loadRunEvents(ctx context.Context, runID string) ([]domain.RunEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, event_type, step_name, payload_json, created_at
		FROM run_events WHERE run_id = $1 ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load run events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEvent
	for rows.Next() {
		var e domain.RunEvent
		var eventType string
		var payload []byte
		if err := rows.Scan(&e.RunID, &eventType, &e.StepName, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan run event: %w", err)
		}
		e.EventType = domain.RunEventType(eventType)
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) loadNewsEvidence(ctx context.Context, runID string) ([]domain.NewsItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.id, n.title, n.summary, n.source, n.url, n.published_at
		FROM run_news_evidence e JOIN news_items n ON n.id = e.news_id
		WHERE e.run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load news evidence: %w", err)
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		var n domain.NewsItem
		if err := rows.Scan(&n.ID, &n.Title, &n.Summary, &n.Source, &n.URL, &n.PublishedAt); err != nil {
			return nil, fmt.Errorf("store: scan news item: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// WriteResult upserts one eval_results row, keyed by (run_id,
// eval_name). Satisfies eval.ResultWriter.
func (s *Store) WriteResult(ctx context.Context, result domain.EvalResult) error {
	if result.EvalID == "" {
		result.EvalID = "eval_" + result.RunID + "_" + result.EvalName
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO eval_results (
			eval_id, run_id, eval_name, score, reasons_json, evaluator_type, eval_category,
			thresholds_json, details_json, explanation, explanation_source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (run_id, eval_name) DO UPDATE SET
			score = $4, reasons_json = $5, evaluator_type = $6, eval_category = $7,
			thresholds_json = $8, details_json = $9, explanation = $10, explanation_source = $11
	`, result.EvalID, result.RunID, result.EvalName, result.Score, symbols.SafeJSON(result.Reasons),
		result.EvaluatorType, string(result.EvalCategory), nullableJSON(result.Thresholds),
		nullableJSON(result.Details), result.Explanation, result.ExplanationSource)
	if err != nil {
		return fmt.Errorf("store: write eval result: %w", err)
	}
	return nil
}
