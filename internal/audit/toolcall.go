// Package audit implements the Tool-Call Audit Log: one append-only row
// per external call a DAG node makes (candles, prices, orders, fills,
// balances, product metadata), with mandatory secret redaction and
// best-effort event emission that never fails the originating operation.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/symbols"
)

// ToolEventType is a bus event the tool-call logger emits alongside
// persistence. Named distinctly from EventType (audit.go's HTTP/control
// audit trail) since both live in this package.
type ToolEventType string

const (
	ToolEventCall   ToolEventType = "TOOL_CALL"
	ToolEventResult ToolEventType = "TOOL_RESULT"
	ToolEventRetry  ToolEventType = "RETRY"
)

// Bus is the minimal publish surface the logger needs. A nil Bus makes
// event emission a no-op.
type Bus interface {
	Publish(subject string, payload []byte) error
}

// ToolCallPool is the subset of *pgxpool.Pool the logger writes through,
// so a pgxmock pool can stand in for it in tests.
type ToolCallPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ToolCallLogger persists ToolCall rows and emits best-effort bus events.
type ToolCallLogger struct {
	pool ToolCallPool
	bus  Bus
}

func NewToolCallLogger(pool ToolCallPool, bus Bus) *ToolCallLogger {
	return &ToolCallLogger{pool: pool, bus: bus}
}

// Record redacts the request/response payloads, emits a TOOL_CALL event,
// persists the row, and emits a TOOL_RESULT event. A persistence failure is logged, not
// returned — losing an audit row must never fail the call it describes.
func (l *ToolCallLogger) Record(ctx context.Context, call domain.ToolCall) {
	call.Request = RedactJSON(call.Request)
	call.Response = RedactJSON(call.Response)
	if call.ID == "" {
		call.ID = symbols.NewID(symbols.PrefixToolCall)
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	l.emit(ToolEventCall, call)

	if l.pool != nil {
		if err := l.persist(ctx, call); err != nil {
			log.Error().Err(err).Str("tool_call_id", call.ID).Str("tool_name", call.ToolName).
				Msg("failed to persist tool call")
		}
	}

	l.emit(ToolEventResult, call)
}

// RecordRetry emits a best-effort RETRY event without writing a row —
// retries are observability, not evidence; only the final attempt is
// persisted by Record.
func (l *ToolCallLogger) RecordRetry(runID, toolName string, attempt int) {
	l.emit(ToolEventRetry, map[string]interface{}{
		"run_id":    runID,
		"tool_name": toolName,
		"attempt":   attempt,
	})
}

func (l *ToolCallLogger) persist(ctx context.Context, call domain.ToolCall) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO tool_calls (
			id, run_id, node_id, tool_name, mcp_server, request_json, response_json,
			status, latency_ms, attempt, http_status, error_text, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, call.ID, call.RunID, call.NodeID, call.ToolName, call.MCPServer,
		call.Request, call.Response, string(call.Status), call.LatencyMs,
		call.Attempt, call.HTTPStatus, call.ErrorText, call.CreatedAt)
	return err
}

// emit is always best-effort: a nil bus, a publish error, or even a panic
// recovered inside Publish must never propagate back to the caller.
func (l *ToolCallLogger) emit(eventType ToolEventType, payload interface{}) {
	if l.bus == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("audit bus publish panicked")
		}
	}()

	body := symbols.SafeJSON(payload)
	if err := l.bus.Publish(string(eventType), body); err != nil {
		log.Debug().Err(err).Str("event_type", string(eventType)).Msg("audit bus publish failed")
	}
}
