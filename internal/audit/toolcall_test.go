package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

type fakeBus struct {
	published []string
}

func (f *fakeBus) Publish(subject string, payload []byte) error {
	f.published = append(f.published, subject)
	return nil
}

func TestRecordPersistsRedactedRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	bus := &fakeBus{}
	logger := NewToolCallLogger(mock, bus)

	mock.ExpectExec("INSERT INTO tool_calls").
		WithArgs(
			pgxmock.AnyArg(), "run_1", "node_1", "coinbase.get_candles", "coinbase-mcp",
			pgxmock.AnyArg(), pgxmock.AnyArg(), "SUCCESS", int64(120), 1, 200, "",
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	logger.Record(context.Background(), domain.ToolCall{
		RunID:      "run_1",
		NodeID:     "node_1",
		ToolName:   "coinbase.get_candles",
		MCPServer:  "coinbase-mcp",
		Request:    json.RawMessage(`{"api_key":"secret"}`),
		Response:   json.RawMessage(`{"candles":[]}`),
		Status:     domain.ToolCallSuccess,
		LatencyMs:  120,
		Attempt:    1,
		HTTPStatus: 200,
	})

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, bus.published, string(ToolEventResult))
}

func TestRecordRedactsRequestBeforePersist(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	logger := NewToolCallLogger(mock, nil)

	rawRequest := json.RawMessage(`{"cb-access-key":"shh","side":"BUY"}`)
	wantRequest := RedactJSON(rawRequest)
	require.NotContains(t, string(wantRequest), "shh")

	mock.ExpectExec("INSERT INTO tool_calls").
		WithArgs(
			pgxmock.AnyArg(), "run_1", "", "coinbase.place_order", "coinbase-mcp",
			wantRequest, pgxmock.AnyArg(), "SUCCESS", int64(0), 0, 0, "", pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	logger.Record(context.Background(), domain.ToolCall{
		RunID:     "run_1",
		ToolName:  "coinbase.place_order",
		MCPServer: "coinbase-mcp",
		Request:   rawRequest,
		Status:    domain.ToolCallSuccess,
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPersistenceFailureDoesNotPanic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	logger := NewToolCallLogger(mock, nil)

	mock.ExpectExec("INSERT INTO tool_calls").
		WillReturnError(assert.AnError)

	assert.NotPanics(t, func() {
		logger.Record(context.Background(), domain.ToolCall{
			RunID:    "run_1",
			ToolName: "coinbase.get_balances",
			Status:   domain.ToolCallFailed,
		})
	})
}

func TestRecordRetryEmitsEventWithoutPersisting(t *testing.T) {
	bus := &fakeBus{}
	logger := NewToolCallLogger(nil, bus)

	logger.RecordRetry("run_1", "coinbase.get_candles", 2)

	assert.Equal(t, []string{string(ToolEventRetry)}, bus.published)
}

func TestRecordWithNilBusDoesNotPanic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	logger := NewToolCallLogger(mock, nil)

	mock.ExpectExec("INSERT INTO tool_calls").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NotPanics(t, func() {
		logger.Record(context.Background(), domain.ToolCall{
			RunID: "run_1", ToolName: "coinbase.get_product", Status: domain.ToolCallSuccess,
		})
	})
}
