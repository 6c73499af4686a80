package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

func TestPostTradeNode_SkipsFillFetchForAssistedLive(t *testing.T) {
	run := baseRun()
	run.ExecutionMode = domain.ModeAssistedLive
	rc, _, _, _ := newTestRunContext(run)
	rc.Prior = tradeReceipt{TicketID: "ticket_1", Status: string(domain.TicketPending)}

	node := &PostTradeNode{}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, tradeReceipt{TicketID: "ticket_1", Status: string(domain.TicketPending)}, out)
}

func TestPostTradeNode_BackfillsFillsAndSnapshotsPortfolio(t *testing.T) {
	run := baseRun()
	rc, _, _, toolCalls := newTestRunContext(run)
	rc.Prior = tradeReceipt{OrderID: "order_1", ClientOrderID: "cid_1", Status: "FILLED"}

	broker := &fakeBroker{
		fills:    []domain.Fill{{OrderID: "order_1", Qty: 2, Price: 100}, {OrderID: "order_1", Qty: 1, Price: 103}},
		balances: []domain.Holding{{Symbol: "BTC", Quantity: 1, Price: 100, USDValue: 100}, {Symbol: "USD", Quantity: 50, Price: 1, USDValue: 50}},
	}
	backfill := &fakeBackfiller{}
	snapshots := &fakeSnapshotWriter{}
	node := &PostTradeNode{Broker: broker, Backfill: backfill, Snapshots: snapshots}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	snapshot := out.(domain.PortfolioSnapshot)
	assert.Equal(t, 150.0, snapshot.TotalValue)
	assert.Len(t, snapshots.snapshots, 1)
	require.Len(t, backfill.calls, 1)
	assert.Equal(t, "cid_1", backfill.calls[0].ClientOrderID)
	assert.InDelta(t, 101.0, backfill.calls[0].AvgFillPrice, 0.01)
	assert.Len(t, toolCalls.calls, 1)
}

func TestPostTradeNode_ToleratesBalanceFetchFailure(t *testing.T) {
	run := baseRun()
	rc, _, _, _ := newTestRunContext(run)
	rc.Prior = tradeReceipt{OrderID: "order_1", ClientOrderID: "cid_1", Status: "FILLED"}

	broker := &fakeBroker{balancesErr: assertError("balances unavailable")}
	node := &PostTradeNode{Broker: broker, Backfill: &fakeBackfiller{}}

	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)
	receipt := out.(tradeReceipt)
	assert.Equal(t, "order_1", receipt.OrderID)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }
