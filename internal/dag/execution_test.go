package dag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

func TestExecutionNode_SkipsWhenPolicyNotAllowed(t *testing.T) {
	run := baseRun()
	rc, _, _, _ := newTestRunContext(run)
	rc.Prior = policyOutput{Event: domain.PolicyEvent{Decision: domain.PolicyBlocked}}

	node := &ExecutionNode{}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestExecutionNode_CreatesTicketForAssistedLive(t *testing.T) {
	run := baseRun()
	run.ExecutionMode = domain.ModeAssistedLive
	rc, artifacts, _, _ := newTestRunContext(run)
	rc.Prior = policyOutput{Event: domain.PolicyEvent{Decision: domain.PolicyAllowed}}

	tickets := &fakeTicketStore{ticketID: "ticket_42"}
	node := &ExecutionNode{Tickets: tickets}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	receipt := out.(tradeReceipt)
	assert.Equal(t, "ticket_42", receipt.TicketID)
	assert.Len(t, tickets.created, 1)
	_, ok := artifacts.byType(domain.ArtifactTradeReceipt)
	assert.True(t, ok)
}

func TestExecutionNode_BlocksUnverifiedLive(t *testing.T) {
	run := baseRun()
	run.ExecutionMode = domain.ModeLive
	run.TradabilityVerified = false
	rc, artifacts, runs, _ := newTestRunContext(run)
	rc.Prior = policyOutput{Event: domain.PolicyEvent{Decision: domain.PolicyAllowed}}

	node := &ExecutionNode{Broker: &fakeBroker{}}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, "EXECUTION_NOT_TRADEABLE", runs.failureCode)
	_, ok := artifacts.byType(domain.ArtifactExecutionError)
	assert.True(t, ok)
}

func TestExecutionNode_PlacesOrderForPaper(t *testing.T) {
	run := baseRun()
	rc, artifacts, _, toolCalls := newTestRunContext(run)
	rc.Prior = policyOutput{Event: domain.PolicyEvent{Decision: domain.PolicyAllowed}}

	broker := &fakeBroker{order: &domain.Order{OrderID: "order_99", Status: domain.OrderStatusFilled}}
	node := &ExecutionNode{Broker: broker}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	receipt := out.(tradeReceipt)
	assert.Equal(t, "order_99", receipt.OrderID)
	assert.Len(t, broker.placedOrders, 1)
	assert.Equal(t, "BTC-USD", broker.placedOrders[0].ProductID)
	assert.Len(t, toolCalls.calls, 1)
	_, ok := artifacts.byType(domain.ArtifactTradeReceipt)
	assert.True(t, ok)
}

func TestExecutionNode_OrderFailureFailsRunGracefully(t *testing.T) {
	run := baseRun()
	rc, artifacts, runs, _ := newTestRunContext(run)
	rc.Prior = policyOutput{Event: domain.PolicyEvent{Decision: domain.PolicyAllowed}}

	broker := &fakeBroker{placeErr: errors.New("exchange rejected order")}
	node := &ExecutionNode{Broker: broker}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, "EXECUTION_ORDER_FAILED", runs.failureCode)
	_, ok := artifacts.byType(domain.ArtifactExecutionError)
	assert.True(t, ok)
}
