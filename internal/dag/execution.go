package dag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

// TicketStore persists ASSISTED_LIVE / STOCK trade tickets; LIVE and
// PAPER crypto orders go through the Broker instead.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket domain.TradeTicket) (string, error)
}

// ExecutionNode places the order (LIVE/PAPER crypto) or creates a trade
// ticket (ASSISTED_LIVE, STOCK) for the gated decision.
type ExecutionNode struct {
	Broker  market.Broker
	Tickets TicketStore
}

func (n *ExecutionNode) Name() domain.DagNodeName { return domain.NodeExecution }

type tradeReceipt struct {
	OrderID       string  `json:"order_id,omitempty"`
	TicketID      string  `json:"ticket_id,omitempty"`
	Status        string  `json:"status"`
	ClientOrderID string  `json:"client_order_id"`
	NotionalUSD   float64 `json:"notional_usd"`
}

func (n *ExecutionNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	out, _ := rc.Prior.(policyOutput)
	if out.Event.Decision != domain.PolicyAllowed {
		// A BLOCKED verdict has already failed the run in the policy node;
		// REQUIRES_APPROVAL leaves the run's status as it is. Either way no
		// order is placed downstream of a non-ALLOWED verdict.
		return nil, nil
	}
	if rc.Run.TradeProposal == nil {
		return nil, fmt.Errorf("execution: run has no trade proposal")
	}
	proposal := rc.Run.TradeProposal
	clientOrderID := "cid_" + uuid.NewString()

	if rc.Run.ExecutionMode == domain.ModeAssistedLive || rc.Run.AssetClass == domain.AssetClassStock {
		ticket := domain.TradeTicket{
			RunID:       rc.Run.RunID,
			Symbol:      proposal.Asset,
			Side:        proposal.Side,
			NotionalUSD: proposal.AmountUSD,
			TIF:         "DAY",
			ExpiresAt:   time.Now().UTC().Add(24 * time.Hour),
			Status:      domain.TicketPending,
			CreatedAt:   time.Now().UTC(),
		}
		ticketID, err := n.Tickets.CreateTicket(ctx, ticket)
		if err != nil {
			return nil, fmt.Errorf("execution: create trade ticket: %w", err)
		}
		receipt := tradeReceipt{TicketID: ticketID, Status: string(domain.TicketPending), ClientOrderID: clientOrderID, NotionalUSD: proposal.AmountUSD}
		_ = n.writeReceipt(ctx, rc, receipt)
		return receipt, nil
	}

	if rc.Run.ExecutionMode == domain.ModeLive {
		if !rc.Run.TradabilityVerified || rc.Run.LockedProductID == "" {
			_ = n.writeError(ctx, rc, "LIVE order blocked: tradability not verified or no locked product id")
			rc.Run.Status = domain.RunFailed
			_ = rc.Runs.UpdateStatus(ctx, rc.Run.RunID, domain.RunFailed, "EXECUTION_NOT_TRADEABLE", "LIVE execution requires a verified, locked product id")
			return nil, nil
		}
	}

	productID := rc.Run.LockedProductID
	if productID == "" {
		productID = proposal.Asset + "-USD"
	}

	start := time.Now()
	order, err := n.Broker.PlaceOrder(ctx, market.PlaceOrderRequest{
		ProductID: productID, Side: proposal.Side, NotionalUSD: proposal.AmountUSD, ClientOrderID: clientOrderID,
		RunID: rc.Run.RunID, TenantID: rc.Run.TenantID,
	})
	latency := time.Since(start).Milliseconds()

	status := domain.ToolCallSuccess
	errText := ""
	if err != nil {
		status = domain.ToolCallFailed
		errText = err.Error()
	}
	rc.ToolCalls.Record(ctx, domain.ToolCall{
		RunID: rc.Run.RunID, ToolName: "broker.place_order", MCPServer: "broker",
		Status: status, LatencyMs: latency, Attempt: 1, ErrorText: errText,
	})

	if err != nil {
		_ = n.writeError(ctx, rc, err.Error())
		rc.Run.Status = domain.RunFailed
		_ = rc.Runs.UpdateStatus(ctx, rc.Run.RunID, domain.RunFailed, "EXECUTION_ORDER_FAILED", err.Error())
		return nil, nil
	}

	receipt := tradeReceipt{OrderID: order.OrderID, Status: string(order.Status), ClientOrderID: clientOrderID, NotionalUSD: proposal.AmountUSD}
	_ = n.writeReceipt(ctx, rc, receipt)
	return receipt, nil
}

func (n *ExecutionNode) writeReceipt(ctx context.Context, rc *RunContext, receipt tradeReceipt) error {
	return rc.Artifacts.WriteArtifact(ctx, domain.RunArtifact{
		RunID:        rc.Run.RunID,
		StepName:     string(domain.NodeExecution),
		ArtifactType: domain.ArtifactTradeReceipt,
		ArtifactJSON: marshalOrNull(receipt),
		CreatedAt:    time.Now().UTC(),
	})
}

func (n *ExecutionNode) writeError(ctx context.Context, rc *RunContext, message string) error {
	return rc.Artifacts.WriteArtifact(ctx, domain.RunArtifact{
		RunID:        rc.Run.RunID,
		StepName:     string(domain.NodeExecution),
		ArtifactType: domain.ArtifactExecutionError,
		ArtifactJSON: marshalOrNull(map[string]string{"error": message}),
		CreatedAt:    time.Now().UTC(),
	})
}
