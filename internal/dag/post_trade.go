package dag

import (
	"context"
	"time"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

// OrderBackfiller records the fill details the post-trade node observes
// back onto the originating order row.
type OrderBackfiller interface {
	BackfillFill(ctx context.Context, clientOrderID string, filledQty, avgFillPrice float64) error
}

// PostTradeNode reconciles the execution node's receipt against real
// fills/balances (LIVE) or the paper ledger (PAPER) and snapshots the
// resulting portfolio value.
type PostTradeNode struct {
	Broker    market.Broker
	Backfill  OrderBackfiller
	Snapshots PortfolioSnapshotWriter
}

// PortfolioSnapshotWriter persists the post-trade portfolio valuation.
type PortfolioSnapshotWriter interface {
	WriteSnapshot(ctx context.Context, snapshot domain.PortfolioSnapshot) error
}

func (n *PostTradeNode) Name() domain.DagNodeName { return domain.NodePostTrade }

func (n *PostTradeNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	receipt, _ := rc.Prior.(tradeReceipt)

	if rc.Run.ExecutionMode == domain.ModeAssistedLive {
		// ASSISTED_LIVE skips fill fetching; the ticket's own status is
		// the source of truth until the user settles it manually.
		return receipt, nil
	}

	if receipt.OrderID != "" {
		fills, err := n.Broker.GetOrderFills(ctx, receipt.OrderID)
		status := domain.ToolCallSuccess
		errText := ""
		if err != nil {
			status = domain.ToolCallFailed
			errText = err.Error()
		}
		rc.ToolCalls.Record(ctx, domain.ToolCall{
			RunID: rc.Run.RunID, ToolName: "broker.get_order_fills", MCPServer: "broker",
			Status: status, Attempt: 1, ErrorText: errText,
		})
		if err == nil && len(fills) > 0 {
			var qty, notional float64
			for _, f := range fills {
				qty += f.Qty
				notional += f.Qty * f.Price
			}
			avgPrice := 0.0
			if qty > 0 {
				avgPrice = notional / qty
			}
			_ = n.Backfill.BackfillFill(ctx, receipt.ClientOrderID, qty, avgPrice)
		}
	}

	balances, err := n.Broker.GetBalances(ctx)
	if err != nil {
		return receipt, nil
	}

	var total float64
	for _, h := range balances {
		total += h.USDValue
	}

	snapshot := domain.PortfolioSnapshot{
		TenantID:   rc.Run.TenantID,
		RunID:      rc.Run.RunID,
		Balances:   balances,
		TotalValue: total,
		Timestamp:  time.Now().UTC(),
	}
	_ = n.Snapshots.WriteSnapshot(ctx, snapshot)

	return snapshot, nil
}
