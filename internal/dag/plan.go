package dag

import (
	"context"
	"encoding/json"

	"github.com/tradeassist/engine/internal/domain"
)

// Planner seeds a confirmed TradeProposal's initial execution plan, the
// JSON blob each node along Order reads and re-merges via
// mergeExecutionPlan as it adds its own decisions. Satisfies
// endpoint.Planner.
type Planner struct{}

func NewPlanner() *Planner { return &Planner{} }

func (p *Planner) BuildPlan(ctx context.Context, proposal domain.TradeProposal) (json.RawMessage, error) {
	seed := map[string]interface{}{
		"side":              string(proposal.Side),
		"asset":             proposal.Asset,
		"asset_class":       string(proposal.AssetClass),
		"amount_usd":        proposal.AmountUSD,
		"mode":              string(proposal.Mode),
		"locked_product_id": proposal.LockedProductID,
	}
	if proposal.AutoSell != nil {
		seed["auto_sell"] = proposal.AutoSell
	}
	return marshalOrNull(seed), nil
}
