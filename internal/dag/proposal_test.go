package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

func TestProposalNode_BuildsDecisionWithEvidence(t *testing.T) {
	run := baseRun()
	rc, artifacts, _, _ := newTestRunContext(run)
	rc.Prior = domain.RiskAnalysis{SharpeProxy: 1.2, PositionSizeUSD: 100, Approved: true}

	node := &ProposalNode{}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	result := out.(proposalOutput)
	assert.True(t, result.RiskApproved)
	assert.Equal(t, "BTC", result.Decision.Asset)
	assert.GreaterOrEqual(t, len(result.Decision.Evidence), 2)
	assert.Equal(t, 0.8, result.Decision.Confidence)

	_, ok := artifacts.byType("decision")
	assert.True(t, ok)
}

func TestProposalNode_LowerConfidenceWhenRiskNotApproved(t *testing.T) {
	run := baseRun()
	rc, _, _, _ := newTestRunContext(run)
	rc.Prior = domain.RiskAnalysis{SharpeProxy: 0.2, PositionSizeUSD: 100, Approved: false, Violations: []string{"position size too large"}}

	node := &ProposalNode{}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	result := out.(proposalOutput)
	assert.False(t, result.RiskApproved)
	assert.Equal(t, 0.6, result.Decision.Confidence)
	assert.Equal(t, []string{"position size too large"}, result.Violations)
}

func TestProposalNode_NoProposalIsHardError(t *testing.T) {
	run := baseRun()
	run.TradeProposal = nil
	rc, _, _, _ := newTestRunContext(run)

	node := &ProposalNode{}
	_, err := node.Run(context.Background(), rc)
	assert.Error(t, err)
}
