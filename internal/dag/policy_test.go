package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeassist/engine/internal/domain"
)

func TestPolicyNode_AllowsApprovedProposal(t *testing.T) {
	run := baseRun()
	rc, artifacts, runs, _ := newTestRunContext(run)
	rc.Prior = proposalOutput{Decision: domain.Decision{Asset: "BTC"}, RiskApproved: true}

	node := &PolicyNode{}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	result := out.(policyOutput)
	assert.Equal(t, domain.PolicyAllowed, result.Event.Decision)
	assert.Empty(t, runs.statusUpdates)
	_, ok := artifacts.byType("policy_event")
	assert.True(t, ok)
}

func TestPolicyNode_BlocksOnRiskRejection(t *testing.T) {
	run := baseRun()
	rc, _, runs, _ := newTestRunContext(run)
	rc.Prior = proposalOutput{RiskApproved: false, Violations: []string{"exceeds limit"}}

	node := &PolicyNode{}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	event := out.(domain.PolicyEvent)
	assert.Equal(t, domain.PolicyBlocked, event.Decision)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, "POLICY_BLOCKED", runs.failureCode)
}

func TestPolicyNode_BlocksOnKillSwitch(t *testing.T) {
	run := baseRun()
	rc, _, runs, _ := newTestRunContext(run)
	rc.Prior = proposalOutput{RiskApproved: true}

	node := &PolicyNode{KillSwitch: &fakeKillSwitch{enabled: true}}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	event := out.(domain.PolicyEvent)
	assert.Equal(t, domain.PolicyBlocked, event.Decision)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, "POLICY_BLOCKED", runs.failureCode)
}

func TestPolicyNode_RequiresApprovalForUnverifiedLive(t *testing.T) {
	run := baseRun()
	run.ExecutionMode = domain.ModeLive
	run.TradabilityVerified = false
	rc, _, runs, _ := newTestRunContext(run)
	rc.Prior = proposalOutput{RiskApproved: true}

	node := &PolicyNode{}
	out, err := node.Run(context.Background(), rc)
	require.NoError(t, err)

	result := out.(policyOutput)
	assert.Equal(t, domain.PolicyRequiresApproval, result.Event.Decision)
	assert.Empty(t, runs.statusUpdates)
}
