package dag

import (
	"context"
	"time"

	"github.com/tradeassist/engine/internal/domain"
)

// KillSwitch is checked by the policy node to block new order placement
// without aborting any run already past this point.
type KillSwitch interface {
	Enabled(ctx context.Context, tenantID string) (bool, error)
}

// PolicyNode is the final hard gate before execution: BLOCKED is a hard
// stop, no orders are placed downstream of it.
type PolicyNode struct {
	KillSwitch KillSwitch
}

func (n *PolicyNode) Name() domain.DagNodeName { return domain.NodePolicyCheck }

func (n *PolicyNode) Run(ctx context.Context, rc *RunContext) (interface{}, error) {
	out, _ := rc.Prior.(proposalOutput)

	var reasons []string
	decision := domain.PolicyAllowed

	if n.KillSwitch != nil {
		killed, err := n.KillSwitch.Enabled(ctx, rc.Run.TenantID)
		if err == nil && killed {
			decision = domain.PolicyBlocked
			reasons = append(reasons, "tenant kill switch is enabled")
		}
	}

	if !out.RiskApproved {
		decision = domain.PolicyBlocked
		reasons = append(reasons, out.Violations...)
	}

	if decision == domain.PolicyAllowed && rc.Run.ExecutionMode == domain.ModeLive && !rc.Run.TradabilityVerified {
		decision = domain.PolicyRequiresApproval
		reasons = append(reasons, "LIVE crypto order requires a verified tradability check before autonomous execution")
	}

	event := domain.PolicyEvent{
		RunID:     rc.Run.RunID,
		Decision:  decision,
		Reasons:   reasons,
		CreatedAt: time.Now().UTC(),
	}

	_ = rc.Artifacts.WriteArtifact(ctx, domain.RunArtifact{
		RunID:        rc.Run.RunID,
		StepName:     string(domain.NodePolicyCheck),
		ArtifactType: "policy_event",
		ArtifactJSON: marshalOrNull(event),
		CreatedAt:    time.Now().UTC(),
	})

	if decision == domain.PolicyBlocked {
		rc.Run.Status = domain.RunFailed
		_ = rc.Runs.UpdateStatus(ctx, rc.Run.RunID, domain.RunFailed, "POLICY_BLOCKED", joinReasons(reasons))
		return event, nil
	}

	return policyOutput{Event: event, Decision: out.Decision}, nil
}

// policyOutput threads both the policy verdict and the decision it gated
// forward to the execution node.
type policyOutput struct {
	Event    domain.PolicyEvent
	Decision domain.Decision
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
