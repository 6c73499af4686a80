// Package analysis implements the endpoint.PortfolioLookup seam: the
// PORTFOLIO_ANALYSIS command runs the DAG's portfolio node synchronously
// and formats its brief for the chat reply, while the plain PORTFOLIO /
// FINANCE_ANALYSIS commands just read back the last snapshot on file.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tradeassist/engine/internal/domain"
)

// RunStore is the subset of persistence needed to create a
// PORTFOLIO_ANALYSIS run.
type RunStore interface {
	CreateRun(ctx context.Context, run domain.Run) (string, error)
}

// ArtifactReader reads back the portfolio node's output artifact once
// the synchronous run completes.
type ArtifactReader interface {
	LatestArtifact(ctx context.Context, runID string, artifactType domain.ArtifactType) (*domain.RunArtifact, bool, error)
}

// SnapshotReader serves the "what's my portfolio" lookup without
// triggering a new run.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, tenantID string) (*domain.PortfolioSnapshot, error)
}

// SyncRunner walks a run to completion on the caller's goroutine.
// Satisfied by *dag.Runner.
type SyncRunner interface {
	RunSync(ctx context.Context, runID string) (interface{}, error)
}

// Lookup implements endpoint.PortfolioLookup.
type Lookup struct {
	Runs      RunStore
	Artifacts ArtifactReader
	Snapshots SnapshotReader
	Runner    SyncRunner
}

func New(runs RunStore, artifacts ArtifactReader, snapshots SnapshotReader, runner SyncRunner) *Lookup {
	return &Lookup{Runs: runs, Artifacts: artifacts, Snapshots: snapshots, Runner: runner}
}

// LastSnapshotText satisfies endpoint.PortfolioLookup.LastSnapshotText.
func (l *Lookup) LastSnapshotText(ctx context.Context, tenantID string) (string, bool, error) {
	snap, err := l.Snapshots.LatestSnapshot(ctx, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("analysis: latest snapshot: %w", err)
	}
	if snap == nil {
		return "", false, nil
	}
	return formatSnapshot(snap), true, nil
}

// RunAnalysis satisfies endpoint.PortfolioLookup.RunAnalysis: it creates
// a PORTFOLIO_ANALYSIS run, walks the portfolio+eval nodes synchronously
// on the caller's goroutine, then reads back the brief the portfolio
// node wrote. No execution mode is available at this call boundary, so
// the run always starts PAPER; the node itself only ever attempts LIVE
// reads when both the run's mode and LiveCredentialsAvailable say so.
func (l *Lookup) RunAnalysis(ctx context.Context, tenantID, conversationID, commandText string) (string, string, error) {
	run := domain.Run{
		TenantID:       tenantID,
		ExecutionMode:  domain.ModePaper,
		AssetClass:     domain.AssetClassCrypto,
		ConversationID: conversationID,
		CommandText:    commandText,
		Intent:         domain.IntentPortfolioAnalysis,
		Status:         domain.RunCreated,
	}
	runID, err := l.Runs.CreateRun(ctx, run)
	if err != nil {
		return "", "", fmt.Errorf("analysis: create run: %w", err)
	}

	if _, err := l.Runner.RunSync(ctx, runID); err != nil {
		return runID, "", fmt.Errorf("analysis: run sync: %w", err)
	}

	artifact, ok, err := l.Artifacts.LatestArtifact(ctx, runID, domain.ArtifactPortfolioBrief)
	if err != nil {
		return runID, "", fmt.Errorf("analysis: latest artifact: %w", err)
	}
	if !ok {
		return runID, "I couldn't put together your portfolio analysis this time. Please try again shortly.", nil
	}

	var brief domain.PortfolioBrief
	if err := json.Unmarshal(artifact.ArtifactJSON, &brief); err != nil {
		return runID, "", fmt.Errorf("analysis: unmarshal brief: %w", err)
	}
	return runID, formatBrief(&brief), nil
}

func formatSnapshot(snap *domain.PortfolioSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "As of %s, your portfolio is worth $%.2f (cash $%.2f).\n",
		snap.Timestamp.Format(time.RFC1123), snap.TotalValue, snap.CashUSD)
	if len(snap.Positions) == 0 {
		b.WriteString("No open positions.")
		return b.String()
	}
	b.WriteString("Positions:\n")
	for _, h := range snap.Positions {
		fmt.Fprintf(&b, "  %s: %.6f (~$%.2f)\n", h.Symbol, h.Quantity, h.USDValue)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatBrief(brief *domain.PortfolioBrief) string {
	if brief.Failure != nil {
		return fmt.Sprintf("I could only partially analyze your portfolio: %s. %s",
			brief.Failure.ErrorMessage, brief.Failure.SuggestedAction)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio as of %s (%s): $%.2f total, $%.2f cash.\n",
		brief.AsOf.Format(time.RFC1123), strings.ToLower(string(brief.Mode)), brief.TotalValueUSD, brief.CashUSD)

	if len(brief.Allocation) > 0 {
		b.WriteString("Allocation:\n")
		for _, a := range brief.Allocation {
			fmt.Fprintf(&b, "  %s: %.1f%% ($%.2f)\n", a.Symbol, a.Pct, a.USDValue)
		}
	}

	fmt.Fprintf(&b, "Risk: %s (top holding %.1f%% of book, diversification score %.2f).\n",
		brief.Risk.RiskLevel, brief.Risk.ConcentrationPctTop1, brief.Risk.DiversificationScore)

	if brief.TradeSummary != nil {
		ts := brief.TradeSummary
		fmt.Fprintf(&b, "Last %d days: %d trades (%d buys, %d sells), $%.2f total notional.\n",
			ts.WindowDays, ts.TotalTrades, ts.Buys, ts.Sells, ts.TotalNotionalUSD)
	}

	for _, rec := range brief.Recommendations {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", rec.Priority, rec.Title, rec.Description)
	}
	for _, w := range brief.Warnings {
		fmt.Fprintf(&b, "Note: %s\n", w)
	}

	return strings.TrimRight(b.String(), "\n")
}
