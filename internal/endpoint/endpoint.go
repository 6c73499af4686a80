// Package endpoint implements the Command Endpoint: the stateless
// dispatcher that turns free-form chat text into either a canned reply,
// a confirmation prompt, or a Run. Every request carries an opaque
// request_id echoed into logs and the response.
package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tradeassist/engine/internal/confirmation"
	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/intent"
	"github.com/tradeassist/engine/internal/preflight"
	"github.com/tradeassist/engine/internal/selection"
	"github.com/tradeassist/engine/internal/symbols"
	"github.com/tradeassist/engine/internal/tradeparse"
)

// ErrLiveDisabled is returned when a LIVE confirm is attempted while the
// global live-trading switch is off.
var ErrLiveDisabled = errors.New("live trading is disabled")

// ErrRunAlreadyActive is returned when the tenant already has a
// CREATED or RUNNING run in flight.
type ErrRunAlreadyActive struct {
	ActiveRunID string
}

func (e *ErrRunAlreadyActive) Error() string {
	return "a run is already active for this tenant: " + e.ActiveRunID
}

// RunStore is the subset of the persistence layer the endpoint needs to
// enforce the active-run guard and create/read runs.
type RunStore interface {
	ActiveRunID(ctx context.Context, tenantID string) (string, bool, error)
	CreateRun(ctx context.Context, run domain.Run) (string, error)
	GetRun(ctx context.Context, tenantID, runID string) (*domain.Run, error)
}

// Dispatcher enqueues DAG execution for a run. Implementations own
// scheduling onto a worker goroutine/pool; Dispatch must not block past
// the point of acceptance.
type Dispatcher interface {
	Dispatch(runID string)
}

// PortfolioLookup resolves the PORTFOLIO / FINANCE_ANALYSIS "last
// snapshot" read path and runs the synchronous PORTFOLIO_ANALYSIS node.
type PortfolioLookup interface {
	LastSnapshotText(ctx context.Context, tenantID string) (string, bool, error)
	RunAnalysis(ctx context.Context, tenantID, conversationID, commandText string) (runID string, display string, err error)
}

// LiveTradingGate reports whether LIVE execution is globally permitted.
type LiveTradingGate interface {
	LiveTradingAllowed(ctx context.Context) (bool, error)
}

// Planner expands a confirmed proposal into an execution plan the DAG
// runner consumes. Kept as a narrow seam so the endpoint does not need
// to know the plan's internal shape.
type Planner interface {
	BuildPlan(ctx context.Context, proposal domain.TradeProposal) (json.RawMessage, error)
}

// Deps bundles every collaborator the Command Endpoint dispatches to.
type Deps struct {
	Confirmations *confirmation.Store
	Runs          RunStore
	Dispatcher    Dispatcher
	Portfolio     PortfolioLookup
	LiveGate      LiveTradingGate
	Preflight     *preflight.Validator
	Selection     *selection.Engine
	Planner       Planner
}

// Endpoint is the stateless Command Endpoint dispatcher.
type Endpoint struct {
	deps Deps
}

func New(deps Deps) *Endpoint {
	return &Endpoint{deps: deps}
}

// Request is one inbound command.
type Request struct {
	RequestID      string
	TenantID       string
	ConversationID string
	Text           string
	Mode           domain.ExecutionMode
	ConfirmationID string // optional, takes priority when resolving CONFIRM/CANCEL
	NewsEnabled    bool   // carried onto the created Run; gates news-dependent evals
}

// Response is the uniform command-endpoint reply.
type Response struct {
	RequestID      string               `json:"request_id"`
	Status         domain.CommandStatus `json:"status"`
	Message        string               `json:"message"`
	ConfirmationID string               `json:"confirmation_id,omitempty"`
	RunID          string               `json:"run_id,omitempty"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
}

// Handle is the single entry point: short-circuit confirm/cancel, then
// fall through to intent classification.
func (e *Endpoint) Handle(ctx context.Context, req Request) (Response, error) {
	logger := log.With().Str("request_id", req.RequestID).Str("tenant_id", req.TenantID).Logger()

	trimmed := normalizedCommand(req.Text)
	switch trimmed {
	case "confirm":
		return e.handleConfirm(ctx, req, logger)
	case "cancel":
		return e.handleCancel(ctx, req, logger)
	}

	classified := intent.Classify(req.Text)
	logger.Info().Str("intent", string(classified)).Msg("classified command")

	switch classified {
	case domain.IntentGreeting:
		return cannedResponse(req, greetingReply), nil
	case domain.IntentCapabilitiesHelp:
		return cannedResponse(req, capabilitiesReply), nil
	case domain.IntentOutOfScope:
		return cannedResponse(req, outOfScopeReply), nil
	case domain.IntentAppDiagnostics:
		return cannedResponse(req, appDiagnosticsReply), nil
	case domain.IntentTradeExecution:
		return e.handleTradeExecution(ctx, req, logger)
	case domain.IntentPortfolioAnalysis:
		return e.handlePortfolioAnalysis(ctx, req, logger)
	case domain.IntentPortfolio, domain.IntentFinanceAnalysis:
		return e.handlePortfolioLookup(ctx, req, logger)
	default:
		return cannedResponse(req, outOfScopeReply), nil
	}
}

func normalizedCommand(text string) string {
	s := trimSpaceLower(text)
	return s
}

// trimSpaceLower avoids importing strings twice across files; kept tiny
// and local to this package's single normalization need.
func trimSpaceLower(s string) string {
	start, end := 0, len(s)
	for start < end && isSpaceByte(s[start]) {
		start++
	}
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	s = s[start:end]
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (e *Endpoint) handleTradeExecution(ctx context.Context, req Request, logger zerologLogger) (Response, error) {
	cmd, err := tradeparse.Parse(req.Text)
	if err != nil {
		return Response{
			RequestID: req.RequestID,
			Status:    domain.StatusRejected,
			Message:   "I couldn't work out the trade details: " + err.Error(),
		}, nil
	}

	proposal := domain.TradeProposal{
		Side:       toDomainSide(cmd.Side),
		Asset:      cmd.Asset,
		AssetClass: cmd.AssetClass,
		Mode:       req.Mode,
	}
	if cmd.AmountUSD != nil {
		proposal.AmountUSD = *cmd.AmountUSD
	}
	proposal.NewsEnabled = req.NewsEnabled

	if cmd.IsMostProfitable {
		result, serr := e.deps.Selection.Select(ctx, selection.Request{
			Criteria:           cmd.SelectionCriteria,
			LookbackHours:      cmd.LookbackHours,
			UniverseConstraint: cmd.UniverseConstraint,
			ThresholdPct:       cmd.ThresholdPct,
			AssetClass:         cmd.AssetClass,
		})
		if serr != nil {
			if selection.IsNoTradeableAsset(serr) || selection.IsNoMarketData(serr) {
				return Response{
					RequestID: req.RequestID,
					Status:    domain.StatusRejected,
					Message:   "I couldn't find a tradeable asset right now: " + serr.Error(),
				}, nil
			}
			return Response{}, serr
		}
		proposal.Asset = result.SelectedSymbol
		proposal.LockedProductID = result.SelectedProductID
		proposal.SelectionResult = symbols.SafeJSON(result)
	}

	preflightResult, perr := e.deps.Preflight.Validate(ctx, preflight.Input{
		TenantID:   req.TenantID,
		Side:       proposal.Side,
		Asset:      proposal.Asset,
		ProductID:  proposal.LockedProductID,
		AmountUSD:  proposal.AmountUSD,
		AssetClass: proposal.AssetClass,
		Mode:       req.Mode,
	})
	if perr != nil {
		return Response{}, perr
	}
	if !preflightResult.Valid {
		return Response{
			RequestID: req.RequestID,
			Status:    domain.StatusRejected,
			Message:   preflightResult.Remediation,
		}, nil
	}
	if preflightResult.RequiresAutoSell {
		proposal.AutoSell = preflightResult.AutoSellProposal
	}

	confID, err := e.deps.Confirmations.CreatePending(ctx, req.TenantID, req.ConversationID, proposal, req.Mode, confirmation.DefaultTTL)
	if err != nil {
		return Response{}, err
	}

	expiresAt := time.Now().UTC().Add(confirmation.DefaultTTL)
	logger.Info().Str("confirmation_id", confID).Msg("issued pending confirmation")

	return Response{
		RequestID:      req.RequestID,
		Status:         domain.StatusAwaitingConfirmation,
		Message:        confirmationPrompt(proposal),
		ConfirmationID: confID,
		ExpiresAt:      &expiresAt,
	}, nil
}

func (e *Endpoint) handleConfirm(ctx context.Context, req Request, logger zerologLogger) (Response, error) {
	pc, err := e.resolveTarget(ctx, req)
	if err != nil {
		if errors.Is(err, confirmation.ErrNotFound) {
			return Response{RequestID: req.RequestID, Status: domain.StatusRejected, Message: "No pending trade to confirm."}, nil
		}
		return Response{}, err
	}

	if pc.Mode == domain.ModeLive {
		allowed, gerr := e.deps.LiveGate.LiveTradingAllowed(ctx)
		if gerr != nil {
			return Response{}, gerr
		}
		if !allowed {
			return Response{RequestID: req.RequestID, Status: domain.StatusRejected, Message: "Live trading is currently disabled."}, ErrLiveDisabled
		}
	}

	if pc.Status != domain.ConfirmationPending {
		return e.replayResponse(ctx, req, pc)
	}
	if pc.IsExpired(time.Now().UTC()) {
		_ = e.deps.Confirmations.MarkExpired(ctx, req.TenantID, pc.ID)
		return Response{RequestID: req.RequestID, Status: domain.StatusRejected, Message: "That confirmation has expired. Please resend the trade."}, nil
	}

	if activeID, active, aerr := e.deps.Runs.ActiveRunID(ctx, req.TenantID); aerr == nil && active {
		return Response{}, &ErrRunAlreadyActive{ActiveRunID: activeID}
	} else if aerr != nil {
		return Response{}, aerr
	}

	plan, err := e.deps.Planner.BuildPlan(ctx, pc.Proposal)
	if err != nil {
		return Response{}, err
	}

	run := domain.Run{
		TenantID:        req.TenantID,
		ExecutionMode:   pc.Mode,
		AssetClass:      pc.Proposal.AssetClass,
		LockedProductID: pc.Proposal.LockedProductID,
		ConversationID:  req.ConversationID,
		NewsEnabled:     pc.Proposal.NewsEnabled,
		CommandText:     req.Text,
		Intent:          domain.IntentTradeExecution,
		ExecutionPlan:   plan,
		TradeProposal:   &pc.Proposal,
		Status:          domain.RunCreated,
	}
	runID, err := e.deps.Runs.CreateRun(ctx, run)
	if err != nil {
		return Response{}, err
	}

	ok, merr := e.deps.Confirmations.MarkConfirmed(ctx, req.TenantID, pc.ID, runID)
	if merr != nil {
		return Response{}, merr
	}
	if !ok {
		// Another caller won the race; replay its run rather than our own.
		existing, gerr := e.deps.Confirmations.GetByID(ctx, req.TenantID, pc.ID)
		if gerr != nil {
			return Response{}, gerr
		}
		return e.replayResponse(ctx, req, existing)
	}

	response := Response{
		RequestID: req.RequestID,
		Status:    domain.StatusExecuting,
		Message:   "Confirmed. Your trade is executing.",
		RunID:     runID,
	}

	// Two-phase: response body and state are already committed above;
	// only now do we dispatch the side effect.
	e.deps.Dispatcher.Dispatch(runID)

	logger.Info().Str("run_id", runID).Msg("run dispatched")
	return response, nil
}

func (e *Endpoint) handleCancel(ctx context.Context, req Request, logger zerologLogger) (Response, error) {
	pc, err := e.resolveTarget(ctx, req)
	if err != nil {
		if errors.Is(err, confirmation.ErrNotFound) {
			return Response{RequestID: req.RequestID, Status: domain.StatusRejected, Message: "No pending trade to cancel."}, nil
		}
		return Response{}, err
	}
	if pc.Status != domain.ConfirmationPending {
		return Response{RequestID: req.RequestID, Status: domain.StatusTradeCancelled, Message: "That trade was already resolved."}, nil
	}
	if err := e.deps.Confirmations.MarkCancelled(ctx, req.TenantID, pc.ID); err != nil {
		return Response{}, err
	}
	logger.Info().Str("confirmation_id", pc.ID).Msg("cancelled pending confirmation")
	return Response{RequestID: req.RequestID, Status: domain.StatusTradeCancelled, Message: "Trade cancelled."}, nil
}

// resolveTarget implements the confirm/cancel target priority: explicit
// confirmation_id in the request body first, else the latest pending
// confirmation for the conversation.
func (e *Endpoint) resolveTarget(ctx context.Context, req Request) (*domain.PendingConfirmation, error) {
	if req.ConfirmationID != "" {
		return e.deps.Confirmations.GetByID(ctx, req.TenantID, req.ConfirmationID)
	}
	return e.deps.Confirmations.GetLatestPendingForConversation(ctx, req.TenantID, req.ConversationID)
}

func (e *Endpoint) replayResponse(ctx context.Context, req Request, pc *domain.PendingConfirmation) (Response, error) {
	switch pc.Status {
	case domain.ConfirmationConfirmed:
		runID := ""
		if pc.RunID != nil {
			runID = *pc.RunID
		}
		return Response{RequestID: req.RequestID, Status: domain.StatusExecuting, Message: "This trade was already confirmed.", RunID: runID, ConfirmationID: pc.ID}, nil
	case domain.ConfirmationCancelled:
		return Response{RequestID: req.RequestID, Status: domain.StatusTradeCancelled, Message: "This trade was already cancelled.", ConfirmationID: pc.ID}, nil
	case domain.ConfirmationExpired:
		return Response{RequestID: req.RequestID, Status: domain.StatusRejected, Message: "This confirmation has expired.", ConfirmationID: pc.ID}, nil
	default:
		return Response{RequestID: req.RequestID, Status: domain.StatusRejected, Message: "Unable to resolve this confirmation."}, nil
	}
}

func (e *Endpoint) handlePortfolioAnalysis(ctx context.Context, req Request, logger zerologLogger) (Response, error) {
	runID, display, err := e.deps.Portfolio.RunAnalysis(ctx, req.TenantID, req.ConversationID, req.Text)
	if err != nil {
		return Response{}, err
	}
	logger.Info().Str("run_id", runID).Msg("portfolio analysis run completed")
	return Response{RequestID: req.RequestID, Status: domain.StatusCompleted, Message: display, RunID: runID}, nil
}

func (e *Endpoint) handlePortfolioLookup(ctx context.Context, req Request, logger zerologLogger) (Response, error) {
	text, found, err := e.deps.Portfolio.LastSnapshotText(ctx, req.TenantID)
	if err != nil {
		return Response{}, err
	}
	if !found {
		return Response{RequestID: req.RequestID, Status: domain.StatusCompleted, Message: "I don't have a portfolio snapshot yet. Ask me to analyze your portfolio first."}, nil
	}
	return Response{RequestID: req.RequestID, Status: domain.StatusCompleted, Message: text}, nil
}

func toDomainSide(s tradeparse.Side) domain.Side {
	switch s {
	case tradeparse.SideBuy:
		return domain.SideBuy
	case tradeparse.SideSell:
		return domain.SideSell
	default:
		return ""
	}
}

type zerologLogger = zerolog.Logger
