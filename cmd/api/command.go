package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tradeassist/engine/internal/analysis"
	"github.com/tradeassist/engine/internal/audit"
	runtimeconfig "github.com/tradeassist/engine/internal/config"
	"github.com/tradeassist/engine/internal/confirmation"
	"github.com/tradeassist/engine/internal/dag"
	"github.com/tradeassist/engine/internal/db"
	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/endpoint"
	"github.com/tradeassist/engine/internal/eval"
	"github.com/tradeassist/engine/internal/market"
	"github.com/tradeassist/engine/internal/notify"
	"github.com/tradeassist/engine/internal/preflight"
	"github.com/tradeassist/engine/internal/selection"
	"github.com/tradeassist/engine/internal/store"
	"github.com/tradeassist/engine/internal/symbols"
)

// defaultTenantID is the tenant every command is dispatched under. The
// wire contract carries no tenant field (spec.md's command body is
// {text, conversation_id?, confirmation_id?, news_enabled?}); tenant
// scoping is an operator-deployment concern, resolved from the
// X-Tenant-ID header when a deployment fronts more than one tenant.
const defaultTenantID = "default"

// buildCommandEndpoint wires the Command Endpoint and everything it
// dispatches into: the Postgres-backed store, the PAPER/LIVE brokers,
// the market-data providers, the preflight validator, the DAG runner
// and its nodes, the eval registry, and the notification dispatcher.
func buildCommandEndpoint(database *db.DB) (*endpoint.Endpoint, error) {
	runtimeCfg, err := runtimeconfig.LoadRuntime()
	if err != nil {
		return nil, fmt.Errorf("load runtime config: %w", err)
	}

	pool := database.Pool()
	st := store.New(pool)

	cryptoProvider := market.NewCoinbaseProvider(runtimeCfg.CoinbaseAPIKeyName, runtimeCfg.CoinbaseAPIPrivateKey)
	stockWatchlist := splitCSV(runtimeCfg.StockWatchlist)
	stockProvider := market.NewEODProvider(runtimeCfg.PolygonAPIKey, stockWatchlist)
	provider := market.NewCompositeProvider(cryptoProvider, stockProvider, stockWatchlist)

	paperBroker := market.NewPaperBroker(pool, provider, market.DefaultFeeModel())
	var liveBroker market.Broker // nil: no LIVE credentials wired yet at this boundary
	balances := market.NewBalanceReader(paperBroker, liveBroker)
	minNotional := market.DefaultMinNotionals()

	validator := preflight.NewValidator(minNotional, balances, runtimeCfg)
	selectionEngine := selection.NewEngine(provider)
	planner := dag.NewPlanner()

	evalRunner := eval.NewRunner(st, st)

	channels := buildNotifyChannels(runtimeCfg)
	dispatcher := notify.NewDispatcher(st, channels...)
	toolCallLogger := audit.NewToolCallLogger(pool, nil)

	nodes := []dag.Node{
		&dag.ResearchNode{Provider: provider},
		&dag.StrategyNode{Provider: provider, Metric: dag.MetricReturn},
		&dag.RiskNode{Provider: provider, Limits: dag.DefaultRiskLimits()},
		&dag.ProposalNode{},
		&dag.PolicyNode{KillSwitch: st},
		&dag.ExecutionNode{Broker: paperBroker, Tickets: st},
		&dag.PostTradeNode{Broker: paperBroker, Backfill: st, Snapshots: st},
		&dag.PortfolioNode{
			Broker:                   paperBroker,
			Provider:                 provider,
			Snapshots:                st,
			Orders:                   st,
			LiveCredentialsAvailable: false,
		},
		&dag.EvalNode{Runner: evalRunner, Analytics: dispatcher},
	}
	runner := dag.NewRunner(st, st, st, toolCallLogger, nodes)

	lookup := analysis.New(st, st, st, runner)

	deps := endpoint.Deps{
		Confirmations: confirmation.New(pool),
		Runs:          st,
		Dispatcher:    runner,
		Portfolio:     lookup,
		LiveGate:      runtimeconfig.EndpointLiveGate{Runtime: runtimeCfg},
		Preflight:     validator,
		Selection:     selectionEngine,
		Planner:       planner,
	}

	log.Info().Bool("live_trading_enabled", runtimeCfg.EnableLiveTrading).Msg("command endpoint wired")
	return endpoint.New(deps), nil
}

func buildNotifyChannels(cfg *runtimeconfig.RuntimeConfig) []notify.Channel {
	var channels []notify.Channel
	if cfg.PushoverToken != "" && cfg.PushoverUser != "" {
		channels = append(channels, notify.NewPushoverChannel(cfg.PushoverToken, cfg.PushoverUser))
	}
	return channels
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// commandRequest is the wire shape for POST /api/v1/chat/command, per
// spec.md's external-interfaces contract: {text, conversation_id?,
// confirmation_id?, news_enabled?}. request_id is accepted if supplied
// (for client-side idempotent retries) but is never required.
type commandRequest struct {
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text" binding:"required"`
	Mode           string `json:"mode"`
	ConfirmationID string `json:"confirmation_id"`
	NewsEnabled    bool   `json:"news_enabled"`
}

// commandTextMinLen/MaxLen bound free-form command text per spec.md's
// external-interfaces contract (1..5000 chars after control-byte strip).
const (
	commandTextMinLen = 1
	commandTextMaxLen = 5000
)

func (s *APIServer) setupCommandRoutes(v1 *gin.RouterGroup) {
	if s.command == nil {
		return
	}
	chat := v1.Group("/chat")
	command := chat.Group("/command")
	command.Use(s.rateLimiter.OrderMiddleware())
	command.POST("", s.handleCommand)
}

func (s *APIServer) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	req.Text = symbols.StripControlBytes(req.Text)
	if len(req.Text) < commandTextMinLen || len(req.Text) > commandTextMaxLen {
		c.JSON(400, gin.H{
			"error":      "text must be between 1 and 5000 characters",
			"request_id": req.RequestID,
		})
		return
	}

	mode := domain.ModePaper
	if strings.EqualFold(req.Mode, "LIVE") {
		mode = domain.ModeLive
	}

	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		tenantID = defaultTenantID
	}

	resp, err := s.command.Handle(c.Request.Context(), endpoint.Request{
		RequestID:      req.RequestID,
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		Text:           req.Text,
		Mode:           mode,
		ConfirmationID: req.ConfirmationID,
		NewsEnabled:    req.NewsEnabled,
	})
	if err != nil {
		writeCommandError(c, req.RequestID, err)
		return
	}
	c.JSON(200, resp)
}

// writeCommandError maps the Command Endpoint's sentinel errors to the
// status codes spec.md's external-interfaces contract requires:
// RUN_ALREADY_ACTIVE -> 409, LIVE_DISABLED -> 403, anything else -> 500
// (always carrying request_id so the caller can correlate against logs).
func writeCommandError(c *gin.Context, requestID string, err error) {
	var activeErr *endpoint.ErrRunAlreadyActive
	if errors.As(err, &activeErr) {
		c.JSON(409, gin.H{"request_id": requestID, "error": "RUN_ALREADY_ACTIVE", "run_id": activeErr.ActiveRunID})
		return
	}
	if errors.Is(err, endpoint.ErrLiveDisabled) {
		c.JSON(403, gin.H{"request_id": requestID, "error": "LIVE_DISABLED"})
		return
	}
	log.Error().Err(err).Str("request_id", requestID).Msg("command handling failed")
	c.JSON(500, gin.H{"request_id": requestID, "error": "internal_error"})
}
