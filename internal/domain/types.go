// Package domain holds the entities and enums shared across the command
// orchestration pipeline: confirmations, runs, dag nodes, artifacts, and
// the other tables in the persisted-state layout. Packages that need to
// pass these values between layers (store, dag, endpoint, eval) import
// this package rather than redeclaring shapes locally, the way the
// teacher's internal/db and internal/exchange share Order/OrderSide.
package domain

import (
	"encoding/json"
	"time"
)

// Side is the buy/sell direction of a trade proposal.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// AssetClass distinguishes crypto from stock, or marks a proposal where
// the parser could not disambiguate.
type AssetClass string

const (
	AssetClassCrypto     AssetClass = "CRYPTO"
	AssetClassStock      AssetClass = "STOCK"
	AssetClassAmbiguous  AssetClass = "AMBIGUOUS"
)

// ExecutionMode is the mode a Run executes under.
type ExecutionMode string

const (
	ModePaper         ExecutionMode = "PAPER"
	ModeLive          ExecutionMode = "LIVE"
	ModeAssistedLive  ExecutionMode = "ASSISTED_LIVE"
	ModeReplay        ExecutionMode = "REPLAY"
)

// ConfirmationStatus is the state of a PendingConfirmation.
type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "PENDING"
	ConfirmationConfirmed ConfirmationStatus = "CONFIRMED"
	ConfirmationCancelled ConfirmationStatus = "CANCELLED"
	ConfirmationExpired   ConfirmationStatus = "EXPIRED"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunCreated   RunStatus = "CREATED"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunPaused    RunStatus = "PAUSED"
)

// IntentType is the eight-way classification the Intent Router produces.
type IntentType string

const (
	IntentGreeting           IntentType = "GREETING"
	IntentCapabilitiesHelp   IntentType = "CAPABILITIES_HELP"
	IntentFinanceAnalysis    IntentType = "FINANCE_ANALYSIS"
	IntentTradeExecution     IntentType = "TRADE_EXECUTION"
	IntentPortfolio          IntentType = "PORTFOLIO"
	IntentPortfolioAnalysis  IntentType = "PORTFOLIO_ANALYSIS"
	IntentAppDiagnostics     IntentType = "APP_DIAGNOSTICS"
	IntentOutOfScope         IntentType = "OUT_OF_SCOPE"
)

// CommandStatus is the status surfaced in the command endpoint response.
type CommandStatus string

const (
	StatusCompleted             CommandStatus = "COMPLETED"
	StatusAwaitingConfirmation  CommandStatus = "AWAITING_CONFIRMATION"
	StatusAwaitingAssetClass    CommandStatus = "AWAITING_ASSET_CLASS"
	StatusExecuting             CommandStatus = "EXECUTING"
	StatusRejected              CommandStatus = "REJECTED"
	StatusTradeCancelled        CommandStatus = "TRADE_CANCELLED"
)

// TradeProposal is the parsed/locked intent to trade, carried on a
// PendingConfirmation and, once confirmed, on the Run.
type TradeProposal struct {
	Side             Side           `json:"side"`
	Asset            string         `json:"asset"`
	AmountUSD        float64        `json:"amount_usd"`
	Mode             ExecutionMode  `json:"mode"`
	AssetClass       AssetClass     `json:"asset_class"`
	LockedProductID  string         `json:"locked_product_id,omitempty"`
	AutoSell         *AutoSellPlan  `json:"auto_sell,omitempty"`
	SelectionResult  json.RawMessage `json:"selection_result,omitempty"`
	NewsEnabled      bool           `json:"news_enabled,omitempty"`
}

// AutoSellPlan describes the auto-sell-to-fund remediation produced by the
// Preflight Validator's cash check.
type AutoSellPlan struct {
	SellBaseSymbol string  `json:"sell_base_symbol"`
	SellProductID  string  `json:"sell_product_id"`
	SellAmountUSD  float64 `json:"sell_amount_usd"`
}

// PendingConfirmation is the durable, TTL-bounded pending-trade record.
type PendingConfirmation struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenant_id"`
	ConversationID string             `json:"conversation_id"`
	Proposal       TradeProposal      `json:"proposal"`
	Mode           ExecutionMode      `json:"mode"`
	Status         ConfirmationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	ExpiresAt      time.Time          `json:"expires_at"`
	ConfirmedAt    *time.Time         `json:"confirmed_at,omitempty"`
	RunID          *string            `json:"run_id,omitempty"`
	Insight        json.RawMessage    `json:"insight,omitempty"`
}

// IsExpired reports whether the confirmation's TTL has elapsed as of now.
func (p *PendingConfirmation) IsExpired(now time.Time) bool {
	return p.Status == ConfirmationPending && now.After(p.ExpiresAt)
}

// Run is a single end-to-end execution of the ordered-node pipeline.
type Run struct {
	RunID               string          `json:"run_id"`
	TenantID            string          `json:"tenant_id"`
	ExecutionMode       ExecutionMode   `json:"execution_mode"`
	SourceRunID         *string         `json:"source_run_id,omitempty"`
	AssetClass          AssetClass      `json:"asset_class"`
	NewsEnabled         bool            `json:"news_enabled"`
	ConversationID      string          `json:"conversation_id,omitempty"`
	LockedProductID     string          `json:"locked_product_id"`
	TradabilityVerified bool            `json:"tradability_verified"`
	CommandText         string          `json:"command_text"`
	Intent              IntentType      `json:"intent"`
	ExecutionPlan       json.RawMessage `json:"execution_plan,omitempty"`
	TradeProposal       *TradeProposal  `json:"trade_proposal,omitempty"`
	Status              RunStatus       `json:"status"`
	FailureCode         string          `json:"failure_code,omitempty"`
	FailureReason       string          `json:"failure_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether a Run has reached COMPLETED or FAILED.
func (r *Run) IsTerminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}

// IsActive reports whether a Run counts toward the active-run guard.
func (r *Run) IsActive() bool {
	return r.Status == RunCreated || r.Status == RunRunning
}

// DagNodeName enumerates the fixed pipeline steps.
type DagNodeName string

const (
	NodeResearch    DagNodeName = "research"
	NodeStrategy    DagNodeName = "strategy"
	NodeRisk        DagNodeName = "risk"
	NodeProposal    DagNodeName = "proposal"
	NodePolicyCheck DagNodeName = "policy_check"
	NodeApproval    DagNodeName = "approval"
	NodeExecution   DagNodeName = "execution"
	NodePostTrade   DagNodeName = "post_trade"
	NodeEval        DagNodeName = "eval"
	NodePortfolio   DagNodeName = "portfolio"
	NodeNews        DagNodeName = "news"
)

// DagNodeStatus is the lifecycle state of a DagNode.
type DagNodeStatus string

const (
	DagNodePending   DagNodeStatus = "PENDING"
	DagNodeRunning   DagNodeStatus = "RUNNING"
	DagNodeCompleted DagNodeStatus = "COMPLETED"
	DagNodeFailed    DagNodeStatus = "FAILED"
	DagNodeSkipped   DagNodeStatus = "SKIPPED"
)

// DagNode is one step's execution record within a Run.
type DagNode struct {
	NodeID    string          `json:"node_id"`
	RunID     string          `json:"run_id"`
	Name      DagNodeName     `json:"name"`
	Status    DagNodeStatus   `json:"status"`
	Inputs    json.RawMessage `json:"inputs,omitempty"`
	Outputs   json.RawMessage `json:"outputs,omitempty"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// ArtifactType enumerates the kinds of append-only evidence a node writes.
type ArtifactType string

const (
	ArtifactUniverseSnapshot  ArtifactType = "universe_snapshot"
	ArtifactResearchSummary   ArtifactType = "research_summary"
	ArtifactResearchDebug     ArtifactType = "research_debug"
	ArtifactResearchFailure   ArtifactType = "research_failure"
	ArtifactFinancialBrief    ArtifactType = "financial_brief"
	ArtifactStrategyDecision  ArtifactType = "strategy_decision"
	ArtifactSelectionBasis    ArtifactType = "selection_basis"
	ArtifactStrategyFailure   ArtifactType = "strategy_failure"
	ArtifactPortfolioBrief    ArtifactType = "portfolio_brief"
	ArtifactHoldingsRaw       ArtifactType = "holdings_raw"
	ArtifactTradeReceipt      ArtifactType = "trade_receipt"
	ArtifactExecutionError    ArtifactType = "execution_error"
	ArtifactNewsBrief         ArtifactType = "news_brief"
	ArtifactCandleBatch       ArtifactType = "market_candles_batch"
	ArtifactOraclePrefix      ArtifactType = "oracle_" // used with a suffix, e.g. oracle_top_performer
)

// RunArtifact is an append-only evidence record.
type RunArtifact struct {
	RunID        string          `json:"run_id"`
	StepName     string          `json:"step_name"`
	ArtifactType ArtifactType    `json:"artifact_type"`
	ArtifactJSON json.RawMessage `json:"artifact_json"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ToolCallStatus is the outcome of an external call.
type ToolCallStatus string

const (
	ToolCallSuccess ToolCallStatus = "SUCCESS"
	ToolCallFailed  ToolCallStatus = "FAILED"
	ToolCallTimeout ToolCallStatus = "TIMEOUT"
)

// ToolCall records one external I/O performed on behalf of a run.
type ToolCall struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	NodeID     string          `json:"node_id,omitempty"`
	ToolName   string          `json:"tool_name"`
	MCPServer  string          `json:"mcp_server"`
	Request    json.RawMessage `json:"request"`
	Response   json.RawMessage `json:"response"`
	Status     ToolCallStatus  `json:"status"`
	LatencyMs  int64           `json:"latency_ms"`
	Attempt    int             `json:"attempt"`
	HTTPStatus int             `json:"http_status,omitempty"`
	ErrorText  string          `json:"error_text,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CandleBatch is a frozen series plus the query window that produced it,
// used both as research evidence and as oracle-eval ground truth.
type CandleBatch struct {
	Product     string          `json:"product"`
	Interval    string          `json:"interval"`
	Candles     []Candle        `json:"candles"`
	QueryParams json.RawMessage `json:"query_params"`
}

// RankingRow is one candidate's row in a Ranking's table.
type RankingRow struct {
	Symbol      string  `json:"symbol"`
	Score       float64 `json:"score"`
	Volume24h   float64 `json:"volume_24h"`
	CandleCount int     `json:"candle_count"`
}

// Ranking is the append-only output of the strategy node's sort.
type Ranking struct {
	RankingID      string       `json:"ranking_id"`
	RunID          string       `json:"run_id"`
	Window         string       `json:"window"`
	Metric         string       `json:"metric"`
	Table          []RankingRow `json:"table"`
	SelectedSymbol string       `json:"selected_symbol"`
	SelectedScore  float64      `json:"selected_score"`
	Rationale      string       `json:"rationale"`
}

// OrderStatus is the lifecycle of a placed order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Order is a placed (or attempted) trade.
type Order struct {
	OrderID       string      `json:"order_id"`
	RunID         string      `json:"run_id"`
	TenantID      string      `json:"tenant_id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	NotionalUSD   float64     `json:"notional_usd"`
	Status        OrderStatus `json:"status"`
	FilledQty     float64     `json:"filled_qty"`
	AvgFillPrice  float64     `json:"avg_fill_price"`
	Fees          float64     `json:"fees"`
	ClientOrderID string      `json:"client_order_id"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Fill is a single execution against an order.
type Fill struct {
	OrderID   string    `json:"order_id"`
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// Holding is one non-zero balance in a portfolio snapshot.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	USDValue float64 `json:"usd_value"`
}

// PortfolioSnapshot is a point-in-time balances/positions record.
type PortfolioSnapshot struct {
	TenantID     string    `json:"tenant_id"`
	RunID        string    `json:"run_id,omitempty"`
	Balances     []Holding `json:"balances"`
	Positions    []Holding `json:"positions"`
	CashUSD      float64   `json:"cash_usd"`
	TotalValue   float64   `json:"total_value_usd"`
	Timestamp    time.Time `json:"ts"`
}

// AllocationRow is one line of a portfolio's asset-weight breakdown,
// holdings sorted descending by value with USD cash appended last.
type AllocationRow struct {
	Symbol   string  `json:"asset_symbol"`
	Pct      float64 `json:"pct"`
	USDValue float64 `json:"usd_value"`
}

// TradeSummary is the trading-behavior rollup over a trailing window.
type TradeSummary struct {
	WindowDays       int      `json:"window_days"`
	TotalTrades      int      `json:"total_trades"`
	TotalNotionalUSD float64  `json:"total_notional_usd"`
	AvgTradeUSD      float64  `json:"avg_trade_usd"`
	Buys             int      `json:"buys"`
	Sells            int      `json:"sells"`
	TopAssets        []string `json:"top_assets"`
}

// RiskSnapshot is the portfolio-level risk read computed by the
// portfolio node, distinct from the per-trade RiskAnalysis a trade run
// produces.
type RiskSnapshot struct {
	ConcentrationPctTop1 float64  `json:"concentration_pct_top1"`
	ConcentrationPctTop3 float64  `json:"concentration_pct_top3"`
	VolatilityProxy      *float64 `json:"volatility_proxy,omitempty"`
	DiversificationScore float64  `json:"diversification_score"`
	RiskLevel            string   `json:"risk_level"`
}

// PortfolioRecommendation is one threshold-triggered suggestion surfaced
// alongside a PortfolioBrief.
type PortfolioRecommendation struct {
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	ActionRequired bool   `json:"action_required"`
}

// FailureDetail describes why a PortfolioBrief could not be fully
// populated, without inventing the data that is missing.
type FailureDetail struct {
	ErrorCode       string `json:"error_code"`
	ErrorMessage    string `json:"error_message"`
	Recoverable     bool   `json:"recoverable"`
	SuggestedAction string `json:"suggested_action"`
}

// PortfolioBrief is the portfolio node's single output artifact: a
// tool-grounded snapshot of holdings, allocation, risk, and trading
// behavior, never containing values the node did not itself fetch or
// derive from fetched data.
type PortfolioBrief struct {
	AsOf            time.Time                 `json:"as_of"`
	Mode            ExecutionMode             `json:"mode"`
	TotalValueUSD   float64                   `json:"total_value_usd"`
	CashUSD         float64                   `json:"cash_usd"`
	Holdings        []Holding                 `json:"holdings"`
	Allocation      []AllocationRow           `json:"allocation"`
	TradeSummary    *TradeSummary             `json:"trade_summary,omitempty"`
	Risk            RiskSnapshot              `json:"risk"`
	Recommendations []PortfolioRecommendation `json:"recommendations"`
	Warnings        []string                  `json:"warnings,omitempty"`
	EvidenceRefs    []string                  `json:"evidence_refs,omitempty"`
	Failure         *FailureDetail            `json:"failure,omitempty"`
}

// EvalCategory partitions the eval registry.
type EvalCategory string

const (
	EvalCategoryRAG         EvalCategory = "rag"
	EvalCategorySafety      EvalCategory = "safety"
	EvalCategoryQuality     EvalCategory = "quality"
	EvalCategoryCompliance  EvalCategory = "compliance"
	EvalCategoryPerformance EvalCategory = "performance"
	EvalCategoryData        EvalCategory = "data"
)

// EvalResult is one rule-based grader's verdict for a run.
type EvalResult struct {
	EvalID           string          `json:"eval_id"`
	RunID            string          `json:"run_id"`
	EvalName         string          `json:"eval_name"`
	Score            float64         `json:"score"`
	Reasons          []string        `json:"reasons"`
	EvaluatorType    string          `json:"evaluator_type"`
	EvalCategory     EvalCategory    `json:"eval_category"`
	Thresholds       json.RawMessage `json:"thresholds,omitempty"`
	Details          json.RawMessage `json:"details,omitempty"`
	Explanation      string          `json:"explanation,omitempty"`
	ExplanationSource string         `json:"explanation_source,omitempty"`
}

// TicketStatus is the lifecycle of an ASSISTED_LIVE trade ticket.
type TicketStatus string

const (
	TicketPending   TicketStatus = "PENDING"
	TicketExecuted  TicketStatus = "EXECUTED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketExpired   TicketStatus = "EXPIRED"
)

// TradeTicket is the manually-settled order record used for STOCK /
// ASSISTED_LIVE trades.
type TradeTicket struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	NotionalUSD float64         `json:"notional_usd"`
	TIF         string          `json:"tif"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Status      TicketStatus    `json:"status"`
	Receipt     json.RawMessage `json:"receipt,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PolicyDecision is the outcome of the policy_check node.
type PolicyDecision string

const (
	PolicyAllowed          PolicyDecision = "ALLOWED"
	PolicyBlocked          PolicyDecision = "BLOCKED"
	PolicyRequiresApproval PolicyDecision = "REQUIRES_APPROVAL"
)

// PolicyEvent is the append-only record of a policy_check node's decision.
type PolicyEvent struct {
	RunID     string         `json:"run_id"`
	Decision  PolicyDecision `json:"decision"`
	Reasons   []string       `json:"reasons"`
	CreatedAt time.Time      `json:"created_at"`
}

// EvidenceItem ties one claim in a Decision's rationale back to the
// artifact row that supports it, for the faithfulness/coverage evals.
type EvidenceItem struct {
	Claim      string `json:"claim"`
	SourceType string `json:"source_type"`
	SourceRef  string `json:"source_ref"`
}

// RiskAnalysis is the risk node's output: position sizing and exposure
// checks against the tenant's configured limits.
type RiskAnalysis struct {
	PositionSizeUSD    float64  `json:"position_size_usd"`
	KellyFraction      float64  `json:"kelly_fraction"`
	VaR95              float64  `json:"var_95"`
	CVaR95             float64  `json:"cvar_95"`
	SharpeProxy        float64  `json:"sharpe_proxy"`
	PortfolioExposurePct float64 `json:"portfolio_exposure_pct"`
	Violations         []string `json:"violations"`
	Approved           bool     `json:"approved"`
}

// Decision is the proposal node's output: the rationale plus the
// evidence items the faithfulness/coverage evals check against.
type Decision struct {
	Side       Side           `json:"side"`
	Asset      string         `json:"asset"`
	AmountUSD  float64        `json:"amount_usd"`
	Rationale  string         `json:"rationale"`
	Evidence   []EvidenceItem `json:"evidence"`
	Confidence float64        `json:"confidence"`
}

// NotificationStatus is the outcome of a best-effort push attempt.
type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationSkipped NotificationStatus = "skipped"
)

// RunEventType enumerates the step-lifecycle events the eval harness's
// ux_completeness check looks for.
type RunEventType string

const (
	EventStepStarted  RunEventType = "STEP_STARTED"
	EventStepFinished RunEventType = "STEP_FINISHED"
)

// RunEvent is an append-only step-lifecycle marker, one pair per node.
type RunEvent struct {
	RunID     string          `json:"run_id"`
	EventType RunEventType    `json:"event_type"`
	StepName  string          `json:"step_name"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewsItem is a deduplicated news article surfaced as evidence to a run.
type NewsItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// NotificationEvent records one outbound push decision for audit.
type NotificationEvent struct {
	Channel   string             `json:"channel"`
	Status    NotificationStatus `json:"status"`
	Action    string             `json:"action"`
	RunID     string             `json:"run_id,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
