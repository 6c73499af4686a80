// Package preflight implements the Preflight Validator: the single gate
// between a parsed trade command and confirmation issuance. It checks
// minimum notional, sale balance, and purchase cash — applying the same
// fee estimate throughout — and never mutates state; a reject is always
// a structured ReasonCode, never a bare error string.
package preflight

import (
	"context"
	"fmt"

	"github.com/tradeassist/engine/internal/domain"
)

// ReasonCode enumerates the validator's rejection reasons.
type ReasonCode string

const (
	ReasonNone                ReasonCode = ""
	ReasonMinNotionalTooLow   ReasonCode = "MIN_NOTIONAL_TOO_LOW"
	ReasonInsufficientBalance ReasonCode = "INSUFFICIENT_BALANCE"
	ReasonInsufficientCash    ReasonCode = "INSUFFICIENT_CASH"
	ReasonProductNotTradeable ReasonCode = "PRODUCT_NOT_TRADEABLE"
	ReasonNoLastPurchase      ReasonCode = "NO_LAST_PURCHASE"
	ReasonLiveDisabled        ReasonCode = "LIVE_DISABLED"
)

var remediations = map[ReasonCode]string{
	ReasonMinNotionalTooLow:   "Increase the order amount to meet the product's minimum notional.",
	ReasonInsufficientBalance: "Reduce the sell amount or choose an asset you hold enough of.",
	ReasonInsufficientCash:    "Add funds, reduce the order size, or approve the suggested auto-sell.",
	ReasonProductNotTradeable: "Choose a different asset; this product is not currently tradeable.",
	ReasonNoLastPurchase:      "There is no prior purchase on record to sell.",
	ReasonLiveDisabled:        "Live trading is disabled for this tenant; use paper mode instead.",
}

// CryptoMarketOrderFeeRate is the flat fee estimate applied to crypto
// market orders throughout the validator, so every check (min notional,
// balance, cash) reasons about the same effective cost.
const CryptoMarketOrderFeeRate = 0.006

// DefaultMinNotionalUSD is used when the product's real minimum cannot be
// fetched and no stale cached value exists either.
const DefaultMinNotionalUSD = 1.0

// Input is the validator's request.
type Input struct {
	TenantID   string
	Side       domain.Side
	Asset      string
	ProductID  string
	AmountUSD  float64
	AssetClass domain.AssetClass
	Mode       domain.ExecutionMode
}

// Result is the validator's structured output.
type Result struct {
	Valid              bool
	ReasonCode         ReasonCode
	Message            string
	Remediation        string
	RequiresAutoSell   bool
	AutoSellProposal   *domain.AutoSellPlan
	EstimatedFeeUSD    float64
}

// MinNotionalSource supplies a product's minimum notional, with a
// stale-cache fallback when the live lookup fails.
type MinNotionalSource interface {
	MinNotionalUSD(ctx context.Context, productID string) (value float64, stale bool, err error)
}

// BalanceSource supplies the tenant's current holdings, consulting LIVE
// balances when live credentials exist and otherwise the latest paper
// snapshot.
type BalanceSource interface {
	AssetBalanceUSD(ctx context.Context, tenantID, symbol string, mode domain.ExecutionMode) (float64, error)
	CashBalanceUSD(ctx context.Context, tenantID string, mode domain.ExecutionMode) (float64, error)
	// NonTargetHoldings returns the tenant's holdings excluding symbol,
	// each valued in USD, for the auto-sell search.
	NonTargetHoldings(ctx context.Context, tenantID, excludeSymbol string, mode domain.ExecutionMode) ([]domain.Holding, error)
}

// LiveTradingGate reports whether live trading is currently permitted for
// the tenant (config kill switches: ENABLE_LIVE_TRADING, TRADING_DISABLE_LIVE,
// FORCE_PAPER_MODE).
type LiveTradingGate interface {
	LiveTradingAllowed(tenantID string) bool
}

// Validator runs the ordered checks against injected data sources.
type Validator struct {
	MinNotional MinNotionalSource
	Balances    BalanceSource
	LiveGate    LiveTradingGate
}

func NewValidator(minNotional MinNotionalSource, balances BalanceSource, liveGate LiveTradingGate) *Validator {
	return &Validator{MinNotional: minNotional, Balances: balances, LiveGate: liveGate}
}

func reject(code ReasonCode, message string) *Result {
	return &Result{
		Valid:       false,
		ReasonCode:  code,
		Message:     message,
		Remediation: remediations[code],
	}
}

// Validate runs the ordered checks: live-trading gate, min notional,
// sale balance, purchase cash (with auto-sell search). It is the only
// gate between parser output and confirmation issuance — preflight never
// talks to the DAG runner or the confirmation store directly.
func (v *Validator) Validate(ctx context.Context, in Input) (*Result, error) {
	if in.Mode == domain.ModeLive && v.LiveGate != nil && !v.LiveGate.LiveTradingAllowed(in.TenantID) {
		return reject(ReasonLiveDisabled, "Live trading is currently disabled."), nil
	}

	fee := in.AmountUSD * CryptoMarketOrderFeeRate

	minNotional, _, err := v.MinNotional.MinNotionalUSD(ctx, in.ProductID)
	if err != nil {
		minNotional = DefaultMinNotionalUSD
	}
	if minNotional <= 0 {
		minNotional = DefaultMinNotionalUSD
	}
	if in.AmountUSD+fee < minNotional {
		return reject(ReasonMinNotionalTooLow, fmt.Sprintf(
			"Order of $%.2f plus an estimated $%.2f fee is below the $%.2f minimum for %s.",
			in.AmountUSD, fee, minNotional, in.ProductID,
		)), nil
	}

	if in.Side == domain.SideSell {
		return v.validateSell(ctx, in, fee)
	}
	return v.validateBuy(ctx, in, fee)
}

func (v *Validator) validateSell(ctx context.Context, in Input, fee float64) (*Result, error) {
	if in.Asset == "AUTO" {
		return &Result{Valid: true, EstimatedFeeUSD: fee}, nil
	}

	available, err := v.Balances.AssetBalanceUSD(ctx, in.TenantID, in.Asset, in.Mode)
	if err != nil {
		return nil, fmt.Errorf("preflight: load balance: %w", err)
	}
	if available < in.AmountUSD {
		return reject(ReasonInsufficientBalance, fmt.Sprintf(
			"Requested $%.2f of %s but only $%.2f is available.",
			in.AmountUSD, in.Asset, available,
		)), nil
	}

	return &Result{Valid: true, EstimatedFeeUSD: fee}, nil
}

func (v *Validator) validateBuy(ctx context.Context, in Input, fee float64) (*Result, error) {
	cash, err := v.Balances.CashBalanceUSD(ctx, in.TenantID, in.Mode)
	if err != nil {
		return nil, fmt.Errorf("preflight: load cash balance: %w", err)
	}

	needed := in.AmountUSD + fee
	if cash >= needed {
		return &Result{Valid: true, EstimatedFeeUSD: fee}, nil
	}

	shortfall := needed - cash
	plan := v.findAutoSellCandidate(ctx, in, shortfall)
	if plan == nil {
		return reject(ReasonInsufficientCash, fmt.Sprintf(
			"Need $%.2f but only $%.2f cash is available, and no other holding covers the $%.2f shortfall.",
			needed, cash, shortfall,
		)), nil
	}

	return &Result{
		Valid:            true,
		RequiresAutoSell: true,
		AutoSellProposal: plan,
		EstimatedFeeUSD:  fee,
	}, nil
}

// findAutoSellCandidate picks the smallest non-target holding that still
// covers the shortfall, to minimize portfolio disturbance.
func (v *Validator) findAutoSellCandidate(ctx context.Context, in Input, shortfall float64) *domain.AutoSellPlan {
	holdings, err := v.Balances.NonTargetHoldings(ctx, in.TenantID, in.Asset, in.Mode)
	if err != nil || len(holdings) == 0 {
		return nil
	}

	var best *domain.Holding
	for i := range holdings {
		h := holdings[i]
		if h.USDValue < shortfall {
			continue
		}
		if best == nil || h.USDValue < best.USDValue {
			best = &holdings[i]
		}
	}
	if best == nil {
		return nil
	}

	return &domain.AutoSellPlan{
		SellBaseSymbol: best.Symbol,
		SellProductID:  best.Symbol + "-USD",
		SellAmountUSD:  shortfall,
	}
}
