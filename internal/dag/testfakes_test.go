package dag

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tradeassist/engine/internal/domain"
	"github.com/tradeassist/engine/internal/market"
)

// fakeArtifacts records every WriteArtifact call in memory for assertions.
type fakeArtifacts struct {
	mu        sync.Mutex
	artifacts []domain.RunArtifact
}

func (f *fakeArtifacts) WriteArtifact(ctx context.Context, artifact domain.RunArtifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, artifact)
	return nil
}

func (f *fakeArtifacts) byType(t domain.ArtifactType) (domain.RunArtifact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.artifacts) - 1; i >= 0; i-- {
		if f.artifacts[i].ArtifactType == t {
			return f.artifacts[i], true
		}
	}
	return domain.RunArtifact{}, false
}

// fakeRunStore implements RunStore with an in-memory run, recording the
// terminal status transition a node requests.
type fakeRunStore struct {
	run           *domain.Run
	statusUpdates []domain.RunStatus
	failureCode   string
	failureReason string
}

func (f *fakeRunStore) GetRunForExecution(ctx context.Context, runID string) (*domain.Run, error) {
	return f.run, nil
}

func (f *fakeRunStore) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, failureCode, failureReason string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	f.failureCode = failureCode
	f.failureReason = failureReason
	f.run.Status = status
	return nil
}

func (f *fakeRunStore) MarkTradabilityVerified(ctx context.Context, runID string) error {
	f.run.TradabilityVerified = true
	return nil
}

// fakeToolCalls discards nothing; it just counts.
type fakeToolCalls struct {
	mu    sync.Mutex
	calls []domain.ToolCall
}

func (f *fakeToolCalls) Record(ctx context.Context, call domain.ToolCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// fakeProvider is a scripted market.Provider.
type fakeProvider struct {
	products []market.Product
	candles  map[string][]domain.Candle
	err      error
}

func (f *fakeProvider) ListProducts(ctx context.Context, quote string) ([]market.Product, error) {
	return f.products, f.err
}

func (f *fakeProvider) FetchCandles(ctx context.Context, productID string, lookback time.Duration, gran market.Granularity) ([]domain.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candles[productID], nil
}

func (f *fakeProvider) VerifyTradeable(ctx context.Context, productID string) (bool, error) {
	return true, nil
}

// fakeBroker is a scripted market.Broker.
type fakeBroker struct {
	placeErr     error
	order        *domain.Order
	fills        []domain.Fill
	fillsErr     error
	balances     []domain.Holding
	balancesErr  error
	history      []domain.Order
	historyErr   error
	placedOrders []market.PlaceOrderRequest
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req market.PlaceOrderRequest) (*domain.Order, error) {
	f.placedOrders = append(f.placedOrders, req)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	if f.order != nil {
		return f.order, nil
	}
	return &domain.Order{OrderID: "order_1", Status: domain.OrderStatusFilled}, nil
}

func (f *fakeBroker) GetOrderFills(ctx context.Context, orderID string) ([]domain.Fill, error) {
	return f.fills, f.fillsErr
}

func (f *fakeBroker) GetBalances(ctx context.Context) ([]domain.Holding, error) {
	return f.balances, f.balancesErr
}

func (f *fakeBroker) GetOrderHistory(ctx context.Context, since time.Time, limit int) ([]domain.Order, error) {
	return f.history, f.historyErr
}

// fakeTicketStore implements TicketStore.
type fakeTicketStore struct {
	ticketID string
	err      error
	created  []domain.TradeTicket
}

func (f *fakeTicketStore) CreateTicket(ctx context.Context, ticket domain.TradeTicket) (string, error) {
	f.created = append(f.created, ticket)
	if f.err != nil {
		return "", f.err
	}
	if f.ticketID == "" {
		return "ticket_1", nil
	}
	return f.ticketID, nil
}

// fakeKillSwitch implements KillSwitch.
type fakeKillSwitch struct {
	enabled bool
	err     error
}

func (f *fakeKillSwitch) Enabled(ctx context.Context, tenantID string) (bool, error) {
	return f.enabled, f.err
}

// fakeBackfiller implements OrderBackfiller.
type fakeBackfiller struct {
	calls []struct {
		ClientOrderID string
		FilledQty     float64
		AvgFillPrice  float64
	}
}

func (f *fakeBackfiller) BackfillFill(ctx context.Context, clientOrderID string, filledQty, avgFillPrice float64) error {
	f.calls = append(f.calls, struct {
		ClientOrderID string
		FilledQty     float64
		AvgFillPrice  float64
	}{clientOrderID, filledQty, avgFillPrice})
	return nil
}

// fakeSnapshotWriter implements PortfolioSnapshotWriter.
type fakeSnapshotWriter struct {
	snapshots []domain.PortfolioSnapshot
}

func (f *fakeSnapshotWriter) WriteSnapshot(ctx context.Context, snapshot domain.PortfolioSnapshot) error {
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

// fakeSnapshotReader implements PortfolioSnapshotReader.
type fakeSnapshotReader struct {
	snapshot *domain.PortfolioSnapshot
	err      error
}

func (f *fakeSnapshotReader) LatestSnapshot(ctx context.Context, tenantID string) (*domain.PortfolioSnapshot, error) {
	return f.snapshot, f.err
}

// fakeOrderHistoryStore implements OrderHistoryStore.
type fakeOrderHistoryStore struct {
	orders []domain.Order
	err    error
}

func (f *fakeOrderHistoryStore) RecentFilledOrders(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.Order, error) {
	return f.orders, f.err
}

func candleSeries(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	base := time.Now().UTC().Add(-time.Duration(len(closes)) * time.Hour)
	for i, c := range closes {
		out[i] = domain.Candle{Time: base.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return out
}

func newTestRunContext(run *domain.Run) (*RunContext, *fakeArtifacts, *fakeRunStore, *fakeToolCalls) {
	artifacts := &fakeArtifacts{}
	runs := &fakeRunStore{run: run}
	toolCalls := &fakeToolCalls{}
	rc := &RunContext{
		Run:       run,
		Artifacts: artifacts,
		Runs:      runs,
		ToolCalls: toolCalls,
		StartedAt: time.Now().UTC(),
	}
	return rc, artifacts, runs, toolCalls
}

func baseRun() *domain.Run {
	return &domain.Run{
		RunID:         "run_1",
		TenantID:      "tenant_1",
		ExecutionMode: domain.ModePaper,
		AssetClass:    domain.AssetClassCrypto,
		Intent:        domain.IntentTradeExecution,
		Status:        domain.RunRunning,
		TradeProposal: &domain.TradeProposal{
			Side: domain.SideBuy, Asset: "BTC", AmountUSD: 100, Mode: domain.ModePaper, AssetClass: domain.AssetClassCrypto,
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func mustJSON(t interface{}) json.RawMessage {
	b, _ := json.Marshal(t)
	return b
}
