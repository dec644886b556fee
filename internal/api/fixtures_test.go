package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/folio-tracker/internal/config"
	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/service"
	"github.com/folio-tracker/internal/storage"
	"github.com/folio-tracker/internal/types"
	"github.com/redis/go-redis/v9"
)

const testSecret = "s3cret"

// In-memory stores backing real services

type memPortfolios struct {
	ids map[int64]bool
}

func (m *memPortfolios) GetByID(ctx context.Context, id int64) (*models.Portfolio, error) {
	if !m.ids[id] {
		return nil, storage.ErrPortfolioNotFound
	}
	return &models.Portfolio{ID: id, Name: "main", Kind: types.KindSpot, IsActive: true}, nil
}

func (m *memPortfolios) Exists(ctx context.Context, id int64) (bool, error) {
	return m.ids[id], nil
}

func (m *memPortfolios) ListActiveIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(m.ids))
	for id := range m.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type memBalances struct {
	rows map[int64][]*models.Balance
}

func (m *memBalances) ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Balance, error) {
	return m.rows[portfolioID], nil
}

type memCoins struct {
	mu    sync.Mutex
	coins map[string]*models.CoinMetadata
}

func (m *memCoins) GetBySymbol(ctx context.Context, symbol string) (*models.CoinMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.coins[symbol]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memCoins) ListAll(ctx context.Context) ([]*models.CoinMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.CoinMetadata, 0, len(m.coins))
	for _, c := range m.coins {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *memCoins) ListKeys(ctx context.Context) (map[string]bool, map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbols, ids := map[string]bool{}, map[string]bool{}
	for _, c := range m.coins {
		symbols[c.Symbol] = true
		ids[c.CoinID] = true
	}
	return symbols, ids, nil
}

func (m *memCoins) UpdateMarketData(ctx context.Context, coins []*models.CoinMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range coins {
		for _, stored := range m.coins {
			if stored.CoinID == c.CoinID {
				stored.CurrentPrice = c.CurrentPrice
				stored.PriceChange24h = c.PriceChange24h
			}
		}
	}
	return nil
}

func (m *memCoins) InsertBatch(ctx context.Context, coins []*models.CoinMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range coins {
		cp := *c
		m.coins[c.Symbol] = &cp
	}
	return nil
}

type memHistory struct {
	mu   sync.Mutex
	rows []*models.HistorySnapshot
}

func (m *memHistory) Insert(ctx context.Context, snapshots ...*models.HistorySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, snapshots...)
	return nil
}

func (m *memHistory) DeleteCurrent(ctx context.Context, portfolioID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.PortfolioID != portfolioID || r.Period != types.PeriodCurrent {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *memHistory) Query(ctx context.Context, portfolioID int64, period types.Period, start time.Time) ([]*models.HistorySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.HistorySnapshot
	for _, r := range m.rows {
		if r.PortfolioID == portfolioID && r.Period == period && !r.Timestamp.Before(start) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memHistory) DeleteOlderThan(ctx context.Context, period types.Period, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.Period == period && r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

func (m *memHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type stubProvider struct {
	mu    sync.Mutex
	calls int
	coins []*models.CoinMetadata
}

func (p *stubProvider) FetchMarkets(ctx context.Context) ([]*models.CoinMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	out := make([]*models.CoinMetadata, 0, len(p.coins))
	for _, c := range p.coins {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

type noopChainer struct{}

func (noopChainer) Chain(ctx context.Context, next service.ChainRequest) error { return nil }

// stubLedger records calls for transaction handler tests
type stubLedger struct {
	recorded   []service.RecordTransactionInput
	corrected  []models.TransactionCorrection
	err        error
	listResult []*models.Transaction
}

func (l *stubLedger) RecordTransaction(ctx context.Context, in service.RecordTransactionInput) (*models.Transaction, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.recorded = append(l.recorded, in)
	return &models.Transaction{ID: 1, PortfolioID: in.PortfolioID, Type: in.Type, Ticker: in.Ticker, Amount: in.Amount}, nil
}

func (l *stubLedger) ListTransactions(ctx context.Context, portfolioID int64) ([]*models.Transaction, error) {
	return l.listResult, l.err
}

func (l *stubLedger) CorrectTransaction(ctx context.Context, id int64, c models.TransactionCorrection) (*models.Transaction, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.corrected = append(l.corrected, c)
	return &models.Transaction{ID: id}, nil
}

// testEnv is a server wired to real services over in-memory stores
type testEnv struct {
	server     *Server
	portfolios *memPortfolios
	balances   *memBalances
	coins      *memCoins
	history    *memHistory
	provider   *stubProvider
	ledger     *stubLedger
	redis      *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	coinCache := storage.NewCoinCache(storage.NewRedisCacheFromClient(client), time.Minute)

	env := &testEnv{
		portfolios: &memPortfolios{ids: map[int64]bool{1: true}},
		balances: &memBalances{rows: map[int64][]*models.Balance{
			1: {{PortfolioID: 1, Ticker: "BTC", Amount: 0.5}},
		}},
		coins:   &memCoins{coins: map[string]*models.CoinMetadata{}},
		history: &memHistory{},
		provider: &stubProvider{coins: []*models.CoinMetadata{
			{Symbol: "btc", CoinID: "bitcoin", Name: "Bitcoin", CurrentPrice: 70000},
		}},
		ledger: &stubLedger{},
		redis:  mr,
	}

	monitor := service.NewPerformanceMonitor(time.Second)
	prices := service.NewPriceService(env.coins, coinCache, env.provider, monitor)
	valuation := service.NewValuationService(env.balances, prices)
	history := service.NewHistoryService(env.history)
	demo := service.NewDemoData()
	scheduler := service.NewSchedulerService(&config.CronConfig{
		Secret:            testSecret,
		TargetExecutionMs: 5000,
		MinBatchSize:      2,
		MaxBatchSize:      50,
		BatchFraction:     0.05,
	}, env.portfolios, prices, valuation, history, noopChainer{}, monitor)

	env.server = NewServer(&config.ServerConfig{Host: "127.0.0.1", Port: "0", RequestsPerSec: 1000}, Dependencies{
		Scheduler:  scheduler,
		History:    history,
		Balances:   service.NewBalanceService(env.balances, prices),
		Valuation:  valuation,
		Coins:      prices,
		Ledger:     env.ledger,
		Charts:     service.NewChartService(history, demo, time.UTC),
		Portfolios: env.portfolios,
		Demo:       demo,
		Monitor:    monitor,
		Checks: map[string]HealthCheck{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		},
	})
	return env
}

func (e *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.server.router.ServeHTTP(w, req)
	return w
}
