package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/storage"
	"github.com/folio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

// In-memory repositories for service tests

type fakePortfolioRepo struct {
	portfolios map[int64]*models.Portfolio
	err        error
}

func newFakePortfolioRepo(ids ...int64) *fakePortfolioRepo {
	m := &fakePortfolioRepo{portfolios: make(map[int64]*models.Portfolio)}
	for _, id := range ids {
		m.portfolios[id] = &models.Portfolio{ID: id, Name: "p", Kind: types.KindSpot, IsActive: true}
	}
	return m
}

func (m *fakePortfolioRepo) GetByID(ctx context.Context, id int64) (*models.Portfolio, error) {
	if m.err != nil {
		return nil, m.err
	}
	if p, ok := m.portfolios[id]; ok {
		return p, nil
	}
	return nil, storage.ErrPortfolioNotFound
}

func (m *fakePortfolioRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.portfolios[id]
	return ok, nil
}

func (m *fakePortfolioRepo) ListActiveIDs(ctx context.Context) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	var ids []int64
	for id, p := range m.portfolios {
		if p.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type fakeBalanceRepo struct {
	mu       sync.Mutex
	balances map[int64][]*models.Balance
	err      error
}

func newFakeBalanceRepo() *fakeBalanceRepo {
	return &fakeBalanceRepo{balances: make(map[int64][]*models.Balance)}
}

func (m *fakeBalanceRepo) set(portfolioID int64, ticker string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[portfolioID] = append(m.balances[portfolioID], &models.Balance{
		PortfolioID: portfolioID,
		Ticker:      ticker,
		Amount:      amount,
	})
}

func (m *fakeBalanceRepo) ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.balances[portfolioID], nil
}

type fakeCoinRepo struct {
	mu        sync.Mutex
	coins     map[string]*models.CoinMetadata
	updated   []*models.CoinMetadata
	inserted  []*models.CoinMetadata
	lookups   int
	getErr    error
	keysErr   error
	updateErr error
	listErr   error
}

func newFakeCoinRepo(coins ...*models.CoinMetadata) *fakeCoinRepo {
	m := &fakeCoinRepo{coins: make(map[string]*models.CoinMetadata)}
	for _, c := range coins {
		m.coins[c.Symbol] = c
	}
	return m
}

func (m *fakeCoinRepo) GetBySymbol(ctx context.Context, symbol string) (*models.CoinMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.coins[symbol]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *fakeCoinRepo) ListAll(ctx context.Context) ([]*models.CoinMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*models.CoinMetadata, 0, len(m.coins))
	for _, c := range m.coins {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *fakeCoinRepo) ListKeys(ctx context.Context) (map[string]bool, map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keysErr != nil {
		return nil, nil, m.keysErr
	}
	symbols, ids := make(map[string]bool), make(map[string]bool)
	for _, c := range m.coins {
		symbols[c.Symbol] = true
		ids[c.CoinID] = true
	}
	return symbols, ids, nil
}

func (m *fakeCoinRepo) UpdateMarketData(ctx context.Context, coins []*models.CoinMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = append(m.updated, coins...)
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

func (m *fakeCoinRepo) InsertBatch(ctx context.Context, coins []*models.CoinMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, coins...)
	for _, c := range coins {
		m.coins[c.Symbol] = c
	}
	return nil
}

type fakeCoinCache struct {
	mu          sync.Mutex
	coins       map[string]*models.CoinMetadata
	list        []*models.CoinMetadata
	putAllErr   error
	invalidated bool
}

func newFakeCoinCache() *fakeCoinCache {
	return &fakeCoinCache{coins: make(map[string]*models.CoinMetadata)}
}

func (m *fakeCoinCache) Get(ctx context.Context, symbol string) (*models.CoinMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coins[symbol], nil
}

func (m *fakeCoinCache) GetAll(ctx context.Context) ([]*models.CoinMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list, nil
}

func (m *fakeCoinCache) Put(ctx context.Context, coin *models.CoinMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coins[coin.Symbol] = coin
	return nil
}

func (m *fakeCoinCache) PutAll(ctx context.Context, coins []*models.CoinMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putAllErr != nil {
		return m.putAllErr
	}
	m.list = coins
	for _, c := range coins {
		m.coins[c.Symbol] = c
	}
	return nil
}

func (m *fakeCoinCache) InvalidateAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = true
	m.list = nil
	m.coins = make(map[string]*models.CoinMetadata)
	return nil
}

type fakeProvider struct {
	coins []*models.CoinMetadata
	err   error
}

func (m *fakeProvider) FetchMarkets(ctx context.Context) ([]*models.CoinMetadata, error) {
	return m.coins, m.err
}

type fakeHistoryRepo struct {
	mu        sync.Mutex
	rows      []*models.HistorySnapshot
	inserts   int
	insertErr error
	deleteErr error
	pruneErr  map[types.Period]error
	pruned    []types.Period
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{pruneErr: make(map[types.Period]error)}
}

func (m *fakeHistoryRepo) Insert(ctx context.Context, snapshots ...*models.HistorySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserts++
	m.rows = append(m.rows, snapshots...)
	return nil
}

func (m *fakeHistoryRepo) DeleteCurrent(ctx context.Context, portfolioID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.PortfolioID == portfolioID && r.Period == types.PeriodCurrent {
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return nil
}

func (m *fakeHistoryRepo) Query(ctx context.Context, portfolioID int64, period types.Period, start time.Time) ([]*models.HistorySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.HistorySnapshot{}
	for _, r := range m.rows {
		if r.PortfolioID == portfolioID && r.Period == period && !r.Timestamp.Before(start) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *fakeHistoryRepo) DeleteOlderThan(ctx context.Context, period types.Period, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pruneErr[period]; err != nil {
		return 0, err
	}
	m.pruned = append(m.pruned, period)

	var n int64
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.Period == period && r.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

func (m *fakeHistoryRepo) count(portfolioID int64, period types.Period) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.PortfolioID == portfolioID && r.Period == period {
			n++
		}
	}
	return n
}

// fakeTransactionRepo applies deltas to an in-memory balance table with
// the same oversell rule as the Postgres repository
type fakeTransactionRepo struct {
	mu       sync.Mutex
	txs      map[int64]*models.Transaction
	balances map[balanceKey]decimal.Decimal
	nextID   int64
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{
		txs:      make(map[int64]*models.Transaction),
		balances: make(map[balanceKey]decimal.Decimal),
	}
}

func (m *fakeTransactionRepo) balance(portfolioID int64, ticker string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[balanceKey{portfolioID, ticker}]
}

func (m *fakeTransactionRepo) apply(deltas []storage.BalanceDelta) error {
	next := make(map[balanceKey]decimal.Decimal, len(m.balances))
	for k, v := range m.balances {
		next[k] = v
	}
	for _, d := range deltas {
		k := balanceKey{d.PortfolioID, models.NormalizeTicker(d.Ticker)}
		if v := next[k].Add(d.Amount); v.IsNegative() {
			return &storage.InsufficientBalanceError{
				PortfolioID: d.PortfolioID,
				Ticker:      k.ticker,
				Available:   next[k],
				Requested:   d.Amount.Neg(),
			}
		}
		next[k] = next[k].Add(d.Amount)
	}
	m.balances = next
	return nil
}

func (m *fakeTransactionRepo) Create(ctx context.Context, t *models.Transaction, deltas []storage.BalanceDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.apply(deltas); err != nil {
		return err
	}
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.txs[t.ID] = &cp
	return nil
}

func (m *fakeTransactionRepo) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, storage.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *fakeTransactionRepo) ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Transaction{}
	for _, t := range m.txs {
		if t.PortfolioID == portfolioID || (t.TargetPortfolioID != nil && *t.TargetPortfolioID == portfolioID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *fakeTransactionRepo) Correct(ctx context.Context, id int64, fn storage.CorrectionFunc) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.txs[id]
	if !ok {
		return nil, storage.ErrTransactionNotFound
	}
	cp := *stored
	deltas, err := fn(&cp)
	if err != nil {
		return nil, err
	}
	if err := m.apply(deltas); err != nil {
		return nil, err
	}
	m.txs[id] = &cp
	out := cp
	return &out, nil
}

type fakeChainer struct {
	mu       sync.Mutex
	requests []ChainRequest
	err      error
}

func (m *fakeChainer) Chain(ctx context.Context, next ChainRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, next)
	return m.err
}

func (m *fakeChainer) calls() []ChainRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChainRequest(nil), m.requests...)
}

type fakeRefresher struct {
	calls int
	err   error
}

func (m *fakeRefresher) RefreshAll(ctx context.Context) (*RefreshResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &RefreshResult{}, nil
}

type fakeValuer struct {
	values map[int64]float64
	fail   map[int64]error
}

func (m *fakeValuer) ValuePortfolio(ctx context.Context, portfolioID int64) (float64, error) {
	if err := m.fail[portfolioID]; err != nil {
		return 0, err
	}
	return m.values[portfolioID], nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(v int) *int { return &v }

func snapshotAt(portfolioID int64, period types.Period, ts time.Time) *models.HistorySnapshot {
	return &models.HistorySnapshot{PortfolioID: portfolioID, Period: period, TotalValue: 1, Timestamp: ts}
}
