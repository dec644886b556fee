package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepository_QueryAscending(t *testing.T) {
	db := openTestPostgres(t)
	portfolioID := createTestPortfolio(t, db)
	repo := NewHistoryRepository(db)
	ctx := testContext(t)

	base := time.Now().UTC().Truncate(time.Hour).Add(-10 * time.Hour)
	var snaps []*models.HistorySnapshot
	for i := 0; i < 5; i++ {
		snaps = append(snaps, &models.HistorySnapshot{
			PortfolioID: portfolioID,
			Period:      types.PeriodHour1,
			TotalValue:  float64(1000 + i),
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, repo.Insert(ctx, snaps[4], snaps[2], snaps[0], snaps[3], snaps[1]))

	got, err := repo.Query(ctx, portfolioID, types.PeriodHour1, base.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := range got {
		assert.Equal(t, float64(1000+i), got[i].TotalValue)
		assert.Equal(t, types.PeriodHour1, got[i].Period)
	}

	got, err = repo.Query(ctx, portfolioID, types.PeriodHour1, snaps[2].Timestamp)
	require.NoError(t, err)
	assert.Len(t, got, 3, "start bound is inclusive")

	got, err = repo.Query(ctx, portfolioID, types.PeriodHour4, base)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryRepository_DeleteCurrent(t *testing.T) {
	db := openTestPostgres(t)
	portfolioID := createTestPortfolio(t, db)
	repo := NewHistoryRepository(db)
	ctx := testContext(t)

	now := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, &models.HistorySnapshot{PortfolioID: portfolioID, Period: types.PeriodCurrent, TotalValue: 1, Timestamp: now}))
	require.NoError(t, repo.Insert(ctx, &models.HistorySnapshot{PortfolioID: portfolioID, Period: types.PeriodMinute15, TotalValue: 1, Timestamp: now}))

	require.NoError(t, repo.DeleteCurrent(ctx, portfolioID))
	// deleting again is a no-op
	require.NoError(t, repo.DeleteCurrent(ctx, portfolioID))

	current, err := repo.Query(ctx, portfolioID, types.PeriodCurrent, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, current)

	quarter, err := repo.Query(ctx, portfolioID, types.PeriodMinute15, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, quarter, 1, "other periods are untouched")
}

func TestHistoryRepository_DeleteOlderThan(t *testing.T) {
	db := openTestPostgres(t)
	portfolioID := createTestPortfolio(t, db)
	repo := NewHistoryRepository(db)
	ctx := testContext(t)

	now := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx,
		&models.HistorySnapshot{PortfolioID: portfolioID, Period: types.PeriodMinute15, TotalValue: 1, Timestamp: now.Add(-72 * time.Hour)},
		&models.HistorySnapshot{PortfolioID: portfolioID, Period: types.PeriodMinute15, TotalValue: 2, Timestamp: now.Add(-time.Hour)},
		&models.HistorySnapshot{PortfolioID: portfolioID, Period: types.PeriodHour1, TotalValue: 3, Timestamp: now.Add(-72 * time.Hour)},
	))

	deleted, err := repo.DeleteOlderThan(ctx, types.PeriodMinute15, now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	left, err := repo.Query(ctx, portfolioID, types.PeriodMinute15, now.Add(-100*time.Hour))
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 2.0, left[0].TotalValue)

	hourly, err := repo.Query(ctx, portfolioID, types.PeriodHour1, now.Add(-100*time.Hour))
	require.NoError(t, err)
	assert.Len(t, hourly, 1, "pruning one period leaves the others")
}

func TestCoinRepository_InsertAndUpdate(t *testing.T) {
	db := openTestPostgres(t)
	repo := NewCoinRepository(db)
	ctx := testContext(t)

	symbol := "TST" + time.Now().Format("150405")
	coinID := "test-coin-" + symbol
	t.Cleanup(func() {
		_, _ = db.Pool().Exec(testContext(t), `DELETE FROM coin_metadata WHERE symbol = $1`, symbol)
	})

	rank := 9999
	require.NoError(t, repo.InsertBatch(ctx, []*models.CoinMetadata{
		{Symbol: symbol, CoinID: coinID, Name: "Test Coin", CurrentPrice: 1.25, MarketCapRank: &rank},
	}))

	symbols, ids, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	assert.True(t, symbols[symbol])
	assert.True(t, ids[coinID])

	// a duplicate insert is skipped rather than failing
	require.NoError(t, repo.InsertBatch(ctx, []*models.CoinMetadata{{Symbol: symbol, CoinID: coinID, Name: "dup"}}))

	require.NoError(t, repo.UpdateMarketData(ctx, []*models.CoinMetadata{
		{Symbol: symbol, CoinID: coinID, CurrentPrice: 2.5, PriceChange24h: -3.2},
	}))

	coin, err := repo.GetBySymbol(ctx, symbol)
	require.NoError(t, err)
	require.NotNil(t, coin)
	assert.Equal(t, "Test Coin", coin.Name)
	assert.Equal(t, 2.5, coin.CurrentPrice)
	assert.Equal(t, -3.2, coin.PriceChange24h)
	assert.Nil(t, coin.MarketCapRank)

	missing, err := repo.GetBySymbol(ctx, "NOPE-"+symbol)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionRepository_LedgerDeltas(t *testing.T) {
	db := openTestPostgres(t)
	source := createTestPortfolio(t, db)
	target := createTestPortfolio(t, db)
	txRepo := NewTransactionRepository(db)
	balances := NewBalanceRepository(db)
	ctx := testContext(t)

	buy := &models.Transaction{
		PortfolioID: source,
		Type:        types.TxBuy,
		Ticker:      "btc",
		Amount:      decimal.RequireFromString("0.5"),
	}
	require.NoError(t, txRepo.Create(ctx, buy, []BalanceDelta{{PortfolioID: source, Ticker: "BTC", Amount: buy.Amount}}))
	assert.NotZero(t, buy.ID)

	oversell := &models.Transaction{
		PortfolioID: source,
		Type:        types.TxSell,
		Ticker:      "BTC",
		Amount:      decimal.RequireFromString("0.6"),
	}
	err := txRepo.Create(ctx, oversell, []BalanceDelta{{PortfolioID: source, Ticker: "BTC", Amount: oversell.Amount.Neg()}})
	var insufficient *InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, "BTC", insufficient.Ticker)

	transfer := &models.Transaction{
		PortfolioID:       source,
		Type:              types.TxTransfer,
		Ticker:            "BTC",
		Amount:            decimal.RequireFromString("0.2"),
		TargetPortfolioID: &target,
	}
	require.NoError(t, txRepo.Create(ctx, transfer, []BalanceDelta{
		{PortfolioID: source, Ticker: "BTC", Amount: transfer.Amount.Neg()},
		{PortfolioID: target, Ticker: "BTC", Amount: transfer.Amount},
	}))

	src, err := balances.ListByPortfolio(ctx, source)
	require.NoError(t, err)
	require.Len(t, src, 1)
	assert.InDelta(t, 0.3, src[0].Amount, 1e-12)

	dst, err := balances.ListByPortfolio(ctx, target)
	require.NoError(t, err)
	require.Len(t, dst, 1)
	assert.InDelta(t, 0.2, dst[0].Amount, 1e-12)

	corrected, err := txRepo.Correct(ctx, buy.ID, func(tx *models.Transaction) ([]BalanceDelta, error) {
		newAmount := decimal.RequireFromString("0.7")
		delta := newAmount.Sub(tx.Amount)
		tx.Amount = newAmount
		return []BalanceDelta{{PortfolioID: tx.PortfolioID, Ticker: tx.Ticker, Amount: delta}}, nil
	})
	require.NoError(t, err)
	assert.True(t, corrected.Amount.Equal(decimal.RequireFromString("0.7")))

	src, err = balances.ListByPortfolio(ctx, source)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, src[0].Amount, 1e-12)

	history, err := txRepo.ListByPortfolio(ctx, target)
	require.NoError(t, err)
	require.Len(t, history, 1, "transfers are listed on the target too")

	_, err = txRepo.GetByID(ctx, -1)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestPortfolioRepository_ListActiveIDs(t *testing.T) {
	db := openTestPostgres(t)
	first := createTestPortfolio(t, db)
	second := createTestPortfolio(t, db)
	repo := NewPortfolioRepository(db)
	ctx := testContext(t)

	_, err := db.Pool().Exec(ctx, `UPDATE portfolios SET is_active = FALSE WHERE id = $1`, second)
	require.NoError(t, err)

	ids, err := repo.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, first)
	assert.NotContains(t, ids, second)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i], "ids are ascending")
	}

	p, err := repo.GetByID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, types.KindSpot, p.Kind)
	assert.True(t, p.IsActive)

	_, err = repo.GetByID(ctx, -1)
	assert.ErrorIs(t, err, ErrPortfolioNotFound)

	exists, err := repo.Exists(ctx, first)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTransactionRepository_ExactExit(t *testing.T) {
	db := openTestPostgres(t)
	portfolioID := createTestPortfolio(t, db)
	txRepo := NewTransactionRepository(db)
	balances := NewBalanceRepository(db)
	ctx := testContext(t)

	for _, amount := range []string{"0.7", "0.1"} {
		buy := &models.Transaction{PortfolioID: portfolioID, Type: types.TxBuy, Ticker: "BTC", Amount: decimal.RequireFromString(amount)}
		require.NoError(t, txRepo.Create(ctx, buy, []BalanceDelta{{PortfolioID: portfolioID, Ticker: "BTC", Amount: buy.Amount}}))
	}

	sell := &models.Transaction{PortfolioID: portfolioID, Type: types.TxSell, Ticker: "BTC", Amount: decimal.RequireFromString("0.8")}
	require.NoError(t, txRepo.Create(ctx, sell, []BalanceDelta{{PortfolioID: portfolioID, Ticker: "BTC", Amount: sell.Amount.Neg()}}))

	got, err := balances.ListByPortfolio(ctx, portfolioID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Amount, "a full exit leaves no residue")
}
