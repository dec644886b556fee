// Package service implements valuation, history, scheduling and ledger logic.
package service

import (
	"context"
	"time"

	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/storage"
	"github.com/folio-tracker/internal/types"
)

// PortfolioRepository interface for portfolio lookups
type PortfolioRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Portfolio, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

// BalanceRepository interface for balance reads
type BalanceRepository interface {
	ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Balance, error)
}

// CoinRepository interface for stored coin metadata
type CoinRepository interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.CoinMetadata, error)
	ListAll(ctx context.Context) ([]*models.CoinMetadata, error)
	ListKeys(ctx context.Context) (symbols map[string]bool, coinIDs map[string]bool, err error)
	UpdateMarketData(ctx context.Context, coins []*models.CoinMetadata) error
	InsertBatch(ctx context.Context, coins []*models.CoinMetadata) error
}

// CoinCache interface for the optional metadata cache. A nil coin or list
// means a miss.
type CoinCache interface {
	Get(ctx context.Context, symbol string) (*models.CoinMetadata, error)
	GetAll(ctx context.Context) ([]*models.CoinMetadata, error)
	Put(ctx context.Context, coin *models.CoinMetadata) error
	PutAll(ctx context.Context, coins []*models.CoinMetadata) error
	InvalidateAll(ctx context.Context) error
}

// MarketDataProvider interface for the external market listing
type MarketDataProvider interface {
	FetchMarkets(ctx context.Context) ([]*models.CoinMetadata, error)
}

// HistoryRepository interface for snapshot storage. Implemented by both the
// Postgres and the ClickHouse history repositories.
type HistoryRepository interface {
	Insert(ctx context.Context, snapshots ...*models.HistorySnapshot) error
	DeleteCurrent(ctx context.Context, portfolioID int64) error
	Query(ctx context.Context, portfolioID int64, period types.Period, start time.Time) ([]*models.HistorySnapshot, error)
	DeleteOlderThan(ctx context.Context, period types.Period, cutoff time.Time) (int64, error)
}

// TransactionRepository interface for ledger persistence
type TransactionRepository interface {
	Create(ctx context.Context, t *models.Transaction, deltas []storage.BalanceDelta) error
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Transaction, error)
	Correct(ctx context.Context, id int64, fn storage.CorrectionFunc) (*models.Transaction, error)
}
