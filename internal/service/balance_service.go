package service

import (
	"context"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/models"
)

// CoinLookup resolves prices and metadata for tickers
type CoinLookup interface {
	GetPrice(ctx context.Context, ticker string) (float64, error)
	GetMetadata(ctx context.Context, ticker string) (*models.CoinMetadata, error)
}

// BalancesView is a portfolio's holdings ready for display
type BalancesView struct {
	Balances []*models.EnrichedBalance `json:"balances"`
	IsEmpty  bool                      `json:"isEmpty"`
}

// BalanceService reads holdings and decorates them with coin metadata
type BalanceService struct {
	balances BalanceRepository
	coins    CoinLookup
}

// NewBalanceService creates a new balance service
func NewBalanceService(balances BalanceRepository, coins CoinLookup) *BalanceService {
	return &BalanceService{
		balances: balances,
		coins:    coins,
	}
}

// GetBalances loads every balance of a portfolio. Metadata is looked up per
// row; a failed or missing lookup yields a default row instead of an error.
func (s *BalanceService) GetBalances(ctx context.Context, portfolioID int64) (*BalancesView, error) {
	rows, err := s.balances.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list balances", err)
	}

	view := &BalancesView{
		Balances: make([]*models.EnrichedBalance, 0, len(rows)),
		IsEmpty:  models.AllZero(rows),
	}
	for _, row := range rows {
		view.Balances = append(view.Balances, s.enrich(ctx, row))
	}
	return view, nil
}

func (s *BalanceService) enrich(ctx context.Context, b *models.Balance) *models.EnrichedBalance {
	out := &models.EnrichedBalance{
		Balance: *b,
		Name:    b.Ticker,
	}

	meta, err := s.coins.GetMetadata(ctx, b.Ticker)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"portfolio_id": b.PortfolioID,
			"ticker":       b.Ticker,
		}).Warn("metadata lookup failed, using defaults")
		return out
	}
	if meta == nil {
		return out
	}

	if meta.Name != "" {
		out.Name = meta.Name
	}
	out.LogoURL = meta.LogoURL
	out.CurrentPrice = meta.CurrentPrice
	out.PriceChange24h = meta.PriceChange24h
	out.Value = b.Amount * meta.CurrentPrice
	return out
}
