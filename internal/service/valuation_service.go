package service

import (
	"context"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/models"
)

// ValuationService computes the total USD value of a portfolio
type ValuationService struct {
	balances BalanceRepository
	coins    CoinLookup
}

// NewValuationService creates a new valuation service
func NewValuationService(balances BalanceRepository, coins CoinLookup) *ValuationService {
	return &ValuationService{
		balances: balances,
		coins:    coins,
	}
}

// ValuePortfolio sums amount × price over the portfolio's balances.
// An empty portfolio is worth 0 without any price lookup, and a coin with
// no known price contributes 0.
func (s *ValuationService) ValuePortfolio(ctx context.Context, portfolioID int64) (float64, error) {
	rows, err := s.balances.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return 0, apperrors.NewDatabaseError("list balances", err)
	}
	if models.AllZero(rows) {
		return 0, nil
	}

	var total float64
	for _, b := range rows {
		if b.Amount == 0 {
			continue
		}
		if models.IsStablecoin(b.Ticker) {
			total += b.Amount
			continue
		}

		price, err := s.coins.GetPrice(ctx, b.Ticker)
		if err != nil {
			return 0, err
		}
		total += b.Amount * price
	}
	return total, nil
}
