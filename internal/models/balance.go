package models

import "time"

// Balance is the holding of one coin in one portfolio.
// (PortfolioID, Ticker) is unique; writes are upserts on that pair.
type Balance struct {
	PortfolioID  int64     `json:"portfolio_id" db:"portfolio_id"`
	Ticker       string    `json:"ticker" db:"ticker"`
	Amount       float64   `json:"amount" db:"amount"`
	Borrowed     float64   `json:"borrowed" db:"borrowed"`
	InCollateral float64   `json:"in_collateral" db:"in_collateral"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsZero reports whether the balance holds, owes and locks nothing.
func (b *Balance) IsZero() bool {
	return b.Amount == 0 && b.Borrowed == 0 && b.InCollateral == 0
}

// AllZero reports whether a portfolio with these balances is empty.
func AllZero(balances []*Balance) bool {
	for _, b := range balances {
		if !b.IsZero() {
			return false
		}
	}
	return true
}

// EnrichedBalance is a balance decorated with coin metadata for display
type EnrichedBalance struct {
	Balance
	Name           string  `json:"name"`
	LogoURL        string  `json:"logo_url"`
	CurrentPrice   float64 `json:"current_price"`
	PriceChange24h float64 `json:"price_change_24h"`
	Value          float64 `json:"value"`
}
