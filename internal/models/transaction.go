package models

import (
	"time"

	"github.com/folio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// Transaction is an immutable ledger entry affecting one portfolio, or two for
// transfers. Only Amount, Price, Total and Notes may be corrected after creation.
type Transaction struct {
	ID                int64                 `json:"id" db:"id"`
	PortfolioID       int64                 `json:"portfolio_id" db:"portfolio_id"`
	Type              types.TransactionType `json:"type" db:"type"`
	Ticker            string                `json:"ticker" db:"ticker"`
	Amount            decimal.Decimal       `json:"amount" db:"amount"`
	Price             decimal.NullDecimal   `json:"price" db:"price"`
	Total             decimal.NullDecimal   `json:"total" db:"total"`
	PaymentTicker     *string               `json:"payment_ticker,omitempty" db:"payment_ticker"`
	TargetPortfolioID *int64                `json:"target_portfolio_id,omitempty" db:"target_portfolio_id"`
	Notes             *string               `json:"notes,omitempty" db:"notes"`
	ExecutedAt        time.Time             `json:"executed_at" db:"executed_at"`
	CreatedAt         time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at" db:"updated_at"`
}

// TransactionCorrection holds the whitelisted mutable fields; nil means unchanged.
type TransactionCorrection struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Price  *decimal.Decimal `json:"price,omitempty"`
	Total  *decimal.Decimal `json:"total,omitempty"`
	Notes  *string          `json:"notes,omitempty"`
}

// IsEmpty reports whether the correction changes nothing.
func (c *TransactionCorrection) IsEmpty() bool {
	return c.Amount == nil && c.Price == nil && c.Total == nil && c.Notes == nil
}
