package models

import (
	"time"

	"github.com/folio-tracker/internal/types"
)

// HistorySnapshot is one stored portfolio valuation
type HistorySnapshot struct {
	PortfolioID int64        `json:"portfolio_id" db:"portfolio_id"`
	Period      types.Period `json:"period" db:"period"`
	TotalValue  float64      `json:"total_value" db:"total_value"`
	Timestamp   time.Time    `json:"timestamp" db:"timestamp"`
}
