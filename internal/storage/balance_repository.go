package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/folio-tracker/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BalanceRepository handles portfolio balance rows
type BalanceRepository struct {
	db *PostgresDB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *PostgresDB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// ListByPortfolio returns every balance row of a portfolio ordered by ticker
func (r *BalanceRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Balance, error) {
	query := `
		SELECT portfolio_id, ticker, amount, borrowed, in_collateral, updated_at
		FROM portfolio_balances
		WHERE portfolio_id = $1
		ORDER BY ticker
	`

	rows, err := r.db.Pool().Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []*models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.PortfolioID, &b.Ticker, &b.Amount, &b.Borrowed, &b.InCollateral, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		balances = append(balances, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}

	return balances, nil
}

// BalanceDelta is an additive change to one balance row
type BalanceDelta struct {
	PortfolioID int64
	Ticker      string
	Amount      decimal.Decimal
}

const applyDeltaSQL = `
	INSERT INTO portfolio_balances (portfolio_id, ticker, amount, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (portfolio_id, ticker)
	DO UPDATE SET
		amount = portfolio_balances.amount + EXCLUDED.amount,
		updated_at = EXCLUDED.updated_at
`

// applyDeltas writes every delta inside tx. A delta that would leave a
// negative amount fails with *InsufficientBalanceError.
func applyDeltas(ctx context.Context, tx pgx.Tx, deltas []BalanceDelta, now time.Time) error {
	for _, d := range deltas {
		ticker := models.NormalizeTicker(d.Ticker)

		if d.Amount.IsNegative() {
			// A missing row leaves available invalid, which reads as zero.
			var available decimal.NullDecimal
			err := tx.QueryRow(ctx,
				`SELECT amount FROM portfolio_balances WHERE portfolio_id = $1 AND ticker = $2 FOR UPDATE`,
				d.PortfolioID, ticker).Scan(&available)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("failed to lock balance: %w", err)
			}

			if available.Decimal.Add(d.Amount).IsNegative() {
				return &InsufficientBalanceError{
					PortfolioID: d.PortfolioID,
					Ticker:      ticker,
					Available:   available.Decimal,
					Requested:   d.Amount.Neg(),
				}
			}
		}

		if _, err := tx.Exec(ctx, applyDeltaSQL, d.PortfolioID, ticker, d.Amount, now); err != nil {
			return fmt.Errorf("failed to apply balance delta: %w", err)
		}
	}
	return nil
}

// InsufficientBalanceError reports an attempt to remove more than is held
type InsufficientBalanceError struct {
	PortfolioID int64
	Ticker      string
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance in portfolio %d: available %s, requested %s",
		e.Ticker, e.PortfolioID, e.Available, e.Requested)
}
