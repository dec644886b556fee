package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/folio-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrTransactionNotFound is returned when no transaction row matches
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionRepository persists ledger entries and their balance effects.
// Every write runs in one database transaction with its balance deltas.
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, portfolio_id, type, ticker, amount, price, total, payment_ticker,
	target_portfolio_id, notes, executed_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID,
		&t.PortfolioID,
		&t.Type,
		&t.Ticker,
		&t.Amount,
		&t.Price,
		&t.Total,
		&t.PaymentTicker,
		&t.TargetPortfolioID,
		&t.Notes,
		&t.ExecutedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a transaction and applies its balance deltas atomically
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction, deltas []BalanceDelta) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = now
	}

	query := `
		INSERT INTO transactions (
			portfolio_id, type, ticker, amount, price, total, payment_ticker,
			target_portfolio_id, notes, executed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		t.PortfolioID,
		string(t.Type),
		models.NormalizeTicker(t.Ticker),
		t.Amount,
		t.Price,
		t.Total,
		t.PaymentTicker,
		t.TargetPortfolioID,
		t.Notes,
		t.ExecutedAt,
		now,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := applyDeltas(ctx, tx, deltas, now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// ListByPortfolio returns the transactions touching a portfolio, newest first
func (r *TransactionRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1 OR target_portfolio_id = $1
		ORDER BY executed_at DESC, id DESC`

	rows, err := r.db.Pool().Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return txs, nil
}

// CorrectionFunc edits a locked transaction in place and returns the
// balance deltas the edit implies.
type CorrectionFunc func(t *models.Transaction) ([]BalanceDelta, error)

// Correct locks a transaction, lets fn edit it and writes the edit together
// with the resulting balance deltas
func (r *TransactionRepository) Correct(ctx context.Context, id int64, fn CorrectionFunc) (*models.Transaction, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	t, err := scanTransaction(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	deltas, err := fn(t)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := `
		UPDATE transactions
		SET amount = $2, price = $3, total = $4, notes = $5, updated_at = $6
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, update, t.ID, t.Amount, t.Price, t.Total, t.Notes, now); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	t.UpdatedAt = now

	if err := applyDeltas(ctx, tx, deltas, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit correction: %w", err)
	}
	return t, nil
}
