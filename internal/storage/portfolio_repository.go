package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/folio-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrPortfolioNotFound is returned when no portfolio row matches
var ErrPortfolioNotFound = errors.New("portfolio not found")

// PortfolioRepository handles portfolio reads needed by valuation
type PortfolioRepository struct {
	db *PostgresDB
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *PostgresDB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// GetByID retrieves a portfolio by ID
func (r *PortfolioRepository) GetByID(ctx context.Context, id int64) (*models.Portfolio, error) {
	query := `
		SELECT id, user_id, name, kind, is_active, description, created_at
		FROM portfolios
		WHERE id = $1
	`

	var p models.Portfolio
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Kind,
		&p.IsActive,
		&p.Description,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return &p, nil
}

// Exists reports whether a portfolio with the given id exists
func (r *PortfolioRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM portfolios WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check portfolio existence: %w", err)
	}
	return exists, nil
}

// ListActiveIDs returns the ids of all active portfolios in ascending order.
// The stable order is what lets chained batches address slices by offset.
func (r *PortfolioRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id FROM portfolios WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active portfolios: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio ids: %w", err)
	}

	return ids, nil
}
