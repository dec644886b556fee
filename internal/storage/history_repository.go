package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/types"
	"github.com/jackc/pgx/v5"
)

// HistoryRepository stores portfolio valuation snapshots in Postgres
type HistoryRepository struct {
	db *PostgresDB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *PostgresDB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Insert appends snapshot rows. Nothing is deduplicated on write.
func (r *HistoryRepository) Insert(ctx context.Context, snapshots ...*models.HistorySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, []interface{}{s.PortfolioID, string(s.Period), s.TotalValue, s.Timestamp.UTC()})
	}

	_, err := r.db.Pool().CopyFrom(
		ctx,
		pgx.Identifier{"portfolio_history"},
		[]string{"portfolio_id", "period", "total_value", "timestamp"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshots: %w", err)
	}
	return nil
}

// DeleteCurrent removes the CURRENT row of a portfolio if present
func (r *HistoryRepository) DeleteCurrent(ctx context.Context, portfolioID int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`DELETE FROM portfolio_history WHERE portfolio_id = $1 AND period = $2`,
		portfolioID, string(types.PeriodCurrent))
	if err != nil {
		return fmt.Errorf("failed to delete current snapshot: %w", err)
	}
	return nil
}

// Query returns snapshots with timestamp >= start, ascending by timestamp
func (r *HistoryRepository) Query(ctx context.Context, portfolioID int64, period types.Period, start time.Time) ([]*models.HistorySnapshot, error) {
	query := `
		SELECT portfolio_id, period, total_value, timestamp
		FROM portfolio_history
		WHERE portfolio_id = $1 AND period = $2 AND timestamp >= $3
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, portfolioID, string(period), start.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*models.HistorySnapshot, 0)
	for rows.Next() {
		var s models.HistorySnapshot
		var p string
		if err := rows.Scan(&s.PortfolioID, &p, &s.TotalValue, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		s.Period = types.Period(p)
		snapshots = append(snapshots, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return snapshots, nil
}

// DeleteOlderThan removes rows of one period with timestamp before cutoff
func (r *HistoryRepository) DeleteOlderThan(ctx context.Context, period types.Period, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx,
		`DELETE FROM portfolio_history WHERE period = $1 AND timestamp < $2`,
		string(period), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s snapshots: %w", period, err)
	}
	return tag.RowsAffected(), nil
}
