package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/types"
)

// ClickHouseHistoryRepository stores valuation snapshots in ClickHouse.
// It mirrors HistoryRepository so either can back the history service.
type ClickHouseHistoryRepository struct {
	db *ClickHouseDB
}

// NewClickHouseHistoryRepository creates a new ClickHouse history repository
func NewClickHouseHistoryRepository(db *ClickHouseDB) *ClickHouseHistoryRepository {
	return &ClickHouseHistoryRepository{db: db}
}

// Insert appends snapshot rows in a single native batch
func (r *ClickHouseHistoryRepository) Insert(ctx context.Context, snapshots ...*models.HistorySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO portfolio_history (portfolio_id, period, total_value, timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, s := range snapshots {
		if err := batch.Append(s.PortfolioID, string(s.Period), s.TotalValue, s.Timestamp.UTC()); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// DeleteCurrent removes the CURRENT row of a portfolio if present
func (r *ClickHouseHistoryRepository) DeleteCurrent(ctx context.Context, portfolioID int64) error {
	err := r.db.Exec(ctx,
		`DELETE FROM portfolio_history WHERE portfolio_id = ? AND period = ?`,
		portfolioID, string(types.PeriodCurrent))
	if err != nil {
		return fmt.Errorf("failed to delete current snapshot: %w", err)
	}
	return nil
}

// Query returns snapshots with timestamp >= start, ascending by timestamp
func (r *ClickHouseHistoryRepository) Query(ctx context.Context, portfolioID int64, period types.Period, start time.Time) ([]*models.HistorySnapshot, error) {
	query := `
		SELECT portfolio_id, period, total_value, timestamp
		FROM portfolio_history
		WHERE portfolio_id = ? AND period = ? AND timestamp >= ?
		ORDER BY timestamp ASC, inserted_at ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, portfolioID, string(period), start.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*models.HistorySnapshot, 0)
	for rows.Next() {
		var s models.HistorySnapshot
		var p string
		if err := rows.Scan(&s.PortfolioID, &p, &s.TotalValue, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Period = types.Period(p)
		snapshots = append(snapshots, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// DeleteOlderThan removes rows of one period with timestamp before cutoff.
// ClickHouse reports no affected-row count, so rows are counted first.
func (r *ClickHouseHistoryRepository) DeleteOlderThan(ctx context.Context, period types.Period, cutoff time.Time) (int64, error) {
	var count uint64
	err := r.db.Conn().QueryRow(ctx,
		`SELECT count() FROM portfolio_history WHERE period = ? AND timestamp < ?`,
		string(period), cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s snapshots: %w", period, err)
	}
	if count == 0 {
		return 0, nil
	}

	err = r.db.Exec(ctx,
		`DELETE FROM portfolio_history WHERE period = ? AND timestamp < ?`,
		string(period), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s snapshots: %w", period, err)
	}
	return int64(count), nil // #nosec G115 - row counts fit in int64
}
