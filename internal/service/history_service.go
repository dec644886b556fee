package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/types"
)

// SaveSnapshotInput is one valuation to record
type SaveSnapshotInput struct {
	PortfolioID int64
	TotalValue  float64
	Period      types.Period
	Timestamp   time.Time // zero means now
}

// PruneResult reports rows deleted per period
type PruneResult struct {
	Deleted map[types.Period]int64 `json:"deleted"`
}

// HistoryService records and reads portfolio valuation snapshots
type HistoryService struct {
	repo HistoryRepository
	now  func() time.Time
}

// NewHistoryService creates a new history service
func NewHistoryService(repo HistoryRepository) *HistoryService {
	return &HistoryService{
		repo: repo,
		now:  time.Now,
	}
}

// SaveSnapshot records one valuation. A CURRENT snapshot replaces the
// portfolio's previous CURRENT row; every other period is appended.
// The delete and insert are separate statements, so a reader may briefly
// see no CURRENT row.
func (s *HistoryService) SaveSnapshot(ctx context.Context, in SaveSnapshotInput) error {
	if !in.Period.IsValid() {
		return apperrors.NewInvalidPeriodError(string(in.Period))
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	if in.Period == types.PeriodCurrent {
		if err := s.repo.DeleteCurrent(ctx, in.PortfolioID); err != nil {
			return apperrors.NewDatabaseError("delete current snapshot", err)
		}
	}

	err := s.repo.Insert(ctx, &models.HistorySnapshot{
		PortfolioID: in.PortfolioID,
		Period:      in.Period,
		TotalValue:  in.TotalValue,
		Timestamp:   ts.UTC(),
	})
	if err != nil {
		return apperrors.NewDatabaseError("insert snapshot", err)
	}
	return nil
}

// AppendSnapshots inserts one row per period in a single write.
// CURRENT is not accepted here since it needs replace semantics.
func (s *HistoryService) AppendSnapshots(ctx context.Context, portfolioID int64, totalValue float64, periods []types.Period, ts time.Time) error {
	if len(periods) == 0 {
		return nil
	}
	if ts.IsZero() {
		ts = s.now()
	}

	rows := make([]*models.HistorySnapshot, 0, len(periods))
	for _, p := range periods {
		if !p.IsValid() || p == types.PeriodCurrent {
			return apperrors.NewInvalidPeriodError(string(p))
		}
		rows = append(rows, &models.HistorySnapshot{
			PortfolioID: portfolioID,
			Period:      p,
			TotalValue:  totalValue,
			Timestamp:   ts.UTC(),
		})
	}

	if err := s.repo.Insert(ctx, rows...); err != nil {
		return apperrors.NewDatabaseError("insert snapshots", err)
	}
	return nil
}

// DeleteCurrent removes the portfolio's CURRENT row if present
func (s *HistoryService) DeleteCurrent(ctx context.Context, portfolioID int64) error {
	if err := s.repo.DeleteCurrent(ctx, portfolioID); err != nil {
		return apperrors.NewDatabaseError("delete current snapshot", err)
	}
	return nil
}

// Query returns snapshots at or after start in ascending time order
func (s *HistoryService) Query(ctx context.Context, portfolioID int64, period types.Period, start time.Time) ([]*models.HistorySnapshot, error) {
	if !period.IsValid() {
		return nil, apperrors.NewInvalidPeriodError(string(period))
	}

	rows, err := s.repo.Query(ctx, portfolioID, period, start.UTC())
	if err != nil {
		return nil, apperrors.NewDatabaseError("query snapshots", err)
	}
	return rows, nil
}

// Prune deletes rows older than each rule's retention window. Rules run in
// order and the first failure aborts the rest.
func (s *HistoryService) Prune(ctx context.Context, rules []types.RetentionRule) (*PruneResult, error) {
	now := s.now().UTC()
	result := &PruneResult{Deleted: make(map[types.Period]int64, len(rules))}
	logger := logging.FromContext(ctx)

	for _, rule := range rules {
		if !rule.Period.IsValid() || rule.Period == types.PeriodCurrent {
			return result, apperrors.NewInvalidPeriodError(string(rule.Period))
		}
		if rule.RetentionDays <= 0 {
			return result, apperrors.NewInvalidParameterError("retentionDays",
				fmt.Sprintf("must be positive for %s", rule.Period))
		}

		cutoff := now.AddDate(0, 0, -rule.RetentionDays)
		n, err := s.repo.DeleteOlderThan(ctx, rule.Period, cutoff)
		if err != nil {
			return result, apperrors.NewDatabaseError(fmt.Sprintf("prune %s", rule.Period), err)
		}
		result.Deleted[rule.Period] = n

		logger.WithFields(map[string]interface{}{
			"period":  rule.Period,
			"cutoff":  cutoff,
			"deleted": n,
		}).Info("pruned snapshots")
	}

	return result, nil
}
