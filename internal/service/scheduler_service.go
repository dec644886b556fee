package service

import (
	"context"
	"crypto/subtle"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/folio-tracker/internal/config"
	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/types"
	"golang.org/x/sync/errgroup"
)

// MarketRefresher refreshes stored coin metadata
type MarketRefresher interface {
	RefreshAll(ctx context.Context) (*RefreshResult, error)
}

// PortfolioValuer values a single portfolio
type PortfolioValuer interface {
	ValuePortfolio(ctx context.Context, portfolioID int64) (float64, error)
}

// Chainer triggers the next batch of a scheduler run
type Chainer interface {
	Chain(ctx context.Context, next ChainRequest) error
}

// BatchSizing sizes batches against an execution time budget
type BatchSizing struct {
	TargetMs int64
	Min      int
	Max      int
	Fraction float64
}

// DefaultBatchSizing returns the 5s budget with batches of 2 to 50
func DefaultBatchSizing() BatchSizing {
	return BatchSizing{TargetMs: 5000, Min: 2, Max: 50, Fraction: 0.05}
}

// CalculateBatchSize picks how many portfolios the next batch processes.
// Without a previous timing it takes a fraction of the total; with one it
// scales the minimum by how far under budget the previous batch ran.
func (b BatchSizing) CalculateBatchSize(total int, prevExecutionMs int64) int {
	var size float64
	if prevExecutionMs <= 0 {
		size = math.Ceil(float64(total) * b.Fraction)
	} else {
		size = math.Ceil(float64(b.TargetMs) / float64(prevExecutionMs) * float64(b.Min))
	}

	switch {
	case size < float64(b.Min):
		return b.Min
	case size > float64(b.Max):
		return b.Max
	default:
		return int(size)
	}
}

// DuePeriods returns the periods whose sampling boundary falls on t, plus
// force when it names a period. CURRENT is never listed; it is written on
// every tick.
func DuePeriods(t time.Time, force types.Period) []types.Period {
	t = t.UTC()
	minute, hour := t.Minute(), t.Hour()

	due := map[types.Period]bool{
		types.PeriodMinute15: minute%15 == 0,
		types.PeriodHour1:    minute == 0,
		types.PeriodHour4:    minute == 0 && hour%4 == 0,
		types.PeriodHour24:   minute == 0 && hour == 0,
	}
	if force != "" && force != types.PeriodCurrent && force.IsValid() {
		due[force] = true
	}

	periods := make([]types.Period, 0, len(due))
	for _, p := range types.AllPeriods {
		if due[p] {
			periods = append(periods, p)
		}
	}
	return periods
}

// BatchRequest is one scheduler invocation
type BatchRequest struct {
	Batch      int
	PrevTimeMs int64        // 0 when unknown
	Force      types.Period // "" for none
	Offset     *int         // nil means Batch × batch size
	Tick       time.Time    // zero means now
}

// BatchError is one portfolio's failure within a batch
type BatchError struct {
	PortfolioID int64  `json:"portfolioId"`
	Error       string `json:"error"`
}

// BatchResult is the outcome of one batch
type BatchResult struct {
	Success           bool           `json:"success"`
	TotalPortfolios   int            `json:"totalPortfolios"`
	CurrentBatchSize  int            `json:"currentBatchSize"`
	UpdatedPortfolios int            `json:"updatedPortfolios"`
	RemainingBatches  int            `json:"remainingBatches"`
	Errors            []BatchError   `json:"errors,omitempty"`
	ExecutionTime     int64          `json:"executionTime"`
	Batch             int            `json:"batch"`
	Offset            int            `json:"offset"`
	Periods           []types.Period `json:"periods"`
	Refreshed         *RefreshResult `json:"refreshed,omitempty"`
	Chained           bool           `json:"chained"`
}

// SchedulerService runs the batched valuation job
type SchedulerService struct {
	portfolios   PortfolioRepository
	refresher    MarketRefresher
	valuer       PortfolioValuer
	history      *HistoryService
	chainer      Chainer
	monitor      *PerformanceMonitor
	sizing       BatchSizing
	secret       string
	chainTimeout time.Duration
	now          func() time.Time
	chains       sync.WaitGroup
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(
	cfg *config.CronConfig,
	portfolios PortfolioRepository,
	refresher MarketRefresher,
	valuer PortfolioValuer,
	history *HistoryService,
	chainer Chainer,
	monitor *PerformanceMonitor,
) *SchedulerService {
	chainTimeout := cfg.ChainTimeout
	if chainTimeout <= 0 {
		chainTimeout = 30 * time.Second
	}

	return &SchedulerService{
		portfolios: portfolios,
		refresher:  refresher,
		valuer:     valuer,
		history:    history,
		chainer:    chainer,
		monitor:    monitor,
		sizing: BatchSizing{
			TargetMs: cfg.TargetExecutionMs,
			Min:      cfg.MinBatchSize,
			Max:      cfg.MaxBatchSize,
			Fraction: cfg.BatchFraction,
		},
		secret:       cfg.Secret,
		chainTimeout: chainTimeout,
		now:          time.Now,
	}
}

// Authorize checks an Authorization header against the cron secret.
// An unset secret rejects everything.
func (s *SchedulerService) Authorize(header string) bool {
	if s.secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) == 1
}

// RunBatch processes one slice of the active portfolios and chains the
// next slice when any remain. Per-portfolio failures are reported in the
// result; only refresh and listing failures fail the batch itself.
func (s *SchedulerService) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	start := s.now()
	logger := logging.FromContext(ctx).WithField("batch", req.Batch)

	tick := req.Tick
	if tick.IsZero() {
		tick = start
	}
	tick = tick.UTC().Truncate(time.Minute)

	if req.Force != "" && !req.Force.IsValid() {
		return nil, apperrors.NewInvalidPeriodError(string(req.Force))
	}
	periods := DuePeriods(tick, req.Force)

	result := &BatchResult{Batch: req.Batch, Periods: periods}

	// metadata is refreshed once per chain, by its first link
	if req.Batch == 0 {
		refreshed, err := s.refresher.RefreshAll(ctx)
		if err != nil {
			return nil, err
		}
		result.Refreshed = refreshed
	}

	ids, err := s.portfolios.ListActiveIDs(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list active portfolios", err)
	}

	total := len(ids)
	size := s.sizing.CalculateBatchSize(total, req.PrevTimeMs)
	offset := req.Batch * size
	if req.Offset != nil {
		offset = *req.Offset
	}
	offset = min(max(offset, 0), total)
	end := min(offset+size, total)

	result.TotalPortfolios = total
	result.CurrentBatchSize = size
	result.Offset = offset

	var (
		mu      sync.Mutex
		updated int
		g       errgroup.Group
	)
	for _, id := range ids[offset:end] {
		g.Go(func() error {
			err := s.processPortfolio(ctx, id, periods, tick)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, BatchError{PortfolioID: id, Error: err.Error()})
				logger.WithError(err).WithField("portfolio_id", id).Warn("portfolio valuation failed")
				return nil
			}
			updated++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].PortfolioID < result.Errors[j].PortfolioID
	})

	elapsed := s.now().Sub(start)
	remaining := total - end

	result.UpdatedPortfolios = updated
	result.RemainingBatches = int(math.Ceil(float64(remaining) / float64(size)))
	result.ExecutionTime = elapsed.Milliseconds()
	result.Success = len(result.Errors) == 0

	s.monitor.RecordBatch(elapsed, len(result.Errors))

	if remaining > 0 && s.chainer != nil {
		s.chain(ctx, ChainRequest{
			Batch:      req.Batch + 1,
			PrevTimeMs: max(result.ExecutionTime, 1),
			Offset:     end,
			Tick:       tick,
			Force:      req.Force,
		})
		result.Chained = true
	}

	logger.WithFields(map[string]interface{}{
		"total":     total,
		"offset":    offset,
		"size":      size,
		"updated":   updated,
		"failed":    len(result.Errors),
		"remaining": remaining,
		"elapsedMs": result.ExecutionTime,
	}).Info("batch complete")

	return result, nil
}

// processPortfolio values one portfolio and writes its CURRENT row and due
// period rows concurrently. The two writes touch disjoint rows.
func (s *SchedulerService) processPortfolio(ctx context.Context, id int64, periods []types.Period, tick time.Time) error {
	value, err := s.valuer.ValuePortfolio(ctx, id)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		return s.history.SaveSnapshot(ctx, SaveSnapshotInput{
			PortfolioID: id,
			TotalValue:  value,
			Period:      types.PeriodCurrent,
			Timestamp:   tick,
		})
	})
	g.Go(func() error {
		return s.history.AppendSnapshots(ctx, id, value, periods, tick)
	})
	return g.Wait()
}

// chain fires the next batch without waiting for it. A failed chain is only
// logged; the next scheduled tick starts over from batch 0.
func (s *SchedulerService) chain(ctx context.Context, next ChainRequest) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"next_batch": next.Batch,
		"offset":     next.Offset,
	})

	s.chains.Add(1)
	go func() {
		defer s.chains.Done()

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.chainTimeout)
		defer cancel()

		if err := s.chainer.Chain(cctx, next); err != nil {
			logger.WithError(err).Error("failed to chain next batch")
		}
	}()
}

// WaitForChains blocks until in-flight chain calls finish or ctx ends
func (s *SchedulerService) WaitForChains(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.chains.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cleanup prunes snapshots with the default retention rules
func (s *SchedulerService) Cleanup(ctx context.Context) (*PruneResult, error) {
	return s.history.Prune(ctx, types.DefaultRetentionRules())
}
