package service

import (
	"context"
	"time"

	"github.com/folio-tracker/internal/chart"
	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/types"
)

// ChartView is a display-ready series
type ChartView struct {
	Range    types.ChartRange `json:"range"`
	Interval chart.Interval   `json:"interval"`
	Auto     bool             `json:"auto"`
	Points   []types.Point    `json:"points"`
}

// ChartService reads snapshot history and downsamples it for display
type ChartService struct {
	history *HistoryService
	demo    *DemoData
	loc     *time.Location
	now     func() time.Time
}

// NewChartService creates a new chart service bucketing on loc's wall clock
func NewChartService(history *HistoryService, demo *DemoData, loc *time.Location) *ChartService {
	if loc == nil {
		loc = time.UTC
	}
	return &ChartService{
		history: history,
		demo:    demo,
		loc:     loc,
		now:     time.Now,
	}
}

// Chart returns the series of ref for r. An empty range is picked from the
// span of the portfolio's daily history.
func (s *ChartService) Chart(ctx context.Context, ref types.PortfolioRef, r types.ChartRange) (*ChartView, error) {
	now := s.now()
	view := &ChartView{Range: r}

	if r == "" {
		daily, err := s.series(ctx, ref, types.PeriodHour24, time.Time{}, now)
		if err != nil {
			return nil, err
		}
		view.Range = chart.PickRange(chart.Analyze(daily, s.loc))
		view.Auto = true
	}

	series, err := s.series(ctx, ref, chart.SourcePeriod(view.Range), chart.Start(view.Range, now), now)
	if err != nil {
		return nil, err
	}

	view.Interval = chart.IntervalFor(view.Range)
	view.Points = chart.Bucket(series, view.Range, s.loc)
	return view, nil
}

func (s *ChartService) series(ctx context.Context, ref types.PortfolioRef, period types.Period, start, now time.Time) ([]types.Point, error) {
	var (
		rows []*models.HistorySnapshot
		err  error
	)
	if id, ok := ref.ID(); ok {
		rows, err = s.history.Query(ctx, id, period, start)
	} else {
		rows, err = s.demo.History(period, start, now)
	}
	if err != nil {
		return nil, err
	}
	return ToPoints(rows), nil
}

// ToPoints strips snapshots down to chart points
func ToPoints(rows []*models.HistorySnapshot) []types.Point {
	points := make([]types.Point, len(rows))
	for i, r := range rows {
		points[i] = types.Point{Timestamp: r.Timestamp, Value: r.TotalValue}
	}
	return points
}
