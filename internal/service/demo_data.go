package service

import (
	"math"
	"time"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/types"
)

type demoHolding struct {
	ticker string
	name   string
	amount float64
	price  float64
	change float64
}

var demoHoldings = []demoHolding{
	{ticker: "BTC", name: "Bitcoin", amount: 0.5, price: 70000, change: 1.8},
	{ticker: "ETH", name: "Ethereum", amount: 4, price: 3500, change: -0.6},
	{ticker: "SOL", name: "Solana", amount: 25, price: 150, change: 3.2},
	{ticker: models.TickerUSDT, name: "Tether", amount: 1500, price: 1},
}

// sample spacing per period
var demoStep = map[types.Period]time.Duration{
	types.PeriodMinute15: 15 * time.Minute,
	types.PeriodHour1:    time.Hour,
	types.PeriodHour4:    4 * time.Hour,
	types.PeriodHour24:   24 * time.Hour,
}

// DemoData serves the read-only sample portfolio. Everything is derived
// from fixed holdings and timestamps, so repeated calls agree.
type DemoData struct{}

// NewDemoData creates the demo data source
func NewDemoData() *DemoData {
	return &DemoData{}
}

// Balances returns the sample holdings
func (d *DemoData) Balances(now time.Time) *BalancesView {
	view := &BalancesView{Balances: make([]*models.EnrichedBalance, 0, len(demoHoldings))}
	for _, h := range demoHoldings {
		view.Balances = append(view.Balances, &models.EnrichedBalance{
			Balance: models.Balance{
				Ticker:    h.ticker,
				Amount:    h.amount,
				UpdatedAt: now.UTC().Truncate(time.Hour),
			},
			Name:           h.name,
			CurrentPrice:   h.price,
			PriceChange24h: h.change,
			Value:          h.amount * h.price,
		})
	}
	return view
}

// Value returns the sample portfolio's total value
func (d *DemoData) Value() float64 {
	var total float64
	for _, h := range demoHoldings {
		total += h.amount * h.price
	}
	return total
}

// valueAt wobbles the total around its current value: a nine-day swell
// plus a small daily cycle
func (d *DemoData) valueAt(t time.Time) float64 {
	u := float64(t.Unix())
	swell := 0.06 * math.Sin(2*math.Pi*u/(9*86400))
	daily := 0.015 * math.Sin(2*math.Pi*u/86400)
	return math.Round(d.Value()*(1+swell+daily)*100) / 100
}

// History generates snapshots of period from start to now, clipped to the
// period's retention window
func (d *DemoData) History(period types.Period, start, now time.Time) ([]*models.HistorySnapshot, error) {
	if !period.IsValid() {
		return nil, apperrors.NewInvalidPeriodError(string(period))
	}
	now = now.UTC()

	if period == types.PeriodCurrent {
		ts := now.Truncate(time.Minute)
		if ts.Before(start) {
			return []*models.HistorySnapshot{}, nil
		}
		return []*models.HistorySnapshot{{
			Period:     types.PeriodCurrent,
			TotalValue: d.Value(),
			Timestamp:  ts,
		}}, nil
	}

	if earliest := now.AddDate(0, 0, -types.RetentionDays[period]); start.Before(earliest) {
		start = earliest
	}
	step := demoStep[period]
	first := start.UTC().Truncate(step)
	if first.Before(start) {
		first = first.Add(step)
	}

	out := make([]*models.HistorySnapshot, 0, int(now.Sub(first)/step)+1)
	for ts := first; !ts.After(now); ts = ts.Add(step) {
		out = append(out, &models.HistorySnapshot{
			Period:     period,
			TotalValue: d.valueAt(ts),
			Timestamp:  ts,
		})
	}
	return out, nil
}
