// Package chart turns raw valuation snapshots into display series.
package chart

import (
	"sort"
	"time"

	"github.com/folio-tracker/internal/types"
)

// dayKeyLayout keys the per-day histogram
const dayKeyLayout = "2006-01-02"

// Interval is the bucket width of a chart range
type Interval string

const (
	Interval15m Interval = "15m"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Analysis describes a raw series
type Analysis struct {
	TotalDays    int            `json:"totalDays"`
	DistinctDays int            `json:"distinctDays"`
	First        time.Time      `json:"first"`
	Last         time.Time      `json:"last"`
	PointCount   int            `json:"pointCount"`
	PointsPerDay map[string]int `json:"pointsPerDay"`
}

// Analyze scans series once. TotalDays counts calendar days in loc from the
// first to the last point inclusive; DistinctDays counts days holding points.
func Analyze(series []types.Point, loc *time.Location) Analysis {
	a := Analysis{PointsPerDay: make(map[string]int)}
	if len(series) == 0 {
		return a
	}

	a.First = series[0].Timestamp
	a.Last = series[0].Timestamp
	for _, p := range series {
		if p.Timestamp.Before(a.First) {
			a.First = p.Timestamp
		}
		if p.Timestamp.After(a.Last) {
			a.Last = p.Timestamp
		}
		a.PointsPerDay[p.Timestamp.In(loc).Format(dayKeyLayout)]++
	}

	a.PointCount = len(series)
	a.DistinctDays = len(a.PointsPerDay)
	a.TotalDays = calendarDaysBetween(a.First, a.Last, loc) + 1

	return a
}

// calendarDaysBetween counts midnights in loc between a and b
func calendarDaysBetween(a, b time.Time, loc *time.Location) int {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	// UTC dates have no DST, so the difference is a whole number of days
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// PickRange maps the day span of an analysis to a display range
func PickRange(a Analysis) types.ChartRange {
	switch days := a.TotalDays; {
	case days <= 1:
		return types.Range24H
	case days <= 7:
		return types.Range1W
	case days <= 30:
		return types.Range1M
	case days <= 90:
		return types.Range3M
	case days <= 180:
		return types.Range6M
	case days <= 365:
		return types.Range1Y
	default:
		return types.RangeAll
	}
}

// IntervalFor returns the bucket width of a range
func IntervalFor(r types.ChartRange) Interval {
	switch r {
	case types.Range24H, types.Range1W:
		return Interval15m
	case types.Range1M:
		return Interval4h
	default:
		return Interval1d
	}
}

// SourcePeriod returns the stored snapshot period a range is drawn from
func SourcePeriod(r types.ChartRange) types.Period {
	switch r {
	case types.Range24H:
		return types.PeriodMinute15
	case types.Range1W:
		return types.PeriodHour1
	case types.Range1M:
		return types.PeriodHour4
	default:
		return types.PeriodHour24
	}
}

// lookbackDays is how far back each range reaches; ALL is unbounded
var lookbackDays = map[types.ChartRange]int{
	types.Range24H: 1,
	types.Range1W:  7,
	types.Range1M:  30,
	types.Range3M:  90,
	types.Range6M:  180,
	types.Range1Y:  365,
}

// Start returns the earliest timestamp a range displays, or the zero time for ALL
func Start(r types.ChartRange, now time.Time) time.Time {
	days, ok := lookbackDays[r]
	if !ok {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}

// BucketStart returns the start of the bucket containing t. Day and 4-hour
// buckets follow the wall clock of loc, so DST days still begin at local midnight.
func BucketStart(t time.Time, interval Interval, loc *time.Location) time.Time {
	switch interval {
	case Interval15m:
		return t.Truncate(15 * time.Minute).In(loc)
	case Interval4h:
		lt := t.In(loc)
		return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour()/4*4, 0, 0, 0, loc)
	default:
		lt := t.In(loc)
		return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	}
}

// Bucket downsamples series to one point per interval of r. Within a bucket
// the earliest point wins and later ones are dropped. Output points carry the
// bucket start as their timestamp.
func Bucket(series []types.Point, r types.ChartRange, loc *time.Location) []types.Point {
	if len(series) == 0 {
		return []types.Point{}
	}

	sorted := make([]types.Point, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	interval := IntervalFor(r)
	out := make([]types.Point, 0, len(sorted))
	var last time.Time
	for i, p := range sorted {
		start := BucketStart(p.Timestamp, interval, loc)
		if i > 0 && start.Equal(last) {
			continue
		}
		last = start
		out = append(out, types.Point{Timestamp: start, Value: p.Value})
	}

	return out
}
