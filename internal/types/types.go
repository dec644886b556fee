// Package types provides common type definitions for the portfolio tracker.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is the sampling resolution of a stored valuation snapshot.
type Period string

const (
	// PeriodCurrent is the rolling latest-value marker (at most one row per portfolio)
	PeriodCurrent Period = "CURRENT"
	// PeriodMinute15 is sampled every quarter hour
	PeriodMinute15 Period = "MINUTE_15"
	// PeriodHour1 is sampled at the top of every hour
	PeriodHour1 Period = "HOUR_1"
	// PeriodHour4 is sampled every fourth hour
	PeriodHour4 Period = "HOUR_4"
	// PeriodHour24 is sampled at midnight
	PeriodHour24 Period = "HOUR_24"
)

// AllPeriods lists every valid period in ascending resolution order.
var AllPeriods = []Period{
	PeriodCurrent,
	PeriodMinute15,
	PeriodHour1,
	PeriodHour4,
	PeriodHour24,
}

// IsValid reports whether p is one of the fixed enumeration values.
func (p Period) IsValid() bool {
	switch p {
	case PeriodCurrent, PeriodMinute15, PeriodHour1, PeriodHour4, PeriodHour24:
		return true
	default:
		return false
	}
}

// ParsePeriod parses a period name. Matching is case-insensitive.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid period: %q", s)
	}
	return p, nil
}

// RetentionDays is how long snapshots of each period are kept.
// CURRENT is absent: it is replaced in place, never pruned by age.
var RetentionDays = map[Period]int{
	PeriodMinute15: 2,
	PeriodHour1:    7,
	PeriodHour4:    30,
	PeriodHour24:   365,
}

// RetentionRule is one period's pruning policy.
type RetentionRule struct {
	Period        Period `json:"period"`
	RetentionDays int    `json:"retentionDays"`
}

// DefaultRetentionRules returns the retention rules in a stable order.
func DefaultRetentionRules() []RetentionRule {
	return []RetentionRule{
		{Period: PeriodMinute15, RetentionDays: RetentionDays[PeriodMinute15]},
		{Period: PeriodHour1, RetentionDays: RetentionDays[PeriodHour1]},
		{Period: PeriodHour4, RetentionDays: RetentionDays[PeriodHour4]},
		{Period: PeriodHour24, RetentionDays: RetentionDays[PeriodHour24]},
	}
}

// PortfolioKind distinguishes spot from margin portfolios.
type PortfolioKind string

const (
	// KindSpot is a plain holdings portfolio
	KindSpot PortfolioKind = "SPOT"
	// KindMargin tracks borrowed and collateral amounts too
	KindMargin PortfolioKind = "MARGIN"
)

// TransactionType enumerates ledger operations.
type TransactionType string

const (
	TxBuy      TransactionType = "BUY"
	TxSell     TransactionType = "SELL"
	TxTransfer TransactionType = "TRANSFER"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	return t == TxBuy || t == TxSell || t == TxTransfer
}

// ChartRange is a display window for portfolio charts.
type ChartRange string

const (
	Range24H ChartRange = "24H"
	Range1W  ChartRange = "1W"
	Range1M  ChartRange = "1M"
	Range3M  ChartRange = "3M"
	Range6M  ChartRange = "6M"
	Range1Y  ChartRange = "1Y"
	RangeAll ChartRange = "ALL"
)

// ParseChartRange parses a chart range name.
func ParseChartRange(s string) (ChartRange, error) {
	r := ChartRange(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case Range24H, Range1W, Range1M, Range3M, Range6M, Range1Y, RangeAll:
		return r, nil
	default:
		return "", fmt.Errorf("invalid chart range: %q", s)
	}
}

// DemoPortfolioID is the reserved identifier of the sample portfolio.
const DemoPortfolioID = "demo"

// PortfolioRef identifies either the demo portfolio or a persisted one.
// It is resolved once at the API boundary; nothing downstream inspects raw ids.
type PortfolioRef struct {
	demo bool
	id   int64
}

// DemoRef returns the reference to the demo portfolio.
func DemoRef() PortfolioRef {
	return PortfolioRef{demo: true}
}

// PersistedRef returns a reference to a stored portfolio.
func PersistedRef(id int64) PortfolioRef {
	return PortfolioRef{id: id}
}

// ParsePortfolioRef resolves a raw path segment.
func ParsePortfolioRef(raw string) (PortfolioRef, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, DemoPortfolioID) {
		return DemoRef(), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return PortfolioRef{}, fmt.Errorf("invalid portfolio id: %q", raw)
	}
	return PersistedRef(id), nil
}

// IsDemo reports whether the reference is the demo variant.
func (r PortfolioRef) IsDemo() bool {
	return r.demo
}

// ID returns the persisted id and true, or 0 and false for the demo variant.
func (r PortfolioRef) ID() (int64, bool) {
	if r.demo {
		return 0, false
	}
	return r.id, true
}

func (r PortfolioRef) String() string {
	if r.demo {
		return DemoPortfolioID
	}
	return strconv.FormatInt(r.id, 10)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Point is one timestamped value of a chart series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
