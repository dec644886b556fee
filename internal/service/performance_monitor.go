package service

import (
	"sort"
	"sync"
	"time"
)

// PerformanceMonitor tracks coin lookup latency, cache effectiveness and
// scheduler batch timings
type PerformanceMonitor struct {
	mu                sync.RWMutex
	cachedLookupTimes []time.Duration
	storeLookupTimes  []time.Duration
	batchTimes        []time.Duration
	cacheHits         int64
	cacheMisses       int64
	batches           int64
	slowBatches       int64
	failedPortfolios  int64
	lastBatchAt       time.Time
	slowBatch         time.Duration
	maxSamples        int
}

// NewPerformanceMonitor creates a new performance monitor. Batches slower than
// slowBatch are counted as slow.
func NewPerformanceMonitor(slowBatch time.Duration) *PerformanceMonitor {
	return &PerformanceMonitor{
		cachedLookupTimes: make([]time.Duration, 0, 256),
		storeLookupTimes:  make([]time.Duration, 0, 256),
		batchTimes:        make([]time.Duration, 0, 64),
		slowBatch:         slowBatch,
		maxSamples:        1000, // Keep last 1000 samples
	}
}

func keepLast(samples []time.Duration, d time.Duration, max int) []time.Duration {
	samples = append(samples, d)
	if len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	return samples
}

// RecordLookup records a coin metadata lookup
func (pm *PerformanceMonitor) RecordLookup(duration time.Duration, cached bool) {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if cached {
		pm.cacheHits++
		pm.cachedLookupTimes = keepLast(pm.cachedLookupTimes, duration, pm.maxSamples)
	} else {
		pm.cacheMisses++
		pm.storeLookupTimes = keepLast(pm.storeLookupTimes, duration, pm.maxSamples)
	}
}

// RecordBatch records one scheduler batch
func (pm *PerformanceMonitor) RecordBatch(duration time.Duration, failed int) {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.batches++
	pm.failedPortfolios += int64(failed)
	pm.lastBatchAt = time.Now()
	pm.batchTimes = keepLast(pm.batchTimes, duration, pm.maxSamples)
	if pm.slowBatch > 0 && duration > pm.slowBatch {
		pm.slowBatches++
	}
}

// GetStats returns current performance statistics
func (pm *PerformanceMonitor) GetStats() *PerformanceStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := &PerformanceStats{
		CacheHits:        pm.cacheHits,
		CacheMisses:      pm.cacheMisses,
		Batches:          pm.batches,
		SlowBatches:      pm.slowBatches,
		FailedPortfolios: pm.failedPortfolios,
		AvgCachedMs:      averageMs(pm.cachedLookupTimes),
		AvgStoreMs:       averageMs(pm.storeLookupTimes),
		AvgBatchMs:       averageMs(pm.batchTimes),
		P95BatchMs:       percentileMs(pm.batchTimes, 0.95),
	}

	if lookups := pm.cacheHits + pm.cacheMisses; lookups > 0 {
		stats.CacheHitRate = float64(pm.cacheHits) / float64(lookups) * 100
	}
	if !pm.lastBatchAt.IsZero() {
		last := pm.lastBatchAt
		stats.LastBatchAt = &last
	}

	return stats
}

func averageMs(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return float64(total.Microseconds()) / 1000 / float64(len(samples))
}

func percentileMs(samples []time.Duration, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx].Microseconds()) / 1000
}

// Reset resets all performance metrics
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.cachedLookupTimes = pm.cachedLookupTimes[:0]
	pm.storeLookupTimes = pm.storeLookupTimes[:0]
	pm.batchTimes = pm.batchTimes[:0]
	pm.cacheHits = 0
	pm.cacheMisses = 0
	pm.batches = 0
	pm.slowBatches = 0
	pm.failedPortfolios = 0
	pm.lastBatchAt = time.Time{}
}

// PerformanceStats contains performance statistics
type PerformanceStats struct {
	CacheHits        int64      `json:"cacheHits"`
	CacheMisses      int64      `json:"cacheMisses"`
	CacheHitRate     float64    `json:"cacheHitRate"` // Percentage
	AvgCachedMs      float64    `json:"avgCachedLookupMs"`
	AvgStoreMs       float64    `json:"avgStoreLookupMs"`
	Batches          int64      `json:"batches"`
	SlowBatches      int64      `json:"slowBatches"`
	FailedPortfolios int64      `json:"failedPortfolios"`
	AvgBatchMs       float64    `json:"avgBatchMs"`
	P95BatchMs       float64    `json:"p95BatchMs"`
	LastBatchAt      *time.Time `json:"lastBatchAt,omitempty"`
}
