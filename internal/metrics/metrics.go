// Package metrics records cache hit, miss and latency statistics.
//
// Every counter is an independent atomic, so recording never blocks and
// readers never serialize behind writers. A snapshot read while records are
// in flight may mix counts from slightly different instants; each individual
// counter is always exact and never decreases.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/soroban-registry/statecache/internal/stats"
)

// Class identifies which read path a latency sample came from.
type Class int

const (
	// ClassHit is a read answered from the cache.
	ClassHit Class = iota
	// ClassMiss is a cached-path read that had to fetch.
	ClassMiss
	// ClassUncached is a read that bypassed the cache.
	ClassUncached
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassHit:
		return "hit"
	case ClassMiss:
		return "miss"
	case ClassUncached:
		return "uncached"
	default:
		return "unknown"
	}
}

// latency accumulates a sum and count for one class.
type latency struct {
	sumNanos atomic.Int64
	count    atomic.Int64
}

func (l *latency) add(d time.Duration) {
	if d < 0 {
		d = 0
	}
	l.sumNanos.Add(int64(d))
	l.count.Add(1)
}

func (l *latency) avg() time.Duration {
	n := l.count.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(l.sumNanos.Load() / n)
}

// Recorder holds process-lifetime read statistics.
// The zero value is not usable; create one with New.
type Recorder struct {
	collector stats.Collector

	hits     atomic.Int64
	misses   atomic.Int64
	uncached atomic.Int64

	hitLatency      latency
	missLatency     latency
	uncachedLatency latency
}

// New creates a recorder that also forwards every sample to collector.
// The collector is optional; if nil, a no-op collector is used.
func New(collector stats.Collector) *Recorder {
	if collector == nil {
		collector = stats.NewNoop()
	}
	return &Recorder{collector: collector}
}

// RecordHit records a cache hit that took d.
func (r *Recorder) RecordHit(d time.Duration) {
	r.hits.Add(1)
	r.hitLatency.add(d)
	r.collector.IncCounter(stats.MetricHits, 1)
	r.collector.ObserveHistogram(stats.MetricHitLatency, d.Seconds())
}

// RecordMiss records a cache miss, fetch included, that took d.
func (r *Recorder) RecordMiss(d time.Duration) {
	r.misses.Add(1)
	r.missLatency.add(d)
	r.collector.IncCounter(stats.MetricMisses, 1)
	r.collector.ObserveHistogram(stats.MetricMissLatency, d.Seconds())
}

// RecordUncached records a read that bypassed the cache and took d.
func (r *Recorder) RecordUncached(d time.Duration) {
	r.uncached.Add(1)
	r.uncachedLatency.add(d)
	r.collector.IncCounter(stats.MetricUncached, 1)
	r.collector.ObserveHistogram(stats.MetricUncachedLatency, d.Seconds())
}

// Record dispatches to the recorder method for class.
func (r *Recorder) Record(class Class, d time.Duration) {
	switch class {
	case ClassHit:
		r.RecordHit(d)
	case ClassMiss:
		r.RecordMiss(d)
	case ClassUncached:
		r.RecordUncached(d)
	}
}

// Hits returns the number of cache hits.
func (r *Recorder) Hits() int64 { return r.hits.Load() }

// Misses returns the number of cache misses.
func (r *Recorder) Misses() int64 { return r.misses.Load() }

// Uncached returns the number of reads that bypassed the cache.
func (r *Recorder) Uncached() int64 { return r.uncached.Load() }

// HitRate returns hits / (hits + misses) in [0, 1], or 0 with no samples.
func (r *Recorder) HitRate() float64 {
	h := r.hits.Load()
	m := r.misses.Load()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// AvgCachedHitLatency returns the mean hit latency, or 0 with no hits.
func (r *Recorder) AvgCachedHitLatency() time.Duration { return r.hitLatency.avg() }

// AvgCacheMissLatency returns the mean miss latency, or 0 with no misses.
func (r *Recorder) AvgCacheMissLatency() time.Duration { return r.missLatency.avg() }

// AvgUncachedLatency returns the mean uncached latency, or 0 with no samples.
func (r *Recorder) AvgUncachedLatency() time.Duration { return r.uncachedLatency.avg() }

// ImprovementFactor returns how many times faster a hit is than going to
// the fetcher. The baseline is the uncached average when uncached reads have
// been recorded, otherwise the miss average. It returns 0 when either side
// has no samples.
func (r *Recorder) ImprovementFactor() float64 {
	hit := r.AvgCachedHitLatency()
	baseline := r.AvgUncachedLatency()
	if r.uncachedLatency.count.Load() == 0 {
		baseline = r.AvgCacheMissLatency()
	}
	if hit <= 0 || baseline <= 0 {
		return 0
	}
	return float64(baseline) / float64(hit)
}

// Snapshot is a point-in-time copy of the recorder's statistics.
type Snapshot struct {
	Hits                int64
	Misses              int64
	Uncached            int64
	HitRate             float64
	AvgCachedHitLatency time.Duration
	AvgCacheMissLatency time.Duration
	AvgUncachedLatency  time.Duration
	ImprovementFactor   float64
}

// Snapshot returns the current statistics. It has no side effects.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Hits:                r.Hits(),
		Misses:              r.Misses(),
		Uncached:            r.Uncached(),
		HitRate:             r.HitRate(),
		AvgCachedHitLatency: r.AvgCachedHitLatency(),
		AvgCacheMissLatency: r.AvgCacheMissLatency(),
		AvgUncachedLatency:  r.AvgUncachedLatency(),
		ImprovementFactor:   r.ImprovementFactor(),
	}
}
