package statecache

import (
	"time"

	"github.com/soroban-registry/statecache/internal/lifecycle"
)

// StatsSnapshot is a point-in-time view of the client's statistics.
// Latencies are in microseconds.
type StatsSnapshot struct {
	Hits                  int64   `json:"hits"`
	Misses                int64   `json:"misses"`
	Uncached              int64   `json:"uncached"`
	HitRate               float64 `json:"hit_rate"`
	AvgCachedHitLatencyUs float64 `json:"avg_cached_hit_latency_us"`
	AvgCacheMissLatencyUs float64 `json:"avg_cache_miss_latency_us"`
	AvgUncachedLatencyUs  float64 `json:"avg_uncached_latency_us"`
	ImprovementFactor     float64 `json:"improvement_factor"`
	FetchErrors           int64   `json:"fetch_errors"`
	Enabled               bool    `json:"enabled"`
	TTLSeconds            int64   `json:"ttl_seconds"`
	MaxCapacity           int     `json:"max_capacity"`
	Entries               int     `json:"entries"`
	Evictions             int64   `json:"evictions"`
	Expirations           int64   `json:"expirations"`
	InFlight              int64   `json:"in_flight"`
	State                 string  `json:"state"`
	MeteredWrites         int64   `json:"metered_writes"`
}

// Stats returns current statistics. It has no side effects.
func (c *Client) Stats() StatsSnapshot {
	m := c.recorder.Snapshot()
	s := c.store.Stats()
	return StatsSnapshot{
		Hits:                  m.Hits,
		Misses:                m.Misses,
		Uncached:              m.Uncached,
		HitRate:               m.HitRate,
		AvgCachedHitLatencyUs: micros(m.AvgCachedHitLatency),
		AvgCacheMissLatencyUs: micros(m.AvgCacheMissLatency),
		AvgUncachedLatencyUs:  micros(m.AvgUncachedLatency),
		ImprovementFactor:     m.ImprovementFactor,
		FetchErrors:           c.fetchErrors.Load(),
		Enabled:               c.config.Enabled,
		TTLSeconds:            int64(c.config.TTL / time.Second),
		MaxCapacity:           c.config.MaxCapacity,
		Entries:               s.Entries,
		Evictions:             s.Evictions,
		Expirations:           s.Expirations,
		InFlight:              c.lifecycle.InFlight(),
		State:                 c.lifecycle.State().String(),
		MeteredWrites:         c.ledger.Len(),
	}
}

// Accepting reports whether the client still admits requests.
func (c *Client) Accepting() bool {
	return c.lifecycle.State() == lifecycle.StateAccepting
}

func micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}
