// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the library.
const (
	// Read path metrics.
	MetricReads       = "statecache_reads_total"
	MetricHits        = "statecache_hits_total"
	MetricMisses      = "statecache_misses_total"
	MetricUncached    = "statecache_uncached_reads_total"
	MetricFetchErrors = "statecache_fetch_errors_total"
	MetricCoalesced   = "statecache_coalesced_fetches_total"

	// Latency histograms, observed in seconds.
	MetricHitLatency      = "statecache_hit_latency_seconds"
	MetricMissLatency     = "statecache_miss_latency_seconds"
	MetricUncachedLatency = "statecache_uncached_latency_seconds"

	// Store metrics.
	MetricEntries     = "statecache_entries"
	MetricEvictions   = "statecache_evictions_total"
	MetricExpirations = "statecache_expirations_total"
	MetricInvalidates = "statecache_invalidations_total"
	MetricStaleDrops  = "statecache_stale_puts_total"

	// Metering metrics.
	MetricWrites          = "statecache_writes_total"
	MetricCPUInstructions = "statecache_cpu_instructions_total"
	MetricMemBytes        = "statecache_mem_bytes_total"
	MetricStorageBytes    = "statecache_storage_bytes_total"

	// Lifecycle metrics.
	MetricInFlight = "statecache_inflight_requests"
	MetricRejected = "statecache_rejected_requests_total"

	// Warm-up metrics.
	MetricWarmLoaded = "statecache_warmup_loaded_total"
	MetricWarmFailed = "statecache_warmup_failed_total"
)

// Help returns the description exported for a metric name.
// Unknown names describe themselves.
func Help(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

var help = map[string]string{
	MetricReads:           "Contract state reads served.",
	MetricHits:            "Reads answered from the cache.",
	MetricMisses:          "Cached-path reads that went to the fetcher.",
	MetricUncached:        "Reads that bypassed the cache.",
	MetricFetchErrors:     "Fetcher calls that returned an error.",
	MetricCoalesced:       "Reads that shared another caller's in-flight fetch.",
	MetricHitLatency:      "Latency of cache hits.",
	MetricMissLatency:     "Latency of cache misses including the fetch.",
	MetricUncachedLatency: "Latency of reads that bypassed the cache.",
	MetricEntries:         "Live entries resident in the cache.",
	MetricEvictions:       "Entries evicted to make room.",
	MetricExpirations:     "Entries dropped after their TTL.",
	MetricInvalidates:     "Explicit invalidations.",
	MetricStaleDrops:      "Fetched values discarded because the key was invalidated mid-fetch.",
	MetricWrites:          "Metered state writes.",
	MetricCPUInstructions: "Estimated CPU instructions charged to writes.",
	MetricMemBytes:        "Estimated memory bytes charged to writes.",
	MetricStorageBytes:    "Payload bytes written.",
	MetricInFlight:        "Requests currently being processed.",
	MetricRejected:        "Requests rejected while draining.",
	MetricWarmLoaded:      "Entries preloaded during warm-up.",
	MetricWarmFailed:      "Warm-up entries that could not be loaded.",
}

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
