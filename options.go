package statecache

import (
	"time"

	"go.uber.org/zap"

	"github.com/soroban-registry/statecache/internal/cache"
	"github.com/soroban-registry/statecache/internal/fetch"
	"github.com/soroban-registry/statecache/internal/lifecycle"
	"github.com/soroban-registry/statecache/internal/shard"
	"github.com/soroban-registry/statecache/internal/shard/fnvshard"
	"github.com/soroban-registry/statecache/internal/stats"
)

// Defaults for the cache configuration.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultMaxCapacity     = 10_000
	DefaultJanitorInterval = 30 * time.Second
)

// Option configures a Client.
type Option interface {
	apply(*options)
}

// options holds the client configuration.
type options struct {
	fetcher         fetch.Fetcher
	enabled         bool
	ttl             time.Duration
	maxCapacity     int
	shards          int
	shardStrategy   shard.Strategy
	janitorInterval time.Duration
	costs           CostModel
	drainTimeout    time.Duration
	pollInterval    time.Duration
	clock           func() time.Time
	stats           stats.Collector
	logger          *zap.Logger
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		enabled:         true,
		ttl:             DefaultTTL,
		maxCapacity:     DefaultMaxCapacity,
		shards:          cache.DefaultShards,
		shardStrategy:   fnvshard.New(),
		janitorInterval: DefaultJanitorInterval,
		costs:           DefaultCostModel(),
		drainTimeout:    lifecycle.DefaultDrainTimeout,
		pollInterval:    lifecycle.DefaultPollInterval,
		clock:           time.Now,
		stats:           stats.NewNoop(),
		logger:          zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithFetcher sets the downstream state fetcher. Required.
func WithFetcher(f fetch.Fetcher) Option {
	return optionFunc(func(o *options) {
		o.fetcher = f
	})
}

// WithCacheEnabled turns the cache on or off. When off, every read goes
// to the fetcher. Default is on.
func WithCacheEnabled(enabled bool) Option {
	return optionFunc(func(o *options) {
		o.enabled = enabled
	})
}

// WithTTL sets how long cached values live after insertion.
// Default is 5 minutes.
func WithTTL(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.ttl = d
	})
}

// WithMaxCapacity sets the maximum number of cached values.
// Default is 10000.
func WithMaxCapacity(n int) Option {
	return optionFunc(func(o *options) {
		o.maxCapacity = n
	})
}

// WithShards sets the number of independently locked cache shards.
// Default is 16.
func WithShards(n int) Option {
	return optionFunc(func(o *options) {
		o.shards = n
	})
}

// WithShardStrategy sets how cache keys map to shards.
// If not set, FNV-1a hashing is used.
func WithShardStrategy(s shard.Strategy) Option {
	return optionFunc(func(o *options) {
		o.shardStrategy = s
	})
}

// WithJanitorInterval sets how often expired entries are swept.
// Zero disables the sweep; expired entries are then dropped lazily on read
// or when their shard fills up.
func WithJanitorInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.janitorInterval = d
	})
}

// WithCostModel sets the write metering model.
func WithCostModel(m CostModel) Option {
	return optionFunc(func(o *options) {
		o.costs = m
	})
}

// WithDrainTimeout sets how long Shutdown waits for in-flight requests.
// Default is 30 seconds.
func WithDrainTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.drainTimeout = d
	})
}

// WithPollInterval sets how often Shutdown checks for in-flight requests.
// Default is 100 milliseconds.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.pollInterval = d
	})
}

// WithClock sets the time source for cache expiry and sample timestamps.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.clock = now
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}
