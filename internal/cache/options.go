package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/soroban-registry/statecache/internal/shard"
	"github.com/soroban-registry/statecache/internal/shard/fnvshard"
	"github.com/soroban-registry/statecache/internal/stats"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 16

// Option configures a Store.
type Option interface {
	apply(*options)
}

type options struct {
	shards    int
	strategy  shard.Strategy
	clock     func() time.Time
	logger    *zap.Logger
	collector stats.Collector
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

func defaultOptions() options {
	return options{
		shards:    DefaultShards,
		strategy:  fnvshard.New(),
		clock:     time.Now,
		logger:    zap.NewNop(),
		collector: stats.NewNoop(),
	}
}

// WithShards sets the number of independently locked shards.
// The count is capped at the store capacity. With one shard, eviction
// follows exact global LRU order.
func WithShards(n int) Option {
	return optionFunc(func(o *options) {
		o.shards = n
	})
}

// WithShardStrategy sets how keys are assigned to shards.
func WithShardStrategy(s shard.Strategy) Option {
	return optionFunc(func(o *options) {
		if s != nil {
			o.strategy = s
		}
	})
}

// WithClock sets the time source used for insertion and expiry.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		if now != nil {
			o.clock = now
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithStatsCollector sets the metrics collector.
func WithStatsCollector(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		if c != nil {
			o.collector = c
		}
	})
}
