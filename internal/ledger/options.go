package ledger

import (
	"time"

	"go.uber.org/zap"

	"github.com/soroban-registry/statecache/internal/stats"
)

// Option configures a Ledger.
type Option interface {
	apply(*options)
}

type options struct {
	logger    *zap.Logger
	collector stats.Collector
	clock     func() time.Time
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		collector: stats.NewNoop(),
		clock:     time.Now,
	}
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

// WithClock sets the time source used for samples without a timestamp.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		if now != nil {
			o.clock = now
		}
	})
}
