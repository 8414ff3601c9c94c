package lifecycle

import (
	"time"

	"go.uber.org/zap"

	"github.com/soroban-registry/statecache/internal/stats"
)

const (
	// DefaultDrainTimeout bounds how long Shutdown waits for in-flight work.
	DefaultDrainTimeout = 30 * time.Second

	// DefaultPollInterval is how often Shutdown checks the in-flight count.
	DefaultPollInterval = 100 * time.Millisecond
)

// Option configures a Controller.
type Option interface {
	apply(*options)
}

type options struct {
	drainTimeout time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
	collector    stats.Collector
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

func defaultOptions() options {
	return options{
		drainTimeout: DefaultDrainTimeout,
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
		collector:    stats.NewNoop(),
	}
}

// WithDrainTimeout sets how long Shutdown waits before forcing a stop.
func WithDrainTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.drainTimeout = d
		}
	})
}

// WithPollInterval sets how often Shutdown checks for zero in-flight work.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.pollInterval = d
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
