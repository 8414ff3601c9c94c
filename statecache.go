// Package statecache fronts a slow contract state source with a bounded,
// expiring cache, meters the resource cost of state writes per contract,
// and drains in-flight requests on shutdown.
//
// Example usage:
//
//	client, err := statecache.New(
//	    statecache.WithFetcher(fetcher),
//	    statecache.WithTTL(time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	value, err := client.Read(ctx, "CDLZ...", "balance", true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sample, err := client.Write(ctx, "CDLZ...", "balance", []byte(`{"amount":100}`))
package statecache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/soroban-registry/statecache/internal/cache"
	"github.com/soroban-registry/statecache/internal/fetch"
	"github.com/soroban-registry/statecache/internal/ledger"
	"github.com/soroban-registry/statecache/internal/lifecycle"
	"github.com/soroban-registry/statecache/internal/metrics"
	"github.com/soroban-registry/statecache/internal/stats"
)

// Config is the immutable cache configuration of a Client.
type Config struct {
	Enabled     bool
	TTL         time.Duration
	MaxCapacity int
}

// Client reads contract state through the cache and meters writes.
// A Client is safe for concurrent use by multiple goroutines.
type Client struct {
	fetcher   fetch.Fetcher
	store     *cache.Store
	recorder  *metrics.Recorder
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Controller
	costs     CostModel
	config    Config
	now       func() time.Time

	stats  stats.Collector
	logger *zap.Logger

	flights     singleflight.Group
	fetchErrors atomic.Int64

	stopJanitor context.CancelFunc
	janitorDone chan struct{}
	closed      atomic.Bool
}

// New creates a new Client with the given options.
// A fetcher is required; everything else has a default.
func New(opts ...Option) (*Client, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.fetcher == nil {
		return nil, ErrNoFetcher
	}
	if cfg.stats == nil {
		cfg.stats = stats.NewNoop()
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	logger := cfg.logger.Named("statecache")

	store, err := cache.New(cfg.maxCapacity, cfg.ttl,
		cache.WithShards(cfg.shards),
		cache.WithShardStrategy(cfg.shardStrategy),
		cache.WithClock(cfg.clock),
		cache.WithLogger(logger),
		cache.WithStatsCollector(cfg.stats),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	c := &Client{
		fetcher:  cfg.fetcher,
		store:    store,
		recorder: metrics.New(cfg.stats),
		ledger: ledger.New(
			ledger.WithLogger(logger),
			ledger.WithStatsCollector(cfg.stats),
			ledger.WithClock(cfg.clock),
		),
		lifecycle: lifecycle.New(
			lifecycle.WithDrainTimeout(cfg.drainTimeout),
			lifecycle.WithPollInterval(cfg.pollInterval),
			lifecycle.WithLogger(logger),
			lifecycle.WithStatsCollector(cfg.stats),
		),
		costs: cfg.costs,
		config: Config{
			Enabled:     cfg.enabled,
			TTL:         cfg.ttl,
			MaxCapacity: cfg.maxCapacity,
		},
		now:    cfg.clock,
		stats:  cfg.stats,
		logger: logger,
	}

	if cfg.enabled && cfg.janitorInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.stopJanitor = cancel
		c.janitorDone = make(chan struct{})
		go func() {
			defer close(c.janitorDone)
			store.RunJanitor(ctx, cfg.janitorInterval)
		}()
	}

	c.logger.Debug("client initialized",
		zap.Bool("enabled", cfg.enabled),
		zap.Duration("ttl", cfg.ttl),
		zap.Int("maxCapacity", cfg.maxCapacity),
		zap.String("shardStrategy", cfg.shardStrategy.Name()),
	)

	return c, nil
}

// Read returns the value of key in contractID.
//
// With the cache enabled and useCache set, a live cached value is returned
// directly; otherwise the value is fetched, cached and returned. Concurrent
// misses on the same key share one fetch. When the cache is disabled or
// useCache is false, the fetcher is always called and nothing is cached.
//
// Fetch failures are returned as *FetchError. A failure to cache a fetched
// value never fails the read. The returned slice must not be modified.
func (c *Client) Read(ctx context.Context, contractID, key string, useCache bool) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if contractID == "" || key == "" {
		return nil, ErrInvalidKey
	}
	release, err := c.lifecycle.Enter()
	if err != nil {
		return nil, ErrShuttingDown
	}
	defer release()

	c.stats.IncCounter(stats.MetricReads, 1)
	start := time.Now()

	if !c.config.Enabled || !useCache {
		v, err := c.fetch(ctx, contractID, key)
		if err != nil {
			return nil, err
		}
		c.recorder.RecordUncached(time.Since(start))
		return v, nil
	}

	k := cache.Key{ContractID: contractID, StateKey: key}
	if v, ok := c.store.Get(k); ok {
		c.recorder.RecordHit(time.Since(start))
		return v, nil
	}

	v, err := c.fetchAndFill(ctx, k)
	if err != nil {
		return nil, err
	}
	c.recorder.RecordMiss(time.Since(start))
	return v, nil
}

// fetchAndFill fetches k once for all concurrent callers that observed the
// same invalidation epoch, and caches the result unless k was invalidated
// while the fetch was running or the leading caller gave up.
//
// The shared fetch is admitted by the lifecycle controller on its own, so
// a drain waits for it even after every caller has returned.
func (c *Client) fetchAndFill(ctx context.Context, k cache.Key) ([]byte, error) {
	epoch := c.store.Epoch(k)
	flight := k.String() + "\x00" + strconv.FormatUint(epoch, 10)

	ch := c.flights.DoChan(flight, func() (any, error) {
		release, err := c.lifecycle.Enter()
		if err != nil {
			return nil, errFlightRejected
		}
		defer release()

		if v, ok := c.store.Get(k); ok {
			return v, nil
		}
		v, err := c.fetch(ctx, k.ContractID, k.StateKey)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return v, nil
		}
		c.fill(k, v, epoch)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, c.fetchFailed(k.ContractID, k.StateKey, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.stats.IncCounter(stats.MetricCoalesced, 1)
		}
		if res.Err != nil {
			// Shutdown began before the shared fetch started; this caller
			// was admitted earlier, so it may still read around the cache.
			if errors.Is(res.Err, errFlightRejected) {
				return c.fetch(ctx, k.ContractID, k.StateKey)
			}
			// The leader's context ended; this caller's has not, so try alone.
			if res.Shared && ctx.Err() == nil && isContextErr(res.Err) {
				return c.fetch(ctx, k.ContractID, k.StateKey)
			}
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) fill(k cache.Key, v []byte, epoch uint64) {
	err := c.store.PutIfEpoch(k, v, 0, epoch)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrStaleEpoch):
		c.logger.Debug("discarded value invalidated during fetch",
			zap.String("contract", k.ContractID),
			zap.String("key", k.StateKey),
		)
	default:
		c.logger.Warn("caching fetched value failed",
			zap.String("contract", k.ContractID),
			zap.String("key", k.StateKey),
			zap.Error(err),
		)
	}
}

// fetch calls the fetcher and converts failures to *FetchError.
func (c *Client) fetch(ctx context.Context, contractID, key string) ([]byte, error) {
	v, err := c.fetcher.Fetch(ctx, contractID, key)
	if err != nil {
		return nil, c.fetchFailed(contractID, key, err)
	}
	return v, nil
}

func (c *Client) fetchFailed(contractID, key string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	c.fetchErrors.Add(1)
	c.stats.IncCounter(stats.MetricFetchErrors, 1)
	c.logger.Debug("fetch failed",
		zap.String("contract", contractID),
		zap.String("key", key),
		zap.Error(err),
	)
	return &FetchError{ContractID: contractID, Key: key, Err: err}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Write applies a state mutation and meters it.
//
// If the fetcher implements fetch.Writer the payload is written through it.
// The cached value for the key is then invalidated, so any read that starts
// after Write returns sees the new state, and a resource sample computed by
// the cost model is appended to the contract's ledger. The sample is
// returned even when recording it fails; the mutation is not rolled back.
func (c *Client) Write(ctx context.Context, contractID, key string, payload []byte) (ledger.Sample, error) {
	if c.closed.Load() {
		return ledger.Sample{}, ErrClosed
	}
	if contractID == "" || key == "" {
		return ledger.Sample{}, ErrInvalidKey
	}
	release, err := c.lifecycle.Enter()
	if err != nil {
		return ledger.Sample{}, ErrShuttingDown
	}
	defer release()

	k := cache.Key{ContractID: contractID, StateKey: key}

	if w, ok := c.fetcher.(fetch.Writer); ok {
		if err := w.Put(ctx, contractID, key, payload); err != nil && !errors.Is(err, fetch.ErrReadOnly) {
			c.store.Invalidate(k)
			return ledger.Sample{}, fmt.Errorf("writing %s/%s: %w", contractID, key, err)
		}
	}

	c.store.Invalidate(k)

	sample := c.costs.Sample(contractID, len(payload), c.now())
	if err := c.ledger.Record(sample); err != nil {
		c.logger.Warn("metering write failed",
			zap.String("contract", contractID),
			zap.Error(err),
		)
		return sample, fmt.Errorf("metering write: %w", err)
	}
	return sample, nil
}

// Invalidate drops any cached value for key in contractID.
func (c *Client) Invalidate(contractID, key string) {
	c.store.Invalidate(cache.Key{ContractID: contractID, StateKey: key})
}

// Resources returns the aggregate write cost recorded for contractID.
func (c *Client) Resources(contractID string) ledger.Aggregate {
	return c.ledger.Query(contractID)
}

// RecentSamples returns up to limit of contractID's latest samples, newest first.
func (c *Client) RecentSamples(contractID string, limit int) []ledger.Sample {
	return c.ledger.Samples(contractID, limit)
}

// MeteredContracts returns the ids of contracts with recorded writes.
func (c *Client) MeteredContracts() []string {
	return c.ledger.Contracts()
}

// Config returns the cache configuration.
func (c *Client) Config() Config {
	return c.config
}

// Lifecycle returns the controller gating this client's requests.
func (c *Client) Lifecycle() *lifecycle.Controller {
	return c.lifecycle
}

// Shutdown stops accepting requests and waits for in-flight ones, up to
// the drain timeout or until ctx is done. It returns once the client has
// stopped; the result says whether the stop was clean or forced.
func (c *Client) Shutdown(ctx context.Context) lifecycle.Result {
	res := c.lifecycle.Shutdown(ctx)
	c.haltJanitor()
	return res
}

// Close releases all resources associated with the client.
// After Close, the client should not be used.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	c.haltJanitor()
	_ = c.ledger.Close()

	if err := c.fetcher.Close(); err != nil {
		return fmt.Errorf("closing fetcher: %w", err)
	}
	return nil
}

func (c *Client) haltJanitor() {
	if c.stopJanitor == nil {
		return
	}
	c.stopJanitor()
	<-c.janitorDone
}
