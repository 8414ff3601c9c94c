// Package cache implements the bounded, time-limited contract state store.
//
// Entries expire a fixed TTL after insertion; reading an entry refreshes its
// recency but never its expiry. When a shard is full, expired entries are
// purged first and then the least recently used live entry is evicted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/soroban-registry/statecache/internal/shard"
	"github.com/soroban-registry/statecache/internal/stats"
)

var (
	// ErrInvalidCapacity is returned when the capacity is not positive.
	ErrInvalidCapacity = errors.New("cache: capacity must be positive")

	// ErrInvalidTTL is returned when the global TTL is not positive.
	ErrInvalidTTL = errors.New("cache: ttl must be positive")

	// ErrCapacityConflict is returned when no slot could be freed for a new key.
	// The value was not stored; callers continue without caching it.
	ErrCapacityConflict = errors.New("cache: eviction could not free a slot")

	// ErrStaleEpoch is returned by PutIfEpoch when the key's shard was
	// invalidated after the epoch was observed.
	ErrStaleEpoch = errors.New("cache: key invalidated since epoch was read")
)

// Key identifies one state value of one contract.
type Key struct {
	ContractID string
	StateKey   string
}

// String returns the key in the form used for shard hashing.
func (k Key) String() string {
	return k.ContractID + "\x00" + k.StateKey
}

// Stats describes the store's current occupancy and removal counts.
type Stats struct {
	Entries     int
	Capacity    int
	Shards      int
	Evictions   int64
	Expirations int64
}

// Store is a sharded key/value store with per-entry TTL and LRU capacity
// eviction. It is safe for concurrent use.
//
// Stored values are shared with readers and must not be modified after Put.
type Store struct {
	shards   []*segment
	strategy shard.Strategy
	capacity int
	ttl      time.Duration
	now      func() time.Time

	logger    *zap.Logger
	collector stats.Collector

	entries     atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// New creates a store holding at most capacity entries, each expiring after
// ttl unless Put is given its own TTL.
func New(capacity int, ttl time.Duration, opts ...Option) (*Store, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	n := o.shards
	if n <= 0 {
		n = DefaultShards
	}
	if n > capacity {
		n = capacity
	}

	s := &Store{
		strategy:  o.strategy,
		capacity:  capacity,
		ttl:       ttl,
		now:       o.clock,
		logger:    o.logger.Named("cache"),
		collector: o.collector,
	}

	s.shards = make([]*segment, n)
	base, extra := capacity/n, capacity%n
	for i := range s.shards {
		c := base
		if i < extra {
			c++
		}
		sh, err := newSegment(s, c)
		if err != nil {
			return nil, fmt.Errorf("creating shard %d: %w", i, err)
		}
		s.shards[i] = sh
	}

	s.logger.Debug("store created",
		zap.Int("capacity", capacity),
		zap.Duration("ttl", ttl),
		zap.Int("shards", n),
		zap.String("strategy", s.strategy.Name()),
	)
	return s, nil
}

// Get returns the live value stored under k.
// Missing and expired keys report false.
func (s *Store) Get(k Key) ([]byte, bool) {
	return s.shardFor(k).get(k, s.now())
}

// Put stores value under k, replacing any previous value.
// A ttl <= 0 uses the store's global TTL.
func (s *Store) Put(k Key, value []byte, ttl time.Duration) error {
	return s.shardFor(k).put(k, value, s.ttlOrDefault(ttl), s.now(), nil)
}

// Epoch returns the invalidation epoch of k's shard. Pass it to PutIfEpoch
// to store a value only if no invalidation touched the shard in between.
func (s *Store) Epoch(k Key) uint64 {
	return s.shardFor(k).currentEpoch()
}

// PutIfEpoch is Put guarded by an epoch obtained from Epoch before the value
// was produced. It returns ErrStaleEpoch without storing if the shard has
// been invalidated since.
func (s *Store) PutIfEpoch(k Key, value []byte, ttl time.Duration, epoch uint64) error {
	err := s.shardFor(k).put(k, value, s.ttlOrDefault(ttl), s.now(), &epoch)
	if errors.Is(err, ErrStaleEpoch) {
		s.collector.IncCounter(stats.MetricStaleDrops, 1)
	}
	return err
}

// Invalidate removes k. It reports whether an entry was present.
// Invalidating a missing key is a no-op apart from advancing the epoch.
func (s *Store) Invalidate(k Key) bool {
	present := s.shardFor(k).invalidate(k)
	s.collector.IncCounter(stats.MetricInvalidates, 1)
	return present
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (s *Store) PurgeExpired() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		removed += sh.purge(now)
	}
	if removed > 0 {
		s.logger.Debug("purged expired entries", zap.Int("removed", removed))
	}
	return removed
}

// Clear removes every entry without counting evictions or expirations.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.clear()
	}
}

// RunJanitor purges expired entries every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PurgeExpired()
		}
	}
}

// Len returns the number of resident entries, including expired entries not
// yet purged.
func (s *Store) Len() int {
	return int(s.entries.Load())
}

// Capacity returns the maximum number of resident entries.
func (s *Store) Capacity() int {
	return s.capacity
}

// TTL returns the global TTL.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Stats returns current store statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Entries:     s.Len(),
		Capacity:    s.capacity,
		Shards:      len(s.shards),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
	}
}

func (s *Store) shardFor(k Key) *segment {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	return s.shards[s.strategy.ShardID(k.String(), len(s.shards))]
}

func (s *Store) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.ttl
	}
	return ttl
}
