package cache

import (
	"container/heap"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/soroban-registry/statecache/internal/stats"
)

// removal says why an entry is leaving a shard.
type removal int

const (
	removalInvalidate removal = iota
	removalReplace
	removalExpire
	removalEvict
	removalClear
)

type entry struct {
	key        Key
	value      []byte
	insertedAt time.Time
	expiresAt  time.Time
	index      int // position in the expiry heap, -1 once removed
}

func (e *entry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// segment owns a slice of the key space. The recency list and the expiry heap
// always hold the same entries; both change only under mu.
type segment struct {
	store    *Store
	capacity int

	mu     sync.Mutex
	items  *simplelru.LRU[Key, *entry]
	expiry expiryHeap
	epoch  uint64
	reason removal
}

func newSegment(s *Store, capacity int) (*segment, error) {
	sh := &segment{store: s, capacity: capacity}
	items, err := simplelru.NewLRU[Key, *entry](capacity, sh.onRemove)
	if err != nil {
		return nil, err
	}
	sh.items = items
	return sh, nil
}

// onRemove runs inside every simplelru removal, with mu held.
func (sh *segment) onRemove(_ Key, e *entry) {
	if e.index >= 0 {
		heap.Remove(&sh.expiry, e.index)
	}
	s := sh.store
	s.collector.SetGauge(stats.MetricEntries, s.entries.Add(-1))
	switch sh.reason {
	case removalEvict:
		s.evictions.Add(1)
		s.collector.IncCounter(stats.MetricEvictions, 1)
	case removalExpire:
		s.expirations.Add(1)
		s.collector.IncCounter(stats.MetricExpirations, 1)
	}
}

func (sh *segment) remove(k Key, why removal) bool {
	sh.reason = why
	return sh.items.Remove(k)
}

func (sh *segment) get(k Key, now time.Time) ([]byte, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items.Peek(k)
	if !ok {
		return nil, false
	}
	if !e.live(now) {
		sh.remove(k, removalExpire)
		return nil, false
	}
	sh.items.Get(k) // refresh recency
	return e.value, true
}

func (sh *segment) put(k Key, value []byte, ttl time.Duration, now time.Time, epoch *uint64) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if epoch != nil && *epoch != sh.epoch {
		return ErrStaleEpoch
	}

	if sh.items.Contains(k) {
		sh.remove(k, removalReplace)
	} else if sh.items.Len() >= sh.capacity {
		sh.purgeLocked(now)
		if sh.items.Len() >= sh.capacity {
			sh.reason = removalEvict
			if _, _, ok := sh.items.RemoveOldest(); !ok {
				return ErrCapacityConflict
			}
		}
	}

	e := &entry{
		key:        k,
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}
	heap.Push(&sh.expiry, e)
	sh.items.Add(k, e)

	n := sh.store.entries.Add(1)
	sh.store.collector.SetGauge(stats.MetricEntries, n)
	return nil
}

func (sh *segment) invalidate(k Key) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.epoch++
	return sh.remove(k, removalInvalidate)
}

func (sh *segment) currentEpoch() uint64 {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.epoch
}

func (sh *segment) purge(now time.Time) int {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.purgeLocked(now)
}

func (sh *segment) purgeLocked(now time.Time) int {
	removed := 0
	for len(sh.expiry) > 0 && !sh.expiry[0].live(now) {
		sh.remove(sh.expiry[0].key, removalExpire)
		removed++
	}
	return removed
}

func (sh *segment) clear() {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.reason = removalClear
	sh.items.Purge()
	sh.epoch++
}
