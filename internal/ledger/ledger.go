// Package ledger records the resource cost of contract state writes.
package ledger

import (
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/soroban-registry/statecache/internal/stats"
)

var (
	// ErrEmptyContract is returned when a sample has no contract id.
	ErrEmptyContract = errors.New("ledger: contract id is empty")

	// ErrNegativeCost is returned when a sample carries a negative cost.
	ErrNegativeCost = errors.New("ledger: resource cost is negative")

	// ErrClosed is returned when recording into a closed ledger.
	ErrClosed = errors.New("ledger: closed")
)

// Sample is the cost charged for one write.
type Sample struct {
	ContractID      string
	CPUInstructions int64
	MemBytes        int64
	StorageBytes    int64
	Timestamp       time.Time
}

// Aggregate summarizes every sample recorded for one contract.
type Aggregate struct {
	ContractID string

	Count int64

	TotalCPUInstructions int64
	TotalMemBytes        int64
	TotalStorageBytes    int64

	AvgCPUInstructions float64
	AvgMemBytes        float64
	AvgStorageBytes    float64

	MaxCPUInstructions int64
	MaxMemBytes        int64
	MaxStorageBytes    int64

	FirstRecorded time.Time
	LastRecorded  time.Time
}

// contractLog holds one contract's samples and running totals.
type contractLog struct {
	mu      sync.Mutex
	samples []Sample
	agg     Aggregate
}

// Ledger is an append-only, per-contract record of write costs.
// Writes to different contracts never contend.
type Ledger struct {
	logger    *zap.Logger
	collector stats.Collector
	now       func() time.Time

	contracts sync.Map // string -> *contractLog
	closed    atomic.Bool
	total     atomic.Int64
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Ledger{
		logger:    o.logger.Named("ledger"),
		collector: o.collector,
		now:       o.clock,
	}
}

// Record appends s to its contract's log. A zero timestamp is set to now.
func (l *Ledger) Record(s Sample) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if s.ContractID == "" {
		return ErrEmptyContract
	}
	if s.CPUInstructions < 0 || s.MemBytes < 0 || s.StorageBytes < 0 {
		return ErrNegativeCost
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = l.now()
	}

	v, _ := l.contracts.LoadOrStore(s.ContractID, &contractLog{})
	cl := v.(*contractLog)

	cl.mu.Lock()
	cl.samples = append(cl.samples, s)
	cl.add(s)
	cl.mu.Unlock()

	l.total.Add(1)
	l.collector.IncCounter(stats.MetricWrites, 1)
	l.collector.IncCounter(stats.MetricCPUInstructions, s.CPUInstructions)
	l.collector.IncCounter(stats.MetricMemBytes, s.MemBytes)
	l.collector.IncCounter(stats.MetricStorageBytes, s.StorageBytes)

	l.logger.Debug("sample recorded",
		zap.String("contract", s.ContractID),
		zap.Int64("cpu", s.CPUInstructions),
		zap.Int64("mem", s.MemBytes),
		zap.Int64("storage", s.StorageBytes),
	)
	return nil
}

// add folds s into the running aggregate. Caller holds cl.mu.
func (cl *contractLog) add(s Sample) {
	a := &cl.agg
	a.ContractID = s.ContractID
	a.Count++
	a.TotalCPUInstructions = saturatingAdd(a.TotalCPUInstructions, s.CPUInstructions)
	a.TotalMemBytes = saturatingAdd(a.TotalMemBytes, s.MemBytes)
	a.TotalStorageBytes = saturatingAdd(a.TotalStorageBytes, s.StorageBytes)
	a.MaxCPUInstructions = max(a.MaxCPUInstructions, s.CPUInstructions)
	a.MaxMemBytes = max(a.MaxMemBytes, s.MemBytes)
	a.MaxStorageBytes = max(a.MaxStorageBytes, s.StorageBytes)
	if a.FirstRecorded.IsZero() || s.Timestamp.Before(a.FirstRecorded) {
		a.FirstRecorded = s.Timestamp
	}
	if s.Timestamp.After(a.LastRecorded) {
		a.LastRecorded = s.Timestamp
	}
}

// Query returns the aggregate for contractID. A contract without samples
// yields a zero aggregate carrying only the id.
func (l *Ledger) Query(contractID string) Aggregate {
	v, ok := l.contracts.Load(contractID)
	if !ok {
		return Aggregate{ContractID: contractID}
	}
	cl := v.(*contractLog)

	cl.mu.Lock()
	a := cl.agg
	cl.mu.Unlock()

	if a.Count > 0 {
		n := float64(a.Count)
		a.AvgCPUInstructions = float64(a.TotalCPUInstructions) / n
		a.AvgMemBytes = float64(a.TotalMemBytes) / n
		a.AvgStorageBytes = float64(a.TotalStorageBytes) / n
	}
	return a
}

// Samples returns up to limit of the contract's most recent samples, newest
// first. A limit <= 0 returns all of them.
func (l *Ledger) Samples(contractID string, limit int) []Sample {
	v, ok := l.contracts.Load(contractID)
	if !ok {
		return nil
	}
	cl := v.(*contractLog)

	cl.mu.Lock()
	defer cl.mu.Unlock()

	n := len(cl.samples)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Sample, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, cl.samples[i])
	}
	return out
}

// Contracts returns the sorted ids of contracts with at least one sample.
func (l *Ledger) Contracts() []string {
	var ids []string
	l.contracts.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Len returns the number of samples recorded across all contracts.
func (l *Ledger) Len() int64 {
	return l.total.Load()
}

// Close stops the ledger from accepting samples. Queries keep working.
func (l *Ledger) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return nil
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
