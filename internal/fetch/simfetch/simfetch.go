// Package simfetch provides an in-memory fetcher with simulated downstream
// latency and injectable failures.
package simfetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soroban-registry/statecache/internal/fetch"
)

// Compile-time checks.
var (
	_ fetch.Fetcher = (*Fetcher)(nil)
	_ fetch.Writer  = (*Fetcher)(nil)
)

// Generator produces a value for a key that was never stored.
type Generator func(contractID, key string) []byte

// Fetcher is an in-memory fetcher. Every call sleeps for the configured
// delay before answering, honouring context cancellation.
type Fetcher struct {
	delay      time.Duration
	writeDelay time.Duration
	generate   Generator

	mu     sync.RWMutex
	values map[string][]byte
	err    error
	failN  int

	fetches atomic.Int64
	puts    atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDelay sets the latency of every Fetch.
func WithDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.delay = d
	}
}

// WithWriteDelay sets the latency of every Put.
func WithWriteDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.writeDelay = d
	}
}

// WithGenerator answers fetches for unknown keys with g instead of
// fetch.ErrNotFound.
func WithGenerator(g Generator) Option {
	return func(f *Fetcher) {
		f.generate = g
	}
}

// New creates an empty fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		values: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// JSONGenerator returns a generator producing a JSON document naming the
// contract, the key, a synthetic value and the fetch time read from now.
func JSONGenerator(now func() time.Time) Generator {
	if now == nil {
		now = time.Now
	}
	return func(contractID, key string) []byte {
		return fmt.Appendf(nil,
			`{"contract_id":%q,"key":%q,"value":%q,"fetched_at":%q}`,
			contractID, key, "state_of_"+contractID+"_"+key,
			now().UTC().Format(time.RFC3339Nano),
		)
	}
}

// Set stores a value directly, without delay (for test setup).
// The data is copied to prevent caller mutations from affecting the fetcher.
func (f *Fetcher) Set(contractID, key string, value []byte) {
	copied := make([]byte, len(value))
	copy(copied, value)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[mapKey(contractID, key)] = copied
}

// FailWith makes every later Fetch and Put fail with err until cleared
// with FailWith(nil).
func (f *Fetcher) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.failN = -1
	if err == nil {
		f.failN = 0
	}
}

// FailNext makes the next n calls fail with err.
func (f *Fetcher) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.failN = n
}

// Fetch returns the stored value after the configured delay.
func (f *Fetcher) Fetch(ctx context.Context, contractID, key string) ([]byte, error) {
	f.fetches.Add(1)
	if err := sleep(ctx, f.delay); err != nil {
		return nil, err
	}
	if err := f.injected(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	v, ok := f.values[mapKey(contractID, key)]
	f.mu.RUnlock()
	if ok {
		return v, nil
	}
	if f.generate != nil {
		return f.generate(contractID, key), nil
	}
	return nil, fetch.ErrNotFound
}

// Put stores value after the configured write delay.
func (f *Fetcher) Put(ctx context.Context, contractID, key string, value []byte) error {
	f.puts.Add(1)
	if err := sleep(ctx, f.writeDelay); err != nil {
		return err
	}
	if err := f.injected(); err != nil {
		return err
	}
	f.Set(contractID, key, value)
	return nil
}

// Fetches returns how many times Fetch was called.
func (f *Fetcher) Fetches() int64 {
	return f.fetches.Load()
}

// Puts returns how many times Put was called.
func (f *Fetcher) Puts() int64 {
	return f.puts.Load()
}

// Close is a no-op for the simulated fetcher.
func (f *Fetcher) Close() error {
	return nil
}

func (f *Fetcher) injected() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.failN == 0:
		return nil
	case f.failN > 0:
		f.failN--
	}
	return f.err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func mapKey(contractID, key string) string {
	return contractID + "\x00" + key
}
