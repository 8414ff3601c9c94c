// Package limitfetch paces calls to a downstream fetcher.
package limitfetch

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/soroban-registry/statecache/internal/fetch"
)

// Compile-time checks.
var (
	_ fetch.Fetcher = (*Fetcher)(nil)
	_ fetch.Writer  = (*Fetcher)(nil)
)

// Fetcher wraps another fetcher with a token-bucket limiter shared by
// fetches and writes.
type Fetcher struct {
	next    fetch.Fetcher
	limiter *rate.Limiter
}

// New allows at most perSecond calls per second to next, with bursts of up
// to burst calls. A burst below 1 is raised to 1.
func New(next fetch.Fetcher, perSecond float64, burst int) *Fetcher {
	if burst < 1 {
		burst = 1
	}
	return &Fetcher{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Fetch waits for a token and then fetches from the wrapped fetcher.
func (f *Fetcher) Fetch(ctx context.Context, contractID, key string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for fetch slot: %w", err)
	}
	return f.next.Fetch(ctx, contractID, key)
}

// Put waits for a token and then writes through the wrapped fetcher.
// It returns fetch.ErrReadOnly if the wrapped fetcher cannot write.
func (f *Fetcher) Put(ctx context.Context, contractID, key string, value []byte) error {
	w, ok := f.next.(fetch.Writer)
	if !ok {
		return fetch.ErrReadOnly
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for write slot: %w", err)
	}
	return w.Put(ctx, contractID, key, value)
}

// Close closes the wrapped fetcher.
func (f *Fetcher) Close() error {
	return f.next.Close()
}
