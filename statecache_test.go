package statecache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soroban-registry/statecache/internal/fetch"
	"github.com/soroban-registry/statecache/internal/fetch/simfetch"
	"github.com/soroban-registry/statecache/internal/lifecycle"
)

func newTestClient(t *testing.T, f fetch.Fetcher, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithFetcher(f), WithJanitorInterval(0)}, opts...)
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type readOnlyFetcher struct {
	value []byte
	calls int
	mu    sync.Mutex
}

func (r *readOnlyFetcher) Fetch(context.Context, string, string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.value, nil
}

func (r *readOnlyFetcher) Close() error { return nil }

// gatedFetcher captures its value when called, reports the call on
// started and returns only once proceed is closed, ignoring ctx.
type gatedFetcher struct {
	mu      sync.Mutex
	value   []byte
	started chan struct{}
	proceed chan struct{}
}

func newGatedFetcher(value string) *gatedFetcher {
	return &gatedFetcher{
		value:   []byte(value),
		started: make(chan struct{}, 8),
		proceed: make(chan struct{}),
	}
}

func (g *gatedFetcher) Fetch(context.Context, string, string) ([]byte, error) {
	g.mu.Lock()
	v := g.value
	g.mu.Unlock()
	g.started <- struct{}{}
	<-g.proceed
	return v, nil
}

func (g *gatedFetcher) set(value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = []byte(value)
}

func (g *gatedFetcher) Close() error { return nil }

func TestNew_NoFetcher(t *testing.T) {
	if _, err := New(); !errors.Is(err, ErrNoFetcher) {
		t.Errorf("New() error = %v, want %v", err, ErrNoFetcher)
	}
}

func TestNew_InvalidCache(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero capacity", WithMaxCapacity(0)},
		{"zero ttl", WithTTL(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(WithFetcher(simfetch.New()), tt.opt); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestClient_ReadMissThenHit(t *testing.T) {
	f := simfetch.New()
	f.Set("C1", "balance", []byte("100"))
	c := newTestClient(t, f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Read(ctx, "C1", "balance", true)
		if err != nil {
			t.Fatalf("Read() #%d error = %v", i, err)
		}
		if string(got) != "100" {
			t.Errorf("Read() #%d = %q, want %q", i, got, "100")
		}
	}

	if got := f.Fetches(); got != 1 {
		t.Errorf("Fetches() = %d, want 1", got)
	}
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("Stats() hits=%d misses=%d, want 2 and 1", s.Hits, s.Misses)
	}
	if s.Uncached != 0 {
		t.Errorf("Stats() uncached = %d, want 0", s.Uncached)
	}
	if s.Entries != 1 {
		t.Errorf("Stats() entries = %d, want 1", s.Entries)
	}
}

func TestClient_ReadUncached(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		useCache bool
	}{
		{"per-request bypass", true, false},
		{"cache disabled", false, true},
		{"both off", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := simfetch.New()
			f.Set("C1", "balance", []byte("100"))
			c := newTestClient(t, f, WithCacheEnabled(tt.enabled))

			for i := 0; i < 3; i++ {
				if _, err := c.Read(context.Background(), "C1", "balance", tt.useCache); err != nil {
					t.Fatalf("Read() error = %v", err)
				}
			}

			if got := f.Fetches(); got != 3 {
				t.Errorf("Fetches() = %d, want 3", got)
			}
			s := c.Stats()
			if s.Hits != 0 || s.Misses != 0 {
				t.Errorf("hits=%d misses=%d, want 0 and 0", s.Hits, s.Misses)
			}
			if s.Uncached != 3 {
				t.Errorf("uncached = %d, want 3", s.Uncached)
			}
			if s.HitRate != 0 {
				t.Errorf("HitRate = %v, want 0", s.HitRate)
			}
			if s.Entries != 0 {
				t.Errorf("entries = %d, want 0", s.Entries)
			}
		})
	}
}

func TestClient_ReadFetchError(t *testing.T) {
	boom := errors.New("rpc timeout")
	f := simfetch.New()
	f.Set("C1", "balance", []byte("100"))
	f.FailNext(1, boom)
	c := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.Read(ctx, "C1", "balance", true)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Read() error = %v, want *FetchError", err)
	}
	if fe.ContractID != "C1" || fe.Key != "balance" || !errors.Is(err, boom) {
		t.Errorf("FetchError = %+v, want C1/balance wrapping %v", fe, boom)
	}

	s := c.Stats()
	if s.Misses != 0 || s.FetchErrors != 1 || s.Entries != 0 {
		t.Errorf("after failure misses=%d fetchErrors=%d entries=%d, want 0, 1, 0", s.Misses, s.FetchErrors, s.Entries)
	}

	// The error was not cached: the next read fetches again and succeeds.
	got, err := c.Read(ctx, "C1", "balance", true)
	if err != nil || string(got) != "100" {
		t.Errorf("Read() after failure = %q, %v; want %q, nil", got, err, "100")
	}
	if f.Fetches() != 2 {
		t.Errorf("Fetches() = %d, want 2", f.Fetches())
	}
}

func TestClient_ReadNotFound(t *testing.T) {
	c := newTestClient(t, simfetch.New())
	_, err := c.Read(context.Background(), "C1", "missing", true)
	if !errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("Read() error = %v, want %v", err, fetch.ErrNotFound)
	}
}

func TestClient_ReadCancelled(t *testing.T) {
	f := simfetch.New(simfetch.WithDelay(time.Hour))
	f.Set("C1", "balance", []byte("100"))
	c := newTestClient(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Read(ctx, "C1", "balance", true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries = %d, want 0 after cancelled fetch", got)
	}
	waitInFlight(t, c, 0)
}

func TestClient_InvalidKey(t *testing.T) {
	c := newTestClient(t, simfetch.New())
	ctx := context.Background()

	if _, err := c.Read(ctx, "", "k", true); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Read() error = %v, want %v", err, ErrInvalidKey)
	}
	if _, err := c.Write(ctx, "C1", "", nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Write() error = %v, want %v", err, ErrInvalidKey)
	}
}

func TestClient_ReadExpires(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	f := simfetch.New()
	f.Set("C1", "balance", []byte("100"))
	c := newTestClient(t, f, WithTTL(10*time.Second), WithClock(clock))
	ctx := context.Background()

	_, _ = c.Read(ctx, "C1", "balance", true)
	advance(9 * time.Second)
	_, _ = c.Read(ctx, "C1", "balance", true)
	if f.Fetches() != 1 {
		t.Fatalf("Fetches() before expiry = %d, want 1", f.Fetches())
	}

	advance(time.Second)
	_, _ = c.Read(ctx, "C1", "balance", true)
	if f.Fetches() != 2 {
		t.Errorf("Fetches() at expiry = %d, want 2", f.Fetches())
	}
}

func TestClient_WriteInvalidatesAndMeters(t *testing.T) {
	f := simfetch.New()
	f.Set("C1", "balance", []byte("old"))
	c := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.Read(ctx, "C1", "balance", true); err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	payload := []byte(strings.Repeat("x", 100))
	sample, err := c.Write(ctx, "C1", "balance", payload)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if sample.StorageBytes != 100 {
		t.Errorf("StorageBytes = %d, want 100", sample.StorageBytes)
	}
	if sample.CPUInstructions != 180_000+100*90 {
		t.Errorf("CPUInstructions = %d, want %d", sample.CPUInstructions, 180_000+100*90)
	}
	if sample.MemBytes != 1_200_000+100*64 {
		t.Errorf("MemBytes = %d, want %d", sample.MemBytes, 1_200_000+100*64)
	}

	agg := c.Resources("C1")
	if agg.Count != 1 || agg.TotalStorageBytes != 100 {
		t.Errorf("Resources() = %+v, want one sample of 100 bytes", agg)
	}
	if got := c.RecentSamples("C1", 5); len(got) != 1 {
		t.Errorf("RecentSamples() returned %d samples, want 1", len(got))
	}

	got, err := c.Read(ctx, "C1", "balance", true)
	if err != nil {
		t.Fatalf("Read() after Write() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Read() after Write() = %q, want the written payload", got)
	}
	if f.Fetches() != 2 {
		t.Errorf("Fetches() = %d, want 2; the write must force a re-fetch", f.Fetches())
	}
}

func TestClient_WriteReadOnlyFetcher(t *testing.T) {
	f := &readOnlyFetcher{value: []byte("v")}
	c := newTestClient(t, f)
	ctx := context.Background()

	_, _ = c.Read(ctx, "C1", "k", true)
	if _, err := c.Write(ctx, "C1", "k", []byte("abc")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	_, _ = c.Read(ctx, "C1", "k", true)

	if f.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", f.calls)
	}
	if got := c.Resources("C1").TotalStorageBytes; got != 3 {
		t.Errorf("TotalStorageBytes = %d, want 3", got)
	}
}

func TestClient_WriteMutationFails(t *testing.T) {
	boom := errors.New("ledger node down")
	f := simfetch.New()
	f.Set("C1", "k", []byte("v"))
	c := newTestClient(t, f)
	ctx := context.Background()

	_, _ = c.Read(ctx, "C1", "k", true)
	f.FailNext(1, boom)

	if _, err := c.Write(ctx, "C1", "k", []byte("new")); !errors.Is(err, boom) {
		t.Fatalf("Write() error = %v, want %v", err, boom)
	}
	if got := c.Resources("C1").Count; got != 0 {
		t.Errorf("Resources().Count = %d, want 0 for a failed mutation", got)
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries = %d, want 0", got)
	}
}

func TestClient_CoalescesMisses(t *testing.T) {
	f := simfetch.New(simfetch.WithDelay(50 * time.Millisecond))
	f.Set("C1", "balance", []byte("100"))
	c := newTestClient(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Read(context.Background(), "C1", "balance", true)
			if err != nil || string(got) != "100" {
				t.Errorf("Read() = %q, %v", got, err)
			}
		}()
	}
	wg.Wait()

	if got := f.Fetches(); got != 1 {
		t.Errorf("Fetches() = %d, want 1", got)
	}
}

func TestClient_InvalidateDuringFetch(t *testing.T) {
	f := newGatedFetcher("old")
	c := newTestClient(t, f)
	ctx := context.Background()

	done := make(chan []byte)
	go func() {
		v, _ := c.Read(ctx, "C1", "balance", true)
		done <- v
	}()

	<-f.started
	f.set("new")
	c.Invalidate("C1", "balance")
	close(f.proceed)

	if got := <-done; string(got) != "old" {
		t.Errorf("racing Read() = %q, want %q", got, "old")
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries = %d, want 0; a value fetched across an invalidation must not be cached", got)
	}

	got, err := c.Read(ctx, "C1", "balance", true)
	if err != nil || string(got) != "new" {
		t.Errorf("Read() after invalidation = %q, %v; want %q", got, err, "new")
	}
}

func TestClient_CancelledReadDrainsFetchWithoutCaching(t *testing.T) {
	f := newGatedFetcher("100")
	c := newTestClient(t, f, WithDrainTimeout(5*time.Second), WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Read(ctx, "C1", "balance", true)
		errc <- err
	}()

	<-f.started
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Read() error = %v, want %v", err, context.Canceled)
	}
	// The caller is gone; its fetch is still running.
	if got := c.Lifecycle().InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, want 1 while the fetch runs", got)
	}

	resc := make(chan lifecycle.Result, 1)
	go func() { resc <- c.Shutdown(context.Background()) }()

	select {
	case res := <-resc:
		t.Fatalf("Shutdown() = %+v before the fetch finished", res)
	case <-time.After(50 * time.Millisecond):
	}

	close(f.proceed)
	res := <-resc
	if res.Outcome != lifecycle.OutcomeClean {
		t.Errorf("Outcome = %v, want clean", res.Outcome)
	}
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("entries = %d, want 0; a cancelled fetch must not populate the cache", got)
	}
}

func TestClient_ConcurrentReadsAndWrites(t *testing.T) {
	f := simfetch.New()
	pre, post := []byte("pre-write-state"), []byte("post-write-state")
	f.Set("C1", "balance", pre)
	c := newTestClient(t, f, WithMaxCapacity(4))

	var wg sync.WaitGroup
	errs := make(chan error, 2000)
	for i := 0; i < 1000; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			got, err := c.Read(context.Background(), "C1", "balance", true)
			if err != nil {
				errs <- err
				return
			}
			if s := string(got); s != string(pre) && s != string(post) {
				errs <- errors.New("torn read: " + s)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := c.Write(context.Background(), "C1", "balance", post); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if got := c.Resources("C1").Count; got != 1000 {
		t.Errorf("Resources().Count = %d, want 1000", got)
	}
	if got := c.Lifecycle().InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}

	// Every write has completed, so the next read must see the new state.
	got, err := c.Read(context.Background(), "C1", "balance", true)
	if err != nil || string(got) != string(post) {
		t.Errorf("final Read() = %q, %v; want %q", got, err, post)
	}
}

func TestClient_ShutdownCleanDrain(t *testing.T) {
	f := simfetch.New(simfetch.WithDelay(100 * time.Millisecond))
	f.Set("C1", "balance", []byte("100"))
	c := newTestClient(t, f, WithDrainTimeout(2*time.Second), WithPollInterval(5*time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Read(context.Background(), "C1", string(rune('a'+i)), false); err != nil && !errors.Is(err, fetch.ErrNotFound) {
				t.Errorf("Read() error = %v", err)
			}
		}(i)
	}
	waitInFlight(t, c, 3)

	res := c.Shutdown(context.Background())
	wg.Wait()

	if res.Outcome != lifecycle.OutcomeClean {
		t.Errorf("Outcome = %v, want clean", res.Outcome)
	}
	if _, err := c.Read(context.Background(), "C1", "balance", true); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Read() after Shutdown() error = %v, want %v", err, ErrShuttingDown)
	}
	if _, err := c.Write(context.Background(), "C1", "balance", nil); !errors.Is(err, lifecycle.ErrDraining) {
		t.Errorf("Write() after Shutdown() error = %v, want %v", err, lifecycle.ErrDraining)
	}
	if got := c.Stats().State; got != "stopped" {
		t.Errorf("Stats().State = %q, want %q", got, "stopped")
	}
}

func TestClient_ShutdownForced(t *testing.T) {
	f := simfetch.New(simfetch.WithDelay(time.Hour))
	c := newTestClient(t, f, WithDrainTimeout(100*time.Millisecond), WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _, _ = c.Read(ctx, "C1", "hang", true) }()
	// The read and its shared fetch.
	waitInFlight(t, c, 2)

	res := c.Shutdown(context.Background())
	if res.Outcome != lifecycle.OutcomeForced || res.Remaining != 2 {
		t.Errorf("Shutdown() = %+v, want forced with 2 remaining", res)
	}
	if res.Outcome.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", res.Outcome.ExitCode())
	}
}

func TestClient_Close(t *testing.T) {
	c, err := New(WithFetcher(simfetch.New()), WithJanitorInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want %v", err, ErrClosed)
	}
	if _, err := c.Read(context.Background(), "C1", "k", true); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() after Close() error = %v, want %v", err, ErrClosed)
	}
}

func TestClient_StatsConfig(t *testing.T) {
	c := newTestClient(t, simfetch.New(), WithTTL(90*time.Second), WithMaxCapacity(500), WithCacheEnabled(false))
	s := c.Stats()
	if s.Enabled || s.TTLSeconds != 90 || s.MaxCapacity != 500 {
		t.Errorf("Stats() config = enabled %v, ttl %d, capacity %d", s.Enabled, s.TTLSeconds, s.MaxCapacity)
	}
	if s.State != "accepting" {
		t.Errorf("State = %q, want %q", s.State, "accepting")
	}
	if cfg := c.Config(); cfg.TTL != 90*time.Second {
		t.Errorf("Config().TTL = %v", cfg.TTL)
	}
}

func waitInFlight(t *testing.T, c *Client, n int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Lifecycle().InFlight() != n {
		if time.Now().After(deadline) {
			t.Fatalf("InFlight() = %d, want %d", c.Lifecycle().InFlight(), n)
		}
		time.Sleep(time.Millisecond)
	}
}
