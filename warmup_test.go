package statecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soroban-registry/statecache/internal/fetch/simfetch"
	"github.com/soroban-registry/statecache/internal/snapshot"
)

func TestClient_WarmUp(t *testing.T) {
	f := simfetch.New()
	c := newTestClient(t, f)
	ctx := context.Background()

	src := snapshot.Static{
		{ContractID: "C1", Key: "balance", Value: []byte("100")},
		{ContractID: "C1", Key: "owner", Value: []byte("GABC")},
		{ContractID: "C2", Key: "admin", Value: []byte("GDEF")},
	}

	res, err := c.WarmUp(ctx, src, 0)
	if err != nil {
		t.Fatalf("WarmUp() error = %v", err)
	}
	if res.Loaded != 3 || res.Failed != 0 {
		t.Errorf("WarmUp() = %+v, want 3 loaded", res)
	}

	got, err := c.Read(ctx, "C1", "owner", true)
	if err != nil || string(got) != "GABC" {
		t.Errorf("Read() = %q, %v; want %q", got, err, "GABC")
	}
	if f.Fetches() != 0 {
		t.Errorf("Fetches() = %d, want 0 for warmed keys", f.Fetches())
	}
	if c.Stats().Hits != 1 {
		t.Errorf("Hits = %d, want 1", c.Stats().Hits)
	}
}

func TestClient_WarmUpKeepsNewest(t *testing.T) {
	c := newTestClient(t, simfetch.New(), WithMaxCapacity(2), WithShards(1))

	// Sources list entries newest first.
	src := snapshot.Static{
		{ContractID: "C1", Key: "k3", Value: []byte("3")},
		{ContractID: "C1", Key: "k2", Value: []byte("2")},
		{ContractID: "C1", Key: "k1", Value: []byte("1")},
	}
	if _, err := c.WarmUp(context.Background(), src, 0); err != nil {
		t.Fatalf("WarmUp() error = %v", err)
	}

	for _, key := range []string{"k3", "k2"} {
		if _, err := c.Read(context.Background(), "C1", key, true); err != nil {
			t.Errorf("Read(%s) error = %v, want warmed value", key, err)
		}
	}
	if got := c.Stats().Hits; got != 2 {
		t.Errorf("Hits = %d, want 2", got)
	}
}

func TestClient_WarmUpSkipsBadEntries(t *testing.T) {
	c := newTestClient(t, simfetch.New())

	src := snapshot.Static{
		{ContractID: "C1", Key: "balance", Value: []byte("100")},
		{ContractID: "", Key: "orphan", Value: []byte("x")},
		{ContractID: "C1", Key: "", Value: []byte("y")},
	}
	res, err := c.WarmUp(context.Background(), src, 0)
	if err != nil {
		t.Fatalf("WarmUp() error = %v", err)
	}
	if res.Loaded != 1 || res.Failed != 2 {
		t.Errorf("WarmUp() = %+v, want 1 loaded and 2 failed", res)
	}
}

func TestClient_WarmUpSourceError(t *testing.T) {
	boom := errors.New("db unavailable")
	f := simfetch.New()
	f.Set("C1", "balance", []byte("100"))
	c := newTestClient(t, f)

	src := snapshot.SourceFunc(func(context.Context, int) ([]snapshot.Entry, error) {
		return nil, boom
	})
	if _, err := c.WarmUp(context.Background(), src, 10); !errors.Is(err, boom) {
		t.Errorf("WarmUp() error = %v, want %v", err, boom)
	}

	// The client still serves after a failed warm-up.
	if _, err := c.Read(context.Background(), "C1", "balance", true); err != nil {
		t.Errorf("Read() error = %v", err)
	}
}

func TestClient_WarmUpDisabled(t *testing.T) {
	c := newTestClient(t, simfetch.New(), WithCacheEnabled(false))

	called := false
	src := snapshot.SourceFunc(func(context.Context, int) ([]snapshot.Entry, error) {
		called = true
		return nil, nil
	})
	res, err := c.WarmUp(context.Background(), src, 10)
	if err != nil {
		t.Fatalf("WarmUp() error = %v", err)
	}
	if called || res.Loaded != 0 {
		t.Errorf("WarmUp() loaded %d, source called %v; want a no-op", res.Loaded, called)
	}
}

func TestClient_WarmUpCancelled(t *testing.T) {
	c := newTestClient(t, simfetch.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := snapshot.SourceFunc(func(context.Context, int) ([]snapshot.Entry, error) {
		return []snapshot.Entry{{ContractID: "C1", Key: "k", Value: []byte("v"), UpdatedAt: time.Now()}}, nil
	})
	if _, err := c.WarmUp(ctx, src, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("WarmUp() error = %v, want %v", err, context.Canceled)
	}
}
