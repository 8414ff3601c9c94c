package diskfetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soroban-registry/statecache/internal/codec"
	_ "github.com/soroban-registry/statecache/internal/codec/gzipcodec"
	_ "github.com/soroban-registry/statecache/internal/codec/noopcodec"
	"github.com/soroban-registry/statecache/internal/codec/zstdcodec"
	"github.com/soroban-registry/statecache/internal/fetch"
)

func TestNew_InvalidRoot(t *testing.T) {
	if _, err := New("/nonexistent/path/12345", zstdcodec.New()); err == nil {
		t.Error("New() with missing root should fail")
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(file, zstdcodec.New()); err == nil {
		t.Error("New() with a file as root should fail")
	}
}

func TestFetcher_PutFetch(t *testing.T) {
	for _, name := range []string{"zstd", "gzip", "none"} {
		t.Run(name, func(t *testing.T) {
			c, err := codec.Lookup(name)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			f, err := New(t.TempDir(), c)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			ctx := context.Background()

			want := []byte(`{"balance":100}`)
			if err := f.Put(ctx, "C1", "balance", want); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			got, err := f.Fetch(ctx, "C1", "balance")
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if string(got) != string(want) {
				t.Errorf("Fetch() = %q, want %q", got, want)
			}

			// Overwrite.
			if err := f.Put(ctx, "C1", "balance", []byte("200")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if got, _ := f.Fetch(ctx, "C1", "balance"); string(got) != "200" {
				t.Errorf("Fetch() after overwrite = %q, want %q", got, "200")
			}
		})
	}
}

func TestFetcher_NotFound(t *testing.T) {
	f, err := New(t.TempDir(), zstdcodec.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := f.Fetch(context.Background(), "C1", "missing"); !errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("Fetch() error = %v, want %v", err, fetch.ErrNotFound)
	}
}

func TestFetcher_Layout(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, zstdcodec.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := f.Put(context.Background(), "C1", "a/b", []byte("v")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	want := filepath.Join(root, "state", "C1", "a%2Fb.zst")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected file at %s: %v", want, err)
	}
	if got := f.path("C1", "a/b"); got != want {
		t.Errorf("path() = %q, want %q", got, want)
	}
}

func TestFetcher_CorruptFile(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, zstdcodec.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	path := f.path("C1", "k")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = f.Fetch(context.Background(), "C1", "k")
	if err == nil || errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("Fetch() of corrupt file error = %v, want a decode error", err)
	}
}

func TestFetcher_CancelledContext(t *testing.T) {
	f, err := New(t.TempDir(), zstdcodec.New())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, "C1", "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want %v", err, context.Canceled)
	}
	if err := f.Put(ctx, "C1", "k", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want %v", err, context.Canceled)
	}
}
