package gcsfetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"cloud.google.com/go/storage"

	"github.com/soroban-registry/statecache/internal/codec/gzipcodec"
	"github.com/soroban-registry/statecache/internal/codec/zstdcodec"
	"github.com/soroban-registry/statecache/internal/fetch"
)

// mockBucket is an in-memory Bucket.
type mockBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockBucket() *mockBucket {
	return &mockBucket{objects: make(map[string][]byte)}
}

func (m *mockBucket) NewReader(_ context.Context, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockBucket) NewWriter(_ context.Context, name string) io.WriteCloser {
	return &mockWriter{bucket: m, name: name}
}

type mockWriter struct {
	bucket *mockBucket
	name   string
	buf    bytes.Buffer
}

func (w *mockWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *mockWriter) Close() error {
	w.bucket.mu.Lock()
	defer w.bucket.mu.Unlock()
	w.bucket.objects[w.name] = w.buf.Bytes()
	return nil
}

func TestWithPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"prefix", "prefix/"},
		{"prefix/", "prefix/"},
		{"a/b/c/", "a/b/c/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f := &Fetcher{}
			WithPrefix(tt.input)(f)
			if f.prefix != tt.want {
				t.Errorf("prefix = %q, want %q", f.prefix, tt.want)
			}
		})
	}
}

func TestFetcher_objectKey(t *testing.T) {
	f := &Fetcher{codec: gzipcodec.New(), prefix: "data/v1/"}
	want := "data/v1/state/C1/balance.gz"
	if got := f.objectKey("C1", "balance"); got != want {
		t.Errorf("objectKey() = %q, want %q", got, want)
	}
}

func TestFetcher_PutFetch(t *testing.T) {
	b := newMockBucket()
	f := &Fetcher{codec: zstdcodec.New()}
	WithBucket(b)(f)
	ctx := context.Background()

	if err := f.Put(ctx, "C1", "balance", []byte("100")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := b.objects["state/C1/balance.zst"]; !ok {
		t.Fatalf("object not stored under expected key; have %v", b.objects)
	}

	got, err := f.Fetch(ctx, "C1", "balance")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != "100" {
		t.Errorf("Fetch() = %q, want %q", got, "100")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFetcher_NotFound(t *testing.T) {
	f := &Fetcher{codec: zstdcodec.New(), bucket: newMockBucket()}
	if _, err := f.Fetch(context.Background(), "C1", "missing"); !errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("Fetch() error = %v, want %v", err, fetch.ErrNotFound)
	}
}

func TestFetcher_CorruptObject(t *testing.T) {
	b := newMockBucket()
	b.objects["state/C1/k.zst"] = []byte("garbage")
	f := &Fetcher{codec: zstdcodec.New(), bucket: b}

	if _, err := f.Fetch(context.Background(), "C1", "k"); err == nil {
		t.Error("Fetch() of corrupt object should fail")
	}
}
