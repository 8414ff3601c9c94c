// Package gcsfetch implements a fetcher over contract state blobs in
// Google Cloud Storage.
package gcsfetch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/soroban-registry/statecache/internal/codec"
	"github.com/soroban-registry/statecache/internal/fetch"
)

// Compile-time checks.
var (
	_ fetch.Fetcher = (*Fetcher)(nil)
	_ fetch.Writer  = (*Fetcher)(nil)
)

// Bucket is the object access the fetcher needs from a GCS bucket.
type Bucket interface {
	NewReader(ctx context.Context, name string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, name string) io.WriteCloser
}

// bucketHandle adapts *storage.BucketHandle to Bucket.
type bucketHandle struct {
	h *storage.BucketHandle
}

func (b bucketHandle) NewReader(ctx context.Context, name string) (io.ReadCloser, error) {
	return b.h.Object(name).NewReader(ctx)
}

func (b bucketHandle) NewWriter(ctx context.Context, name string) io.WriteCloser {
	return b.h.Object(name).NewWriter(ctx)
}

// Fetcher reads and writes state blobs in one GCS bucket.
type Fetcher struct {
	client *storage.Client
	bucket Bucket
	prefix string
	codec  codec.Codec
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// New creates a new GCS fetcher using application default credentials.
// The bucket must already exist.
func New(ctx context.Context, bucketName string, c codec.Codec, opts ...Option) (*Fetcher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	f := &Fetcher{
		client: client,
		bucket: bucketHandle{h: client.Bucket(bucketName)},
		codec:  c,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(f *Fetcher) {
		f.prefix = fetch.NormalizePrefix(prefix)
	}
}

// WithBucket replaces the bucket accessor.
func WithBucket(b Bucket) Option {
	return func(f *Fetcher) {
		if b != nil {
			f.bucket = b
		}
	}
}

// Fetch reads and decompresses one state value.
func (f *Fetcher) Fetch(ctx context.Context, contractID, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := f.bucket.NewReader(ctx, f.objectKey(contractID, key))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fetch.ErrNotFound
		}
		return nil, fmt.Errorf("creating reader: %w", err)
	}
	defer reader.Close()

	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}

	data, err := f.codec.Decode(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompressing state: %w", err)
	}
	return data, nil
}

// Put compresses and uploads one state value.
func (f *Fetcher) Put(ctx context.Context, contractID, key string, value []byte) error {
	compressed, err := f.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("compressing state: %w", err)
	}

	w := f.bucket.NewWriter(ctx, f.objectKey(contractID, key))
	if _, err := w.Write(compressed); err != nil {
		w.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	// The upload is only committed by Close.
	if err := w.Close(); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	return nil
}

// Close releases resources.
func (f *Fetcher) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}

// objectKey returns the full object key for a state value.
func (f *Fetcher) objectKey(contractID, key string) string {
	return f.prefix + fetch.ObjectName(contractID, key, f.codec.Extension())
}
