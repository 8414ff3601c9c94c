// Package diskfetch implements a fetcher over codec-compressed files on disk.
package diskfetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/soroban-registry/statecache/internal/codec"
	"github.com/soroban-registry/statecache/internal/fetch"
)

// Compile-time checks.
var (
	_ fetch.Fetcher = (*Fetcher)(nil)
	_ fetch.Writer  = (*Fetcher)(nil)
)

// Fetcher reads and writes state blobs under a root directory.
type Fetcher struct {
	root  string
	codec codec.Codec
}

// New creates a fetcher rooted at the given directory.
// The directory must exist. The codec handles compression/decompression.
func New(root string, c codec.Codec) (*Fetcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	return &Fetcher{
		root:  root,
		codec: c,
	}, nil
}

// Fetch reads and decompresses one state value.
func (f *Fetcher) Fetch(ctx context.Context, contractID, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	compressed, err := os.ReadFile(f.path(contractID, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fetch.ErrNotFound
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	data, err := f.codec.Decode(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompressing state: %w", err)
	}
	return data, nil
}

// Put compresses and writes one state value. The file is replaced
// atomically so concurrent readers see the old or the new value.
func (f *Fetcher) Put(ctx context.Context, contractID, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	compressed, err := f.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("compressing state: %w", err)
	}

	path := f.path(contractID, key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// Close releases any resources held by the fetcher.
func (f *Fetcher) Close() error {
	return nil
}

// path returns the filesystem path for a state value.
func (f *Fetcher) path(contractID, key string) string {
	return filepath.Join(f.root, filepath.FromSlash(fetch.ObjectName(contractID, key, f.codec.Extension())))
}
