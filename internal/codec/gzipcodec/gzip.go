// Package gzipcodec provides a gzip compression codec.
package gzipcodec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/soroban-registry/statecache/internal/codec"
)

// Compile-time check that Codec implements codec.Codec.
var _ codec.Codec = (*Codec)(nil)

func init() {
	codec.Register("gzip", func() codec.Codec { return New() })
}

// Codec implements gzip compression.
type Codec struct{}

// New returns a new gzip codec.
func New() *Codec {
	return &Codec{}
}

// Name returns "gzip".
func (c *Codec) Name() string {
	return "gzip"
}

// Encode compresses src with gzip.
func (c *Codec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decompresses gzip data.
func (c *Codec) Decode(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Extension returns "gz".
func (c *Codec) Extension() string {
	return "gz"
}
