// Package zstdcodec provides a zstd compression codec.
package zstdcodec

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/soroban-registry/statecache/internal/codec"
)

// Compile-time check that Codec implements codec.Codec.
var _ codec.Codec = (*Codec)(nil)

func init() {
	codec.Register("zstd", func() codec.Codec { return New() })
}

// Codec implements zstd compression.
// The encoder and decoder are created lazily and shared; EncodeAll and
// DecodeAll are safe for concurrent use.
type Codec struct {
	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	initErr error
}

// New returns a new zstd codec.
func New() *Codec {
	return &Codec{}
}

func (c *Codec) init() {
	c.once.Do(func() {
		c.encoder, c.initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if c.initErr != nil {
			return
		}
		c.decoder, c.initErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
}

// Name returns "zstd".
func (c *Codec) Name() string {
	return "zstd"
}

// Encode compresses src with zstd.
func (c *Codec) Encode(src []byte) ([]byte, error) {
	c.init()
	if c.initErr != nil {
		return nil, c.initErr
	}
	return c.encoder.EncodeAll(src, make([]byte, 0, len(src))), nil
}

// Decode decompresses zstd data.
func (c *Codec) Decode(src []byte) ([]byte, error) {
	c.init()
	if c.initErr != nil {
		return nil, c.initErr
	}
	return c.decoder.DecodeAll(src, nil)
}

// Extension returns "zst".
func (c *Codec) Extension() string {
	return "zst"
}
