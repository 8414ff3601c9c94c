// Package codec provides compression for contract state blobs kept in
// object and file backends.
package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownCodec is returned by Lookup for an unregistered codec name.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec compresses and decompresses whole state blobs.
// State values are small, so codecs work on byte slices instead of streams.
type Codec interface {
	// Name returns the identifier used in configuration (e.g., "zstd").
	Name() string
	// Encode returns the compressed form of src.
	Encode(src []byte) ([]byte, error)
	// Decode returns the decompressed form of src.
	Decode(src []byte) ([]byte, error)
	// Extension returns the file extension without dot (e.g., "zst", "gz").
	// Returns empty string for no compression.
	Extension() string
}

// Factory builds a Codec.
type Factory func() Codec

var registry = map[string]Factory{}

// Register makes a codec available to Lookup under name.
// It is meant to be called from init functions and panics on duplicates.
func Register(name string, f Factory) {
	if _, dup := registry[name]; dup {
		panic("codec: duplicate registration of " + name)
	}
	registry[name] = f
}

// Lookup returns a new instance of the named codec.
func Lookup(name string) (Codec, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return f(), nil
}
