// Package fetch defines the downstream source of contract state that the
// cache sits in front of.
package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrNotFound is returned when no state exists for a contract key.
	ErrNotFound = errors.New("fetch: state not found")

	// ErrReadOnly is returned by a Writer whose backend cannot accept writes.
	ErrReadOnly = errors.New("fetch: backend is read-only")
)

// Fetcher reads contract state from the source of truth.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	// Fetch returns the current value of key in contractID.
	Fetch(ctx context.Context, contractID, key string) ([]byte, error)

	// Close releases any resources held by the fetcher.
	Close() error
}

// Writer is implemented by fetchers that can also apply state mutations.
type Writer interface {
	// Put stores value as the new state of key in contractID.
	Put(ctx context.Context, contractID, key string, value []byte) error
}

// ObjectName returns the slash-separated object path for a state value,
// "state/<contract>/<key>" plus ".<ext>" when ext is not empty.
// Both segments are path-escaped so keys containing '/' stay one object.
func ObjectName(contractID, key, ext string) string {
	var b strings.Builder
	b.WriteString("state/")
	b.WriteString(url.PathEscape(contractID))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(key))
	if ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String()
}

// NormalizePrefix turns a user supplied object prefix into "" or "dir/".
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
