// Package snapshot defines persisted contract state used to warm the cache
// at startup.
package snapshot

import (
	"context"
	"time"
)

// Entry is one persisted state value.
type Entry struct {
	ContractID string
	Key        string
	Value      []byte
	UpdatedAt  time.Time
}

// Source loads persisted state. Entries come back most recently updated
// first; limit <= 0 means no limit.
type Source interface {
	Load(ctx context.Context, limit int) ([]Entry, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, limit int) ([]Entry, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context, limit int) ([]Entry, error) {
	return f(ctx, limit)
}

// Static is a fixed, already ordered list of entries.
type Static []Entry

// Load returns up to limit entries from the front of s.
func (s Static) Load(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(s) {
		limit = len(s)
	}
	out := make([]Entry, limit)
	copy(out, s[:limit])
	return out, nil
}
