package statecache

import (
	"errors"
	"fmt"

	"github.com/soroban-registry/statecache/internal/lifecycle"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("statecache: client closed")

	// ErrNoFetcher indicates no fetcher was provided.
	ErrNoFetcher = errors.New("statecache: no fetcher provided")

	// ErrInvalidKey indicates an empty contract id or state key.
	ErrInvalidKey = errors.New("statecache: contract id and state key must not be empty")

	// ErrShuttingDown is returned for requests arriving after shutdown began.
	ErrShuttingDown = fmt.Errorf("statecache: shutting down: %w", lifecycle.ErrDraining)
)

// errFlightRejected is returned by a shared fetch that started after
// shutdown began.
var errFlightRejected = errors.New("statecache: shared fetch not admitted")

// FetchError reports a failed downstream fetch. Nothing is cached for the
// key when a fetch fails.
type FetchError struct {
	ContractID string
	Key        string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("statecache: fetching %s/%s: %v", e.ContractID, e.Key, e.Err)
}

// Unwrap returns the underlying fetcher error.
func (e *FetchError) Unwrap() error {
	return e.Err
}
