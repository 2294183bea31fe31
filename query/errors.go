package query

import "errors"

// Sentinel errors for store operations.
// Use errors.Is() to check for these specific error conditions.
var (
	// ErrKeyUnresolved is returned when a fetch or mutation targets a key
	// with an empty scope segment (e.g. no workspace selected yet). The
	// operation is disabled rather than issuing a malformed request.
	ErrKeyUnresolved = errors.New("query: key has unresolved segments")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("query: store closed")

	// ErrNoFetcher is returned by Refetch when the key has never been
	// fetched, so the store has no fetch function to replay.
	ErrNoFetcher = errors.New("query: no fetcher registered for key")
)
