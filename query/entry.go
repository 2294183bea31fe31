package query

import "time"

// Status is the lifecycle state of a cache entry.
//
// State machine: idle -> loading -> {success, error};
// success -> loading on staleness or invalidation (background revalidation);
// error -> loading on retry. Eviction removes the entry entirely.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is an immutable snapshot of one cached value as seen by a caller.
// Data is shared by reference and must not be mutated; all writes go through
// the store. On fetch errors Data retains the last-known-good value so stale
// content stays visible.
type Entry struct {
	Data      any
	Status    Status
	Err       error
	FetchedAt time.Time
	Version   uint64
}

// entry is the store-owned mutable state behind one key.
// All fields are guarded by the store mutex.
type entry struct {
	key       Key
	data      any
	status    Status
	err       error
	fetchedAt time.Time
	version   uint64

	// fetchFn is the last fetcher used for this key, kept so invalidation
	// with active subscribers can refetch without a caller present.
	fetchFn FetchFunc

	subscribers map[int]func(Entry)

	// idleSince is when the subscriber count last dropped to zero
	// (or creation time if never subscribed). Drives GC.
	idleSince time.Time
}

func (e *entry) snapshot() Entry {
	return Entry{
		Data:      e.data,
		Status:    e.status,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
		Version:   e.version,
	}
}

// callbacks returns the subscriber callbacks for invocation outside the lock.
func (e *entry) callbacks() []func(Entry) {
	if len(e.subscribers) == 0 {
		return nil
	}
	cbs := make([]func(Entry), 0, len(e.subscribers))
	for _, cb := range e.subscribers {
		cbs = append(cbs, cb)
	}
	return cbs
}
