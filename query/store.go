// Package query implements the entity cache the SDK's data layer is built
// on: a keyed store with request deduplication, stale-while-revalidate
// reads, subscriber-driven garbage collection, and optimistic mutations
// with exact rollback.
package query

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/harborloop/sync-go/logger"
	"github.com/harborloop/sync-go/query/internal/tracking"
)

// FetchFunc performs the network read for one key. It must not touch the
// store; committing the result is the store's job.
type FetchFunc func(ctx context.Context) (any, error)

// Options configures a Store.
type Options struct {
	// StaleAfter is the age past which an entry is served stale and
	// revalidated in the background.
	StaleAfter time.Duration
	// GCAfter is how long an entry with zero subscribers survives.
	GCAfter time.Duration
	// GCInterval is how often the eviction sweep runs (default: 1m).
	GCInterval time.Duration
	// RevalidateRate and RevalidateBurst bound background revalidations
	// store-wide so a render storm cannot become a refetch storm.
	// Explicit invalidation bypasses the limiter.
	RevalidateRate  float64
	RevalidateBurst int

	Logger logger.Logger
}

// StoreStats provides counters about the store's behavior since creation.
type StoreStats struct {
	Entries       int
	Subscribers   int
	Hits          int64
	StaleHits     int64
	Misses        int64
	Revalidations int64
	Evictions     int64
}

// Store is the process-wide entity cache. One instance is shared per
// client; only Store methods mutate entries.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	sfg     singleflight.Group
	limiter *rate.Limiter

	staleAfter time.Duration
	gcAfter    time.Duration

	log logger.Logger

	nextSubID int

	hits          int64
	staleHits     int64
	misses        int64
	revalidations int64
	evictions     int64

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStore creates a store and starts its GC sweep.
func NewStore(opts Options) *Store {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Second
	}
	if opts.GCAfter <= 0 {
		opts.GCAfter = 5 * time.Minute
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = time.Minute
	}
	if opts.RevalidateRate <= 0 {
		opts.RevalidateRate = 10
	}
	if opts.RevalidateBurst <= 0 {
		opts.RevalidateBurst = 20
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("disabled", false)
	}

	s := &Store{
		entries:    make(map[string]*entry),
		limiter:    rate.NewLimiter(rate.Limit(opts.RevalidateRate), opts.RevalidateBurst),
		staleAfter: opts.StaleAfter,
		gcAfter:    opts.GCAfter,
		log:        opts.Logger,
		closeCh:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.gcLoop(opts.GCInterval)

	return s
}

// Close stops the GC sweep and waits for in-flight background work.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.closeCh)
		s.mu.Unlock()
	})
	s.wg.Wait()
}

func (s *Store) closed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

// Get returns an immutable snapshot of the entry for key, if present.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key.String()]
	if !ok {
		return Entry{Status: StatusIdle}, false
	}
	return ent.snapshot(), true
}

// Set replaces the data for key, refreshes fetchedAt, and clears any error.
func (s *Store) Set(key Key, data any) {
	s.mu.Lock()
	ent := s.ensureLocked(key)
	ent.data = data
	ent.status = StatusSuccess
	ent.err = nil
	ent.fetchedAt = time.Now()
	ent.version++
	snap, cbs := ent.snapshot(), ent.callbacks()
	s.mu.Unlock()

	notify(cbs, snap)
}

// Subscribe registers a callback invoked on every change to key's entry.
// The entry is created on first subscribe. The returned function releases
// the subscription and is safe to call more than once.
func (s *Store) Subscribe(key Key, cb func(Entry)) func() {
	s.mu.Lock()
	ent := s.ensureLocked(key)
	if ent.subscribers == nil {
		ent.subscribers = make(map[int]func(Entry))
	}
	id := s.nextSubID
	s.nextSubID++
	ent.subscribers[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if ent, ok := s.entries[key.String()]; ok {
				delete(ent.subscribers, id)
				if len(ent.subscribers) == 0 {
					ent.idleSince = time.Now()
				}
			}
		})
	}
}

// Fetch returns the cached value for key, fetching over the network when
// needed. Fresh entries are returned directly; stale entries are returned
// immediately while a throttled background revalidation runs; missing or
// failed entries block on a deduplicated fetch. Concurrent callers of the
// same key share one network call.
func (s *Store) Fetch(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	if !key.Resolved() {
		return nil, ErrKeyUnresolved
	}
	if s.closed() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	ent := s.ensureLocked(key)
	ent.fetchFn = fn

	if ent.status == StatusSuccess {
		if time.Since(ent.fetchedAt) < s.staleAfter {
			s.hits++
			data := ent.data
			s.mu.Unlock()
			tracking.RecordLookup(ctx, key.Kind, "hit")
			return data, nil
		}

		// Stale: serve the last-known-good value now, revalidate behind it.
		s.staleHits++
		data := ent.data
		s.mu.Unlock()
		tracking.RecordLookup(ctx, key.Kind, "stale_hit")
		s.revalidate(key, fn, true)
		return data, nil
	}

	// A revalidation already in flight: keep serving the previous value.
	if ent.status == StatusLoading && ent.data != nil {
		s.staleHits++
		data := ent.data
		s.mu.Unlock()
		tracking.RecordLookup(ctx, key.Kind, "stale_hit")
		return data, nil
	}

	// Failed entries stay failed until the user retries (Refetch) or the
	// key is invalidated; last-known-good data remains readable via Get.
	if ent.status == StatusError {
		err := ent.err
		s.mu.Unlock()
		return nil, err
	}

	s.misses++
	s.mu.Unlock()
	tracking.RecordLookup(ctx, key.Kind, "miss")

	return s.fetchShared(ctx, key, fn)
}

// Refetch forces a blocking fetch for key using its registered fetcher,
// regardless of freshness. Retrying after an error goes through here.
func (s *Store) Refetch(ctx context.Context, key Key) (any, error) {
	if !key.Resolved() {
		return nil, ErrKeyUnresolved
	}

	s.mu.Lock()
	ent, ok := s.entries[key.String()]
	if !ok || ent.fetchFn == nil {
		s.mu.Unlock()
		return nil, ErrNoFetcher
	}
	fn := ent.fetchFn
	s.mu.Unlock()

	return s.fetchShared(ctx, key, fn)
}

// fetchShared runs fn through singleflight so concurrent callers for the
// same key await one network call, and commits the outcome to the entry.
func (s *Store) fetchShared(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	s.markLoading(key)

	data, err, _ := s.sfg.Do(key.String(), func() (any, error) {
		start := time.Now()
		data, err := fn(ctx)
		tracking.RecordFetch(ctx, key.Kind, time.Since(start), err)
		s.settleFetch(key, data, err)
		return data, err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// markLoading transitions the entry to loading without clearing its data,
// so subscribers can keep rendering the previous value.
func (s *Store) markLoading(key Key) {
	s.mu.Lock()
	ent := s.ensureLocked(key)
	if ent.status == StatusLoading {
		s.mu.Unlock()
		return
	}
	ent.status = StatusLoading
	snap, cbs := ent.snapshot(), ent.callbacks()
	s.mu.Unlock()

	notify(cbs, snap)
}

// settleFetch commits a fetch outcome. Errors land on the entry and keep
// the last-known-good data visible.
func (s *Store) settleFetch(key Key, data any, err error) {
	s.mu.Lock()
	ent, ok := s.entries[key.String()]
	if !ok {
		// Evicted while in flight; the result has no readers.
		s.mu.Unlock()
		return
	}

	if err != nil {
		ent.status = StatusError
		ent.err = err
	} else {
		ent.data = data
		ent.status = StatusSuccess
		ent.err = nil
		ent.fetchedAt = time.Now()
	}
	ent.version++
	snap, cbs := ent.snapshot(), ent.callbacks()
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Str("key", key.String()).Msg("fetch failed")
	}
	notify(cbs, snap)
}

// revalidate issues a background refetch for key. Staleness-triggered
// revalidations pass through the rate limiter; explicit invalidation
// does not. Deduplicated with foreground fetches via singleflight.
func (s *Store) revalidate(key Key, fn FetchFunc, throttled bool) {
	if throttled && !s.limiter.Allow() {
		return
	}

	// The closed check and wg.Add share the mutex with Close, so no
	// revalidation can start once closeCh is closed.
	s.mu.Lock()
	if s.closed() {
		s.mu.Unlock()
		return
	}
	s.revalidations++
	s.wg.Add(1)
	s.mu.Unlock()

	tracking.RecordRevalidation(context.Background(), key.Kind)

	go func() {
		defer s.wg.Done()
		// Detached from the caller: the subscriber may be gone before
		// the response lands, which is fine, the shared cache absorbs it.
		_, _ = s.fetchShared(context.Background(), key, fn)
	}()
}

// Invalidate marks key's entry stale, resetting a failed entry so the next
// read retries. With active subscribers and a known fetcher the refetch
// starts immediately; otherwise the next Fetch misses.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	ent, ok := s.entries[key.String()]
	if !ok {
		s.mu.Unlock()
		return
	}

	ent.fetchedAt = time.Time{}
	if ent.status == StatusSuccess || ent.status == StatusError {
		ent.status = StatusIdle
		ent.err = nil
	}
	subscribed := len(ent.subscribers) > 0
	fn := ent.fetchFn
	s.mu.Unlock()

	if subscribed && fn != nil {
		s.revalidate(key, fn, false)
	}
}

// InvalidatePrefix invalidates every entry whose key falls under the given
// kind and leading scope segments.
func (s *Store) InvalidatePrefix(kind string, scope ...string) {
	s.mu.Lock()
	var keys []Key
	for _, ent := range s.entries {
		if ent.key.HasPrefix(kind, scope...) {
			keys = append(keys, ent.key)
		}
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.Invalidate(key)
	}
}

// Remove evicts key's entry immediately. Used when the entity itself was
// deleted; a later read is a fresh fetch.
func (s *Store) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
}

// Clear drops every entry. Fired on session expiry: a 401 is a process-wide
// signal, not a per-key one.
func (s *Store) Clear() {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	s.log.Info().Int("entries", n).Msg("cache cleared")
}

// Stats returns current store statistics.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := 0
	for _, ent := range s.entries {
		subs += len(ent.subscribers)
	}

	return StoreStats{
		Entries:       len(s.entries),
		Subscribers:   subs,
		Hits:          s.hits,
		StaleHits:     s.staleHits,
		Misses:        s.misses,
		Revalidations: s.revalidations,
		Evictions:     s.evictions,
	}
}

// gcLoop periodically evicts entries that have had no subscribers for
// longer than GCAfter, bounding memory for abandoned views.
func (s *Store) gcLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.closeCh:
			return
		}
	}
}

func (s *Store) evictIdle() {
	now := time.Now()

	s.mu.Lock()
	var evicted []Key
	for ks, ent := range s.entries {
		if len(ent.subscribers) == 0 && now.Sub(ent.idleSince) > s.gcAfter {
			delete(s.entries, ks)
			s.evictions++
			evicted = append(evicted, ent.key)
		}
	}
	s.mu.Unlock()

	for _, key := range evicted {
		tracking.RecordEviction(context.Background(), key.Kind)
		s.log.Debug().Str("key", key.String()).Msg("entry evicted")
	}
}

// ensureLocked returns the entry for key, creating it idle if absent.
// Must be called with mu held.
func (s *Store) ensureLocked(key Key) *entry {
	ks := key.String()
	ent, ok := s.entries[ks]
	if !ok {
		ent = &entry{
			key:       key,
			status:    StatusIdle,
			idleSince: time.Now(),
		}
		s.entries[ks] = ent
	}
	return ent
}

func notify(cbs []func(Entry), snap Entry) {
	for _, cb := range cbs {
		cb(snap)
	}
}
