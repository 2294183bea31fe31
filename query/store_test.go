package query_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborloop/sync-go/query"
)

func newTestStore(t *testing.T, opts query.Options) *query.Store {
	t.Helper()
	s := query.NewStore(opts)
	t.Cleanup(s.Close)
	return s
}

func fetcherReturning(value any, calls *atomic.Int32) query.FetchFunc {
	return func(_ context.Context) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		return value, nil
	}
}

func TestFetchMissThenHit(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("project", "ws1")

	var calls atomic.Int32
	fn := fetcherReturning([]string{"p1"}, &calls)

	data, err := s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, data)

	// Second read is served from cache.
	data, err = s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, data)
	assert.Equal(t, int32(1), calls.Load())

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestFetchUnresolvedKeyShortCircuits(t *testing.T) {
	s := newTestStore(t, query.Options{})

	var calls atomic.Int32
	_, err := s.Fetch(context.Background(), query.NewKey("project", ""), fetcherReturning(nil, &calls))

	require.ErrorIs(t, err, query.ErrKeyUnresolved)
	assert.Equal(t, int32(0), calls.Load())

	_, ok := s.Get(query.NewKey("project", ""))
	assert.False(t, ok, "disabled fetch must not create an entry")
}

func TestFetchDedup(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("issue", "ws1", "p1", "i1")

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(_ context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "issue-1", nil
	}

	const n = 8
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := s.Fetch(context.Background(), key, fn)
			assert.NoError(t, err)
			results[i] = data
		}()
	}

	// Let all callers pile onto the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent callers must share one network call")
	for _, r := range results {
		assert.Equal(t, "issue-1", r)
	}
}

func TestStaleWhileRevalidate(t *testing.T) {
	s := newTestStore(t, query.Options{
		StaleAfter:      30 * time.Millisecond,
		RevalidateRate:  1000,
		RevalidateBurst: 1000,
	})
	key := query.NewKey("project", "ws1")

	var calls atomic.Int32
	var value atomic.Value
	value.Store("v1")
	fn := func(_ context.Context) (any, error) {
		calls.Add(1)
		return value.Load(), nil
	}

	data, err := s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, "v1", data)

	value.Store("v2")
	time.Sleep(50 * time.Millisecond) // entry is now stale

	// Stale read returns the old value immediately and revalidates behind it.
	data, err = s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, "v1", data)

	require.Eventually(t, func() bool {
		ent, ok := s.Get(key)
		return ok && ent.Status == query.StatusSuccess && ent.Data == "v2"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(2), calls.Load(), "staleness must trigger exactly one background fetch")
	assert.Equal(t, int64(1), s.Stats().StaleHits)
}

func TestFetchErrorKeepsLastKnownGood(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("epic", "ws1", "p1")

	s.Set(key, "good")
	s.Invalidate(key)

	fetchErr := errors.New("network down")
	_, err := s.Fetch(context.Background(), key, func(_ context.Context) (any, error) {
		return nil, fetchErr
	})
	require.ErrorIs(t, err, fetchErr)

	ent, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, query.StatusError, ent.Status)
	assert.Equal(t, "good", ent.Data, "error must not discard last-known-good data")
	assert.ErrorIs(t, ent.Err, fetchErr)

	// Fetch does not hammer a failed key; the stored error is returned.
	_, err = s.Fetch(context.Background(), key, func(_ context.Context) (any, error) {
		t.Fatal("unexpected refetch")
		return nil, nil
	})
	assert.ErrorIs(t, err, fetchErr)
}

func TestRefetchRetriesAfterError(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("page", "ws1", "p1")

	var calls atomic.Int32
	fn := func(_ context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}

	_, err := s.Fetch(context.Background(), key, fn)
	require.Error(t, err)

	data, err := s.Refetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "recovered", data)

	ent, _ := s.Get(key)
	assert.Equal(t, query.StatusSuccess, ent.Status)
	assert.NoError(t, ent.Err)
}

func TestRefetchWithoutFetcher(t *testing.T) {
	s := newTestStore(t, query.Options{})

	_, err := s.Refetch(context.Background(), query.NewKey("project", "ws1"))
	assert.ErrorIs(t, err, query.ErrNoFetcher)
}

func TestSubscribeNotifiesOnChanges(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("project", "ws1")

	var mu sync.Mutex
	var seen []query.Status
	unsubscribe := s.Subscribe(key, func(e query.Entry) {
		mu.Lock()
		seen = append(seen, e.Status)
		mu.Unlock()
	})

	_, err := s.Fetch(context.Background(), key, fetcherReturning("v1", nil))
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []query.Status{query.StatusLoading, query.StatusSuccess}, seen)
	mu.Unlock()

	unsubscribe()
	s.Set(key, "v2")

	mu.Lock()
	assert.Len(t, seen, 2, "unsubscribed callback must not fire")
	mu.Unlock()

	// Releasing twice is safe.
	unsubscribe()
}

func TestInvalidateRefetchesForSubscribers(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("issue", "ws1", "p1")

	var calls atomic.Int32
	fn := fetcherReturning("fresh", &calls)

	_, err := s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)

	defer s.Subscribe(key, func(query.Entry) {})()

	s.Invalidate(key)

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 5*time.Millisecond, "invalidation with a subscriber must refetch")
}

func TestInvalidateWithoutSubscriberDefersRefetch(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("issue", "ws1", "p1")

	var calls atomic.Int32
	fn := fetcherReturning("v", &calls)

	_, err := s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)

	s.Invalidate(key)
	assert.Equal(t, int32(1), calls.Load())

	// Next read misses and refetches.
	_, err = s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidateResetsFailedEntry(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("issue", "ws1", "p1")

	var calls atomic.Int32
	fn := func(_ context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("network down")
		}
		return "recovered", nil
	}

	_, err := s.Fetch(context.Background(), key, fn)
	require.Error(t, err)

	// Invalidation clears the stored error; the next read must hit the
	// network again instead of replaying the failure.
	s.Invalidate(key)

	data, err := s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)
	assert.Equal(t, "recovered", data)
	assert.Equal(t, int32(2), calls.Load())

	ent, _ := s.Get(key)
	assert.Equal(t, query.StatusSuccess, ent.Status)
	assert.NoError(t, ent.Err)
}

func TestCloseDuringStaleRevalidations(t *testing.T) {
	s := query.NewStore(query.Options{
		StaleAfter:      time.Nanosecond,
		RevalidateRate:  10000,
		RevalidateBurst: 10000,
	})
	key := query.NewKey("project", "ws1")

	fn := fetcherReturning("v", nil)
	_, err := s.Fetch(context.Background(), key, fn)
	require.NoError(t, err)

	// Every read below finds the entry stale and tries to start a
	// background revalidation while Close races it.
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = s.Fetch(context.Background(), key, fn)
			}
		}()
	}

	s.Close()
	wg.Wait()
}

func TestInvalidatePrefix(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})

	inProject := query.NewKey("issue", "ws1", "p1", "i1")
	otherProject := query.NewKey("issue", "ws1", "p2", "i2")

	s.Set(inProject, "a")
	s.Set(otherProject, "b")

	s.InvalidatePrefix("issue", "ws1", "p1")

	ent, _ := s.Get(inProject)
	assert.True(t, ent.FetchedAt.IsZero(), "prefixed key must be marked stale")

	ent, _ = s.Get(otherProject)
	assert.False(t, ent.FetchedAt.IsZero(), "unrelated key must stay fresh")
}

func TestClearDropsEverything(t *testing.T) {
	s := newTestStore(t, query.Options{})

	s.Set(query.NewKey("project", "ws1"), "a")
	s.Set(query.NewKey("workspace"), "b")

	s.Clear()

	assert.Equal(t, 0, s.Stats().Entries)
	_, ok := s.Get(query.NewKey("project", "ws1"))
	assert.False(t, ok)
}

func TestGCEvictsUnsubscribedEntries(t *testing.T) {
	s := newTestStore(t, query.Options{
		StaleAfter: time.Minute,
		GCAfter:    30 * time.Millisecond,
		GCInterval: 10 * time.Millisecond,
	})
	key := query.NewKey("project", "ws1")

	unsubscribe := s.Subscribe(key, func(query.Entry) {})
	s.Set(key, "v1")

	// Subscribed entries survive the sweep.
	time.Sleep(80 * time.Millisecond)
	_, ok := s.Get(key)
	require.True(t, ok)

	unsubscribe()

	require.Eventually(t, func() bool {
		_, ok := s.Get(key)
		return !ok
	}, time.Second, 10*time.Millisecond, "entry with zero subscribers must be evicted after GCAfter")

	// A read after eviction is a fresh fetch.
	var calls atomic.Int32
	_, err := s.Fetch(context.Background(), key, fetcherReturning("v2", &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.GreaterOrEqual(t, s.Stats().Evictions, int64(1))
}

func TestFetchAfterCloseFails(t *testing.T) {
	s := query.NewStore(query.Options{})
	s.Close()

	_, err := s.Fetch(context.Background(), query.NewKey("project", "ws1"), fetcherReturning("v", nil))
	assert.ErrorIs(t, err, query.ErrClosed)
}

func TestGetReturnsSnapshotNotLiveEntry(t *testing.T) {
	s := newTestStore(t, query.Options{})
	key := query.NewKey("project", "ws1")

	s.Set(key, "v1")
	before, _ := s.Get(key)

	s.Set(key, "v2")
	after, _ := s.Get(key)

	assert.Equal(t, "v1", before.Data)
	assert.Equal(t, "v2", after.Data)
	assert.Greater(t, after.Version, before.Version)
}
