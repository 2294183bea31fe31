package query

import (
	"context"
	"time"

	"github.com/harborloop/sync-go/query/internal/tracking"
)

// PatchFunc produces the optimistic value from the current cached value.
// It must not mutate its input: cached values are shared by reference, and
// rollback restores the pre-patch value exactly by restoring that reference.
type PatchFunc func(current any) any

// MutationCall performs the network write. A non-nil result is the
// server-confirmed value; a nil result with nil error means the server
// returned no body and the optimistic value is promoted.
type MutationCall func(ctx context.Context) (any, error)

// Dependent declares a related key touched by a mutation: a list that
// contains the mutated item, a count that includes it. Dependents are
// snapshotted with the primary key, optionally patched optimistically,
// and invalidated on success so they refetch.
type Dependent struct {
	Key   Key
	Patch PatchFunc // optional
}

// MutateOption configures one Mutate call.
type MutateOption func(*mutateConfig)

type mutateConfig struct {
	dependents       []Dependent
	invalidateSettle bool
}

// WithDependents declares related keys for snapshotting, optimistic
// patching, and success invalidation.
func WithDependents(deps ...Dependent) MutateOption {
	return func(c *mutateConfig) {
		c.dependents = append(c.dependents, deps...)
	}
}

// WithInvalidateOnFailure makes a failed mutation invalidate the touched
// keys (forcing a refetch) instead of restoring snapshots. Used when the
// caller cannot guarantee the server state still matches the snapshot.
func WithInvalidateOnFailure() MutateOption {
	return func(c *mutateConfig) {
		c.invalidateSettle = true
	}
}

// patchRecord remembers one optimistic write so it can be reverted.
type patchRecord struct {
	key Key
	// prior is the entry state before the patch.
	prior Entry
	// versionAfterPatch is the entry version the optimistic write produced.
	// Rollback applies only while the entry still carries this version;
	// any later write supersedes the rollback.
	versionAfterPatch uint64
}

// Mutate executes a write with an optimistic local update.
//
// The entry for key (and any patched dependents) is snapshotted and patched
// in one critical section, so overlapping mutations take their snapshots in
// patch order and rollbacks stay LIFO-correct. The network call then runs;
// on success the server value (or the promoted optimistic value) is
// committed and dependents are invalidated, on failure every patched key is
// rolled back to its exact snapshot, unless a later write already
// superseded it. The error is returned to the caller; there is no
// automatic retry. On success the committed value is returned.
func (s *Store) Mutate(ctx context.Context, key Key, patch PatchFunc, call MutationCall, opts ...MutateOption) (any, error) {
	if !key.Resolved() {
		return nil, ErrKeyUnresolved
	}
	if s.closed() {
		return nil, ErrClosed
	}

	var cfg mutateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	records, notes := s.applyOptimistic(key, patch, cfg.dependents)
	for _, n := range notes {
		notify(n.cbs, n.snap)
	}

	data, err := call(ctx)
	if err != nil {
		if cfg.invalidateSettle {
			tracking.RecordMutation(ctx, key.Kind, "invalidated")
			s.invalidateRecords(records)
		} else {
			s.rollback(ctx, key, records)
		}
		return nil, err
	}

	committed := s.commit(key, data)
	tracking.RecordMutation(ctx, key.Kind, "committed")

	for _, dep := range cfg.dependents {
		s.Invalidate(dep.Key)
	}

	return committed, nil
}

type pendingNotify struct {
	cbs  []func(Entry)
	snap Entry
}

// applyOptimistic snapshots and patches the primary key and patched
// dependents atomically, returning the rollback records.
func (s *Store) applyOptimistic(key Key, patch PatchFunc, deps []Dependent) ([]patchRecord, []pendingNotify) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []patchRecord
	var notes []pendingNotify

	apply := func(k Key, p PatchFunc) {
		ent := s.ensureLocked(k)
		rec := patchRecord{key: k, prior: ent.snapshot()}

		ent.data = p(ent.data)
		ent.status = StatusSuccess
		ent.err = nil
		ent.version++
		rec.versionAfterPatch = ent.version

		records = append(records, rec)
		notes = append(notes, pendingNotify{cbs: ent.callbacks(), snap: ent.snapshot()})
	}

	apply(key, patch)
	for _, dep := range deps {
		if dep.Patch != nil {
			apply(dep.Key, dep.Patch)
		}
	}

	return records, notes
}

// commit replaces the optimistic value with the server-confirmed one, or
// promotes the optimistic value when the server returned no body. Returns
// the value now held by the entry.
func (s *Store) commit(key Key, data any) any {
	s.mu.Lock()
	ent := s.ensureLocked(key)
	if data != nil {
		ent.data = data
	}
	ent.status = StatusSuccess
	ent.err = nil
	ent.fetchedAt = time.Now()
	ent.version++
	committed := ent.data
	snap, cbs := ent.snapshot(), ent.callbacks()
	s.mu.Unlock()

	notify(cbs, snap)
	return committed
}

// rollback restores each patched entry to its pre-patch snapshot, in
// reverse patch order. A record whose entry version moved past the
// optimistic write has been superseded by a later mutation or fetch and is
// dropped: a delayed failure must not clobber a newer confirmed result.
func (s *Store) rollback(ctx context.Context, key Key, records []patchRecord) {
	var dropped, restored []Key

	s.mu.Lock()
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		ent, ok := s.entries[rec.key.String()]
		if !ok {
			continue
		}

		if ent.version != rec.versionAfterPatch {
			dropped = append(dropped, rec.key)
			continue
		}

		ent.data = rec.prior.Data
		ent.status = rec.prior.Status
		ent.err = rec.prior.Err
		ent.fetchedAt = rec.prior.FetchedAt
		ent.version++
		restored = append(restored, rec.key)
	}

	var notes []pendingNotify
	for _, k := range restored {
		if ent, ok := s.entries[k.String()]; ok {
			notes = append(notes, pendingNotify{cbs: ent.callbacks(), snap: ent.snapshot()})
		}
	}
	s.mu.Unlock()

	tracking.RecordMutation(ctx, key.Kind, "rolled_back")
	for _, k := range dropped {
		tracking.RecordMutation(ctx, k.Kind, "rollback_dropped")
		s.log.Warn().Str("key", k.String()).Msg("rollback superseded by later write")
	}

	for _, n := range notes {
		notify(n.cbs, n.snap)
	}
}

func (s *Store) invalidateRecords(records []patchRecord) {
	for _, rec := range records {
		s.Invalidate(rec.key)
	}
}
