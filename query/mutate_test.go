package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborloop/sync-go/query"
)

type project struct {
	ID   string
	Name string
}

func renameProject(id, name string) query.PatchFunc {
	return func(current any) any {
		projects, _ := current.([]project)
		patched := make([]project, len(projects))
		copy(patched, projects)
		for i := range patched {
			if patched[i].ID == id {
				patched[i].Name = name
			}
		}
		return patched
	}
}

func TestMutateOptimisticThenRollback(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("project", "ws1")

	s.Set(key, []project{{ID: "p1", Name: "Alpha"}})

	var duringCall any
	callErr := errors.New("server rejected")
	_, err := s.Mutate(context.Background(), key, renameProject("p1", "Beta"),
		func(_ context.Context) (any, error) {
			// The optimistic value is visible before the network resolves.
			ent, _ := s.Get(key)
			duringCall = ent.Data
			return nil, callErr
		})

	require.ErrorIs(t, err, callErr)
	assert.Equal(t, []project{{ID: "p1", Name: "Beta"}}, duringCall)

	ent, _ := s.Get(key)
	assert.Equal(t, []project{{ID: "p1", Name: "Alpha"}}, ent.Data,
		"failed mutation must restore the exact pre-patch snapshot")
	assert.Equal(t, query.StatusSuccess, ent.Status)
}

func TestMutateCommitsServerValue(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("project", "ws1")

	s.Set(key, []project{{ID: "p1", Name: "Alpha"}})

	serverValue := []project{{ID: "p1", Name: "Beta (server)"}}
	data, err := s.Mutate(context.Background(), key, renameProject("p1", "Beta"),
		func(_ context.Context) (any, error) {
			return serverValue, nil
		})

	require.NoError(t, err)
	assert.Equal(t, serverValue, data)

	ent, _ := s.Get(key)
	assert.Equal(t, serverValue, ent.Data, "server-confirmed value replaces the optimistic one")
}

func TestMutatePromotesOptimisticOnEmptyBody(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("project", "ws1")

	s.Set(key, []project{{ID: "p1", Name: "Alpha"}})
	before, _ := s.Get(key)

	_, err := s.Mutate(context.Background(), key, renameProject("p1", "Beta"),
		func(_ context.Context) (any, error) {
			return nil, nil // 204 No Content
		})
	require.NoError(t, err)

	ent, _ := s.Get(key)
	assert.Equal(t, []project{{ID: "p1", Name: "Beta"}}, ent.Data)
	assert.Equal(t, query.StatusSuccess, ent.Status)
	assert.False(t, ent.FetchedAt.Before(before.FetchedAt), "promotion refreshes fetchedAt")
}

func TestMutateInvalidatesDependents(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	issueKey := query.NewKey("issue", "ws1", "p1", "i1")
	listKey := query.NewKey("issue", "ws1", "p1")

	s.Set(issueKey, "issue-1")
	s.Set(listKey, []string{"issue-1"})

	_, err := s.Mutate(context.Background(), issueKey,
		func(any) any { return "issue-1-renamed" },
		func(_ context.Context) (any, error) { return nil, nil },
		query.WithDependents(query.Dependent{Key: listKey}))
	require.NoError(t, err)

	ent, _ := s.Get(listKey)
	assert.True(t, ent.FetchedAt.IsZero(), "dependent list must be invalidated on success")
}

func TestMutateRollsBackPatchedDependents(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	issueKey := query.NewKey("issue", "ws1", "p1", "i1")
	listKey := query.NewKey("issue", "ws1", "p1")

	s.Set(issueKey, "old")
	s.Set(listKey, []string{"old"})

	_, err := s.Mutate(context.Background(), issueKey,
		func(any) any { return "new" },
		func(_ context.Context) (any, error) { return nil, errors.New("rejected") },
		query.WithDependents(query.Dependent{
			Key:   listKey,
			Patch: func(any) any { return []string{"new"} },
		}))
	require.Error(t, err)

	ent, _ := s.Get(issueKey)
	assert.Equal(t, "old", ent.Data)
	ent, _ = s.Get(listKey)
	assert.Equal(t, []string{"old"}, ent.Data, "patched dependent must roll back with the primary key")
}

func TestMutateInvalidateOnFailure(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("page", "ws1", "p1")

	s.Set(key, "original")

	_, err := s.Mutate(context.Background(), key,
		func(any) any { return "patched" },
		func(_ context.Context) (any, error) { return nil, errors.New("conflict") },
		query.WithInvalidateOnFailure())
	require.Error(t, err)

	ent, _ := s.Get(key)
	assert.True(t, ent.FetchedAt.IsZero(), "settle handler chose invalidation over rollback")
	assert.Equal(t, "patched", ent.Data, "no snapshot restore when invalidating")
}

// A later mutation's confirmed result must survive an earlier mutation's
// delayed rollback.
func TestOverlappingMutationsRollbackOrdering(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("project", "ws1")

	s.Set(key, []project{{ID: "p1", Name: "Alpha"}})

	aFail := make(chan struct{})
	aDone := make(chan struct{})

	go func() {
		defer close(aDone)
		_, _ = s.Mutate(context.Background(), key, renameProject("p1", "A-rename"),
			func(_ context.Context) (any, error) {
				<-aFail
				return nil, errors.New("a failed late")
			})
	}()

	// Wait for A's optimistic write to land.
	require.Eventually(t, func() bool {
		ent, _ := s.Get(key)
		projects, _ := ent.Data.([]project)
		return len(projects) == 1 && projects[0].Name == "A-rename"
	}, time.Second, time.Millisecond)

	// B starts after A's patch, completes with a server-confirmed value.
	confirmed := []project{{ID: "p1", Name: "B-confirmed"}}
	_, err := s.Mutate(context.Background(), key, renameProject("p1", "B-rename"),
		func(_ context.Context) (any, error) {
			return confirmed, nil
		})
	require.NoError(t, err)

	// Now A fails; its rollback is superseded and must be dropped.
	close(aFail)
	<-aDone

	ent, _ := s.Get(key)
	assert.Equal(t, confirmed, ent.Data,
		"delayed rollback must not clobber a later confirmed result")
}

func TestMutateUnresolvedKey(t *testing.T) {
	s := newTestStore(t, query.Options{})

	_, err := s.Mutate(context.Background(), query.NewKey("project", ""),
		func(any) any { return nil },
		func(_ context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, query.ErrKeyUnresolved)
}

// Scenario from the data-layer contract: rename fails, list reverts.
func TestRenameScenario(t *testing.T) {
	s := newTestStore(t, query.Options{StaleAfter: time.Minute})
	key := query.NewKey("project", "ws1")

	s.Set(key, []project{{ID: "p1", Name: "Alpha"}})

	patchObserved := make(chan any, 1)
	_, err := s.Mutate(context.Background(), key, renameProject("p1", "Beta"),
		func(_ context.Context) (any, error) {
			ent, _ := s.Get(key)
			patchObserved <- ent.Data
			return nil, errors.New("network call failed")
		})
	require.Error(t, err)

	assert.Equal(t, []project{{ID: "p1", Name: "Beta"}}, <-patchObserved)

	ent, _ := s.Get(key)
	assert.Equal(t, []project{{ID: "p1", Name: "Alpha"}}, ent.Data)
}
