package api

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/harborloop/sync-go/httpx"
	"github.com/harborloop/sync-go/query"
)

// Epics reads and mutates the epics of a project.
type Epics struct {
	api   httpx.Client
	store *query.Store
}

// EpicListKey is the cache key for a project's epic list.
func EpicListKey(workspaceSlug, projectID string) query.Key {
	return query.NewKey(KindEpic, workspaceSlug, projectID)
}

// EpicKey is the cache key for one epic.
func EpicKey(workspaceSlug, projectID, epicID string) query.Key {
	return query.NewKey(KindEpic, workspaceSlug, projectID, epicID)
}

func epicListPath(workspaceSlug, projectID string) string {
	return fmt.Sprintf("/api/workspaces/%s/projects/%s/epics/", workspaceSlug, projectID)
}

// List returns the epics of a project.
func (e *Epics) List(ctx context.Context, workspaceSlug, projectID string) ([]Epic, error) {
	data, err := e.store.Fetch(ctx, EpicListKey(workspaceSlug, projectID), func(ctx context.Context) (any, error) {
		resp, err := e.api.Get(ctx, &httpx.Request{Path: epicListPath(workspaceSlug, projectID)})
		if err != nil {
			return nil, err
		}
		return decodeList[Epic](resp.Body)
	})
	if err != nil {
		return nil, err
	}
	epics, _ := data.([]Epic)
	return epics, nil
}

// Get returns one epic.
func (e *Epics) Get(ctx context.Context, workspaceSlug, projectID, epicID string) (Epic, error) {
	data, err := e.store.Fetch(ctx, EpicKey(workspaceSlug, projectID, epicID), func(ctx context.Context) (any, error) {
		resp, err := e.api.Get(ctx, &httpx.Request{
			Path: epicListPath(workspaceSlug, projectID) + epicID + "/",
		})
		if err != nil {
			return nil, err
		}
		return decodeOne[Epic](resp.Body)
	})
	if err != nil {
		return Epic{}, err
	}
	epic, _ := data.(Epic)
	return epic, nil
}

// Update applies a partial update optimistically to the epic and the
// project's epic list.
func (e *Epics) Update(ctx context.Context, workspaceSlug, projectID, epicID string, patch EpicPatch) (Epic, error) {
	if err := validatePayload(&patch); err != nil {
		return Epic{}, err
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return Epic{}, fmt.Errorf("api: marshal epic patch: %w", err)
	}

	data, err := e.store.Mutate(ctx, EpicKey(workspaceSlug, projectID, epicID),
		func(current any) any {
			epic, ok := current.(Epic)
			if !ok {
				return current
			}
			return patch.apply(epic)
		},
		func(ctx context.Context) (any, error) {
			resp, err := e.api.Patch(ctx, &httpx.Request{
				Path: epicListPath(workspaceSlug, projectID) + epicID + "/",
				Body: body,
			})
			if err != nil {
				return nil, err
			}
			if len(resp.Body) == 0 {
				return nil, nil
			}
			epic, err := decodeOne[Epic](resp.Body)
			if err != nil {
				return nil, err
			}
			return epic, nil
		},
		query.WithDependents(query.Dependent{
			Key: EpicListKey(workspaceSlug, projectID),
			Patch: func(current any) any {
				epics, ok := current.([]Epic)
				if !ok {
					return current
				}
				patched := slices.Clone(epics)
				for i := range patched {
					if patched[i].ID == epicID {
						patched[i] = patch.apply(patched[i])
					}
				}
				return patched
			},
		}),
	)
	if err != nil {
		return Epic{}, err
	}

	epic, _ := data.(Epic)
	return epic, nil
}

// apply merges the non-nil patch fields into a copy of the epic.
func (p EpicPatch) apply(epic Epic) Epic {
	if p.Name != nil {
		epic.Name = *p.Name
	}
	if p.Description != nil {
		epic.Description = p.Description
	}
	return epic
}
