package api

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/harborloop/sync-go/httpx"
	"github.com/harborloop/sync-go/query"
)

// Projects reads and mutates the projects of a workspace.
type Projects struct {
	api   httpx.Client
	store *query.Store
}

// ProjectListKey is the cache key for a workspace's project list.
func ProjectListKey(workspaceSlug string) query.Key {
	return query.NewKey(KindProject, workspaceSlug)
}

// ProjectKey is the cache key for one project.
func ProjectKey(workspaceSlug, projectID string) query.Key {
	return query.NewKey(KindProject, workspaceSlug, projectID)
}

// List returns the projects of a workspace.
func (p *Projects) List(ctx context.Context, workspaceSlug string) ([]Project, error) {
	data, err := p.store.Fetch(ctx, ProjectListKey(workspaceSlug), func(ctx context.Context) (any, error) {
		resp, err := p.api.Get(ctx, &httpx.Request{
			Path: fmt.Sprintf("/api/workspaces/%s/projects/", workspaceSlug),
		})
		if err != nil {
			return nil, err
		}
		return decodeList[Project](resp.Body)
	})
	if err != nil {
		return nil, err
	}
	projects, _ := data.([]Project)
	return projects, nil
}

// Get returns one project.
func (p *Projects) Get(ctx context.Context, workspaceSlug, projectID string) (Project, error) {
	data, err := p.store.Fetch(ctx, ProjectKey(workspaceSlug, projectID), func(ctx context.Context) (any, error) {
		resp, err := p.api.Get(ctx, &httpx.Request{
			Path: fmt.Sprintf("/api/workspaces/%s/projects/%s/", workspaceSlug, projectID),
		})
		if err != nil {
			return nil, err
		}
		return decodeOne[Project](resp.Body)
	})
	if err != nil {
		return Project{}, err
	}
	project, _ := data.(Project)
	return project, nil
}

// Update applies a partial update optimistically: the cached project and
// its list entry change immediately, and revert if the server rejects.
func (p *Projects) Update(ctx context.Context, workspaceSlug, projectID string, patch ProjectPatch) (Project, error) {
	if err := validatePayload(&patch); err != nil {
		return Project{}, err
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return Project{}, fmt.Errorf("api: marshal project patch: %w", err)
	}

	data, err := p.store.Mutate(ctx, ProjectKey(workspaceSlug, projectID),
		func(current any) any {
			project, ok := current.(Project)
			if !ok {
				return current
			}
			return patch.apply(project)
		},
		func(ctx context.Context) (any, error) {
			resp, err := p.api.Patch(ctx, &httpx.Request{
				Path: fmt.Sprintf("/api/workspaces/%s/projects/%s/", workspaceSlug, projectID),
				Body: body,
			})
			if err != nil {
				return nil, err
			}
			if len(resp.Body) == 0 {
				return nil, nil
			}
			project, err := decodeOne[Project](resp.Body)
			if err != nil {
				return nil, err
			}
			return project, nil
		},
		query.WithDependents(query.Dependent{
			Key: ProjectListKey(workspaceSlug),
			Patch: func(current any) any {
				projects, ok := current.([]Project)
				if !ok {
					return current
				}
				patched := slices.Clone(projects)
				for i := range patched {
					if patched[i].ID == projectID {
						patched[i] = patch.apply(patched[i])
					}
				}
				return patched
			},
		}),
	)
	if err != nil {
		return Project{}, err
	}

	project, _ := data.(Project)
	return project, nil
}

// apply merges the non-nil patch fields into a copy of the project.
func (p ProjectPatch) apply(project Project) Project {
	if p.Name != nil {
		project.Name = *p.Name
	}
	if p.Description != nil {
		project.Description = p.Description
	}
	if p.Icon != nil {
		project.Icon = p.Icon
	}
	return project
}
