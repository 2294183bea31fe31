package api

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/harborloop/sync-go/httpx"
	"github.com/harborloop/sync-go/query"
)

// Pages reads and mutates a project's wiki pages.
type Pages struct {
	api   httpx.Client
	store *query.Store
}

// PageListKey is the cache key for a project's page list.
func PageListKey(workspaceSlug, projectID string) query.Key {
	return query.NewKey(KindPage, workspaceSlug, projectID)
}

// PageKey is the cache key for one page.
func PageKey(workspaceSlug, projectID, pageID string) query.Key {
	return query.NewKey(KindPage, workspaceSlug, projectID, pageID)
}

func pageListPath(workspaceSlug, projectID string) string {
	return fmt.Sprintf("/api/workspaces/%s/projects/%s/pages/", workspaceSlug, projectID)
}

// List returns the pages of a project.
func (p *Pages) List(ctx context.Context, workspaceSlug, projectID string) ([]Page, error) {
	data, err := p.store.Fetch(ctx, PageListKey(workspaceSlug, projectID), func(ctx context.Context) (any, error) {
		resp, err := p.api.Get(ctx, &httpx.Request{Path: pageListPath(workspaceSlug, projectID)})
		if err != nil {
			return nil, err
		}
		return decodeList[Page](resp.Body)
	})
	if err != nil {
		return nil, err
	}
	pages, _ := data.([]Page)
	return pages, nil
}

// Get returns one page.
func (p *Pages) Get(ctx context.Context, workspaceSlug, projectID, pageID string) (Page, error) {
	data, err := p.store.Fetch(ctx, PageKey(workspaceSlug, projectID, pageID), func(ctx context.Context) (any, error) {
		resp, err := p.api.Get(ctx, &httpx.Request{
			Path: pageListPath(workspaceSlug, projectID) + pageID + "/",
		})
		if err != nil {
			return nil, err
		}
		return decodeOne[Page](resp.Body)
	})
	if err != nil {
		return Page{}, err
	}
	page, _ := data.(Page)
	return page, nil
}

// Update applies a partial update optimistically to the page and the
// project's page list.
func (p *Pages) Update(ctx context.Context, workspaceSlug, projectID, pageID string, patch PagePatch) (Page, error) {
	if err := validatePayload(&patch); err != nil {
		return Page{}, err
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return Page{}, fmt.Errorf("api: marshal page patch: %w", err)
	}

	data, err := p.store.Mutate(ctx, PageKey(workspaceSlug, projectID, pageID),
		func(current any) any {
			page, ok := current.(Page)
			if !ok {
				return current
			}
			return patch.apply(page)
		},
		func(ctx context.Context) (any, error) {
			resp, err := p.api.Patch(ctx, &httpx.Request{
				Path: pageListPath(workspaceSlug, projectID) + pageID + "/",
				Body: body,
			})
			if err != nil {
				return nil, err
			}
			if len(resp.Body) == 0 {
				return nil, nil
			}
			page, err := decodeOne[Page](resp.Body)
			if err != nil {
				return nil, err
			}
			return page, nil
		},
		query.WithDependents(query.Dependent{
			Key: PageListKey(workspaceSlug, projectID),
			Patch: func(current any) any {
				pages, ok := current.([]Page)
				if !ok {
					return current
				}
				patched := slices.Clone(pages)
				for i := range patched {
					if patched[i].ID == pageID {
						patched[i] = patch.apply(patched[i])
					}
				}
				return patched
			},
		}),
	)
	if err != nil {
		return Page{}, err
	}

	page, _ := data.(Page)
	return page, nil
}

// apply merges the non-nil patch fields into a copy of the page.
func (p PagePatch) apply(page Page) Page {
	if p.Name != nil {
		page.Name = *p.Name
	}
	if p.Content != nil {
		page.Content = p.Content
	}
	if p.ParentID != nil {
		page.ParentID = p.ParentID
	}
	return page
}
