package api

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/harborloop/sync-go/httpx"
	"github.com/harborloop/sync-go/query"
)

// Issues reads and mutates the issues of a project.
type Issues struct {
	api   httpx.Client
	store *query.Store
}

// IssueListKey is the cache key for a project's issue list.
func IssueListKey(workspaceSlug, projectID string) query.Key {
	return query.NewKey(KindIssue, workspaceSlug, projectID)
}

// IssueKey is the cache key for one issue.
func IssueKey(workspaceSlug, projectID, issueID string) query.Key {
	return query.NewKey(KindIssue, workspaceSlug, projectID, issueID)
}

func issueListPath(workspaceSlug, projectID string) string {
	return fmt.Sprintf("/api/workspaces/%s/projects/%s/issues/", workspaceSlug, projectID)
}

func issuePath(workspaceSlug, projectID, issueID string) string {
	return issueListPath(workspaceSlug, projectID) + issueID + "/"
}

// List returns the issues of a project.
func (i *Issues) List(ctx context.Context, workspaceSlug, projectID string) ([]Issue, error) {
	data, err := i.store.Fetch(ctx, IssueListKey(workspaceSlug, projectID), func(ctx context.Context) (any, error) {
		resp, err := i.api.Get(ctx, &httpx.Request{Path: issueListPath(workspaceSlug, projectID)})
		if err != nil {
			return nil, err
		}
		return decodeList[Issue](resp.Body)
	})
	if err != nil {
		return nil, err
	}
	issues, _ := data.([]Issue)
	return issues, nil
}

// Get returns one issue.
func (i *Issues) Get(ctx context.Context, workspaceSlug, projectID, issueID string) (Issue, error) {
	data, err := i.store.Fetch(ctx, IssueKey(workspaceSlug, projectID, issueID), func(ctx context.Context) (any, error) {
		resp, err := i.api.Get(ctx, &httpx.Request{Path: issuePath(workspaceSlug, projectID, issueID)})
		if err != nil {
			return nil, err
		}
		return decodeOne[Issue](resp.Body)
	})
	if err != nil {
		return Issue{}, err
	}
	issue, _ := data.(Issue)
	return issue, nil
}

// Create creates an issue. A provisional issue appears in the cached list
// immediately and is removed again if the server rejects the create; on
// success the list is invalidated so it converges on the server's ordering.
func (i *Issues) Create(ctx context.Context, workspaceSlug, projectID string, in IssueCreate) (Issue, error) {
	if err := validatePayload(&in); err != nil {
		return Issue{}, err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return Issue{}, fmt.Errorf("api: marshal issue create: %w", err)
	}

	now := time.Now()
	provisional := Issue{
		ID:          "pending-" + uuid.NewString(),
		ProjectID:   projectID,
		Name:        in.Name,
		Description: in.Description,
		State:       in.State,
		Priority:    in.Priority,
		AssigneeIDs: in.AssigneeIDs,
		EpicID:      in.EpicID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	listKey := IssueListKey(workspaceSlug, projectID)

	var created Issue
	_, err = i.store.Mutate(ctx, listKey,
		func(current any) any {
			issues, _ := current.([]Issue)
			return append(slices.Clone(issues), provisional)
		},
		func(ctx context.Context) (any, error) {
			resp, err := i.api.Post(ctx, &httpx.Request{
				Path: issueListPath(workspaceSlug, projectID),
				Body: body,
			})
			if err != nil {
				return nil, err
			}
			created, err = decodeOne[Issue](resp.Body)
			if err != nil {
				return nil, err
			}
			// Keep the optimistic list; the invalidation below replaces
			// the provisional entry with the server's version.
			return nil, nil
		},
	)
	if err != nil {
		return Issue{}, err
	}

	i.store.Set(IssueKey(workspaceSlug, projectID, created.ID), created)
	i.store.Invalidate(listKey)

	return created, nil
}

// Update applies a partial update optimistically to the issue and the
// project's issue list.
func (i *Issues) Update(ctx context.Context, workspaceSlug, projectID, issueID string, patch IssuePatch) (Issue, error) {
	if err := validatePayload(&patch); err != nil {
		return Issue{}, err
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return Issue{}, fmt.Errorf("api: marshal issue patch: %w", err)
	}

	data, err := i.store.Mutate(ctx, IssueKey(workspaceSlug, projectID, issueID),
		func(current any) any {
			issue, ok := current.(Issue)
			if !ok {
				return current
			}
			return patch.apply(issue)
		},
		func(ctx context.Context) (any, error) {
			resp, err := i.api.Patch(ctx, &httpx.Request{
				Path: issuePath(workspaceSlug, projectID, issueID),
				Body: body,
			})
			if err != nil {
				return nil, err
			}
			if len(resp.Body) == 0 {
				return nil, nil
			}
			issue, err := decodeOne[Issue](resp.Body)
			if err != nil {
				return nil, err
			}
			return issue, nil
		},
		query.WithDependents(query.Dependent{
			Key: IssueListKey(workspaceSlug, projectID),
			Patch: func(current any) any {
				issues, ok := current.([]Issue)
				if !ok {
					return current
				}
				patched := slices.Clone(issues)
				for n := range patched {
					if patched[n].ID == issueID {
						patched[n] = patch.apply(patched[n])
					}
				}
				return patched
			},
		}),
	)
	if err != nil {
		return Issue{}, err
	}

	issue, _ := data.(Issue)
	return issue, nil
}

// Delete removes an issue. The issue disappears from the cached list
// immediately and reappears if the server rejects the delete.
func (i *Issues) Delete(ctx context.Context, workspaceSlug, projectID, issueID string) error {
	listKey := IssueListKey(workspaceSlug, projectID)

	_, err := i.store.Mutate(ctx, listKey,
		func(current any) any {
			issues, ok := current.([]Issue)
			if !ok {
				return current
			}
			return slices.DeleteFunc(slices.Clone(issues), func(is Issue) bool {
				return is.ID == issueID
			})
		},
		func(ctx context.Context) (any, error) {
			_, err := i.api.Delete(ctx, &httpx.Request{
				Path: issuePath(workspaceSlug, projectID, issueID),
			})
			return nil, err
		},
	)
	if err != nil {
		return err
	}

	i.store.Remove(IssueKey(workspaceSlug, projectID, issueID))
	return nil
}

// apply merges the non-nil patch fields into a copy of the issue.
func (p IssuePatch) apply(issue Issue) Issue {
	if p.Name != nil {
		issue.Name = *p.Name
	}
	if p.Description != nil {
		issue.Description = p.Description
	}
	if p.State != nil {
		issue.State = *p.State
	}
	if p.Priority != nil {
		issue.Priority = *p.Priority
	}
	if p.AssigneeIDs != nil {
		issue.AssigneeIDs = *p.AssigneeIDs
	}
	if p.EpicID != nil {
		issue.EpicID = p.EpicID
	}
	return issue
}
