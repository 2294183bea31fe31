package api

import (
	"context"
	"fmt"

	"github.com/harborloop/sync-go/httpx"
	"github.com/harborloop/sync-go/query"
)

// Workspaces reads workspaces and their members.
type Workspaces struct {
	api   httpx.Client
	store *query.Store
}

// WorkspaceListKey is the cache key for the caller's workspace list.
func WorkspaceListKey() query.Key {
	return query.NewKey(KindWorkspace)
}

// MemberListKey is the cache key for one workspace's member list.
func MemberListKey(workspaceSlug string) query.Key {
	return query.NewKey(KindMember, workspaceSlug)
}

// List returns the workspaces the session has access to.
func (w *Workspaces) List(ctx context.Context) ([]Workspace, error) {
	data, err := w.store.Fetch(ctx, WorkspaceListKey(), func(ctx context.Context) (any, error) {
		resp, err := w.api.Get(ctx, &httpx.Request{Path: "/api/workspaces/"})
		if err != nil {
			return nil, err
		}
		return decodeList[Workspace](resp.Body)
	})
	if err != nil {
		return nil, err
	}
	workspaces, _ := data.([]Workspace)
	return workspaces, nil
}

// Members returns the member list of one workspace.
func (w *Workspaces) Members(ctx context.Context, workspaceSlug string) ([]Member, error) {
	data, err := w.store.Fetch(ctx, MemberListKey(workspaceSlug), func(ctx context.Context) (any, error) {
		resp, err := w.api.Get(ctx, &httpx.Request{
			Path: fmt.Sprintf("/api/workspaces/%s/members/", workspaceSlug),
		})
		if err != nil {
			return nil, err
		}
		return decodeList[Member](resp.Body)
	})
	if err != nil {
		return nil, err
	}
	members, _ := data.([]Member)
	return members, nil
}
