package api

import (
	"github.com/harborloop/sync-go/httpx"
	"github.com/harborloop/sync-go/query"
)

// API groups the per-resource services over one transport and one store.
type API struct {
	Workspaces *Workspaces
	Projects   *Projects
	Issues     *Issues
	Epics      *Epics
	Pages      *Pages
}

// New wires the resource services.
func New(client httpx.Client, store *query.Store) *API {
	return &API{
		Workspaces: &Workspaces{api: client, store: store},
		Projects:   &Projects{api: client, store: store},
		Issues:     &Issues{api: client, store: store},
		Epics:      &Epics{api: client, store: store},
		Pages:      &Pages{api: client, store: store},
	}
}
