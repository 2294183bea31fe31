// Package api exposes typed access to the Harborloop REST API. Each
// resource service reads through the query store (cached, deduplicated,
// revalidated) and writes through optimistic mutations. Payloads are
// validated once, at the decode boundary; the rest of the SDK trusts them.
package api

import "time"

// Entity kinds used as the leading segment of cache keys.
const (
	KindWorkspace = "workspace"
	KindProject   = "project"
	KindIssue     = "issue"
	KindEpic      = "epic"
	KindPage      = "page"
	KindMember    = "member"
)

// Issue states.
const (
	StateBacklog   = "backlog"
	StateUnstarted = "unstarted"
	StateStarted   = "started"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
)

// Issue priorities.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
	PriorityNone   = "none"
)

// Icon is the tagged-variant form of a project icon. The server sends
// either an emoji codepoint or an uploaded image URL; the kind tag makes
// the variant explicit instead of sniffing field presence.
type Icon struct {
	Kind  string `json:"kind" validate:"required,oneof=emoji image"`
	Value string `json:"value" validate:"required"`
}

// Workspace is one tenant.
type Workspace struct {
	ID        string    `json:"id" validate:"required"`
	Slug      string    `json:"slug" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Logo      *string   `json:"logo"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a workspace member.
type Member struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"display_name" validate:"required"`
	Role        string `json:"role" validate:"required,oneof=admin member guest"`
}

// Project is one project within a workspace. Server-nullable fields are
// explicit pointers; absence and null both decode to nil.
type Project struct {
	ID          string     `json:"id" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	Identifier  string     `json:"identifier" validate:"required"`
	Description *string    `json:"description"`
	Icon        *Icon      `json:"icon"`
	IsMember    bool       `json:"is_member"`
	ArchivedAt  *time.Time `json:"archived_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Issue is one work item.
type Issue struct {
	ID          string    `json:"id" validate:"required"`
	ProjectID   string    `json:"project_id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	Description *string   `json:"description"`
	State       string    `json:"state" validate:"required,oneof=backlog unstarted started completed cancelled"`
	Priority    string    `json:"priority" validate:"required,oneof=urgent high medium low none"`
	AssigneeIDs []string  `json:"assignee_ids"`
	EpicID      *string   `json:"epic_id"`
	SortOrder   float64   `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Epic groups issues across sprints.
type Epic struct {
	ID          string  `json:"id" validate:"required"`
	ProjectID   string  `json:"project_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
	IssueCount  int     `json:"issue_count" validate:"gte=0"`
}

// Page is a wiki page. ParentID is nil for roots.
type Page struct {
	ID        string    `json:"id" validate:"required"`
	ProjectID string    `json:"project_id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	ParentID  *string   `json:"parent_id"`
	Content   *string   `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectPatch is a partial project update. Nil fields are left unchanged.
type ProjectPatch struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
	Icon        *Icon   `json:"icon,omitempty"`
}

// IssueCreate is the payload for creating an issue.
type IssueCreate struct {
	Name        string   `json:"name" validate:"required,min=1"`
	Description *string  `json:"description,omitempty"`
	State       string   `json:"state" validate:"required,oneof=backlog unstarted started completed cancelled"`
	Priority    string   `json:"priority" validate:"required,oneof=urgent high medium low none"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
	EpicID      *string  `json:"epic_id,omitempty"`
}

// IssuePatch is a partial issue update. Nil fields are left unchanged.
type IssuePatch struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string   `json:"description,omitempty"`
	State       *string   `json:"state,omitempty" validate:"omitempty,oneof=backlog unstarted started completed cancelled"`
	Priority    *string   `json:"priority,omitempty" validate:"omitempty,oneof=urgent high medium low none"`
	AssigneeIDs *[]string `json:"assignee_ids,omitempty"`
	EpicID      *string   `json:"epic_id,omitempty"`
}

// EpicPatch is a partial epic update.
type EpicPatch struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
}

// PagePatch is a partial page update.
type PagePatch struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Content  *string `json:"content,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}
