// Package selector derives view-ready data from cached entities. Every
// function is pure: no store access, no mutation of its inputs, and nil or
// empty inputs produce empty (never nil-panicking) results, so callers can
// run selectors on whatever the cache currently holds.
package selector

import (
	"slices"
	"strings"

	"github.com/harborloop/sync-go/api"
)

// JoinedProjectIDs returns the IDs of the projects the current user is a
// member of, in the input order.
func JoinedProjectIDs(projects []api.Project) []string {
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		if p.IsMember {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// ProjectsByIDs indexes projects by ID. Later duplicates win.
func ProjectsByIDs(projects []api.Project) map[string]api.Project {
	byID := make(map[string]api.Project, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
	}
	return byID
}

// EpicsByIDs returns the epics matching ids, in id order. IDs with no
// matching epic are skipped.
func EpicsByIDs(epics []api.Epic, ids []string) []api.Epic {
	byID := make(map[string]api.Epic, len(epics))
	for _, e := range epics {
		byID[e.ID] = e
	}

	out := make([]api.Epic, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// IssueFilter narrows an issue list. Zero-valued fields match everything;
// set fields must all match (AND across fields, OR within a field's values).
type IssueFilter struct {
	States     []string
	Priorities []string
	// AssigneeID matches issues assigned to this member.
	AssigneeID string
	// EpicID matches issues in this epic.
	EpicID string
	// Query is a case-insensitive substring match on the issue name.
	Query string
}

// FilterIssues returns the issues matching the filter, preserving order.
// The input slice is never modified.
func FilterIssues(issues []api.Issue, f IssueFilter) []api.Issue {
	query := strings.ToLower(f.Query)

	out := make([]api.Issue, 0, len(issues))
	for _, issue := range issues {
		if len(f.States) > 0 && !slices.Contains(f.States, issue.State) {
			continue
		}
		if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, issue.Priority) {
			continue
		}
		if f.AssigneeID != "" && !slices.Contains(issue.AssigneeIDs, f.AssigneeID) {
			continue
		}
		if f.EpicID != "" && (issue.EpicID == nil || *issue.EpicID != f.EpicID) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(issue.Name), query) {
			continue
		}
		out = append(out, issue)
	}
	return out
}

// Sort orders for SortIssues.
const (
	SortManual    = "manual"
	SortPriority  = "priority"
	SortCreatedAt = "created_at"
	SortUpdatedAt = "updated_at"
	SortName      = "name"
)

var priorityRank = map[string]int{
	api.PriorityUrgent: 0,
	api.PriorityHigh:   1,
	api.PriorityMedium: 2,
	api.PriorityLow:    3,
	api.PriorityNone:   4,
}

// SortIssues returns a sorted copy of the issues. Unknown orders fall back
// to manual (server sort_order). Ties keep the input order.
func SortIssues(issues []api.Issue, order string) []api.Issue {
	sorted := slices.Clone(issues)
	switch order {
	case SortPriority:
		slices.SortStableFunc(sorted, func(a, b api.Issue) int {
			return priorityRank[a.Priority] - priorityRank[b.Priority]
		})
	case SortCreatedAt:
		slices.SortStableFunc(sorted, func(a, b api.Issue) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	case SortUpdatedAt:
		slices.SortStableFunc(sorted, func(a, b api.Issue) int {
			return b.UpdatedAt.Compare(a.UpdatedAt)
		})
	case SortName:
		slices.SortStableFunc(sorted, func(a, b api.Issue) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	default:
		slices.SortStableFunc(sorted, func(a, b api.Issue) int {
			switch {
			case a.SortOrder < b.SortOrder:
				return -1
			case a.SortOrder > b.SortOrder:
				return 1
			default:
				return 0
			}
		})
	}
	return sorted
}

// GroupIssuesByState buckets issues per state. All five states are present
// in the result, empty buckets included, so board columns render uniformly.
func GroupIssuesByState(issues []api.Issue) map[string][]api.Issue {
	groups := map[string][]api.Issue{
		api.StateBacklog:   {},
		api.StateUnstarted: {},
		api.StateStarted:   {},
		api.StateCompleted: {},
		api.StateCancelled: {},
	}
	for _, issue := range issues {
		groups[issue.State] = append(groups[issue.State], issue)
	}
	return groups
}

// CountIssuesByState returns per-state counts for the five known states.
func CountIssuesByState(issues []api.Issue) map[string]int {
	counts := map[string]int{
		api.StateBacklog:   0,
		api.StateUnstarted: 0,
		api.StateStarted:   0,
		api.StateCompleted: 0,
		api.StateCancelled: 0,
	}
	for _, issue := range issues {
		counts[issue.State]++
	}
	return counts
}

// PageNode is one node of the page tree. Children are sorted by name.
type PageNode struct {
	Page     api.Page
	Children []*PageNode
}

// PageTree arranges a flat page list into a forest. Pages whose parent is
// missing from the input are treated as roots rather than dropped. Roots
// and children are sorted by name, case-insensitively.
func PageTree(pages []api.Page) []*PageNode {
	nodes := make(map[string]*PageNode, len(pages))
	for _, p := range pages {
		nodes[p.ID] = &PageNode{Page: p}
	}

	var roots []*PageNode
	for _, p := range pages {
		node := nodes[p.ID]
		if p.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*p.ParentID]
		if !ok || parent == node {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortNodes(roots)
	for _, node := range nodes {
		sortNodes(node.Children)
	}
	return roots
}

func sortNodes(nodes []*PageNode) {
	slices.SortStableFunc(nodes, func(a, b *PageNode) int {
		return strings.Compare(strings.ToLower(a.Page.Name), strings.ToLower(b.Page.Name))
	})
}
