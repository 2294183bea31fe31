package query

import "strings"

// Key is the canonical composite identifier for one cached entity or
// collection: an entity kind plus ordered scope segments, e.g.
// ("project", "ws1") for a workspace's project list or
// ("issue", "ws1", "p1", "i1") for one issue.
//
// The same logical request always produces the same Key. A Key with any
// empty segment is unresolved and disables fetching.
type Key struct {
	Kind  string
	Scope []string
}

// NewKey builds a Key from an entity kind and scope segments.
func NewKey(kind string, scope ...string) Key {
	return Key{Kind: kind, Scope: scope}
}

// Resolved reports whether every segment of the key is non-empty.
// Segments must not contain "/" (slugs and IDs never do).
func (k Key) Resolved() bool {
	if k.Kind == "" {
		return false
	}
	for _, s := range k.Scope {
		if s == "" {
			return false
		}
	}
	return true
}

// String returns the canonical string form used as map and singleflight
// identity: kind and scope segments joined by "/".
func (k Key) String() string {
	if len(k.Scope) == 0 {
		return k.Kind
	}
	return k.Kind + "/" + strings.Join(k.Scope, "/")
}

// HasPrefix reports whether k falls under the given kind and leading scope
// segments. Used for prefix invalidation, e.g. all issue keys of a project.
func (k Key) HasPrefix(kind string, scope ...string) bool {
	if k.Kind != kind || len(scope) > len(k.Scope) {
		return false
	}
	for i, s := range scope {
		if k.Scope[i] != s {
			return false
		}
	}
	return true
}
