// Package prefs persists per-user UI preferences to a small YAML file.
// Preferences are best-effort state, not configuration: a missing or
// corrupt file falls back to defaults instead of failing, and saves go
// through a temp-file rename so a crash mid-write never truncates the
// previous state.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Themes.
const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

// Preferences is the persisted UI state.
type Preferences struct {
	// LastWorkspaceSlug is the workspace to reopen on launch.
	LastWorkspaceSlug string `koanf:"last_workspace_slug" yaml:"last_workspace_slug"`
	SidebarCollapsed  bool   `koanf:"sidebar_collapsed" yaml:"sidebar_collapsed"`
	Theme             string `koanf:"theme" yaml:"theme"`
	// ProjectSortOrder maps project ID to the issue sort order last used
	// there, so each board reopens the way it was left.
	ProjectSortOrder map[string]string `koanf:"project_sort_order" yaml:"project_sort_order"`
}

// Store reads and writes preferences at a fixed path. Safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	path    string
	current Preferences
}

func defaults() Preferences {
	return Preferences{
		Theme:            ThemeSystem,
		ProjectSortOrder: map[string]string{},
	}
}

// Open loads the preferences at path. A missing file yields defaults; a
// file that cannot be parsed is discarded in favor of defaults rather
// than blocking startup, and the next Save overwrites it.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("prefs: path is required")
	}

	s := &Store{path: path, current: defaults()}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %s: %w", path, err)
	}

	if loaded, err := parse(raw); err == nil {
		s.current = loaded
	}
	return s, nil
}

func parse(raw []byte) (Preferences, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"theme": ThemeSystem,
	}, "."), nil); err != nil {
		return Preferences{}, err
	}
	if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
		return Preferences{}, err
	}

	p := defaults()
	if err := k.Unmarshal("", &p); err != nil {
		return Preferences{}, err
	}
	if p.Theme != ThemeSystem && p.Theme != ThemeLight && p.Theme != ThemeDark {
		p.Theme = ThemeSystem
	}
	if p.ProjectSortOrder == nil {
		p.ProjectSortOrder = map[string]string{}
	}
	return p, nil
}

// Get returns a copy of the current preferences.
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// snapshot copies current; the map must not be shared with callers.
func (s *Store) snapshot() Preferences {
	p := s.current
	p.ProjectSortOrder = make(map[string]string, len(s.current.ProjectSortOrder))
	for k, v := range s.current.ProjectSortOrder {
		p.ProjectSortOrder[k] = v
	}
	return p
}

// Update applies fn to a copy of the preferences and persists the result.
// The previous state is kept when the write fails.
func (s *Store) Update(fn func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot()
	fn(&next)

	if err := s.write(next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// SetLastWorkspace records the workspace to reopen on launch.
func (s *Store) SetLastWorkspace(slug string) error {
	return s.Update(func(p *Preferences) { p.LastWorkspaceSlug = slug })
}

// SetSidebarCollapsed records the sidebar state.
func (s *Store) SetSidebarCollapsed(collapsed bool) error {
	return s.Update(func(p *Preferences) { p.SidebarCollapsed = collapsed })
}

// SetTheme records the theme. Unknown themes are rejected.
func (s *Store) SetTheme(theme string) error {
	if theme != ThemeSystem && theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("prefs: unknown theme %q", theme)
	}
	return s.Update(func(p *Preferences) { p.Theme = theme })
}

// SetProjectSortOrder records the issue sort order last used in a project.
func (s *Store) SetProjectSortOrder(projectID, order string) error {
	return s.Update(func(p *Preferences) { p.ProjectSortOrder[projectID] = order })
}

// write serializes next and replaces the file atomically: write a temp
// file in the same directory, fsync, rename over the target.
func (s *Store) write(next Preferences) error {
	raw, err := yaml.Parser().Marshal(map[string]any{
		"last_workspace_slug": next.LastWorkspaceSlug,
		"sidebar_collapsed":   next.SidebarCollapsed,
		"theme":               next.Theme,
		"project_sort_order":  next.ProjectSortOrder,
	})
	if err != nil {
		return fmt.Errorf("prefs: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("prefs: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("prefs: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("prefs: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("prefs: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("prefs: replace %s: %w", s.path, err)
	}
	return nil
}
