package fs

import (
	"path/filepath"
	"strings"
)

// DefaultSnapshotExcludes are always applied when archiving an archive
// root: lock files and leftover temp files carry no state.
var DefaultSnapshotExcludes = []string{"locks", "locks/*", tempPattern}

// excludePattern is a parsed pattern with its matching strategy.
type excludePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// ExcludeMatcher checks archive-relative paths against a set of patterns.
// Glob patterns without '/' match the basename at any depth; patterns with
// '/' match the whole relative path.
type ExcludeMatcher struct {
	patterns  []excludePattern
	rootNames map[string]bool
}

// NewExcludeMatcher creates a matcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped. A pattern without
// wildcards or '/' that names a top-level entry (like "locks") only
// matches at the archive root.
func NewExcludeMatcher(rawPatterns []string) *ExcludeMatcher {
	m := &ExcludeMatcher{rootNames: make(map[string]bool)}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if !strings.ContainsAny(raw, "*?[/") {
			m.rootNames[raw] = true
			continue
		}
		m.patterns = append(m.patterns, excludePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return m
}

// Match reports whether the given relative path should be left out.
func (m *ExcludeMatcher) Match(relativePath string) bool {
	normalized := filepath.ToSlash(relativePath)
	if normalized == "" {
		return false
	}
	if m.rootNames[normalized] {
		return true
	}
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = filepath.Match(p.pattern, normalized)
		} else {
			matched, err = filepath.Match(p.pattern, basename)
		}
		if err != nil {
			// Bad pattern: skip it.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
