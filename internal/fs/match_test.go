package fs

import (
	"path/filepath"
	"testing"
)

func TestNewExcludeMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewExcludeMatcher([]string{"", "  ", "# comment", "*.log"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.log" {
			t.Errorf("expected *.log, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies path, basename and root patterns", func(t *testing.T) {
		t.Parallel()
		m := NewExcludeMatcher([]string{"*.log", "locks/*", "locks"})
		if m.patterns[0].matchPath {
			t.Error("*.log should not be a path pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("locks/* should be a path pattern")
		}
		if !m.rootNames["locks"] {
			t.Error("locks should be a root name")
		}
	})
}

func TestExcludeMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{
			name:         "default excludes lock directory",
			patterns:     DefaultSnapshotExcludes,
			relativePath: "locks",
			want:         true,
		},
		{
			name:         "default excludes lock files",
			patterns:     DefaultSnapshotExcludes,
			relativePath: filepath.Join("locks", "head-head.lock"),
			want:         true,
		},
		{
			name:         "default keeps a tag named locks",
			patterns:     DefaultSnapshotExcludes,
			relativePath: filepath.Join("tags", "documents", "locks"),
			want:         false,
		},
		{
			name:         "default excludes temp files anywhere",
			patterns:     DefaultSnapshotExcludes,
			relativePath: filepath.Join("documents", "ab", ".tmp-12345"),
			want:         true,
		},
		{
			name:         "default keeps documents",
			patterns:     DefaultSnapshotExcludes,
			relativePath: filepath.Join("documents", "ab", "cdef"),
			want:         false,
		},
		{
			name:         "basename glob matches in subdirectory",
			patterns:     []string{"*.bak"},
			relativePath: filepath.Join("collections", "x.json.bak"),
			want:         true,
		},
		{
			name:         "path pattern does not match wrong path",
			patterns:     []string{"commits/*"},
			relativePath: filepath.Join("tags", "commits"),
			want:         false,
		},
		{
			name:         "character class",
			patterns:     []string{"*.[oa]"},
			relativePath: "main.o",
			want:         true,
		},
		{
			name:         "no patterns matches nothing",
			patterns:     nil,
			relativePath: "meta.json",
			want:         false,
		},
		{
			name:         "empty string path",
			patterns:     DefaultSnapshotExcludes,
			relativePath: "",
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewExcludeMatcher(tt.patterns)
			got := m.Match(tt.relativePath)
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}
