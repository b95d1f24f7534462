package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"arc-go/internal/arc"
	"arc-go/internal/fs"
)

// FileSystemVault is a filesystem-based implementation of the Vault interface.
// It stores one file per snapshot:
//
//	<root>/
//	  snapshots/
//	    <archive>/
//	      <name>
type FileSystemVault struct {
	name         string
	root         string
	snapshotsDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	snapshotsDir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(snapshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	return &FileSystemVault{
		name:         name,
		root:         root,
		snapshotsDir: snapshotsDir,
	}, nil
}

// PutSnapshot stores a snapshot with an atomic write, replacing any
// snapshot of the same name.
func (v *FileSystemVault) PutSnapshot(_ context.Context, archive, name string, r io.Reader, size int64) error {
	key, err := snapshotKey(archive, name)
	if err != nil {
		return err
	}
	destPath := filepath.Join(v.snapshotsDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	return fs.WriteAtomic(destPath, r, size)
}

// GetSnapshot writes a stored snapshot to w.
func (v *FileSystemVault) GetSnapshot(_ context.Context, archive, name string, w io.Writer) error {
	key, err := snapshotKey(archive, name)
	if err != nil {
		return err
	}

	f, err := os.Open(filepath.Join(v.snapshotsDir, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return arc.NotFound("snapshot", key)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the snapshot names stored for archive.
func (v *FileSystemVault) ListSnapshots(_ context.Context, archive string) ([]string, error) {
	if err := arc.ValidateName("archive", archive); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(v.snapshotsDir, archive))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && !fs.IsTemp(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup(context.Context) error {
	for _, dir := range []string{v.root, v.snapshotsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// Compile-time check that FileSystemVault implements arc.Vault interface
var _ arc.Vault = (*FileSystemVault)(nil)
