package arc

import (
	"context"
	"io"
)

// Vault stores archive snapshots away from the archive root.
// All operations stream through io.Reader/io.Writer so large archives are
// never held in memory.
type Vault interface {
	// PutSnapshot stores a snapshot of archive under name.
	// size is the number of bytes that will be read from r.
	PutSnapshot(ctx context.Context, archive, name string, r io.Reader, size int64) error

	// GetSnapshot writes the named snapshot to w.
	// Returns ErrNotFound if no such snapshot exists.
	GetSnapshot(ctx context.Context, archive, name string, w io.Writer) error

	// ListSnapshots returns the snapshot names stored for archive, oldest first.
	ListSnapshots(ctx context.Context, archive string) ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
