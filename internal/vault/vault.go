// Package vault stores archive snapshots off the archive root. Every
// backend keys a snapshot by its archive and name; names sort in the order
// they were taken.
package vault

import (
	"path"

	"arc-go/internal/arc"
)

// snapshotKey returns "<archive>/<name>" after checking both parts are
// safe path components.
func snapshotKey(archive, name string) (string, error) {
	if err := arc.ValidateName("archive", archive); err != nil {
		return "", err
	}
	if err := arc.ValidateName("snapshot", name); err != nil {
		return "", err
	}
	return path.Join(archive, name), nil
}
