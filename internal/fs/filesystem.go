// Package fs holds the filesystem primitives every archive write goes
// through: atomic replacement, exclusive creation and per-resource locks.
package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const tempPattern = ".tmp-*"

// WriteAtomic writes data from r to destPath using a temp file in the same
// directory followed by a rename, so readers see either the old or the new
// content. A negative expectedSize skips the size check.
func WriteAtomic(destPath string, r io.Reader, expectedSize int64) error {
	tmpPath, err := writeTemp(filepath.Dir(destPath), r, expectedSize)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// WriteFileAtomic is WriteAtomic for an in-memory buffer.
func WriteFileAtomic(destPath string, data []byte) error {
	return WriteAtomic(destPath, bytes.NewReader(data), int64(len(data)))
}

// CreateExclusive writes data to destPath only if nothing exists there yet.
// The content is staged in a temp file and hard-linked into place, so the
// destination is never visible half-written. created is false when
// destPath already existed; its content is left untouched.
func CreateExclusive(destPath string, data []byte) (created bool, err error) {
	tmpPath, err := writeTemp(filepath.Dir(destPath), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false, err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, destPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to link into place: %w", err)
	}
	return true, nil
}

// IsTemp reports whether name is a temp file left by WriteAtomic or
// CreateExclusive.
func IsTemp(name string) bool {
	ok, _ := filepath.Match(tempPattern, filepath.Base(name))
	return ok
}

func writeTemp(dir string, r io.Reader, expectedSize int64) (string, error) {
	tmpFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if expectedSize >= 0 && written != expectedSize {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	success = true
	return tmpPath, nil
}
