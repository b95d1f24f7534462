package snapshot

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"arc-go/internal/arc"
	arcfs "arc-go/internal/fs"
)

// writeTarball streams the tree under root into w as a zstd-compressed tar.
// Entries matched by excludes are left out; excluded directories are not
// descended into. Returns the number of regular files written.
func writeTarball(root string, w io.Writer, excludes *arcfs.ExcludeMatcher) (int, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("creating zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	files := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if excludes.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid, hdr.Uname, hdr.Gname = 0, 0, "", ""
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing header for %s: %w", rel, err)
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.CopyN(tw, f, info.Size()); err != nil {
			return fmt.Errorf("archiving %s: %w", rel, err)
		}
		files++
		return nil
	})
	if walkErr != nil {
		tw.Close()
		zw.Close()
		return 0, walkErr
	}

	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("finalizing tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalizing zstd: %w", err)
	}
	return files, nil
}

// extractTarball unpacks a zstd-compressed tar from r into dest, which
// must exist. Only directories and regular files with local paths are
// accepted. Returns the number of regular files written.
func extractTarball(r io.Reader, dest string) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)

	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return 0, arc.Malformed("reading snapshot: %v", err)
		}

		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return 0, arc.Malformed("snapshot entry %q escapes the archive root", hdr.Name)
		}
		target := filepath.Join(dest, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return 0, fmt.Errorf("creating %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return 0, fmt.Errorf("creating parent of %s: %w", hdr.Name, err)
			}
			if err := writeEntry(target, tr, hdr.Size); err != nil {
				return 0, fmt.Errorf("restoring %s: %w", hdr.Name, err)
			}
			files++
		default:
			return 0, arc.Malformed("snapshot entry %q has unsupported type %c", hdr.Name, hdr.Typeflag)
		}
	}
}

func writeEntry(path string, r io.Reader, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(f, r, size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
