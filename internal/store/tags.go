package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"arc-go/internal/arc"
	"arc-go/internal/fs"
)

// Tags is the reverse index from tag name to referent ids. Each space has
// its own directory; each tag is one newline-delimited file. A tag file
// exists only while at least one entity carries the tag.
//
// Mutating methods require the caller to hold the matching fs.TagResource.
type Tags struct {
	dir string
}

func (t *Tags) path(space arc.Space, tag string) (string, error) {
	if space != arc.SpaceDocuments && space != arc.SpaceCollections {
		return "", arc.Malformed("unknown tag space %q", space)
	}
	if err := arc.ValidateName("tag", tag); err != nil {
		return "", err
	}
	return filepath.Join(t.dir, string(space), tag), nil
}

// Referents returns the ids tagged with tag in space, in insertion order.
// A tag nobody carries has no referents.
func (t *Tags) Referents(space arc.Space, tag string) ([]string, error) {
	path, err := t.path(space, tag)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading tag %s: %w", tag, err)
	}

	ids := []string{}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}

// Add records id under tag. Returns false if it was already there.
func (t *Tags) Add(space arc.Space, tag, id string) (bool, error) {
	ids, err := t.Referents(space, tag)
	if err != nil {
		return false, err
	}
	if slices.Contains(ids, id) {
		return false, nil
	}
	return true, t.write(space, tag, append(ids, id))
}

// Remove drops id from tag, deleting the tag file when it becomes empty.
// Returns false if id was not there.
func (t *Tags) Remove(space arc.Space, tag, id string) (bool, error) {
	ids, err := t.Referents(space, tag)
	if err != nil {
		return false, err
	}
	i := slices.Index(ids, id)
	if i < 0 {
		return false, nil
	}
	return true, t.write(space, tag, slices.Delete(ids, i, i+1))
}

// List returns the tags in use in space, sorted.
func (t *Tags) List(space arc.Space) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(t.dir, string(space)))
	if err != nil {
		return nil, fmt.Errorf("reading %s tags: %w", space, err)
	}

	tags := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && !fs.IsTemp(e.Name()) {
			tags = append(tags, e.Name())
		}
	}
	return tags, nil
}

func (t *Tags) write(space arc.Space, tag string, ids []string) error {
	path, err := t.path(space, tag)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing empty tag %s: %w", tag, err)
		}
		return nil
	}

	data := strings.Join(ids, "\n") + "\n"
	if err := fs.WriteFileAtomic(path, []byte(data)); err != nil {
		return fmt.Errorf("writing tag %s: %w", tag, err)
	}
	return nil
}
