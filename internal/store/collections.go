package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"arc-go/internal/arc"
	"arc-go/internal/fs"
)

// Collections stores one JSON record per collection.
type Collections struct {
	dir     string
	archive *Archive
}

func (c *Collections) path(id string) (string, error) {
	if arc.ValidateName("collection", id) != nil {
		return "", arc.NotFound("collection", id)
	}
	return filepath.Join(c.dir, id+".json"), nil
}

// Create persists a new, empty collection with a generated id. The creator
// is its first maintainer.
func (c *Collections) Create(name, creator string) (*arc.Collection, error) {
	now := c.archive.opts.Clock.Now()
	col := &arc.Collection{
		ID:          c.archive.opts.IDs.New(),
		Name:        name,
		Creator:     creator,
		Maintainers: []string{creator},
		Documents:   []string{},
		Tags:        []string{},
		Created:     now,
		Updated:     now,
	}

	path, err := c.path(col.ID)
	if err != nil {
		return nil, fmt.Errorf("generated collection id %q is unusable", col.ID)
	}
	data, err := json.MarshalIndent(col, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding collection: %w", err)
	}
	created, err := fs.CreateExclusive(path, append(data, '\n'))
	if err != nil {
		return nil, fmt.Errorf("storing collection %s: %w", col.ID, err)
	}
	if !created {
		return nil, fmt.Errorf("collection %s: %w", col.ID, arc.ErrAlreadyExists)
	}
	return col, nil
}

// Get loads a collection by id.
func (c *Collections) Get(id string) (*arc.Collection, error) {
	path, err := c.path(id)
	if err != nil {
		return nil, err
	}
	var col arc.Collection
	if err := readJSON(path, &col); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, arc.NotFound("collection", id)
		}
		return nil, fmt.Errorf("reading collection %s: %w", id, err)
	}
	return &col, nil
}

// Put persists a collection. The caller must hold its collection lock.
func (c *Collections) Put(col *arc.Collection) error {
	path, err := c.path(col.ID)
	if err != nil {
		return err
	}
	return writeJSON(path, col)
}

// Update applies fn to a collection under its lock and persists the result
// when fn reports a change.
func (c *Collections) Update(ctx context.Context, id string, fn func(*arc.Collection) (bool, error)) (*arc.Collection, bool, error) {
	unlock, err := c.archive.Lock(ctx, fs.CollectionResource(id))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	col, err := c.Get(id)
	if err != nil {
		return nil, false, err
	}
	changed, err := fn(col)
	if err != nil || !changed {
		return col, false, err
	}
	if err := c.Put(col); err != nil {
		return nil, false, err
	}
	return col, true, nil
}

// IDs returns every collection id in lexical order.
func (c *Collections) IDs() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("reading collections: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if id, ok := strings.CutSuffix(e.Name(), ".json"); ok && e.Type().IsRegular() && !fs.IsTemp(e.Name()) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// List loads every collection, ordered by id.
func (c *Collections) List() ([]*arc.Collection, error) {
	ids, err := c.IDs()
	if err != nil {
		return nil, err
	}
	cols := make([]*arc.Collection, 0, len(ids))
	for _, id := range ids {
		col, err := c.Get(id)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}
