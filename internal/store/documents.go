package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"arc-go/internal/arc"
	"arc-go/internal/blob"
	"arc-go/internal/content"
	"arc-go/internal/fs"
)

// Documents stores blobs sharded by content address.
type Documents struct {
	dir     string
	archive *Archive
}

// path returns the blob path for hash. Strings that are not content
// addresses name no document.
func (d *Documents) path(hash string) (string, error) {
	if !content.Valid(hash) {
		return "", arc.NotFound("document", hash)
	}
	shard, file := content.Shard(hash)
	return filepath.Join(d.dir, shard, file), nil
}

// Create stores payload with meta unless a blob with the same content
// address exists. isNew is false for duplicates, whose stored metadata is
// left untouched. Needs no lock: the blob appears atomically or not at all.
func (d *Documents) Create(payload []byte, meta arc.DocumentMeta) (hash string, isNew bool, err error) {
	hash = content.Hash(payload)
	path, err := d.path(hash)
	if err != nil {
		return "", false, err
	}

	// Skip encoding when the blob is already there.
	if _, err := os.Stat(path); err == nil {
		return hash, false, nil
	}

	b, err := blob.Encode(meta, payload)
	if err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", false, fmt.Errorf("creating shard directory: %w", err)
	}

	isNew, err = fs.CreateExclusive(path, b)
	if err != nil {
		return "", false, fmt.Errorf("storing document %s: %w", hash, err)
	}
	return hash, isNew, nil
}

// Exists reports whether a blob is stored for hash.
func (d *Documents) Exists(hash string) (bool, error) {
	path, err := d.path(hash)
	if err != nil {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking document %s: %w", hash, err)
	}
	return true, nil
}

// Get loads a document and verifies that its payload still hashes to its
// address. A mismatch is reported as arc.ErrIntegrity.
func (d *Documents) Get(hash string) (*arc.Document, error) {
	path, err := d.path(hash)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, arc.NotFound("document", hash)
		}
		return nil, fmt.Errorf("reading document %s: %w", hash, err)
	}

	meta, payload, err := blob.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", hash, err)
	}
	if got := content.Hash(payload); got != hash {
		return nil, arc.Integrity("document %s payload hashes to %s", hash, got)
	}

	return &arc.Document{Hash: hash, Payload: payload, Meta: meta}, nil
}

// Put replaces a document's metadata, keeping its payload.
// The caller must hold the document lock.
func (d *Documents) Put(doc *arc.Document) error {
	path, err := d.path(doc.Hash)
	if err != nil {
		return err
	}
	b, err := blob.Encode(doc.Meta, doc.Payload)
	if err != nil {
		return err
	}
	if err := fs.WriteFileAtomic(path, b); err != nil {
		return fmt.Errorf("writing document %s: %w", doc.Hash, err)
	}
	return nil
}

// Update applies fn to a document's metadata under the document lock and
// persists the result when fn reports a change.
func (d *Documents) Update(ctx context.Context, hash string, fn func(*arc.DocumentMeta) (bool, error)) (*arc.Document, bool, error) {
	unlock, err := d.archive.Lock(ctx, fs.DocumentResource(hash))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	doc, err := d.Get(hash)
	if err != nil {
		return nil, false, err
	}
	changed, err := fn(&doc.Meta)
	if err != nil || !changed {
		return doc, false, err
	}
	if err := d.Put(doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Delete removes a document blob. The caller must hold the document lock
// and is responsible for references held by tags and collections.
func (d *Documents) Delete(hash string) error {
	path, err := d.path(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return arc.NotFound("document", hash)
		}
		return fmt.Errorf("deleting document %s: %w", hash, err)
	}
	return nil
}

// List returns the hashes of all stored documents in lexical order.
func (d *Documents) List() ([]string, error) {
	shards, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	var hashes []string
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(d.dir, shard.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading shard %s: %w", shard.Name(), err)
		}
		for _, e := range entries {
			h := shard.Name() + e.Name()
			if e.Type().IsRegular() && content.Valid(h) {
				hashes = append(hashes, h)
			}
		}
	}
	slices.Sort(hashes)
	return hashes, nil
}
