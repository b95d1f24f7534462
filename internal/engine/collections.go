package engine

import (
	"context"
	"slices"
	"strconv"

	"arc-go/internal/arc"
	"arc-go/internal/fs"
	"arc-go/internal/store"
)

// CreateCollection creates an empty collection owned by creator.
func (e *Engine) CreateCollection(ctx context.Context, archive, creator, name string) (*arc.Collection, error) {
	name, err := requireText("collection name", name)
	if err != nil {
		return nil, err
	}
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	user, err := requireArchivist(a, creator)
	if err != nil {
		return nil, err
	}

	col, err := a.Collections.Create(name, user)
	if err != nil {
		return nil, err
	}
	e.bump(ctx, a, user, arc.StatCollectionsCreated)
	change := arc.Change{Op: arc.OpCollectionCreate, Subject: col.ID, Archivist: user, Params: map[string]string{"name": name}}
	if _, err := e.record(ctx, a, change); err != nil {
		return nil, err
	}
	e.logger.Info("collection created", "archive", archive, "id", col.ID, "name", name)
	return col, nil
}

// GetCollection returns one collection.
func (e *Engine) GetCollection(archive, id string) (*arc.Collection, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Collections.Get(id)
}

// ListCollections returns every collection in archive, ordered by id.
func (e *Engine) ListCollections(archive string) ([]*arc.Collection, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Collections.List()
}

// FindCollections returns the collections matching q.
func (e *Engine) FindCollections(archive string, q arc.CollectionQuery) ([]*arc.Collection, error) {
	cols, err := e.ListCollections(archive)
	if err != nil {
		return nil, err
	}
	found := []*arc.Collection{}
	for _, c := range cols {
		if q.Matches(c) {
			found = append(found, c)
		}
	}
	return found, nil
}

// collectionEdit changes col in place and reports whether anything changed.
// Index writes made before the collection is persisted register their
// compensation on undo.
type collectionEdit func(a *store.Archive, col *arc.Collection, undo *undoLog) (bool, error)

// mutateCollection runs edit on a collection under its lock and the extra
// locks, then persists, accounts and records the change. The acting
// archivist becomes a maintainer.
func (e *Engine) mutateCollection(ctx context.Context, archive, archivist, id string, change arc.Change, extra []fs.Resource, edit collectionEdit) (*arc.Collection, bool, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, false, err
	}
	user, err := requireArchivist(a, archivist)
	if err != nil {
		return nil, false, err
	}

	unlock, err := a.Lock(ctx, append([]fs.Resource{fs.CollectionResource(id)}, extra...)...)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	col, err := a.Collections.Get(id)
	if err != nil {
		return nil, false, err
	}
	var undo undoLog
	changed, err := edit(a, col, &undo)
	if err != nil {
		undo.run(e.logger)
		return nil, false, err
	}
	if !changed {
		return col, false, nil
	}

	col.Updated = e.clock.Now()
	if !slices.Contains(col.Maintainers, user) {
		col.Maintainers = append(col.Maintainers, user)
	}
	if err := a.Collections.Put(col); err != nil {
		undo.run(e.logger)
		return nil, false, err
	}

	e.bump(ctx, a, user, arc.StatCollectionsUpdated)
	change.Subject = id
	change.Archivist = user
	if _, err := e.record(ctx, a, change); err != nil {
		return nil, false, err
	}
	return col, true, nil
}

// RenameCollection changes a collection's name.
func (e *Engine) RenameCollection(ctx context.Context, archive, archivist, id, name string) error {
	name, err := requireText("collection name", name)
	if err != nil {
		return err
	}
	change := arc.Change{Op: arc.OpCollectionRename, Params: map[string]string{"name": name}}
	_, _, err = e.mutateCollection(ctx, archive, archivist, id, change, nil,
		func(_ *store.Archive, col *arc.Collection, _ *undoLog) (bool, error) {
			if col.Name == name {
				return false, nil
			}
			col.Name = name
			return true, nil
		})
	return err
}

// AddDocumentToCollection appends a document to a collection. Returns
// false if the collection already holds it.
func (e *Engine) AddDocumentToCollection(ctx context.Context, archive, archivist, id, hash string) (bool, error) {
	change := arc.Change{Op: arc.OpCollectionDocumentAdd, Params: map[string]string{"document": hash}}
	_, changed, err := e.mutateCollection(ctx, archive, archivist, id, change, []fs.Resource{fs.DocumentResource(hash)},
		func(a *store.Archive, col *arc.Collection, _ *undoLog) (bool, error) {
			if slices.Contains(col.Documents, hash) {
				return false, nil
			}
			ok, err := a.Documents.Exists(hash)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, arc.NotFound("document", hash)
			}
			col.Documents = append(col.Documents, hash)
			return true, nil
		})
	return changed, err
}

// RemoveDocumentFromCollection drops a document from a collection.
// Returns false if the collection did not hold it.
func (e *Engine) RemoveDocumentFromCollection(ctx context.Context, archive, archivist, id, hash string) (bool, error) {
	change := arc.Change{Op: arc.OpCollectionDocumentRemove, Params: map[string]string{"document": hash}}
	_, changed, err := e.mutateCollection(ctx, archive, archivist, id, change, nil,
		func(_ *store.Archive, col *arc.Collection, _ *undoLog) (bool, error) {
			i := slices.Index(col.Documents, hash)
			if i < 0 {
				return false, nil
			}
			col.Documents = slices.Delete(col.Documents, i, i+1)
			return true, nil
		})
	return changed, err
}

// ReorderDocument moves a document to index within its collection. Index
// may range from 0 to the number of documents; the upper bound moves the
// document to the end.
func (e *Engine) ReorderDocument(ctx context.Context, archive, archivist, id, hash string, index int) error {
	change := arc.Change{Op: arc.OpCollectionReorder, Params: map[string]string{"document": hash, "index": strconv.Itoa(index)}}
	_, _, err := e.mutateCollection(ctx, archive, archivist, id, change, nil,
		func(_ *store.Archive, col *arc.Collection, _ *undoLog) (bool, error) {
			n := len(col.Documents)
			if index < 0 || index > n {
				return false, arc.Malformed("index %d out of range [0, %d]", index, n)
			}
			from := slices.Index(col.Documents, hash)
			if from < 0 {
				return false, arc.NotFound("document", hash)
			}
			to := min(index, n-1)
			if from == to {
				return false, nil
			}
			col.Documents = slices.Delete(col.Documents, from, from+1)
			col.Documents = slices.Insert(col.Documents, to, hash)
			return true, nil
		})
	return err
}

// AddMaintainer grants a registered archivist maintenance of a collection.
// Returns false if they already maintain it.
func (e *Engine) AddMaintainer(ctx context.Context, archive, archivist, id, maintainer string) (bool, error) {
	change := arc.Change{Op: arc.OpCollectionMaintainerAdd, Params: map[string]string{}}
	_, changed, err := e.mutateCollection(ctx, archive, archivist, id, change, nil,
		func(a *store.Archive, col *arc.Collection, _ *undoLog) (bool, error) {
			m, err := requireArchivist(a, maintainer)
			if err != nil {
				return false, err
			}
			if slices.Contains(col.Maintainers, m) {
				return false, nil
			}
			col.Maintainers = append(col.Maintainers, m)
			change.Params["maintainer"] = m
			return true, nil
		})
	if changed {
		e.logger.Info("maintainer added", "archive", archive, "id", id, "maintainer", maintainer)
	}
	return changed, err
}

// AddCollectionTag tags a collection. Returns false if it already carried tag.
func (e *Engine) AddCollectionTag(ctx context.Context, archive, archivist, id, tag string) (bool, error) {
	if err := arc.ValidateName("tag", tag); err != nil {
		return false, err
	}
	change := arc.Change{Op: arc.OpCollectionTagAdd, Params: map[string]string{"tag": tag}}
	_, changed, err := e.mutateCollection(ctx, archive, archivist, id, change, []fs.Resource{fs.TagResource(arc.SpaceCollections, tag)},
		func(a *store.Archive, col *arc.Collection, undo *undoLog) (bool, error) {
			if slices.Contains(col.Tags, tag) {
				return false, nil
			}
			if _, err := a.Tags.Add(arc.SpaceCollections, tag, id); err != nil {
				return false, err
			}
			undo.add(func() error { _, err := a.Tags.Remove(arc.SpaceCollections, tag, id); return err })
			col.Tags = append(col.Tags, tag)
			return true, nil
		})
	return changed, err
}

// RemoveCollectionTag untags a collection. Returns false if it did not
// carry tag.
func (e *Engine) RemoveCollectionTag(ctx context.Context, archive, archivist, id, tag string) (bool, error) {
	if err := arc.ValidateName("tag", tag); err != nil {
		return false, err
	}
	change := arc.Change{Op: arc.OpCollectionTagRemove, Params: map[string]string{"tag": tag}}
	_, changed, err := e.mutateCollection(ctx, archive, archivist, id, change, []fs.Resource{fs.TagResource(arc.SpaceCollections, tag)},
		func(a *store.Archive, col *arc.Collection, undo *undoLog) (bool, error) {
			if !slices.Contains(col.Tags, tag) {
				return false, nil
			}
			if _, err := a.Tags.Remove(arc.SpaceCollections, tag, id); err != nil {
				return false, err
			}
			undo.add(func() error { _, err := a.Tags.Add(arc.SpaceCollections, tag, id); return err })
			col.Tags = slices.DeleteFunc(col.Tags, func(t string) bool { return t == tag })
			return true, nil
		})
	return changed, err
}
