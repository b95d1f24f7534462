package engine

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"arc-go/internal/arc"
	"arc-go/internal/fs"
	"arc-go/internal/store"
)

// ListTags returns every tag in use in either space, sorted and deduplicated.
func (e *Engine) ListTags(archive string) ([]string, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, space := range arc.Spaces {
		tags, err := a.Tags.List(space)
		if err != nil {
			return nil, err
		}
		all = append(all, tags...)
	}
	slices.Sort(all)
	return slices.Compact(all), nil
}

// TagReferents returns the ids carrying tag in space, in index order.
func (e *Engine) TagReferents(archive string, space arc.Space, tag string) ([]string, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Tags.Referents(space, tag)
}

// RenameTag replaces oldTag with newTag on every document and collection
// that carries it. Entities that already carry newTag simply lose oldTag.
// Returns the number of entities re-pointed.
func (e *Engine) RenameTag(ctx context.Context, archive, archivist, oldTag, newTag string) (int, error) {
	if err := arc.ValidateName("tag", oldTag); err != nil {
		return 0, err
	}
	if err := arc.ValidateName("tag", newTag); err != nil {
		return 0, err
	}
	if oldTag == newTag {
		return 0, arc.Malformed("tag %q renamed to itself", oldTag)
	}
	a, err := e.registry.Open(archive)
	if err != nil {
		return 0, err
	}
	user, err := requireArchivist(a, archivist)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, space := range arc.Spaces {
		for {
			refs, err := a.Tags.Referents(space, oldTag)
			if err != nil {
				return moved, err
			}
			if len(refs) == 0 {
				break
			}
			ok, err := e.retagOne(ctx, a, space, refs[0], oldTag, newTag)
			if err != nil {
				return moved, err
			}
			if ok {
				moved++
				stat := arc.StatDocumentsUpdated
				if space == arc.SpaceCollections {
					stat = arc.StatCollectionsUpdated
				}
				e.bump(ctx, a, user, stat)
			}
		}
	}
	if moved == 0 {
		return 0, nil
	}

	change := arc.Change{
		Op:        arc.OpTagRename,
		Subject:   oldTag,
		Archivist: user,
		Params:    map[string]string{"to": newTag, "moved": strconv.Itoa(moved)},
	}
	if _, err := e.record(ctx, a, change); err != nil {
		return moved, err
	}
	e.logger.Info("tag renamed", "archive", archive, "from", oldTag, "to", newTag, "moved", moved)
	return moved, nil
}

// retagOne moves one entity from oldTag to newTag. An index entry whose
// entity is gone or no longer carries oldTag is dropped and reported as
// not moved.
func (e *Engine) retagOne(ctx context.Context, a *store.Archive, space arc.Space, id, oldTag, newTag string) (bool, error) {
	entity := fs.DocumentResource(id)
	if space == arc.SpaceCollections {
		entity = fs.CollectionResource(id)
	}
	unlock, err := a.Lock(ctx, entity, fs.TagResource(space, oldTag), fs.TagResource(space, newTag))
	if err != nil {
		return false, err
	}
	defer unlock()

	refs, err := a.Tags.Referents(space, oldTag)
	if err != nil {
		return false, err
	}
	if !slices.Contains(refs, id) {
		return false, nil
	}

	var tags []string
	var put func([]string) error
	switch space {
	case arc.SpaceDocuments:
		doc, err := a.Documents.Get(id)
		if err != nil && !errors.Is(err, arc.ErrNotFound) {
			return false, err
		}
		if doc != nil {
			tags = doc.Meta.Tags
			put = func(t []string) error {
				doc.Meta.Tags = t
				doc.Meta.Updated = e.clock.Now()
				return a.Documents.Put(doc)
			}
		}
	case arc.SpaceCollections:
		col, err := a.Collections.Get(id)
		if err != nil && !errors.Is(err, arc.ErrNotFound) {
			return false, err
		}
		if col != nil {
			tags = col.Tags
			put = func(t []string) error {
				col.Tags = t
				col.Updated = e.clock.Now()
				return a.Collections.Put(col)
			}
		}
	default:
		return false, arc.Malformed("unknown tag space %q", space)
	}

	if put == nil || !slices.Contains(tags, oldTag) {
		e.logger.Warn("dropping stale tag index entry", "archive", a.Name(), "space", string(space), "tag", oldTag, "id", id)
		_, err := a.Tags.Remove(space, oldTag, id)
		return false, err
	}

	retagged := swapTag(tags, oldTag, newTag)
	var undo undoLog
	if _, err := a.Tags.Add(space, newTag, id); err != nil {
		return false, err
	}
	if !slices.Contains(tags, newTag) {
		undo.add(func() error { _, err := a.Tags.Remove(space, newTag, id); return err })
	}
	if _, err := a.Tags.Remove(space, oldTag, id); err != nil {
		undo.run(e.logger)
		return false, err
	}
	undo.add(func() error { _, err := a.Tags.Add(space, oldTag, id); return err })
	if err := put(retagged); err != nil {
		undo.run(e.logger)
		return false, err
	}
	return true, nil
}

// swapTag replaces oldTag with newTag in place, or drops oldTag when
// newTag is already present.
func swapTag(tags []string, oldTag, newTag string) []string {
	out := make([]string, 0, len(tags))
	has := slices.Contains(tags, newTag)
	for _, t := range tags {
		switch {
		case t != oldTag:
			out = append(out, t)
		case !has:
			out = append(out, newTag)
		}
	}
	return out
}
