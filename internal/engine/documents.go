package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"arc-go/internal/arc"
	"arc-go/internal/content"
	"arc-go/internal/fs"
	"arc-go/internal/store"
)

// CreateDocument stores payload in archive on behalf of archivist.
// Identical content already in the archive is not stored again: the
// existing hash is returned with isNew false and its metadata is kept.
func (e *Engine) CreateDocument(ctx context.Context, archive, archivist string, payload []byte, input arc.DocumentInput) (hash string, isNew bool, err error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return "", false, err
	}
	user, err := requireArchivist(a, archivist)
	if err != nil {
		return "", false, err
	}

	hash, change, err := e.createDocument(ctx, a, user, payload, input)
	if err != nil || change == nil {
		return hash, false, err
	}

	e.bump(ctx, a, user, arc.StatDocumentsCreated)
	if _, err := e.record(ctx, a, *change); err != nil {
		return "", false, err
	}
	e.logger.Info("document created", "archive", archive, "hash", hash, "name", input.Name)
	return hash, true, nil
}

// prepareMeta validates input and fills in the derived fields.
func (e *Engine) prepareMeta(user string, input *arc.DocumentInput) (arc.DocumentMeta, error) {
	name, err := requireText("document name", input.Name)
	if err != nil {
		return arc.DocumentMeta{}, err
	}
	fileType := strings.TrimSpace(input.FileType)
	if fileType == "" {
		var ok bool
		if fileType, ok = arc.FileTypeFromName(name); !ok {
			return arc.DocumentMeta{}, arc.Malformed("cannot infer file type of %q", name)
		}
	}
	tags, err := normalizeTags(input.Tags)
	if err != nil {
		return arc.DocumentMeta{}, err
	}

	input.Name, input.FileType, input.Tags = name, fileType, tags
	now := e.clock.Now()
	return arc.DocumentMeta{
		Name:      name,
		FileType:  fileType,
		Archivist: user,
		Tags:      tags,
		Created:   now,
		Updated:   now,
		Extra:     input.Extra,
	}, nil
}

// createDocument stores one document and indexes its tags without
// recording a commit. The returned change is nil when the content was
// already stored. Locks are held from before the blob appears until
// its tags are indexed, so nobody observes the blob without its index
// entries.
func (e *Engine) createDocument(ctx context.Context, a *store.Archive, user string, payload []byte, input arc.DocumentInput) (string, *arc.Change, error) {
	meta, err := e.prepareMeta(user, &input)
	if err != nil {
		return "", nil, err
	}
	if payload == nil {
		payload = []byte{}
	}

	hash := content.Hash(payload)
	resources := []fs.Resource{fs.DocumentResource(hash)}
	for _, tag := range meta.Tags {
		resources = append(resources, fs.TagResource(arc.SpaceDocuments, tag))
	}
	unlock, err := a.Lock(ctx, resources...)
	if err != nil {
		return "", nil, err
	}
	defer unlock()

	hash, isNew, err := a.Documents.Create(payload, meta)
	if err != nil || !isNew {
		return hash, nil, err
	}

	var undo undoLog
	undo.add(func() error { return a.Documents.Delete(hash) })
	for _, tag := range meta.Tags {
		if _, err := a.Tags.Add(arc.SpaceDocuments, tag, hash); err != nil {
			undo.run(e.logger)
			return "", nil, err
		}
		undo.add(func() error {
			_, err := a.Tags.Remove(arc.SpaceDocuments, tag, hash)
			return err
		})
	}
	change := createChange(hash, user, input)
	return hash, &change, nil
}

func createChange(hash, user string, input arc.DocumentInput) arc.Change {
	params := map[string]string{"name": input.Name}
	if input.FileType != "" {
		params["fileType"] = input.FileType
	}
	if len(input.Tags) > 0 {
		params["tags"] = strings.Join(input.Tags, ",")
	}
	return arc.Change{Op: arc.OpDocumentCreate, Subject: hash, Archivist: user, Params: params}
}

// GetDocument returns a document's payload and metadata.
func (e *Engine) GetDocument(archive, hash string) (*arc.Document, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Documents.Get(hash)
}

// ListDocuments returns every document hash in archive.
func (e *Engine) ListDocuments(archive string) ([]string, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Documents.List()
}

// ListUnsorted returns the documents that belong to no collection.
func (e *Engine) ListUnsorted(archive string) ([]string, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	hashes, err := a.Documents.List()
	if err != nil {
		return nil, err
	}
	cols, err := a.Collections.List()
	if err != nil {
		return nil, err
	}

	sorted := make(map[string]bool)
	for _, c := range cols {
		for _, h := range c.Documents {
			sorted[h] = true
		}
	}
	unsorted := []string{}
	for _, h := range hashes {
		if !sorted[h] {
			unsorted = append(unsorted, h)
		}
	}
	return unsorted, nil
}

// DocumentsByTag returns the hashes of documents carrying tag.
func (e *Engine) DocumentsByTag(archive, tag string) ([]string, error) {
	return e.TagReferents(archive, arc.SpaceDocuments, tag)
}

// DeleteDocument removes a document and every reference to it: it is
// dropped from its tags' index files and from every collection before the
// blob itself goes, so no reference outlives it.
func (e *Engine) DeleteDocument(ctx context.Context, archive, archivist, hash string) error {
	a, err := e.registry.Open(archive)
	if err != nil {
		return err
	}
	user, err := requireArchivist(a, archivist)
	if err != nil {
		return err
	}

	// The document lock freezes its tag list and keeps it from being added
	// to collections, so the references found next are complete.
	unlockDoc, err := a.Lock(ctx, fs.DocumentResource(hash))
	if err != nil {
		return err
	}
	defer unlockDoc()

	doc, err := a.Documents.Get(hash)
	if err != nil {
		return err
	}
	cols, err := a.Collections.List()
	if err != nil {
		return err
	}

	var resources []fs.Resource
	var holders []string
	for _, c := range cols {
		if slices.Contains(c.Documents, hash) {
			holders = append(holders, c.ID)
			resources = append(resources, fs.CollectionResource(c.ID))
		}
	}
	for _, tag := range doc.Meta.Tags {
		resources = append(resources, fs.TagResource(arc.SpaceDocuments, tag))
	}
	unlock, err := a.Lock(ctx, resources...)
	if err != nil {
		return err
	}
	defer unlock()

	now := e.clock.Now()
	var undo undoLog
	fail := func(err error) error {
		undo.run(e.logger)
		return err
	}
	for _, id := range holders {
		col, err := a.Collections.Get(id)
		if err != nil {
			return fail(err)
		}
		i := slices.Index(col.Documents, hash)
		if i < 0 {
			continue
		}
		prevDocs, prevUpdated := slices.Clone(col.Documents), col.Updated
		col.Documents = slices.Delete(col.Documents, i, i+1)
		col.Updated = now
		if err := a.Collections.Put(col); err != nil {
			return fail(err)
		}
		undo.add(func() error {
			col.Documents, col.Updated = prevDocs, prevUpdated
			return a.Collections.Put(col)
		})
	}
	for _, tag := range doc.Meta.Tags {
		removed, err := a.Tags.Remove(arc.SpaceDocuments, tag, hash)
		if err != nil {
			return fail(err)
		}
		if removed {
			undo.add(func() error { _, err := a.Tags.Add(arc.SpaceDocuments, tag, hash); return err })
		}
	}
	if err := a.Documents.Delete(hash); err != nil {
		return fail(err)
	}

	change := arc.Change{Op: arc.OpDocumentDelete, Subject: hash, Archivist: user}
	if len(holders) > 0 {
		change.Params = map[string]string{"collections": strings.Join(holders, ",")}
	}
	if _, err := e.record(ctx, a, change); err != nil {
		return err
	}
	e.logger.Info("document deleted", "archive", archive, "hash", hash, "collections", len(holders))
	return nil
}

// RenameDocument changes a document's display name.
func (e *Engine) RenameDocument(ctx context.Context, archive, archivist, hash, name string) error {
	name, err := requireText("document name", name)
	if err != nil {
		return err
	}
	return e.updateDocument(ctx, archive, archivist, hash, arc.OpDocumentRename, map[string]string{"name": name},
		func(m *arc.DocumentMeta) bool {
			if m.Name == name {
				return false
			}
			m.Name = name
			return true
		})
}

// SetFileType changes a document's MIME type.
func (e *Engine) SetFileType(ctx context.Context, archive, archivist, hash, fileType string) error {
	fileType, err := requireText("file type", fileType)
	if err != nil {
		return err
	}
	return e.updateDocument(ctx, archive, archivist, hash, arc.OpDocumentFileType, map[string]string{"fileType": fileType},
		func(m *arc.DocumentMeta) bool {
			if m.FileType == fileType {
				return false
			}
			m.FileType = fileType
			return true
		})
}

// updateDocument applies a metadata change that does not touch tags.
func (e *Engine) updateDocument(ctx context.Context, archive, archivist, hash, op string, params map[string]string, fn func(*arc.DocumentMeta) bool) error {
	a, err := e.registry.Open(archive)
	if err != nil {
		return err
	}
	user, err := requireArchivist(a, archivist)
	if err != nil {
		return err
	}

	unlock, err := a.Lock(ctx, fs.DocumentResource(hash))
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := a.Documents.Get(hash)
	if err != nil {
		return err
	}
	if !fn(&doc.Meta) {
		return nil
	}
	doc.Meta.Updated = e.clock.Now()
	if err := a.Documents.Put(doc); err != nil {
		return err
	}

	e.bump(ctx, a, user, arc.StatDocumentsUpdated)
	_, err = e.record(ctx, a, arc.Change{Op: op, Subject: hash, Archivist: user, Params: params})
	return err
}

// AddDocumentTag tags a document. Returns false if it already carried tag.
func (e *Engine) AddDocumentTag(ctx context.Context, archive, archivist, hash, tag string) (bool, error) {
	return e.tagDocument(ctx, archive, archivist, hash, tag, true)
}

// RemoveDocumentTag untags a document. Returns arc.ErrTagAbsent if the
// document does not carry tag.
func (e *Engine) RemoveDocumentTag(ctx context.Context, archive, archivist, hash, tag string) error {
	_, err := e.tagDocument(ctx, archive, archivist, hash, tag, false)
	return err
}

// tagDocument updates the document and the tag index under both locks.
// The index is written first and rolled back if the document write fails.
func (e *Engine) tagDocument(ctx context.Context, archive, archivist, hash, tag string, add bool) (bool, error) {
	if err := arc.ValidateName("tag", tag); err != nil {
		return false, err
	}
	a, err := e.registry.Open(archive)
	if err != nil {
		return false, err
	}
	user, err := requireArchivist(a, archivist)
	if err != nil {
		return false, err
	}

	unlock, err := a.Lock(ctx, fs.DocumentResource(hash), fs.TagResource(arc.SpaceDocuments, tag))
	if err != nil {
		return false, err
	}
	defer unlock()

	doc, err := a.Documents.Get(hash)
	if err != nil {
		return false, err
	}

	var undo undoLog
	op := arc.OpDocumentTagAdd
	if add {
		if doc.Meta.HasTag(tag) {
			return false, nil
		}
		if _, err := a.Tags.Add(arc.SpaceDocuments, tag, hash); err != nil {
			return false, err
		}
		undo.add(func() error { _, err := a.Tags.Remove(arc.SpaceDocuments, tag, hash); return err })
		doc.Meta.Tags = append(doc.Meta.Tags, tag)
	} else {
		if !doc.Meta.HasTag(tag) {
			return false, fmt.Errorf("document %s has no tag %q: %w", hash, tag, arc.ErrTagAbsent)
		}
		op = arc.OpDocumentTagRemove
		if _, err := a.Tags.Remove(arc.SpaceDocuments, tag, hash); err != nil {
			return false, err
		}
		undo.add(func() error { _, err := a.Tags.Add(arc.SpaceDocuments, tag, hash); return err })
		doc.Meta.Tags = slices.DeleteFunc(doc.Meta.Tags, func(t string) bool { return t == tag })
	}

	doc.Meta.Updated = e.clock.Now()
	if err := a.Documents.Put(doc); err != nil {
		undo.run(e.logger)
		return false, err
	}

	e.bump(ctx, a, user, arc.StatDocumentsUpdated)
	if _, err := e.record(ctx, a, arc.Change{Op: op, Subject: hash, Archivist: user, Params: map[string]string{"tag": tag}}); err != nil {
		return false, err
	}
	return true, nil
}
