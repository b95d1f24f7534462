// Package store persists archives on the local filesystem. A Registry
// owns the root directory; each archive below it is a self-contained tree:
//
//	<root>/<archive>/
//	  meta.json
//	  head
//	  commits/<hash>
//	  documents/<2 hex>/<62 hex>
//	  tags/documents/<tag>
//	  tags/collections/<tag>
//	  archivists/<username>.json
//	  collections/<id>.json
//	  locks/
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arc-go/internal/arc"
	"arc-go/internal/fs"
)

const (
	metaFile       = "meta.json"
	headFile       = "head"
	commitsDir     = "commits"
	documentsDir   = "documents"
	tagsDir        = "tags"
	archivistsDir  = "archivists"
	collectionsDir = "collections"
	locksDir       = "locks"
)

// Options configures the collaborators shared by every archive in a registry.
type Options struct {
	Clock       arc.Clock
	IDs         arc.IDGenerator
	Logger      arc.Logger
	LockTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = arc.RealClock{}
	}
	if o.IDs == nil {
		o.IDs = arc.UUIDGenerator{}
	}
	if o.Logger == nil {
		o.Logger = arc.NewNopLogger()
	}
	return o
}

// Registry creates, lists and opens the archives under one root directory.
type Registry struct {
	root string
	opts Options
}

// NewRegistry returns a registry rooted at root, creating the directory if needed.
func NewRegistry(root string, opts Options) (*Registry, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating archive root: %w", err)
	}
	return &Registry{root: root, opts: opts.withDefaults()}, nil
}

// Root returns the directory holding all archives.
func (r *Registry) Root() string {
	return r.root
}

// Path returns the directory an archive named name lives in.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.root, name)
}

// Create provisions a new archive. The layout is built inside a hidden
// temp directory and renamed into place, so a half-created archive is
// never listed or opened. Returns arc.ErrAlreadyExists if name is taken.
func (r *Registry) Create(name string) (*arc.Archive, error) {
	if err := arc.ValidateName("archive", name); err != nil {
		return nil, err
	}
	if _, err := os.Stat(r.Path(name)); err == nil {
		return nil, fmt.Errorf("archive %s: %w", name, arc.ErrAlreadyExists)
	}

	tmp, err := r.StagingDir("create")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	now := r.opts.Clock.Now()
	meta := &arc.Archive{Name: name, Created: now, Updated: now}
	if err := provision(tmp, meta); err != nil {
		return nil, err
	}

	if err := r.Install(name, tmp); err != nil {
		return nil, err
	}

	r.opts.Logger.Info("archive created", "archive", name)
	return meta, nil
}

// StagingDir creates a hidden directory under the root for building an
// archive tree before Install. The caller removes it when done.
func (r *Registry) StagingDir(purpose string) (string, error) {
	dir, err := os.MkdirTemp(r.root, "."+purpose+"-*")
	if err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	return dir, nil
}

// Install renames a fully built archive tree into place under name. A
// tree whose metadata names another archive (a snapshot restored under a
// new name) is relabelled first. Returns arc.ErrAlreadyExists if name is
// taken.
func (r *Registry) Install(name, dir string) error {
	if err := arc.ValidateName("archive", name); err != nil {
		return err
	}
	meta, err := readArchiveMeta(dir, name)
	if err != nil {
		if errors.Is(err, arc.ErrNotFound) {
			return arc.Malformed("%s is not an archive tree", dir)
		}
		return err
	}
	if meta.Name != name {
		meta.Name = name
		if err := writeJSON(filepath.Join(dir, metaFile), meta); err != nil {
			return err
		}
	}
	if err := os.Rename(dir, r.Path(name)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("archive %s: %w", name, arc.ErrAlreadyExists)
		}
		return fmt.Errorf("installing archive %s: %w", name, err)
	}
	return nil
}

// List returns the names of all archives in lexical order. Hidden entries
// (staging directories) are skipped.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("reading archive root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Load reads an archive's persisted metadata.
func (r *Registry) Load(name string) (*arc.Archive, error) {
	if arc.ValidateName("archive", name) != nil {
		return nil, arc.NotFound("archive", name)
	}
	return readArchiveMeta(r.Path(name), name)
}

// Open returns a handle for reading and mutating one archive.
func (r *Registry) Open(name string) (*Archive, error) {
	if _, err := r.Load(name); err != nil {
		return nil, err
	}
	return newArchive(name, r.Path(name), r.opts), nil
}

// provision lays out an empty archive tree in dir.
func provision(dir string, meta *arc.Archive) error {
	subdirs := []string{
		commitsDir,
		documentsDir,
		filepath.Join(tagsDir, string(arc.SpaceDocuments)),
		filepath.Join(tagsDir, string(arc.SpaceCollections)),
		archivistsDir,
		collectionsDir,
		locksDir,
	}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", sub, err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, headFile), nil, 0644); err != nil {
		return fmt.Errorf("initializing head: %w", err)
	}
	return writeJSON(filepath.Join(dir, metaFile), meta)
}

func readArchiveMeta(dir, name string) (*arc.Archive, error) {
	var meta arc.Archive
	if err := readJSON(filepath.Join(dir, metaFile), &meta); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, arc.NotFound("archive", name)
		}
		return nil, fmt.Errorf("reading archive %s: %w", name, err)
	}
	return &meta, nil
}

// Archive is an open archive: its directory plus the stores over it.
type Archive struct {
	name   string
	dir    string
	opts   Options
	locker *fs.Locker

	Documents   *Documents
	Tags        *Tags
	Collections *Collections
	Archivists  *Archivists
	Commits     *Commits
}

func newArchive(name, dir string, opts Options) *Archive {
	a := &Archive{
		name:   name,
		dir:    dir,
		opts:   opts,
		locker: fs.NewLocker(filepath.Join(dir, locksDir), opts.LockTimeout),
	}
	a.Documents = &Documents{dir: filepath.Join(dir, documentsDir), archive: a}
	a.Tags = &Tags{dir: filepath.Join(dir, tagsDir)}
	a.Collections = &Collections{dir: filepath.Join(dir, collectionsDir), archive: a}
	a.Archivists = &Archivists{dir: filepath.Join(dir, archivistsDir), archive: a}
	a.Commits = &Commits{dir: filepath.Join(dir, commitsDir), headPath: filepath.Join(dir, headFile), archive: a}
	return a
}

// Name returns the archive name.
func (a *Archive) Name() string { return a.name }

// Dir returns the archive's root directory.
func (a *Archive) Dir() string { return a.dir }

// Lock acquires resources of this archive in hierarchy order.
func (a *Archive) Lock(ctx context.Context, resources ...fs.Resource) (func(), error) {
	return a.locker.Lock(ctx, resources...)
}

// Meta reads the archive's metadata.
func (a *Archive) Meta() (*arc.Archive, error) {
	return readArchiveMeta(a.dir, a.name)
}

// Touch bumps the archive's Updated timestamp.
func (a *Archive) Touch(ctx context.Context) error {
	unlock, err := a.Lock(ctx, fs.HeadResource())
	if err != nil {
		return err
	}
	defer unlock()
	return a.touchLocked()
}

// touchLocked requires the head lock, which also guards meta.json.
func (a *Archive) touchLocked() error {
	meta, err := a.Meta()
	if err != nil {
		return err
	}
	meta.Updated = a.opts.Clock.Now()
	return writeJSON(filepath.Join(a.dir, metaFile), meta)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return fs.WriteFileAtomic(path, append(data, '\n'))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return arc.Malformed("decoding %s: %v", filepath.Base(path), err)
	}
	return nil
}
