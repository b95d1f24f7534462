// Package engine is the orchestration layer over the archive stores. Every
// mutation goes through here: it takes the resource locks, updates the
// entity and the tag index together, bumps the acting archivist's
// counters and records the change in the commit log.
package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"arc-go/internal/arc"
	"arc-go/internal/store"
)

// Engine coordinates the archive stores and the upload session store.
type Engine struct {
	registry *store.Registry
	sessions arc.SessionStore
	logger   arc.Logger
	clock    arc.Clock
}

// NewEngine creates an Engine. sessions may be nil when uploads are not used.
func NewEngine(registry *store.Registry, sessions arc.SessionStore, logger arc.Logger, clock arc.Clock) *Engine {
	if logger == nil {
		logger = arc.NewNopLogger()
	}
	if clock == nil {
		clock = arc.RealClock{}
	}
	return &Engine{
		registry: registry,
		sessions: sessions,
		logger:   logger,
		clock:    clock,
	}
}

// Registry exposes the archive registry for snapshot and restore.
func (e *Engine) Registry() *store.Registry {
	return e.registry
}

// CreateArchive provisions a new archive and records its creation as the
// first commit.
func (e *Engine) CreateArchive(ctx context.Context, name string) (*arc.Archive, error) {
	meta, err := e.registry.Create(name)
	if err != nil {
		return nil, err
	}
	a, err := e.registry.Open(name)
	if err != nil {
		return nil, err
	}
	if _, err := e.record(ctx, a, arc.Change{Op: arc.OpArchiveCreate, Subject: name}); err != nil {
		return nil, err
	}
	return meta, nil
}

// ListArchives returns every archive name, sorted.
func (e *Engine) ListArchives() ([]string, error) {
	return e.registry.List()
}

// LoadArchive returns an archive's metadata.
func (e *Engine) LoadArchive(name string) (*arc.Archive, error) {
	return e.registry.Load(name)
}

// RegisterArchivist adds a user to an archive.
func (e *Engine) RegisterArchivist(ctx context.Context, archive, username, displayName string) (*arc.Archivist, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	rec, err := a.Archivists.Register(username, displayName)
	if err != nil {
		return nil, err
	}
	change := arc.Change{
		Op:      arc.OpArchivistRegister,
		Subject: rec.Username,
		Params:  map[string]string{"displayName": rec.DisplayName},
	}
	if _, err := e.record(ctx, a, change); err != nil {
		return nil, err
	}
	e.logger.Info("archivist registered", "archive", archive, "username", rec.Username)
	return rec, nil
}

// GetArchivist returns one archivist of an archive.
func (e *Engine) GetArchivist(archive, username string) (*arc.Archivist, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Archivists.Get(username)
}

// ListArchivists returns every archivist of an archive.
func (e *Engine) ListArchivists(archive string) ([]*arc.Archivist, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Archivists.List()
}

// CheckIntegrity verifies that the tag indices and collections of an
// archive agree with its documents. Disagreements match arc.ErrIntegrity.
func (e *Engine) CheckIntegrity(archive string) error {
	a, err := e.registry.Open(archive)
	if err != nil {
		return err
	}
	return a.CheckIntegrity()
}

// requireArchivist resolves username to a registered archivist of a.
func requireArchivist(a *store.Archive, username string) (string, error) {
	rec, err := a.Archivists.Get(username)
	if err != nil {
		return "", err
	}
	return rec.Username, nil
}

// record appends one commit holding changes.
func (e *Engine) record(ctx context.Context, a *store.Archive, changes ...arc.Change) (*arc.Commit, error) {
	commit, err := a.Commits.Append(ctx, changes)
	if err != nil {
		return nil, fmt.Errorf("recording %s: %w", changes[0].Op, err)
	}
	e.logger.Debug("commit appended", "archive", a.Name(), "commit", commit.Hash, "changes", len(changes))
	return commit, nil
}

// bump increments an archivist counter. The mutation it accounts for has
// already happened, so a failure is logged rather than returned.
func (e *Engine) bump(ctx context.Context, a *store.Archive, username string, stat arc.Stat) {
	if err := a.Archivists.Bump(ctx, username, stat); err != nil {
		e.logger.Warn("failed to bump archivist counter", "archive", a.Name(), "username", username, "stat", stat.String(), "error", err)
	}
}

// undoLog collects compensating actions for index writes made before the
// entity write they belong to.
type undoLog struct {
	steps []func() error
}

func (u *undoLog) add(step func() error) {
	u.steps = append(u.steps, step)
}

func (u *undoLog) run(logger arc.Logger) {
	for i := len(u.steps) - 1; i >= 0; i-- {
		if err := u.steps[i](); err != nil {
			logger.Error("rollback step failed", "error", err)
		}
	}
}

// normalizeTags validates tags and drops duplicates, keeping first-seen order.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if err := arc.ValidateName("tag", t); err != nil {
			return nil, err
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func requireText(kind, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", arc.Malformed("%s is empty", kind)
	}
	return value, nil
}
