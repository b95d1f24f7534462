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

// Archivists stores one JSON record per registered user.
type Archivists struct {
	dir     string
	archive *Archive
}

func (a *Archivists) path(username string) (string, error) {
	if err := arc.ValidateName("username", username); err != nil {
		return "", err
	}
	return filepath.Join(a.dir, username+".json"), nil
}

// Register adds an archivist. The username is normalized first; an empty
// display name defaults to it. Returns arc.ErrAlreadyExists for a taken
// username.
func (a *Archivists) Register(username, displayName string) (*arc.Archivist, error) {
	username = arc.NormalizeUsername(username)
	path, err := a.path(username)
	if err != nil {
		return nil, err
	}
	if displayName = strings.TrimSpace(displayName); displayName == "" {
		displayName = username
	}

	rec := &arc.Archivist{
		Username:    username,
		DisplayName: displayName,
		Created:     a.archive.opts.Clock.Now(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding archivist: %w", err)
	}
	created, err := fs.CreateExclusive(path, append(data, '\n'))
	if err != nil {
		return nil, fmt.Errorf("storing archivist %s: %w", username, err)
	}
	if !created {
		return nil, fmt.Errorf("archivist %s: %w", username, arc.ErrAlreadyExists)
	}
	return rec, nil
}

// Get loads an archivist by (normalized) username.
func (a *Archivists) Get(username string) (*arc.Archivist, error) {
	username = arc.NormalizeUsername(username)
	path, err := a.path(username)
	if err != nil {
		return nil, arc.NotFound("archivist", username)
	}
	var rec arc.Archivist
	if err := readJSON(path, &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, arc.NotFound("archivist", username)
		}
		return nil, fmt.Errorf("reading archivist %s: %w", username, err)
	}
	return &rec, nil
}

// List loads every archivist, ordered by username.
func (a *Archivists) List() ([]*arc.Archivist, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("reading archivists: %w", err)
	}
	var recs []*arc.Archivist
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || !e.Type().IsRegular() || fs.IsTemp(e.Name()) {
			continue
		}
		rec, err := a.Get(name)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Bump increments one of an archivist's counters under the archivist lock.
func (a *Archivists) Bump(ctx context.Context, username string, stat arc.Stat) error {
	username = arc.NormalizeUsername(username)
	unlock, err := a.archive.Lock(ctx, fs.ArchivistResource(username))
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := a.Get(username)
	if err != nil {
		return err
	}
	rec.Stats.Bump(stat)

	path, err := a.path(username)
	if err != nil {
		return err
	}
	return writeJSON(path, rec)
}
