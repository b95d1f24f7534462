package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arc-go/internal/arc"
	"arc-go/internal/blob"
	"arc-go/internal/content"
	"arc-go/internal/fs"
)

// Commits is the append-only, hash-chained change log of one archive.
// Each commit is stored under commits/<hash>, where hash is the SHA-256 of
// the file's bytes; head holds the newest hash or nothing.
type Commits struct {
	dir      string
	headPath string
	archive  *Archive
}

// commitRecord is the canonical serialized form. The hash is not part of
// it since it is derived from these bytes.
type commitRecord struct {
	Parent    string       `cbor:"parent"`
	Timestamp time.Time    `cbor:"timestamp"`
	Changes   []arc.Change `cbor:"changes"`
}

// Head returns the newest commit hash, or "" for an archive with no commits.
func (c *Commits) Head() (string, error) {
	data, err := os.ReadFile(c.headPath)
	if err != nil {
		return "", fmt.Errorf("reading head: %w", err)
	}
	head := strings.TrimSpace(string(data))
	if head != "" && !content.Valid(head) {
		return "", arc.Integrity("head holds %q", head)
	}
	return head, nil
}

// Append records changes as a new commit on top of head and advances head.
func (c *Commits) Append(ctx context.Context, changes []arc.Change) (*arc.Commit, error) {
	if len(changes) == 0 {
		return nil, arc.Malformed("commit without changes")
	}

	unlock, err := c.archive.Lock(ctx, fs.HeadResource())
	if err != nil {
		return nil, err
	}
	defer unlock()

	parent, err := c.Head()
	if err != nil {
		return nil, err
	}

	rec := commitRecord{
		Parent:    parent,
		Timestamp: c.archive.opts.Clock.Now(),
		Changes:   changes,
	}
	data, err := blob.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding commit: %w", err)
	}
	hash := content.Hash(data)

	if _, err := fs.CreateExclusive(filepath.Join(c.dir, hash), data); err != nil {
		return nil, fmt.Errorf("storing commit %s: %w", hash, err)
	}
	if err := fs.WriteFileAtomic(c.headPath, []byte(hash)); err != nil {
		return nil, fmt.Errorf("advancing head: %w", err)
	}
	if err := c.archive.touchLocked(); err != nil {
		c.archive.opts.Logger.Warn("failed to touch archive", "archive", c.archive.name, "error", err)
	}

	return &arc.Commit{Hash: hash, Parent: rec.Parent, Timestamp: rec.Timestamp, Changes: rec.Changes}, nil
}

// Get loads a commit and verifies that its bytes hash to its name.
func (c *Commits) Get(hash string) (*arc.Commit, error) {
	if !content.Valid(hash) {
		return nil, arc.NotFound("commit", hash)
	}

	data, err := os.ReadFile(filepath.Join(c.dir, hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, arc.NotFound("commit", hash)
		}
		return nil, fmt.Errorf("reading commit %s: %w", hash, err)
	}
	if got := content.Hash(data); got != hash {
		return nil, arc.Integrity("commit %s content hashes to %s", hash, got)
	}

	var rec commitRecord
	if err := blob.Unmarshal(data, &rec); err != nil {
		return nil, arc.Malformed("decoding commit %s: %v", hash, err)
	}
	return &arc.Commit{Hash: hash, Parent: rec.Parent, Timestamp: rec.Timestamp, Changes: rec.Changes}, nil
}

// Walk yields commits from head backwards, most recent first, stopping at
// the first commit or after limit commits. A negative limit walks the whole
// chain and a zero limit yields nothing. Each call starts again from the
// current head. A revisited commit ends the
// walk with arc.ErrIntegrity.
func (c *Commits) Walk(limit int) iter.Seq2[*arc.Commit, error] {
	return func(yield func(*arc.Commit, error) bool) {
		if limit == 0 {
			return
		}
		hash, err := c.Head()
		if err != nil {
			yield(nil, err)
			return
		}

		seen := make(map[string]bool)
		for n := 0; hash != "" && (limit < 0 || n < limit); n++ {
			if seen[hash] {
				yield(nil, arc.Integrity("commit chain revisits %s", hash))
				return
			}
			seen[hash] = true

			commit, err := c.Get(hash)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(commit, nil) {
				return
			}
			hash = commit.Parent
		}
	}
}

// History collects up to limit commits from Walk.
func (c *Commits) History(limit int) ([]*arc.Commit, error) {
	var commits []*arc.Commit
	for commit, err := range c.Walk(limit) {
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}
	return commits, nil
}
