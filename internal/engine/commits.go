package engine

import (
	"context"
	"iter"

	"arc-go/internal/arc"
)

// AppendCommit records changes as one commit outside of any engine
// operation, for callers that import data by other means.
func (e *Engine) AppendCommit(ctx context.Context, archive string, changes []arc.Change) (*arc.Commit, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, arc.Malformed("commit has no changes")
	}
	return e.record(ctx, a, changes...)
}

// GetCommit returns one commit by hash.
func (e *Engine) GetCommit(archive, hash string) (*arc.Commit, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Commits.Get(hash)
}

// Head returns the hash of the newest commit, or "" for an empty log.
func (e *Engine) Head(archive string) (string, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return "", err
	}
	return a.Commits.Head()
}

// WalkCommits yields commits newest first, at most limit of them;
// arc.AllCommits walks the whole chain. Each call starts again from the current head.
func (e *Engine) WalkCommits(archive string, limit int) iter.Seq2[*arc.Commit, error] {
	a, err := e.registry.Open(archive)
	if err != nil {
		return func(yield func(*arc.Commit, error) bool) {
			yield(nil, err)
		}
	}
	return a.Commits.Walk(limit)
}

// History collects WalkCommits into a slice.
func (e *Engine) History(archive string, limit int) ([]*arc.Commit, error) {
	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	return a.Commits.History(limit)
}
