package engine

import (
	"context"
	"errors"
	"fmt"

	"arc-go/internal/arc"
)

var errNoSessions = errors.New("upload sessions are not configured")

// BeginUpload opens an upload session for archivist. Expired sessions are
// swept first.
func (e *Engine) BeginUpload(ctx context.Context, archive, archivist string) (*arc.UploadSession, error) {
	if e.sessions == nil {
		return nil, errNoSessions
	}
	if _, err := e.SweepSessions(); err != nil {
		e.logger.Warn("session sweep failed", "error", err)
	}

	a, err := e.registry.Open(archive)
	if err != nil {
		return nil, err
	}
	user, err := requireArchivist(a, archivist)
	if err != nil {
		return nil, err
	}
	sess, err := e.sessions.Begin(archive, user, e.clock.Now())
	if err != nil {
		return nil, err
	}
	e.logger.Debug("upload session opened", "archive", archive, "session", sess.ID)
	return sess, nil
}

// StageUpload adds a document to a session. The input is validated now so
// a bad upload is refused before commit.
func (e *Engine) StageUpload(id string, payload []byte, input arc.DocumentInput) error {
	if e.sessions == nil {
		return errNoSessions
	}
	if _, err := e.prepareMeta("", &input); err != nil {
		return err
	}
	return e.sessions.Stage(id, arc.StagedUpload{Payload: payload, Input: input}, e.clock.Now())
}

// GetUpload returns a live session and its staged uploads.
func (e *Engine) GetUpload(id string) (*arc.UploadSession, []arc.StagedUpload, error) {
	if e.sessions == nil {
		return nil, nil, errNoSessions
	}
	return e.sessions.Get(id, e.clock.Now())
}

// CommitUpload stores every staged document and records the new ones in a
// single commit. The commit is nil when every upload was a duplicate. The
// session is removed once all documents are stored; if storing fails the
// documents stored so far are still recorded and the session is kept.
func (e *Engine) CommitUpload(ctx context.Context, id string) ([]arc.UploadResult, *arc.Commit, error) {
	sess, uploads, err := e.GetUpload(id)
	if err != nil {
		return nil, nil, err
	}
	if len(uploads) == 0 {
		return nil, nil, arc.Malformed("upload session %s is empty", id)
	}

	a, err := e.registry.Open(sess.Archive)
	if err != nil {
		return nil, nil, err
	}
	user, err := requireArchivist(a, sess.Archivist)
	if err != nil {
		return nil, nil, err
	}

	results := make([]arc.UploadResult, 0, len(uploads))
	var changes []arc.Change
	var storeErr error
	for i, up := range uploads {
		hash, change, err := e.createDocument(ctx, a, user, up.Payload, up.Input)
		if err != nil {
			storeErr = fmt.Errorf("storing upload %d (%s): %w", i, up.Input.Name, err)
			break
		}
		results = append(results, arc.UploadResult{Hash: hash, Name: up.Input.Name, IsNew: change != nil})
		if change != nil {
			e.bump(ctx, a, user, arc.StatDocumentsCreated)
			changes = append(changes, *change)
		}
	}

	var commit *arc.Commit
	if len(changes) > 0 {
		if commit, err = e.record(ctx, a, changes...); err != nil {
			return results, nil, errors.Join(storeErr, err)
		}
	}
	if storeErr != nil {
		return results, commit, storeErr
	}

	if err := e.sessions.Remove(id); err != nil {
		e.logger.Warn("failed to remove committed session", "session", id, "error", err)
	}
	e.logger.Info("upload committed", "archive", sess.Archive, "session", id, "documents", len(results), "new", len(changes))
	return results, commit, nil
}

// AbortUpload discards a session and everything staged in it.
func (e *Engine) AbortUpload(id string) error {
	if _, _, err := e.GetUpload(id); err != nil {
		return err
	}
	return e.sessions.Remove(id)
}

// SweepSessions discards expired sessions and returns how many were removed.
func (e *Engine) SweepSessions() (int, error) {
	if e.sessions == nil {
		return 0, errNoSessions
	}
	n, err := e.sessions.Sweep(e.clock.Now())
	if n > 0 {
		e.logger.Info("expired upload sessions swept", "count", n)
	}
	return n, err
}
