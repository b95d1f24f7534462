// Package session keeps upload sessions: documents staged by one archivist
// that are committed to an archive together, or abandoned and swept away
// after a period of inactivity.
package session

import (
	"fmt"
	"sync"
	"time"

	"arc-go/internal/arc"
)

// sessionArea implements arc.SessionStore over a pluggable sessionBackend.
// All expiry and size accounting lives here.
type sessionArea struct {
	backend sessionBackend
	ids     arc.IDGenerator
	logger  arc.Logger
	ttl     time.Duration
	maxSize int64
	mu      sync.Mutex
}

var _ arc.SessionStore = (*sessionArea)(nil)

func newSessionArea(backend sessionBackend, ttl time.Duration, maxSize int64, ids arc.IDGenerator, logger arc.Logger) *sessionArea {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ids == nil {
		ids = arc.UUIDGenerator{}
	}
	if logger == nil {
		logger = arc.NewNopLogger()
	}
	return &sessionArea{backend: backend, ids: ids, logger: logger, ttl: ttl, maxSize: maxSize}
}

// Begin opens a new session.
func (s *sessionArea) Begin(archive, archivist string, now time.Time) (*arc.UploadSession, error) {
	if archive == "" || archivist == "" {
		return nil, arc.Malformed("upload session needs an archive and an archivist")
	}

	sess := &arc.UploadSession{
		ID:           s.ids.New(),
		Archive:      archive,
		Archivist:    archivist,
		Created:      now,
		LastActivity: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Insert(sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// Stage appends an upload to a live session.
func (s *sessionArea) Stage(id string, upload arc.StagedUpload, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.live(id, now); err != nil {
		return err
	}

	size, err := s.backend.Size(id)
	if err != nil {
		return fmt.Errorf("getting current size: %w", err)
	}
	if size+int64(len(upload.Payload)) > s.maxSize {
		return arc.Malformed("upload session full: would exceed max size of %d bytes", s.maxSize)
	}

	if err := s.backend.Append(id, upload); err != nil {
		return fmt.Errorf("adding upload: %w", err)
	}
	if err := s.backend.Touch(id, now); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// Get returns a live session and its uploads.
func (s *sessionArea) Get(id string, now time.Time) (*arc.UploadSession, []arc.StagedUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.live(id, now)
	if err != nil {
		return nil, nil, err
	}
	uploads, err := s.backend.Uploads(id)
	if err != nil {
		return nil, nil, fmt.Errorf("reading uploads: %w", err)
	}
	return sess, uploads, nil
}

// Remove discards a session.
func (s *sessionArea) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Delete(id)
}

// Sweep discards every session idle for longer than the TTL.
func (s *sessionArea) Sweep(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.backend.IdleSince(now.Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("finding expired sessions: %w", err)
	}
	for _, id := range ids {
		if err := s.backend.Delete(id); err != nil {
			return 0, fmt.Errorf("deleting expired session %s: %w", id, err)
		}
		s.logger.Debug("upload session expired", "session", id)
	}
	return len(ids), nil
}

func (s *sessionArea) Close() error {
	return s.backend.Close()
}

// live returns the session if it exists and has not expired. Expired
// sessions are deleted on sight. Requires s.mu.
func (s *sessionArea) live(id string, now time.Time) (*arc.UploadSession, error) {
	sess, err := s.backend.Find(id)
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	if sess == nil {
		return nil, arc.NotFound("session", id)
	}
	if now.Sub(sess.LastActivity) > s.ttl {
		if err := s.backend.Delete(id); err != nil {
			return nil, fmt.Errorf("deleting expired session: %w", err)
		}
		return nil, arc.NotFound("session", id)
	}
	return sess, nil
}
