package session

import (
	"slices"
	"time"

	"arc-go/internal/arc"
)

// memoryBackend keeps sessions in process memory. Sessions do not survive
// a restart.
type memoryBackend struct {
	sessions map[string]*arc.UploadSession
	uploads  map[string][]arc.StagedUpload
}

// NewMemorySessionStore creates an in-memory session store.
// Non-positive ttl and maxSize select the defaults.
func NewMemorySessionStore(ttl time.Duration, maxSize int64, ids arc.IDGenerator, logger arc.Logger) arc.SessionStore {
	backend := &memoryBackend{
		sessions: make(map[string]*arc.UploadSession),
		uploads:  make(map[string][]arc.StagedUpload),
	}
	return newSessionArea(backend, ttl, maxSize, ids, logger)
}

func (m *memoryBackend) Insert(sess *arc.UploadSession) error {
	if _, ok := m.sessions[sess.ID]; ok {
		return arc.ErrAlreadyExists
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *memoryBackend) Find(id string) (*arc.UploadSession, error) {
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (m *memoryBackend) Touch(id string, at time.Time) error {
	if sess, ok := m.sessions[id]; ok {
		sess.LastActivity = at
	}
	return nil
}

func (m *memoryBackend) Append(id string, upload arc.StagedUpload) error {
	upload.Payload = slices.Clone(upload.Payload)
	m.uploads[id] = append(m.uploads[id], upload)
	return nil
}

func (m *memoryBackend) Uploads(id string) ([]arc.StagedUpload, error) {
	return slices.Clone(m.uploads[id]), nil
}

func (m *memoryBackend) Size(id string) (int64, error) {
	var size int64
	for _, u := range m.uploads[id] {
		size += int64(len(u.Payload))
	}
	return size, nil
}

func (m *memoryBackend) Delete(id string) error {
	delete(m.sessions, id)
	delete(m.uploads, id)
	return nil
}

func (m *memoryBackend) IdleSince(before time.Time) ([]string, error) {
	var ids []string
	for id, sess := range m.sessions {
		if sess.LastActivity.Before(before) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memoryBackend) Close() error {
	return nil
}
