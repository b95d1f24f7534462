package session

import (
	"time"

	"arc-go/internal/arc"
)

// sessionBackend abstracts the storage mechanics for upload sessions.
// Concurrency is managed by the caller (sessionArea.mu), so backends do
// not need to be safe for concurrent use. Expiry is the caller's concern.
type sessionBackend interface {
	// Insert stores a new session.
	Insert(sess *arc.UploadSession) error

	// Find returns the session with id, or nil if there is none.
	Find(id string) (*arc.UploadSession, error)

	// Touch records activity on a session.
	Touch(id string, at time.Time) error

	// Append adds an upload to the end of a session's queue.
	Append(id string, upload arc.StagedUpload) error

	// Uploads returns a session's uploads in staging order.
	Uploads(id string) ([]arc.StagedUpload, error)

	// Size returns the total payload bytes staged in a session.
	Size(id string) (int64, error)

	// Delete removes a session and its uploads. Unknown ids are ignored.
	Delete(id string) error

	// IdleSince returns the ids of sessions with no activity after before.
	IdleSince(before time.Time) ([]string, error)

	Close() error
}
