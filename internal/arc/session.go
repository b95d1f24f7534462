package arc

import "time"

// UploadSession groups document uploads that are committed to an archive
// as a single commit. Sessions expire a fixed time after their last
// activity and are then discarded together with their staged payloads.
type UploadSession struct {
	ID           string    `json:"id" yaml:"id"`
	Archive      string    `json:"archive" yaml:"archive"`
	Archivist    string    `json:"archivist" yaml:"archivist"`
	Created      time.Time `json:"created" yaml:"created"`
	LastActivity time.Time `json:"lastActivity" yaml:"lastActivity"`
}

// StagedUpload is one document waiting in a session.
type StagedUpload struct {
	Payload []byte
	Input   DocumentInput
}

// SessionStore holds upload sessions between Begin and Commit.
// Implementations are safe for concurrent use.
type SessionStore interface {
	// Begin opens a new session for archivist in archive.
	Begin(archive, archivist string, now time.Time) (*UploadSession, error)

	// Stage appends an upload to the session and refreshes its activity time.
	// Returns ErrNotFound for unknown or expired sessions.
	Stage(id string, upload StagedUpload, now time.Time) error

	// Get returns the session and its uploads in staging order.
	// Returns ErrNotFound for unknown or expired sessions.
	Get(id string, now time.Time) (*UploadSession, []StagedUpload, error)

	// Remove discards a session and its uploads. Removing an unknown
	// session is not an error.
	Remove(id string) error

	// Sweep discards every session whose last activity is older than the
	// store's TTL. Returns the number of sessions removed.
	Sweep(now time.Time) (int, error)

	Close() error
}

// UploadResult reports what happened to one staged upload on commit.
type UploadResult struct {
	Hash  string `json:"hash" yaml:"hash"`
	Name  string `json:"name" yaml:"name"`
	IsNew bool   `json:"isNew" yaml:"isNew"`
}
