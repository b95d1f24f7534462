package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"arc-go/internal/arc"
	"arc-go/internal/database"
)

// sqliteBackend persists sessions in a SQLite database so they survive
// restarts and can be swept by another process.
type sqliteBackend struct {
	db *database.SQLiteDatabase
}

// dbFileName is the database file created inside data_dir.
const dbFileName = "sessions.db"

// NewSQLiteSessionStore opens (and migrates) dataDir/sessions.db.
// Non-positive ttl and maxSize select the defaults.
func NewSQLiteSessionStore(dataDir string, ttl time.Duration, maxSize int64, ids arc.IDGenerator, logger arc.Logger) (arc.SessionStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session data directory: %w", err)
	}
	db, err := database.NewSQLiteDatabase(filepath.Join(dataDir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	return newSessionArea(&sqliteBackend{db: db}, ttl, maxSize, ids, logger), nil
}

func (b *sqliteBackend) Insert(sess *arc.UploadSession) error {
	return b.db.InsertSession(context.Background(), sess)
}

func (b *sqliteBackend) Find(id string) (*arc.UploadSession, error) {
	return b.db.FindSession(context.Background(), id)
}

func (b *sqliteBackend) Touch(id string, at time.Time) error {
	return b.db.TouchSession(context.Background(), id, at)
}

func (b *sqliteBackend) Append(id string, upload arc.StagedUpload) error {
	return b.db.AppendUpload(context.Background(), id, upload)
}

func (b *sqliteBackend) Uploads(id string) ([]arc.StagedUpload, error) {
	return b.db.FindUploads(context.Background(), id)
}

func (b *sqliteBackend) Size(id string) (int64, error) {
	return b.db.StagedSize(context.Background(), id)
}

func (b *sqliteBackend) Delete(id string) error {
	return b.db.DeleteSession(context.Background(), id)
}

func (b *sqliteBackend) IdleSince(before time.Time) ([]string, error) {
	return b.db.FindSessionsIdleSince(context.Background(), before)
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
