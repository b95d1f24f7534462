package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"arc-go/internal/arc"
	"arc-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase persists upload sessions and their staged payloads.
// It performs no expiry logic; that belongs to the session package.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and migrates it to the
// latest schema. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Apply(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening session database %s: %w", path, err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the schema is in place.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Other processes (arc session sweep) may hold the write lock briefly.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Close closes the underlying connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// Path returns the database file path ("" when wrapping a foreign connection).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// InsertSession stores a new session row.
func (s *SQLiteDatabase) InsertSession(ctx context.Context, sess *arc.UploadSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_sessions (id, archive, archivist, created_at, last_activity_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Archive, sess.Archivist, sess.Created.UnixNano(), sess.LastActivity.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// FindSession returns the session with id, or nil if there is none.
func (s *SQLiteDatabase) FindSession(ctx context.Context, id string) (*arc.UploadSession, error) {
	var (
		sess              arc.UploadSession
		created, activity int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, archive, archivist, created_at, last_activity_at FROM upload_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Archive, &sess.Archivist, &created, &activity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding session: %w", err)
	}
	sess.Created = time.Unix(0, created).UTC()
	sess.LastActivity = time.Unix(0, activity).UTC()
	return &sess, nil
}

// TouchSession records activity on a session.
func (s *SQLiteDatabase) TouchSession(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE upload_sessions SET last_activity_at = ? WHERE id = ?`, at.UnixNano(), id); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// DeleteSession removes a session; its uploads go with it.
func (s *SQLiteDatabase) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// FindSessionsIdleSince returns the ids of sessions with no activity after before.
func (s *SQLiteDatabase) FindSessionsIdleSince(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM upload_sessions WHERE last_activity_at < ? ORDER BY last_activity_at`, before.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("finding idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendUpload adds an upload at the end of a session's queue.
func (s *SQLiteDatabase) AppendUpload(ctx context.Context, sessionID string, upload arc.StagedUpload) error {
	input, err := json.Marshal(upload.Input)
	if err != nil {
		return fmt.Errorf("encoding upload input: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM staged_uploads WHERE session_id = ?`, sessionID,
	).Scan(&next); err != nil {
		return fmt.Errorf("allocating upload sequence: %w", err)
	}

	payload := upload.Payload
	if payload == nil {
		payload = []byte{}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO staged_uploads (session_id, seq, input, size, payload) VALUES (?, ?, ?, ?, ?)`,
		sessionID, next, string(input), len(payload), payload,
	); err != nil {
		return fmt.Errorf("inserting upload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// FindUploads returns a session's uploads in staging order.
func (s *SQLiteDatabase) FindUploads(ctx context.Context, sessionID string) ([]arc.StagedUpload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT input, payload FROM staged_uploads WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("finding uploads: %w", err)
	}
	defer rows.Close()

	var uploads []arc.StagedUpload
	for rows.Next() {
		var (
			input   string
			payload []byte
			upload  arc.StagedUpload
		)
		if err := rows.Scan(&input, &payload); err != nil {
			return nil, fmt.Errorf("scanning upload: %w", err)
		}
		if err := json.Unmarshal([]byte(input), &upload.Input); err != nil {
			return nil, fmt.Errorf("decoding upload input: %w", err)
		}
		upload.Payload = payload
		if upload.Payload == nil {
			upload.Payload = []byte{}
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

// StagedSize returns the total payload bytes staged in a session.
func (s *SQLiteDatabase) StagedSize(ctx context.Context, sessionID string) (int64, error) {
	var size int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM staged_uploads WHERE session_id = ?`, sessionID,
	).Scan(&size); err != nil {
		return 0, fmt.Errorf("summing staged size: %w", err)
	}
	return size, nil
}
