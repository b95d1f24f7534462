package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"arc-go/internal/arc"
	"arc-go/internal/database/migrations"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	conn, err := OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	db := NewSQLiteDatabaseFromDB(conn)
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// sessionTables lists the CREATE statements of db, ignoring golang-migrate's
// bookkeeping table.
func sessionTables(t *testing.T, db *sql.DB) []string {
	t.Helper()

	rows, err := db.Query(`SELECT sql FROM sqlite_master
		WHERE sql IS NOT NULL AND tbl_name != 'schema_migrations' ORDER BY name`)
	if err != nil {
		t.Fatalf("reading sqlite_master: %v", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			t.Fatal(err)
		}
		stmts = append(stmts, s)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	return stmts
}

func TestSchema_MatchesMigrations(t *testing.T) {
	migrated, err := OpenConnection(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer migrated.Close()
	if err := migrations.Apply(migrated); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	flat, err := OpenConnection(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer flat.Close()
	if _, err := flat.Exec(Schema); err != nil {
		t.Fatalf("applying Schema: %v", err)
	}

	want, got := sessionTables(t, migrated), sessionTables(t, flat)
	if !slices.Equal(got, want) {
		t.Errorf("schema.sql is stale:\n got %q\nwant %q", got, want)
	}
}

func testSession(id string, at time.Time) *arc.UploadSession {
	return &arc.UploadSession{ID: id, Archive: "lab", Archivist: "ada", Created: at, LastActivity: at}
}

func TestSQLiteDatabase_Sessions(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 30, 0, 500, time.UTC)

	t.Run("returns nil when session not found", func(t *testing.T) {
		db := newTestDB(t)

		sess, err := db.FindSession(ctx, "missing")
		if err != nil {
			t.Fatalf("FindSession() error = %v", err)
		}
		if sess != nil {
			t.Errorf("FindSession() = %v, want nil", sess)
		}
	})

	t.Run("round-trips a session", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.InsertSession(ctx, testSession("s1", at)); err != nil {
			t.Fatalf("InsertSession() error = %v", err)
		}
		sess, err := db.FindSession(ctx, "s1")
		if err != nil {
			t.Fatalf("FindSession() error = %v", err)
		}
		if sess == nil {
			t.Fatal("FindSession() returned nil")
		}
		if sess.Archive != "lab" || sess.Archivist != "ada" {
			t.Errorf("session = %+v", sess)
		}
		if !sess.Created.Equal(at) || !sess.LastActivity.Equal(at) {
			t.Errorf("timestamps = (%v, %v), want %v", sess.Created, sess.LastActivity, at)
		}
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.InsertSession(ctx, testSession("s1", at)); err != nil {
			t.Fatal(err)
		}
		if err := db.InsertSession(ctx, testSession("s1", at)); err == nil {
			t.Error("InsertSession() with duplicate id succeeded")
		}
	})

	t.Run("finds idle sessions", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.InsertSession(ctx, testSession("old", at)); err != nil {
			t.Fatal(err)
		}
		if err := db.InsertSession(ctx, testSession("fresh", at)); err != nil {
			t.Fatal(err)
		}
		if err := db.TouchSession(ctx, "fresh", at.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}

		ids, err := db.FindSessionsIdleSince(ctx, at.Add(time.Minute))
		if err != nil {
			t.Fatalf("FindSessionsIdleSince() error = %v", err)
		}
		if len(ids) != 1 || ids[0] != "old" {
			t.Errorf("idle sessions = %v, want [old]", ids)
		}
	})
}

func TestSQLiteDatabase_Uploads(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("keeps staging order and size", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.InsertSession(ctx, testSession("s1", at)); err != nil {
			t.Fatal(err)
		}

		uploads := []arc.StagedUpload{
			{Payload: []byte("first"), Input: arc.DocumentInput{Name: "a.txt", Tags: []string{"math"}}},
			{Payload: []byte{}, Input: arc.DocumentInput{Name: "empty.txt"}},
			{Payload: []byte("third!"), Input: arc.DocumentInput{Name: "c.md", Extra: map[string]string{"k": "v"}}},
		}
		for _, u := range uploads {
			if err := db.AppendUpload(ctx, "s1", u); err != nil {
				t.Fatalf("AppendUpload() error = %v", err)
			}
		}

		got, err := db.FindUploads(ctx, "s1")
		if err != nil {
			t.Fatalf("FindUploads() error = %v", err)
		}
		if len(got) != len(uploads) {
			t.Fatalf("got %d uploads, want %d", len(got), len(uploads))
		}
		for i := range uploads {
			if got[i].Input.Name != uploads[i].Input.Name || string(got[i].Payload) != string(uploads[i].Payload) {
				t.Errorf("upload[%d] = %+v, want %+v", i, got[i], uploads[i])
			}
		}
		if got[0].Input.Tags[0] != "math" || got[2].Input.Extra["k"] != "v" {
			t.Errorf("inputs lost fields: %+v", got)
		}

		size, err := db.StagedSize(ctx, "s1")
		if err != nil {
			t.Fatalf("StagedSize() error = %v", err)
		}
		if size != 11 {
			t.Errorf("StagedSize() = %d, want 11", size)
		}
	})

	t.Run("deleting a session removes its uploads", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.InsertSession(ctx, testSession("s1", at)); err != nil {
			t.Fatal(err)
		}
		if err := db.AppendUpload(ctx, "s1", arc.StagedUpload{Payload: []byte("x"), Input: arc.DocumentInput{Name: "x.txt"}}); err != nil {
			t.Fatal(err)
		}

		if err := db.DeleteSession(ctx, "s1"); err != nil {
			t.Fatalf("DeleteSession() error = %v", err)
		}
		got, err := db.FindUploads(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("uploads survived session delete: %d", len(got))
		}
	})

	t.Run("rejects uploads for unknown session", func(t *testing.T) {
		db := newTestDB(t)
		err := db.AppendUpload(ctx, "ghost", arc.StagedUpload{Payload: []byte("x"), Input: arc.DocumentInput{Name: "x.txt"}})
		if err == nil {
			t.Error("AppendUpload() for unknown session succeeded")
		}
	})
}

func TestNewSQLiteDatabase_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	if err := db.InsertSession(context.Background(), testSession("s1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	db.Close()

	// Reopening an already-migrated file is fine and keeps the data.
	db, err = NewSQLiteDatabase(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()
	sess, err := db.FindSession(context.Background(), "s1")
	if err != nil || sess == nil {
		t.Errorf("FindSession() after reopen = %v, %v", sess, err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}
