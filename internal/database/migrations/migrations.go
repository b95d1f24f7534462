// Package migrations holds the schema history of the upload session
// database and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var files embed.FS

// ErrUnversioned is returned by Verify for a database no migration has
// touched.
var ErrUnversioned = errors.New("session database has no schema version")

// Latest returns the newest schema version embedded in this build.
func Latest() (uint, error) {
	names, err := fs.Glob(files, "files/*.up.sql")
	if err != nil {
		return 0, err
	}

	var latest uint
	for _, name := range names {
		m, err := source.Parse(path.Base(name))
		if err != nil {
			return 0, fmt.Errorf("parsing migration %s: %w", name, err)
		}
		latest = max(latest, m.Version)
	}
	if latest == 0 {
		return 0, errors.New("no session schema migrations embedded")
	}
	return latest, nil
}

// Apply upgrades db to the latest session schema and checks the result.
// Already-current databases are left alone. The caller keeps ownership of
// db.
func Apply(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("upgrading session schema: %w", err)
	}
	return verify(m)
}

// Verify reports whether db is at the latest session schema without
// changing it.
func Verify(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	return verify(m)
}

func verify(m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return ErrUnversioned
	case err != nil:
		return fmt.Errorf("reading session schema version: %w", err)
	case dirty:
		return fmt.Errorf("session schema version %d is dirty after a failed upgrade", version)
	}

	latest, err := Latest()
	if err != nil {
		return err
	}
	if version != latest {
		return fmt.Errorf("session schema is at version %d, this build expects %d", version, latest)
	}
	return nil
}

// newMigrate binds the embedded migrations to db. The returned instance
// is never closed: closing it would close db.
func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return nil, fmt.Errorf("loading session migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("binding session database: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing session migrations: %w", err)
	}
	return m, nil
}
