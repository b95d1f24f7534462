package testutil

import (
	"context"
	"testing"
	"time"

	"arc-go/internal/engine"
	"arc-go/internal/session"
	"arc-go/internal/store"
)

// DefaultSessionMaxSize is the upload session size limit for test engines (10MB).
const DefaultSessionMaxSize = 10 * 1024 * 1024

// NewTestEngine creates an engine over a temporary archive root with an
// in-memory session store. The clock and id generator are stubs, so
// collection ids are "id-1", "id-2" and so on and upload sessions
// "upload-1", "upload-2".
func NewTestEngine(t *testing.T) (*engine.Engine, *StubClock) {
	t.Helper()

	clock := FixedClock()
	reg, err := store.NewRegistry(t.TempDir(), store.Options{
		Clock:       clock,
		IDs:         NewStubIDGenerator("id"),
		LockTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	sessions := session.NewMemorySessionStore(30*time.Minute, DefaultSessionMaxSize, NewStubIDGenerator("upload"), nil)
	t.Cleanup(func() {
		sessions.Close()
	})

	return engine.NewEngine(reg, sessions, nil, clock), clock
}

// NewTestArchive creates an engine holding one archive named "lab" with
// the archivist "ada" registered.
func NewTestArchive(t *testing.T) (*engine.Engine, *StubClock) {
	t.Helper()

	e, clock := NewTestEngine(t)
	ctx := context.Background()
	if _, err := e.CreateArchive(ctx, "lab"); err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	if _, err := e.RegisterArchivist(ctx, "lab", "ada", "Ada"); err != nil {
		t.Fatalf("failed to register archivist: %v", err)
	}
	return e, clock
}
