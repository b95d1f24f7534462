package session

import (
	"errors"
	"testing"
	"time"

	"arc-go/internal/arc"
)

// seqIDs hands out predictable session ids.
type seqIDs struct{ n int }

func (g *seqIDs) New() string {
	g.n++
	return "sess-" + string(rune('0'+g.n))
}

var start = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// forEachStore runs fn against every session store implementation.
func forEachStore(t *testing.T, ttl time.Duration, maxSize int64, fn func(t *testing.T, s arc.SessionStore)) {
	t.Helper()

	stores := map[string]func(t *testing.T) arc.SessionStore{
		"memory": func(t *testing.T) arc.SessionStore {
			return NewMemorySessionStore(ttl, maxSize, &seqIDs{}, nil)
		},
		"sqlite": func(t *testing.T) arc.SessionStore {
			s, err := NewSQLiteSessionStore(t.TempDir(), ttl, maxSize, &seqIDs{}, nil)
			if err != nil {
				t.Fatalf("NewSQLiteSessionStore() error = %v", err)
			}
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func upload(name, payload string) arc.StagedUpload {
	return arc.StagedUpload{Payload: []byte(payload), Input: arc.DocumentInput{Name: name}}
}

func TestSessionStore_StageAndGet(t *testing.T) {
	forEachStore(t, time.Hour, 1024, func(t *testing.T, s arc.SessionStore) {
		sess, err := s.Begin("lab", "ada", start)
		if err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if sess.ID != "sess-1" || sess.Archive != "lab" || sess.Archivist != "ada" {
			t.Errorf("Begin() = %+v", sess)
		}

		for _, u := range []arc.StagedUpload{upload("a.txt", "alpha"), upload("b.txt", "beta")} {
			if err := s.Stage(sess.ID, u, start.Add(time.Minute)); err != nil {
				t.Fatalf("Stage() error = %v", err)
			}
		}

		got, uploads, err := s.Get(sess.ID, start.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !got.LastActivity.Equal(start.Add(time.Minute)) {
			t.Errorf("LastActivity = %v, want %v", got.LastActivity, start.Add(time.Minute))
		}
		if len(uploads) != 2 || uploads[0].Input.Name != "a.txt" || string(uploads[1].Payload) != "beta" {
			t.Errorf("uploads = %+v", uploads)
		}
	})
}

func TestSessionStore_UnknownSession(t *testing.T) {
	forEachStore(t, time.Hour, 1024, func(t *testing.T, s arc.SessionStore) {
		if err := s.Stage("nope", upload("a.txt", "a"), start); !errors.Is(err, arc.ErrNotFound) {
			t.Errorf("Stage() error = %v, want ErrNotFound", err)
		}
		if _, _, err := s.Get("nope", start); !errors.Is(err, arc.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
		if err := s.Remove("nope"); err != nil {
			t.Errorf("Remove() of unknown session error = %v", err)
		}
	})
}

func TestSessionStore_MaxSize(t *testing.T) {
	forEachStore(t, time.Hour, 8, func(t *testing.T, s arc.SessionStore) {
		sess, err := s.Begin("lab", "ada", start)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Stage(sess.ID, upload("a.txt", "12345"), start); err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		err = s.Stage(sess.ID, upload("b.txt", "6789"), start)
		if !errors.Is(err, arc.ErrMalformed) {
			t.Errorf("Stage() past max size error = %v, want ErrMalformed", err)
		}

		_, uploads, err := s.Get(sess.ID, start)
		if err != nil {
			t.Fatal(err)
		}
		if len(uploads) != 1 {
			t.Errorf("rejected upload was staged: %d uploads", len(uploads))
		}
	})
}

func TestSessionStore_Expiry(t *testing.T) {
	forEachStore(t, 10*time.Minute, 1024, func(t *testing.T, s arc.SessionStore) {
		idle, err := s.Begin("lab", "ada", start)
		if err != nil {
			t.Fatal(err)
		}
		active, err := s.Begin("lab", "bob", start)
		if err != nil {
			t.Fatal(err)
		}
		// Activity pushes the active session's deadline out.
		if err := s.Stage(active.ID, upload("a.txt", "a"), start.Add(8*time.Minute)); err != nil {
			t.Fatal(err)
		}

		n, err := s.Sweep(start.Add(15 * time.Minute))
		if err != nil {
			t.Fatalf("Sweep() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Sweep() removed %d sessions, want 1", n)
		}
		if _, _, err := s.Get(idle.ID, start.Add(15*time.Minute)); !errors.Is(err, arc.ErrNotFound) {
			t.Errorf("Get(idle) error = %v, want ErrNotFound", err)
		}
		if _, _, err := s.Get(active.ID, start.Add(15*time.Minute)); err != nil {
			t.Errorf("Get(active) error = %v", err)
		}

		// Without a sweep, an expired session is still unusable.
		if err := s.Stage(active.ID, upload("b.txt", "b"), start.Add(time.Hour)); !errors.Is(err, arc.ErrNotFound) {
			t.Errorf("Stage() on expired session error = %v, want ErrNotFound", err)
		}
	})
}

func TestSessionStore_Remove(t *testing.T) {
	forEachStore(t, time.Hour, 1024, func(t *testing.T, s arc.SessionStore) {
		sess, err := s.Begin("lab", "ada", start)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Stage(sess.ID, upload("a.txt", "a"), start); err != nil {
			t.Fatal(err)
		}
		if err := s.Remove(sess.ID); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if _, _, err := s.Get(sess.ID, start); !errors.Is(err, arc.ErrNotFound) {
			t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
		}
	})
}

func TestSessionStore_BeginValidates(t *testing.T) {
	forEachStore(t, time.Hour, 1024, func(t *testing.T, s arc.SessionStore) {
		if _, err := s.Begin("", "ada", start); !errors.Is(err, arc.ErrMalformed) {
			t.Errorf("Begin() without archive error = %v, want ErrMalformed", err)
		}
	})
}
