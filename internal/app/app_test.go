package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arc-go/internal/arc"
	"arc-go/internal/config"
	"arc-go/internal/testutil"
)

// newTestApp builds an App over a temp base dir with a memory session
// store, a filesystem vault and the test encryptor.
func newTestApp(t *testing.T, op *Operation, mutate func(*config.Config)) *App {
	t.Helper()

	cfg := config.NewConfig(t.TempDir())
	cfg.LockTimeout = config.Duration{Duration: time.Second}
	cfg.Sessions.Type = "memory"
	cfg.Encryption.Type = "test"
	if mutate != nil {
		mutate(cfg)
	}

	a, err := NewApp(context.Background(), cfg, op)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return a
}

func finish(t *testing.T, a *App, err error) {
	t.Helper()
	if ferr := a.Finish(context.Background(), err); ferr != nil && !errors.Is(ferr, err) {
		t.Fatalf("Finish() error = %v", ferr)
	}
}

func setupLab(t *testing.T, a *App) {
	t.Helper()
	ctx := context.Background()
	if _, err := a.Engine().CreateArchive(ctx, "lab"); err != nil {
		t.Fatalf("CreateArchive() error = %v", err)
	}
	if _, err := a.Engine().RegisterArchivist(ctx, "lab", "ada", ""); err != nil {
		t.Fatalf("RegisterArchivist() error = %v", err)
	}
}

func TestApp_DocumentFileRoundTrip(t *testing.T) {
	a := newTestApp(t, NewOperation("CreateDocument", "lab", true, time.Now()), nil)
	defer finish(t, a, nil)
	setupLab(t, a)

	src := testutil.WriteTree(t, t.TempDir(), map[string]string{"notes/field.txt": "hello"})
	hash, isNew, err := a.CreateDocumentFromFile(context.Background(), "lab", "ada", filepath.Join(src, "notes", "field.txt"), arc.DocumentInput{})
	if err != nil {
		t.Fatalf("CreateDocumentFromFile() error = %v", err)
	}
	if !isNew {
		t.Error("isNew = false, want true")
	}
	if want := testutil.SHA256Hex([]byte("hello")); hash != want {
		t.Errorf("hash = %s, want %s", hash, want)
	}

	doc, err := a.Engine().GetDocument("lab", hash)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Meta.Name != "field.txt" || doc.Meta.FileType != "text/plain" {
		t.Errorf("meta = %+v, want name field.txt and text/plain", doc.Meta)
	}

	dest := filepath.Join(t.TempDir(), "out.txt")
	got, err := a.ExportDocument("lab", hash, dest)
	if err != nil {
		t.Fatalf("ExportDocument() error = %v", err)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("exported %q, want %q", data, "hello")
	}
}

func TestApp_StageFile(t *testing.T) {
	a := newTestApp(t, NewOperation("StageUpload", "lab", true, time.Now()), nil)
	defer finish(t, a, nil)
	setupLab(t, a)

	src := testutil.WriteTree(t, t.TempDir(), map[string]string{"a.md": "alpha", "b.md": "beta"})
	sess, err := a.Engine().BeginUpload(context.Background(), "lab", "ada")
	if err != nil {
		t.Fatalf("BeginUpload() error = %v", err)
	}
	for _, name := range []string{"a.md", "b.md"} {
		if err := a.StageFile(sess.ID, filepath.Join(src, name), arc.DocumentInput{}); err != nil {
			t.Fatalf("StageFile(%s) error = %v", name, err)
		}
	}

	results, commit, err := a.Engine().CommitUpload(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("CommitUpload() error = %v", err)
	}
	if len(results) != 2 || commit == nil || len(commit.Changes) != 2 {
		t.Fatalf("results = %+v, commit = %+v; want two results in one commit", results, commit)
	}
}

func TestApp_StageFileMissing(t *testing.T) {
	a := newTestApp(t, NewOperation("StageUpload", "lab", true, time.Now()), nil)
	defer finish(t, a, nil)

	err := a.StageFile("whatever", filepath.Join(t.TempDir(), "absent.txt"), arc.DocumentInput{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("StageFile() error = %v, want os.ErrNotExist", err)
	}
}

func TestApp_DescribeArchive(t *testing.T) {
	a := newTestApp(t, NewOperation("DescribeArchive", "lab", false, time.Now()), nil)
	defer finish(t, a, nil)
	setupLab(t, a)

	ctx := context.Background()
	if _, _, err := a.Engine().CreateDocument(ctx, "lab", "ada", []byte("x"), arc.DocumentInput{Name: "x.txt", Tags: []string{"math"}}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	col, err := a.Engine().CreateCollection(ctx, "lab", "ada", "Box")
	if err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}
	if _, err := a.Engine().AddCollectionTag(ctx, "lab", "ada", col.ID, "physics"); err != nil {
		t.Fatalf("AddCollectionTag() error = %v", err)
	}

	sum, err := a.DescribeArchive("lab")
	if err != nil {
		t.Fatalf("DescribeArchive() error = %v", err)
	}
	if sum.Documents != 1 || sum.Collections != 1 || sum.Tags != 2 {
		t.Errorf("summary counts = %d/%d/%d, want 1/1/2", sum.Documents, sum.Collections, sum.Tags)
	}
	if len(sum.Archivists) != 1 || sum.Archivists[0].Stats.DocumentsCreated != 1 {
		t.Errorf("archivists = %+v", sum.Archivists)
	}
	if sum.Head == "" {
		t.Error("Head is empty")
	}
}

func TestApp_SnapshotAndRestore(t *testing.T) {
	a := newTestApp(t, NewOperation("RestoreSnapshot", "lab", false, time.Now()), nil)
	defer finish(t, a, nil)
	setupLab(t, a)
	ctx := context.Background()

	if err := a.SetupKeys("secret"); err != nil {
		t.Fatalf("SetupKeys() error = %v", err)
	}
	hash, _, err := a.Engine().CreateDocument(ctx, "lab", "ada", []byte("kept"), arc.DocumentInput{Name: "kept.txt"})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	info, err := a.Snapshot(ctx, "lab")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !info.Sealed {
		t.Error("snapshot is not sealed with encryption configured")
	}

	names, err := a.ListSnapshots(ctx, "lab")
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(names) != 1 || names[0] != info.Name {
		t.Errorf("ListSnapshots() = %v, want [%s]", names, info.Name)
	}

	if _, err := a.RestoreSnapshot(ctx, "lab", "", "lab-copy", "wrong"); err == nil {
		t.Error("RestoreSnapshot() with wrong passphrase succeeded")
	}

	if _, err := a.RestoreSnapshot(ctx, "lab", "", "lab-copy", "secret"); err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	doc, err := a.Engine().GetDocument("lab-copy", hash)
	if err != nil {
		t.Fatalf("GetDocument() on restored archive error = %v", err)
	}
	if string(doc.Payload) != "kept" {
		t.Errorf("restored payload = %q", doc.Payload)
	}
}

func TestApp_NoVault(t *testing.T) {
	a := newTestApp(t, NewOperation("Snapshot", "lab", false, time.Now()), func(cfg *config.Config) {
		cfg.Vaults = nil
	})
	defer finish(t, a, nil)

	if _, err := a.Snapshot(context.Background(), "lab"); !errors.Is(err, errNoVault) {
		t.Errorf("Snapshot() error = %v, want errNoVault", err)
	}
	if err := a.ValidateVault(context.Background()); !errors.Is(err, errNoVault) {
		t.Errorf("ValidateVault() error = %v, want errNoVault", err)
	}
}

func TestApp_SetupKeysWithoutEncryption(t *testing.T) {
	a := newTestApp(t, NewOperation("SetupKeys", "", false, time.Now()), func(cfg *config.Config) {
		cfg.Encryption.Type = "none"
	})
	defer finish(t, a, nil)

	if err := a.SetupKeys("secret"); err == nil {
		t.Error("SetupKeys() error = nil with encryption disabled")
	}
}

func TestApp_FinishSnapshotsOnChange(t *testing.T) {
	tests := []struct {
		name      string
		onChange  bool
		mutating  bool
		err       error
		wantCount int
	}{
		{name: "successful mutation", onChange: true, mutating: true, wantCount: 1},
		{name: "failed mutation", onChange: true, mutating: true, err: errors.New("boom"), wantCount: 0},
		{name: "read only", onChange: true, mutating: false, wantCount: 0},
		{name: "disabled", onChange: false, mutating: true, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			mutate := func(cfg *config.Config) {
				cfg.BaseDir = base
				cfg.RootDir = filepath.Join(base, "archives")
				cfg.Vaults[0].FSVaultRoot = filepath.Join(base, "vault")
				cfg.Encryption.Type = "none"
				cfg.Snapshot.OnChange = tt.onChange
			}

			setup := newTestApp(t, NewOperation("CreateArchive", "", false, time.Now()), mutate)
			setupLab(t, setup)
			finish(t, setup, nil)

			a := newTestApp(t, NewOperation("RenameDocument", "lab", tt.mutating, time.Now()), mutate)
			err := a.Finish(context.Background(), tt.err)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Finish() error = %v, want %v", err, tt.err)
			}

			check := newTestApp(t, NewOperation("ListSnapshots", "lab", false, time.Now()), mutate)
			defer finish(t, check, nil)
			names, lerr := check.ListSnapshots(context.Background(), "lab")
			if lerr != nil {
				t.Fatalf("ListSnapshots() error = %v", lerr)
			}
			if len(names) != tt.wantCount {
				t.Errorf("snapshots = %v, want %d", names, tt.wantCount)
			}
		})
	}
}
