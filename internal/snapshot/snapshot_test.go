package snapshot_test

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-go/internal/arc"
	"arc-go/internal/encryption"
	"arc-go/internal/engine"
	"arc-go/internal/snapshot"
	"arc-go/internal/testutil"
	"arc-go/internal/vault"
)

var ctx = context.Background()

// populate fills "lab" with two tagged documents in a collection.
func populate(t *testing.T, e *engine.Engine) {
	t.Helper()
	h1, _, err := e.CreateDocument(ctx, "lab", "ada", []byte("first"), arc.DocumentInput{Name: "one.txt", Tags: []string{"math"}})
	require.NoError(t, err)
	h2, _, err := e.CreateDocument(ctx, "lab", "ada", []byte("second"), arc.DocumentInput{Name: "two.txt"})
	require.NoError(t, err)
	col, err := e.CreateCollection(ctx, "lab", "ada", "Box")
	require.NoError(t, err)
	for _, h := range []string{h1, h2} {
		_, err := e.AddDocumentToCollection(ctx, "lab", "ada", col.ID, h)
		require.NoError(t, err)
	}
	_, err = e.AddCollectionTag(ctx, "lab", "ada", col.ID, "math")
	require.NoError(t, err)
}

func newService(t *testing.T, e *engine.Engine, clock arc.Clock, enc arc.Encryptor, exclude ...string) (*snapshot.Service, *vault.MemoryVault) {
	t.Helper()
	v := vault.NewMemoryVault("test")
	return snapshot.NewService(e.Registry(), v, enc, exclude, clock, nil), v
}

func assertSameArchive(t *testing.T, e *engine.Engine, a, b string) {
	t.Helper()

	docsA, err := e.ListDocuments(a)
	require.NoError(t, err)
	docsB, err := e.ListDocuments(b)
	require.NoError(t, err)
	assert.Equal(t, docsA, docsB)
	for _, h := range docsA {
		da, err := e.GetDocument(a, h)
		require.NoError(t, err)
		db, err := e.GetDocument(b, h)
		require.NoError(t, err)
		assert.Equal(t, da.Payload, db.Payload)
		assert.Equal(t, da.Meta.Name, db.Meta.Name)
		assert.Equal(t, da.Meta.Tags, db.Meta.Tags)
	}

	colsA, err := e.ListCollections(a)
	require.NoError(t, err)
	colsB, err := e.ListCollections(b)
	require.NoError(t, err)
	assert.Equal(t, colsA, colsB)

	histA, err := e.History(a, arc.AllCommits)
	require.NoError(t, err)
	histB, err := e.History(b, arc.AllCommits)
	require.NoError(t, err)
	assert.Equal(t, histA, histB)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	e, clock := testutil.NewTestArchive(t)
	populate(t, e)
	svc, v := newService(t, e, clock, nil)

	info, err := svc.Create(ctx, "lab")
	require.NoError(t, err)
	assert.False(t, info.Sealed)
	assert.True(t, strings.HasSuffix(info.Name, ".tar.zst"))
	assert.Positive(t, info.Size)
	assert.Positive(t, info.Files)

	names, err := v.ListSnapshots(ctx, "lab")
	require.NoError(t, err)
	assert.Equal(t, []string{info.Name}, names)

	restored, err := svc.Restore(ctx, "lab", info.Name, "lab-copy", nil)
	require.NoError(t, err)
	assert.Equal(t, info.Files, restored.Files)

	meta, err := e.LoadArchive("lab-copy")
	require.NoError(t, err)
	assert.Equal(t, "lab-copy", meta.Name)
	assertSameArchive(t, e, "lab", "lab-copy")
	require.NoError(t, e.CheckIntegrity("lab-copy"))

	// The restored archive is fully usable, locks included.
	_, _, err = e.CreateDocument(ctx, "lab-copy", "ada", []byte("third"), arc.DocumentInput{Name: "three.txt"})
	require.NoError(t, err)
}

func TestSnapshot_Sealed(t *testing.T) {
	e, clock := testutil.NewTestArchive(t)
	populate(t, e)
	enc := encryption.NewTestEncryptor()
	svc, v := newService(t, e, clock, enc)

	info, err := svc.Create(ctx, "lab")
	require.NoError(t, err)
	assert.True(t, info.Sealed)
	assert.True(t, strings.HasSuffix(info.Name, ".tar.zst.age"))

	var raw bytes.Buffer
	require.NoError(t, v.GetSnapshot(ctx, "lab", info.Name, &raw))
	assert.True(t, bytes.HasPrefix(raw.Bytes(), []byte("ARCSEAL")))

	_, err = svc.Restore(ctx, "lab", info.Name, "lab-copy", nil)
	assert.ErrorIs(t, err, arc.ErrMalformed)

	dc, err := enc.Unlock("")
	require.NoError(t, err)
	_, err = svc.Restore(ctx, "lab", info.Name, "lab-copy", dc)
	require.NoError(t, err)
	assertSameArchive(t, e, "lab", "lab-copy")
}

func TestSnapshot_RestoreLatest(t *testing.T) {
	e, clock := testutil.NewTestArchive(t)
	svc, _ := newService(t, e, clock, nil)

	_, err := svc.Restore(ctx, "lab", "", "lab-copy", nil)
	assert.ErrorIs(t, err, arc.ErrNotFound)

	_, err = svc.Create(ctx, "lab")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	populate(t, e)
	latest, err := svc.Create(ctx, "lab")
	require.NoError(t, err)

	names, err := svc.List(ctx, "lab")
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Equal(t, latest.Name, names[1])

	info, err := svc.Restore(ctx, "lab", "", "lab-copy", nil)
	require.NoError(t, err)
	assert.Equal(t, latest.Name, info.Name)
	assertSameArchive(t, e, "lab", "lab-copy")
}

func TestSnapshot_RestoreOverExisting(t *testing.T) {
	e, clock := testutil.NewTestArchive(t)
	svc, _ := newService(t, e, clock, nil)
	info, err := svc.Create(ctx, "lab")
	require.NoError(t, err)

	_, err = svc.Restore(ctx, "lab", info.Name, "", nil)
	assert.ErrorIs(t, err, arc.ErrAlreadyExists)

	entries, err := os.ReadDir(e.Registry().Root())
	require.NoError(t, err)
	require.Len(t, entries, 1, "no staging directory left behind")
	assert.Equal(t, "lab", entries[0].Name())
}

func TestSnapshot_Excludes(t *testing.T) {
	e, clock := testutil.NewTestArchive(t)
	populate(t, e)
	dir := e.Registry().Path("lab")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "documents", ".tmp-123"), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.bak"), []byte("scratch"), 0o644))

	svc, _ := newService(t, e, clock, nil, "*.bak")
	info, err := svc.Create(ctx, "lab")
	require.NoError(t, err)
	_, err = svc.Restore(ctx, "lab", info.Name, "lab-copy", nil)
	require.NoError(t, err)

	copyDir := e.Registry().Path("lab-copy")
	assert.NoFileExists(t, filepath.Join(copyDir, "documents", ".tmp-123"))
	assert.NoFileExists(t, filepath.Join(copyDir, "notes.bak"))
	assert.FileExists(t, filepath.Join(copyDir, "meta.json"))
	assert.NoDirExists(t, filepath.Join(copyDir, "locks"), "lock files are not snapshotted")
}

func TestSnapshot_RejectsEscapingEntries(t *testing.T) {
	e, clock := testutil.NewTestArchive(t)
	svc, v := newService(t, e, clock, nil)

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)
	body := []byte("owned")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, v.PutSnapshot(ctx, "lab", "evil.tar.zst", bytes.NewReader(buf.Bytes()), int64(buf.Len())))

	_, err = svc.Restore(ctx, "lab", "evil.tar.zst", "lab-copy", nil)
	assert.ErrorIs(t, err, arc.ErrMalformed)

	_, err = e.LoadArchive("lab-copy")
	assert.ErrorIs(t, err, arc.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(e.Registry().Root(), "escape.txt"))
}

func TestSnapshot_RestoreReportsIntegrity(t *testing.T) {
	e, clock := testutil.NewTestArchive(t)
	populate(t, e)
	// Drop an index file so the tree disagrees with the document tags.
	require.NoError(t, os.Remove(filepath.Join(e.Registry().Path("lab"), "tags", "documents", "math")))

	svc, _ := newService(t, e, clock, nil)
	info, err := svc.Create(ctx, "lab")
	require.NoError(t, err)

	restored, err := svc.Restore(ctx, "lab", info.Name, "lab-copy", nil)
	assert.ErrorIs(t, err, arc.ErrIntegrity)
	require.NotNil(t, restored)
	_, err = e.LoadArchive("lab-copy")
	assert.NoError(t, err, "archive is installed despite the failed check")
}
