package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"arc-go/internal/arc"
)

// fakeS3 is an in-memory bucket serving both s3API and uploader.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &manager.UploadOutput{Key: in.Key}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

// forEachVault runs fn against a fresh instance of every backend.
func forEachVault(t *testing.T, fn func(t *testing.T, v arc.Vault)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryVault("test-vault"))
	})
	t.Run("filesystem", func(t *testing.T) {
		v, err := NewFileSystemVault("test-vault", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		fn(t, v)
	})
	t.Run("s3", func(t *testing.T) {
		fake := newFakeS3()
		fn(t, newS3Vault("test-vault", "bucket", "backups", fake, fake))
	})
}

func TestVault_PutAndGetSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "small snapshot", content: "hello world"},
		{name: "empty snapshot", content: ""},
		{name: "large snapshot", content: strings.Repeat("x", 100000)},
	}

	forEachVault(t, func(t *testing.T, v arc.Vault) {
		ctx := context.Background()
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := v.PutSnapshot(ctx, "lab", "snap-1", strings.NewReader(tt.content), int64(len(tt.content))); err != nil {
					t.Fatalf("PutSnapshot() error = %v", err)
				}

				var buf bytes.Buffer
				if err := v.GetSnapshot(ctx, "lab", "snap-1", &buf); err != nil {
					t.Fatalf("GetSnapshot() error = %v", err)
				}
				if got := buf.String(); got != tt.content {
					t.Errorf("GetSnapshot() returned %d bytes, want %d", len(got), len(tt.content))
				}
			})
		}
	})
}

func TestVault_SizeMismatch(t *testing.T) {
	forEachVault(t, func(t *testing.T, v arc.Vault) {
		err := v.PutSnapshot(context.Background(), "lab", "snap-1", strings.NewReader("hello"), 10)
		if err == nil {
			t.Error("PutSnapshot() expected size mismatch error")
		}
	})
}

func TestVault_GetMissing(t *testing.T) {
	forEachVault(t, func(t *testing.T, v arc.Vault) {
		err := v.GetSnapshot(context.Background(), "lab", "nope", io.Discard)
		if !errors.Is(err, arc.ErrNotFound) {
			t.Errorf("GetSnapshot() error = %v, want ErrNotFound", err)
		}
	})
}

func TestVault_RejectsUnsafeNames(t *testing.T) {
	forEachVault(t, func(t *testing.T, v arc.Vault) {
		ctx := context.Background()
		for _, tc := range []struct{ archive, name string }{
			{"../etc", "snap"},
			{"lab", "../../passwd"},
			{"lab", ""},
		} {
			err := v.PutSnapshot(ctx, tc.archive, tc.name, strings.NewReader("x"), 1)
			if !errors.Is(err, arc.ErrMalformed) {
				t.Errorf("PutSnapshot(%q, %q) error = %v, want ErrMalformed", tc.archive, tc.name, err)
			}
		}
	})
}

func TestVault_ListSnapshots(t *testing.T) {
	forEachVault(t, func(t *testing.T, v arc.Vault) {
		ctx := context.Background()

		names, err := v.ListSnapshots(ctx, "lab")
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		if len(names) != 0 {
			t.Errorf("ListSnapshots() on empty vault = %v", names)
		}

		for _, put := range []struct{ archive, name string }{
			{"lab", "20240116T000000Z.tar.zst"},
			{"lab", "20240115T000000Z.tar.zst"},
			{"labs", "20240101T000000Z.tar.zst"},
			{"attic", "20240102T000000Z.tar.zst"},
		} {
			if err := v.PutSnapshot(ctx, put.archive, put.name, strings.NewReader("x"), 1); err != nil {
				t.Fatalf("PutSnapshot() error = %v", err)
			}
		}

		names, err = v.ListSnapshots(ctx, "lab")
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		want := []string{"20240115T000000Z.tar.zst", "20240116T000000Z.tar.zst"}
		if strings.Join(names, ",") != strings.Join(want, ",") {
			t.Errorf("ListSnapshots() = %v, want %v", names, want)
		}
	})
}
