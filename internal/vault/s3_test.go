package vault

import (
	"context"
	"strings"
	"testing"
)

func TestS3Vault_ObjectKeys(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "no prefix", prefix: "", want: "snapshots/lab/snap-1"},
		{name: "prefix", prefix: "backups", want: "backups/snapshots/lab/snap-1"},
		{name: "prefix with slashes", prefix: "/team/arc/", want: "team/arc/snapshots/lab/snap-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeS3()
			v := newS3Vault("test", "bucket", tt.prefix, fake, fake)

			if err := v.PutSnapshot(context.Background(), "lab", "snap-1", strings.NewReader("x"), 1); err != nil {
				t.Fatalf("PutSnapshot() error = %v", err)
			}
			if _, ok := fake.objects[tt.want]; !ok {
				t.Errorf("object not stored under %q; have %v", tt.want, fake.objects)
			}
		})
	}
}

func TestS3Vault_ListIgnoresNestedKeys(t *testing.T) {
	fake := newFakeS3()
	v := newS3Vault("test", "bucket", "", fake, fake)
	fake.objects["snapshots/lab/snap-1"] = []byte("x")
	fake.objects["snapshots/lab/old/snap-0"] = []byte("x")

	names, err := v.ListSnapshots(context.Background(), "lab")
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(names) != 1 || names[0] != "snap-1" {
		t.Errorf("ListSnapshots() = %v, want [snap-1]", names)
	}
}
