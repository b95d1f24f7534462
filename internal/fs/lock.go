package fs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"arc-go/internal/arc"
)

// DefaultLockTimeout bounds every lock wait when no timeout is configured.
const DefaultLockTimeout = 5 * time.Second

const lockRetryDelay = 10 * time.Millisecond

// LockKind orders resources in the lock hierarchy. Locks are always taken
// in ascending kind order, so two callers can never wait on each other.
type LockKind int

const (
	LockDocument LockKind = iota
	LockCollection
	LockTag
	LockArchivist
	LockHead
)

func (k LockKind) String() string {
	switch k {
	case LockDocument:
		return "document"
	case LockCollection:
		return "collection"
	case LockTag:
		return "tag"
	case LockArchivist:
		return "archivist"
	case LockHead:
		return "head"
	default:
		return fmt.Sprintf("kind%d", int(k))
	}
}

// Resource names one lockable file.
type Resource struct {
	Kind LockKind
	ID   string
}

func DocumentResource(hash string) Resource { return Resource{Kind: LockDocument, ID: hash} }

func CollectionResource(id string) Resource { return Resource{Kind: LockCollection, ID: id} }

func TagResource(space arc.Space, tag string) Resource {
	return Resource{Kind: LockTag, ID: string(space) + "-" + tag}
}

func ArchivistResource(username string) Resource {
	return Resource{Kind: LockArchivist, ID: username}
}

func HeadResource() Resource { return Resource{Kind: LockHead, ID: "head"} }

func (r Resource) fileName() string {
	return r.Kind.String() + "-" + strings.ReplaceAll(r.ID, string(filepath.Separator), "_") + ".lock"
}

// Locker hands out exclusive advisory locks backed by lock files in one
// directory. The locks exclude other processes as well as other goroutines
// in this process, since every acquisition opens its own descriptor.
type Locker struct {
	dir     string
	timeout time.Duration

	mkdir    sync.Once
	mkdirErr error
}

// NewLocker creates a Locker keeping its lock files in dir.
// A non-positive timeout selects DefaultLockTimeout.
func NewLocker(dir string, timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Locker{dir: dir, timeout: timeout}
}

// Lock acquires every resource in hierarchy order and returns a function
// that releases them. Duplicates are collapsed. If any lock cannot be taken
// within the timeout the ones already held are released and the error
// wraps arc.ErrLockTimeout. A cancelled ctx aborts the wait with ctx.Err().
func (l *Locker) Lock(ctx context.Context, resources ...Resource) (func(), error) {
	sorted := slices.Clone(resources)
	slices.SortFunc(sorted, func(a, b Resource) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	sorted = slices.Compact(sorted)

	// Lock files carry no state, so the directory may be missing after a
	// restore; it is recreated on first use.
	l.mkdir.Do(func() { l.mkdirErr = os.MkdirAll(l.dir, 0755) })
	if l.mkdirErr != nil {
		return nil, fmt.Errorf("creating lock directory: %w", l.mkdirErr)
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	held := make([]*flock.Flock, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}

	for _, r := range sorted {
		fl := flock.New(filepath.Join(l.dir, r.fileName()))
		ok, err := fl.TryLockContext(waitCtx, lockRetryDelay)
		if err != nil || !ok {
			fl.Close()
			release()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err == nil || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s %s after %s", arc.ErrLockTimeout, r.Kind, r.ID, l.timeout)
			}
			return nil, fmt.Errorf("locking %s %s: %w", r.Kind, r.ID, err)
		}
		held = append(held, fl)
	}

	return release, nil
}
