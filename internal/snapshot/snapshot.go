// Package snapshot copies whole archives to a vault and back. A snapshot
// is a zstd-compressed tar of the archive tree, optionally sealed with the
// configured encryptor. Restores are unpacked into a staging directory and
// installed only once complete.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"arc-go/internal/arc"
	"arc-go/internal/fs"
	"arc-go/internal/store"
)

const (
	tarballExt = ".tar.zst"
	sealedExt  = ".age"

	// nameLayout sorts lexically in time order.
	nameLayout = "20060102T150405.000000000Z"
)

// Info describes one stored snapshot.
type Info struct {
	Archive string `json:"archive" yaml:"archive"`
	Name    string `json:"name" yaml:"name"`
	Size    int64  `json:"size" yaml:"size"`
	Files   int    `json:"files" yaml:"files"`
	Sealed  bool   `json:"sealed" yaml:"sealed"`
}

// Service takes and restores snapshots.
type Service struct {
	registry  *store.Registry
	vault     arc.Vault
	encryptor arc.Encryptor
	excludes  *fs.ExcludeMatcher
	clock     arc.Clock
	logger    arc.Logger
}

// NewService creates a snapshot service. encryptor may be nil, in which
// case snapshots are stored unsealed. exclude adds patterns to
// fs.DefaultSnapshotExcludes.
func NewService(registry *store.Registry, vault arc.Vault, encryptor arc.Encryptor, exclude []string, clock arc.Clock, logger arc.Logger) *Service {
	if clock == nil {
		clock = arc.RealClock{}
	}
	if logger == nil {
		logger = arc.NewNopLogger()
	}
	patterns := append(append([]string{}, fs.DefaultSnapshotExcludes...), exclude...)
	return &Service{
		registry:  registry,
		vault:     vault,
		encryptor: encryptor,
		excludes:  fs.NewExcludeMatcher(patterns),
		clock:     clock,
		logger:    logger,
	}
}

// Create snapshots archive into the vault. The head lock is held while the
// tree is read, so the commit log in the snapshot is consistent with its
// head.
func (s *Service) Create(ctx context.Context, archive string) (*Info, error) {
	a, err := s.registry.Open(archive)
	if err != nil {
		return nil, err
	}

	staging, err := s.registry.StagingDir("snapshot")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	info := &Info{Archive: archive, Name: s.clock.Now().UTC().Format(nameLayout) + tarballExt}
	tarPath := filepath.Join(staging, info.Name)
	if info.Files, err = s.pack(ctx, a, tarPath); err != nil {
		return nil, err
	}

	upload := tarPath
	if s.encryptor != nil {
		info.Name += sealedExt
		info.Sealed = true
		upload = filepath.Join(staging, info.Name)
		if err := s.seal(tarPath, upload); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(upload)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("sizing snapshot: %w", err)
	}
	info.Size = st.Size()

	if err := s.vault.PutSnapshot(ctx, archive, info.Name, f, info.Size); err != nil {
		return nil, fmt.Errorf("storing snapshot: %w", err)
	}
	s.logger.Info("snapshot created", "archive", archive, "snapshot", info.Name, "files", info.Files, "size", info.Size, "sealed", info.Sealed)
	return info, nil
}

func (s *Service) pack(ctx context.Context, a *store.Archive, dest string) (int, error) {
	unlock, err := a.Lock(ctx, fs.HeadResource())
	if err != nil {
		return 0, err
	}
	defer unlock()

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("creating snapshot file: %w", err)
	}
	files, err := writeTarball(a.Dir(), out, s.excludes)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("packing archive %s: %w", a.Name(), err)
	}
	return files, out.Close()
}

func (s *Service) seal(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := s.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("sealing snapshot: %w", err)
	}
	return out.Close()
}

// List returns the snapshots stored for archive, oldest first.
func (s *Service) List(ctx context.Context, archive string) ([]string, error) {
	return s.vault.ListSnapshots(ctx, archive)
}

// Restore installs a snapshot of archive as a new archive named target
// (archive itself when target is empty). An empty name selects the newest
// snapshot. Sealed snapshots need dc. The target must not exist yet.
//
// The restored archive is installed even if its integrity check fails;
// that failure is returned alongside the Info and matches arc.ErrIntegrity.
func (s *Service) Restore(ctx context.Context, archive, name, target string, dc arc.DecryptionContext) (*Info, error) {
	if target == "" {
		target = archive
	}
	if err := arc.ValidateName("archive", target); err != nil {
		return nil, err
	}
	if _, err := s.registry.Load(target); err == nil {
		return nil, fmt.Errorf("archive %s: %w", target, arc.ErrAlreadyExists)
	}

	if name == "" {
		names, err := s.vault.ListSnapshots(ctx, archive)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, arc.NotFound("snapshot", archive)
		}
		name = names[len(names)-1]
	}
	info := &Info{Archive: target, Name: name, Sealed: strings.HasSuffix(name, sealedExt)}
	if info.Sealed && dc == nil {
		return nil, arc.Malformed("snapshot %s is sealed and no key was unlocked", name)
	}

	staging, err := s.registry.StagingDir("restore")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	download := filepath.Join(staging, "download")
	if info.Size, err = s.fetch(ctx, archive, name, download); err != nil {
		return nil, err
	}
	if info.Sealed {
		opened := filepath.Join(staging, "opened")
		if err := unseal(dc, download, opened); err != nil {
			return nil, err
		}
		download = opened
	}

	tree := filepath.Join(staging, "tree")
	if err := os.Mkdir(tree, 0755); err != nil {
		return nil, fmt.Errorf("creating restore tree: %w", err)
	}
	in, err := os.Open(download)
	if err != nil {
		return nil, err
	}
	info.Files, err = extractTarball(in, tree)
	in.Close()
	if err != nil {
		return nil, fmt.Errorf("unpacking snapshot %s: %w", name, err)
	}

	if err := s.registry.Install(target, tree); err != nil {
		return nil, err
	}
	s.logger.Info("snapshot restored", "archive", archive, "snapshot", name, "target", target, "files", info.Files)

	a, err := s.registry.Open(target)
	if err != nil {
		return info, err
	}
	if err := a.CheckIntegrity(); err != nil {
		s.logger.Warn("restored archive failed integrity check", "archive", target, "error", err)
		return info, err
	}
	return info, nil
}

func (s *Service) fetch(ctx context.Context, archive, name, dest string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("creating download file: %w", err)
	}
	if err := s.vault.GetSnapshot(ctx, archive, name, out); err != nil {
		out.Close()
		return 0, err
	}
	st, err := out.Stat()
	if err != nil {
		out.Close()
		return 0, err
	}
	return st.Size(), out.Close()
}

func unseal(dc arc.DecryptionContext, src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := dc.Decrypt(in, out); err != nil {
		out.Close()
		return errors.Join(arc.Malformed("opening sealed snapshot"), err)
	}
	return out.Close()
}
