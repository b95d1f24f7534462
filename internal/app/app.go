package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"arc-go/internal/arc"
	"arc-go/internal/config"
	"arc-go/internal/encryption"
	"arc-go/internal/engine"
	"arc-go/internal/fs"
	"arc-go/internal/session"
	"arc-go/internal/snapshot"
	"arc-go/internal/store"
	"arc-go/internal/vault"
)

// App is the application layer between the CLI and the engine.
// It constructs all dependencies from config, exposes the operations that
// take raw file paths or passphrases, and closes resources in Finish.
type App struct {
	cfg       *config.Config
	clock     arc.Clock
	sessions  arc.SessionStore
	engine    *engine.Engine
	vault     arc.Vault
	encryptor arc.Encryptor
	snapshots *snapshot.Service
	logger    arc.Logger
	op        *Operation
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// op identifies the CLI command being run. The caller must call Finish when done.
func NewApp(ctx context.Context, cfg *config.Config, op *Operation) (*App, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	sl, logFile, err := newLogger(cfg.LogDir, op.ID, level, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a, err := wire(ctx, cfg, op, logger)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	a.logFile = logFile

	logger.Debug("operation started", "command", op.Command, "archive", op.Archive)
	return a, nil
}

// wire builds everything except the logger.
func wire(ctx context.Context, cfg *config.Config, op *Operation, logger arc.Logger) (*App, error) {
	clock := arc.RealClock{}

	registry, err := store.NewRegistry(cfg.RootDir, store.Options{
		Clock:       clock,
		IDs:         arc.UUIDGenerator{},
		Logger:      logger,
		LockTimeout: cfg.LockTimeout.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("opening archive root: %w", err)
	}

	sessions, err := session.NewSessionStoreFromConfig(cfg.Sessions, arc.UUIDGenerator{}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	a := &App{
		cfg:       cfg,
		clock:     clock,
		sessions:  sessions,
		engine:    engine.NewEngine(registry, sessions, logger, clock),
		encryptor: enc,
		logger:    logger,
		op:        op,
	}

	// Snapshots use the first configured vault; without one they are unavailable.
	if len(cfg.Vaults) > 0 {
		v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			sessions.Close()
			return nil, fmt.Errorf("creating vault: %w", err)
		}
		a.vault = v
		a.snapshots = snapshot.NewService(registry, v, enc, cfg.Snapshot.Exclude, clock, logger)
	}
	return a, nil
}

// Engine returns the engine for operations that need no path or key handling.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Config returns the config the app was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// ArchiveSummary is what `arc archive show` prints.
type ArchiveSummary struct {
	Archive     *arc.Archive     `json:"archive" yaml:"archive"`
	Head        string           `json:"head" yaml:"head"`
	Documents   int              `json:"documents" yaml:"documents"`
	Collections int              `json:"collections" yaml:"collections"`
	Tags        int              `json:"tags" yaml:"tags"`
	Archivists  []*arc.Archivist `json:"archivists" yaml:"archivists"`
}

// DescribeArchive gathers the counts and archivists of one archive.
func (a *App) DescribeArchive(name string) (*ArchiveSummary, error) {
	meta, err := a.engine.LoadArchive(name)
	if err != nil {
		return nil, err
	}
	head, err := a.engine.Head(name)
	if err != nil {
		return nil, err
	}
	docs, err := a.engine.ListDocuments(name)
	if err != nil {
		return nil, err
	}
	cols, err := a.engine.ListCollections(name)
	if err != nil {
		return nil, err
	}
	tags, err := a.engine.ListTags(name)
	if err != nil {
		return nil, err
	}
	archivists, err := a.engine.ListArchivists(name)
	if err != nil {
		return nil, err
	}
	return &ArchiveSummary{
		Archive:     meta,
		Head:        head,
		Documents:   len(docs),
		Collections: len(cols),
		Tags:        len(tags),
		Archivists:  archivists,
	}, nil
}

// readDocumentFile loads a file for upload. The document name defaults to
// the file's base name.
func readDocumentFile(rawPath string, input *arc.DocumentInput) ([]byte, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	payload, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	if input.Name == "" {
		input.Name = filepath.Base(p)
	}
	return payload, nil
}

// CreateDocumentFromFile stores the file at rawPath as a document.
func (a *App) CreateDocumentFromFile(ctx context.Context, archive, archivist, rawPath string, input arc.DocumentInput) (string, bool, error) {
	payload, err := readDocumentFile(rawPath, &input)
	if err != nil {
		return "", false, err
	}
	return a.engine.CreateDocument(ctx, archive, archivist, payload, input)
}

// StageFile adds the file at rawPath to an upload session.
func (a *App) StageFile(sessionID, rawPath string, input arc.DocumentInput) error {
	payload, err := readDocumentFile(rawPath, &input)
	if err != nil {
		return err
	}
	return a.engine.StageUpload(sessionID, payload, input)
}

// ExportDocument writes a document's payload to dest. An empty dest means
// the document's name in the current directory. Existing files are
// replaced atomically.
func (a *App) ExportDocument(archive, hash, dest string) (string, error) {
	doc, err := a.engine.GetDocument(archive, hash)
	if err != nil {
		return "", err
	}
	if dest == "" {
		dest = filepath.Base(doc.Meta.Name)
	}
	p, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if err := fs.WriteFileAtomic(p, doc.Payload); err != nil {
		return "", fmt.Errorf("writing %s: %w", p, err)
	}
	return p, nil
}

// SetupKeys generates the snapshot key pair.
func (a *App) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is disabled: set [encryption] type in the config first")
	}
	return a.encryptor.Setup(passphrase)
}

var errNoVault = errors.New("no vaults configured")

func (a *App) requireSnapshots() error {
	if a.snapshots == nil {
		return errNoVault
	}
	return nil
}

// ValidateVault checks that the snapshot vault is reachable.
func (a *App) ValidateVault(ctx context.Context) error {
	if err := a.requireSnapshots(); err != nil {
		return err
	}
	return a.vault.ValidateSetup(ctx)
}

// Snapshot copies archive to the vault.
func (a *App) Snapshot(ctx context.Context, archive string) (*snapshot.Info, error) {
	if err := a.requireSnapshots(); err != nil {
		return nil, err
	}
	if a.encryptor != nil && !a.encryptor.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found: run `arc keys init` first")
	}
	return a.snapshots.Create(ctx, archive)
}

// ListSnapshots returns the snapshot names stored for archive, oldest first.
func (a *App) ListSnapshots(ctx context.Context, archive string) ([]string, error) {
	if err := a.requireSnapshots(); err != nil {
		return nil, err
	}
	return a.snapshots.List(ctx, archive)
}

// RestoreSnapshot installs snapshot name of archive as target. The
// passphrase is only used for sealed snapshots.
func (a *App) RestoreSnapshot(ctx context.Context, archive, name, target, passphrase string) (*snapshot.Info, error) {
	if err := a.requireSnapshots(); err != nil {
		return nil, err
	}
	var dc arc.DecryptionContext
	if a.encryptor != nil && passphrase != "" {
		var err error
		if dc, err = a.encryptor.Unlock(passphrase); err != nil {
			return nil, fmt.Errorf("unlocking key: %w", err)
		}
	}
	return a.snapshots.Restore(ctx, archive, name, target, dc)
}

// Finish records the outcome of the operation, takes an automatic snapshot
// when one is configured and closes all resources. It returns err joined
// with any failure of its own.
func (a *App) Finish(ctx context.Context, err error) error {
	a.op.Fail(err)

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}

	if a.cfg.Snapshot.OnChange && a.snapshots != nil && a.op.WantsSnapshot() {
		if _, serr := a.Snapshot(ctx, a.op.Archive); serr != nil {
			errs = append(errs, fmt.Errorf("automatic snapshot: %w", serr))
		}
	}

	if cerr := a.sessions.Close(); cerr != nil {
		errs = append(errs, fmt.Errorf("closing session store: %w", cerr))
	}

	a.logger.Info("operation finished",
		"command", a.op.Command,
		"archive", a.op.Archive,
		"status", a.op.Status,
		"duration", a.clock.Now().Sub(a.op.Started).Truncate(time.Millisecond),
	)

	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
