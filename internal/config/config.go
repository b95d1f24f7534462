package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for arc.
type Config struct {
	BaseDir     string           `toml:"base_dir"`
	RootDir     string           `toml:"root_dir"` // archives live here
	LogDir      string           `toml:"log_dir"`
	LogLevel    string           `toml:"log_level"` // debug, info, warn or error
	LockTimeout Duration         `toml:"lock_timeout"`
	Vaults      []VaultConfig    `toml:"vaults"`
	Encryption  EncryptionConfig `toml:"encryption"`
	Sessions    SessionsConfig   `toml:"sessions"`
	Snapshot    SnapshotConfig   `toml:"snapshot"`
}

// Duration is a time.Duration written as a Go duration string ("5s", "30m").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// EncryptionConfig holds paths to the age key pair used to seal snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`   // S3-compatible services (MinIO, R2)
	S3AccessKey string `toml:"s3_access_key,omitempty"` // static credentials; default chain when empty
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// SessionsConfig represents configuration for the upload session store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SessionsConfig struct {
	Type    string   `toml:"type"`               // "memory" or "sqlite"
	DataDir string   `toml:"data_dir,omitempty"` // only used for type=sqlite
	TTL     Duration `toml:"ttl"`                // idle time before a session is swept
	MaxSize int64    `toml:"max_size"`           // max staged bytes per session
}

// SnapshotConfig holds snapshot settings.
type SnapshotConfig struct {
	// Exclude lists extra patterns left out of snapshots, on top of lock
	// and temp files.
	Exclude []string `toml:"exclude"`

	// OnChange takes a snapshot after every successful mutating command.
	OnChange bool `toml:"on_change"`
}

// NewConfig creates a new Config rooted at baseDir with default paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:     baseDir,
		RootDir:     filepath.Join(baseDir, "archives"),
		LogDir:      filepath.Join(baseDir, "log"),
		LogLevel:    "info",
		LockTimeout: Duration{5 * time.Second},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "arc.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "arc.key"),
		},
		Sessions: SessionsConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "sessions"),
			TTL:     Duration{30 * time.Minute},
			MaxSize: 64 * 1024 * 1024,
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
