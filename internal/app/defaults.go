package app

import (
	"fmt"
	"os"
	"path/filepath"

	"arc-go/internal/config"
)

// Defaults holds the paths arc uses when nothing else is configured.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - ARC_CONFIG_PATH: config file location (default: ~/.config/arc.toml)
//   - ARC_HOME: base directory for archives, logs and sessions (default: ~/.local/share/arc)
func GetDefaults() (*Defaults, error) {
	configPath, err := envOrHome("ARC_CONFIG_PATH", ".config", "arc.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := envOrHome("ARC_HOME", ".local", "share", "arc")
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns the value of env when set, else the path below the
// user's home directory.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}

// LoadConfig reads the config file named by the defaults. Paths left empty
// in the file fall back to the locations NewConfig would have chosen.
func LoadConfig(d *Defaults) (*config.Config, error) {
	cfg, err := config.ReadFromFile(d.ConfigPath)
	if err != nil {
		return nil, err
	}

	base := cfg.BaseDir
	if base == "" {
		base = d.BaseDir
		cfg.BaseDir = base
	}
	fallback := config.NewConfig(base)
	if cfg.RootDir == "" {
		cfg.RootDir = fallback.RootDir
	}
	if cfg.LogDir == "" {
		cfg.LogDir = fallback.LogDir
	}
	if cfg.LockTimeout.Duration == 0 {
		cfg.LockTimeout = fallback.LockTimeout
	}
	if cfg.Sessions.TTL.Duration == 0 {
		cfg.Sessions.TTL = fallback.Sessions.TTL
	}
	if cfg.Sessions.MaxSize == 0 {
		cfg.Sessions.MaxSize = fallback.Sessions.MaxSize
	}
	if cfg.Sessions.Type == "sqlite" && cfg.Sessions.DataDir == "" {
		cfg.Sessions.DataDir = fallback.Sessions.DataDir
	}
	return cfg, nil
}
