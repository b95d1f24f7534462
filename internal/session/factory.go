package session

import (
	"fmt"
	"time"

	"arc-go/internal/arc"
	"arc-go/internal/config"
)

const (
	// DefaultTTL is how long a session may sit idle before it is swept.
	DefaultTTL = 30 * time.Minute

	// DefaultMaxSize is the default per-session payload limit (64MB).
	DefaultMaxSize int64 = 64 * 1024 * 1024
)

// NewSessionStoreFromConfig creates a SessionStore implementation based on the config type.
func NewSessionStoreFromConfig(cfg config.SessionsConfig, ids arc.IDGenerator, logger arc.Logger) (arc.SessionStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemorySessionStore(cfg.TTL.Duration, cfg.MaxSize, ids, logger), nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite session store requires data_dir to be set")
		}
		return NewSQLiteSessionStore(cfg.DataDir, cfg.TTL.Duration, cfg.MaxSize, ids, logger)
	default:
		return nil, fmt.Errorf("unknown session store type: %s", cfg.Type)
	}
}
