package session

import (
	"testing"
	"time"

	"arc-go/internal/config"
)

func TestNewSessionStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SessionsConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.SessionsConfig{Type: "memory"}},
		{name: "default type", cfg: config.SessionsConfig{}},
		{name: "sqlite", cfg: config.SessionsConfig{Type: "sqlite", DataDir: t.TempDir(), TTL: config.Duration{Duration: time.Minute}}},
		{name: "sqlite without data_dir", cfg: config.SessionsConfig{Type: "sqlite"}, wantErr: true},
		{name: "unknown", cfg: config.SessionsConfig{Type: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSessionStoreFromConfig(tt.cfg, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSessionStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}

func TestNewSessionArea_Defaults(t *testing.T) {
	s := newSessionArea(&memoryBackend{}, 0, 0, nil, nil)
	if s.ttl != DefaultTTL || s.maxSize != DefaultMaxSize {
		t.Errorf("defaults = (%v, %d), want (%v, %d)", s.ttl, s.maxSize, DefaultTTL, DefaultMaxSize)
	}
}
