package app

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	started := time.Date(2024, 6, 15, 14, 30, 45, 123000000, time.UTC)

	tests := []struct {
		name     string
		command  string
		archive  string
		mutating bool
	}{
		{name: "mutating archive command", command: "CreateDocument", archive: "lab", mutating: true},
		{name: "read-only command", command: "ListArchives", archive: "", mutating: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.command, tt.archive, tt.mutating, started)

			if op.Command != tt.command {
				t.Errorf("Command = %q, want %q", op.Command, tt.command)
			}
			if op.Archive != tt.archive {
				t.Errorf("Archive = %q, want %q", op.Archive, tt.archive)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if op.ID != "20240615T143045.123Z" {
				t.Errorf("ID = %q, want %q", op.ID, "20240615T143045.123Z")
			}
		})
	}
}

func TestOperation_WantsSnapshot(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		archive  string
		mutating bool
		err      error
		want     bool
	}{
		{name: "successful mutation", archive: "lab", mutating: true, want: true},
		{name: "failed mutation", archive: "lab", mutating: true, err: errors.New("boom"), want: false},
		{name: "read only", archive: "lab", mutating: false, want: false},
		{name: "no archive", archive: "", mutating: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("Cmd", tt.archive, tt.mutating, now)
			op.Fail(tt.err)
			if got := op.WantsSnapshot(); got != tt.want {
				t.Errorf("WantsSnapshot() = %v, want %v", got, tt.want)
			}
		})
	}
}
