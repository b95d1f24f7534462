package app

import "time"

// Operation tracks one CLI command for the log and for snapshot-on-change.
// Archive is empty for commands that are not scoped to an archive.
type Operation struct {
	ID       string
	Command  string
	Archive  string
	Mutating bool
	Status   string // "success" or "error"
	Started  time.Time
}

// NewOperation creates an operation that starts out successful.
// The ID is derived from the start time and doubles as the log correlation id.
func NewOperation(command, archive string, mutating bool, started time.Time) *Operation {
	return &Operation{
		ID:       started.UTC().Format("20060102T150405.000Z"),
		Command:  command,
		Archive:  archive,
		Mutating: mutating,
		Status:   "success",
		Started:  started,
	}
}

// Fail marks the operation as failed. A nil error leaves it unchanged.
func (op *Operation) Fail(err error) {
	if err != nil {
		op.Status = "error"
	}
}

// Succeeded reports whether no failure has been recorded.
func (op *Operation) Succeeded() bool {
	return op.Status == "success"
}

// WantsSnapshot reports whether the operation changed an archive and
// finished cleanly.
func (op *Operation) WantsSnapshot() bool {
	return op.Mutating && op.Archive != "" && op.Succeeded()
}
