package arc

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Callers (the CLI, an HTTP layer)
// classify failures with errors.Is against these sentinels.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrTagAbsent     = errors.New("tag absent")
	ErrMalformed     = errors.New("malformed")
	ErrIntegrity     = errors.New("integrity violation")
	ErrLockTimeout   = errors.New("lock wait timed out")
)

// NotFoundError names the missing entity. It matches ErrNotFound.
type NotFoundError struct {
	Kind string // "archive", "document", "collection", "commit", "archivist", "session"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound returns a *NotFoundError for the given kind and id.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Malformed wraps ErrMalformed with a description of what was wrong.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Integrity wraps ErrIntegrity. Integrity failures indicate on-disk state
// that the engine never produces itself; they are reported, not repaired.
func Integrity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}
