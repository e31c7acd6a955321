package model

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned when a session id is inserted twice into the registry.
	// It signals a defect in id generation, never a user error.
	ErrDuplicateID = errors.New("duplicate session id")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSize is returned when a terminal size has a zero dimension.
	ErrInvalidSize = errors.New("invalid terminal size")

	// ErrInvalidMode is returned when a create call names an unknown mode.
	ErrInvalidMode = errors.New("invalid session mode")

	// ErrShuttingDown is returned by create once the host has begun teardown.
	ErrShuttingDown = errors.New("session host is shutting down")

	// ErrShellNotFound is wrapped by SpawnError when the shell binary cannot be located.
	ErrShellNotFound = errors.New("shell not found")

	// ErrInvalidWorkdir is wrapped by SpawnError when the working directory is unusable.
	ErrInvalidWorkdir = errors.New("invalid working directory")
)

// SpawnError reports a failure to start the shell for a new session.
// No session is registered when it is returned.
type SpawnError struct {
	Shell string
	Dir   string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s in %q: %v", e.Shell, e.Dir, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsSpawnError reports whether err is or wraps a *SpawnError.
func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}
