package model

import (
	"time"
)

// Mode selects the agent invocation for a session. It is fixed at creation.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeBypass Mode = "bypass"
)

// ModeFromBypass maps the persisted bypassMode flag onto a Mode.
func ModeFromBypass(bypass bool) Mode {
	if bypass {
		return ModeBypass
	}
	return ModeNormal
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeNormal || m == ModeBypass
}

// SessionState represents the lifecycle state of a terminal session.
type SessionState string

const (
	SessionStateRunning SessionState = "running"
	SessionStateExited  SessionState = "exited"
)

// Default terminal dimensions used before the first resize.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// TerminalSize is a pty window size in character cells.
type TerminalSize struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// DefaultTerminalSize returns the 80x24 initial size.
func DefaultTerminalSize() TerminalSize {
	return TerminalSize{Cols: DefaultCols, Rows: DefaultRows}
}

// Validate returns ErrInvalidSize if either dimension is zero.
func (s TerminalSize) Validate() error {
	if s.Cols == 0 || s.Rows == 0 {
		return ErrInvalidSize
	}
	return nil
}

// Session is a snapshot of one terminal session.
type Session struct {
	ID         string       `json:"id"`
	Mode       Mode         `json:"mode"`
	Shell      string       `json:"shell"`
	Args       []string     `json:"args"`
	Command    string       `json:"command"`
	WorkingDir string       `json:"workingDir"`
	Size       TerminalSize `json:"size"`
	State      SessionState `json:"state"`
	ExitCode   *int         `json:"exitCode,omitempty"`
	PID        int          `json:"pid,omitempty"`

	// RecordingPath is the asciinema cast file, when recording is enabled.
	RecordingPath string `json:"recordingPath,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Duration returns how long the session has existed.
func (s *Session) Duration() time.Duration {
	return time.Since(s.CreatedAt)
}

// CreateOptions holds the parameters of a create call.
type CreateOptions struct {
	Mode Mode

	// WorkingDir is optional; empty means the user's home directory.
	WorkingDir string
}
