// Package pty provides cross-platform pseudo-terminal processes and the
// wrapper that turns one of them into an observable terminal session.
package pty

import (
	"io"
	"sync"
)

// PTY represents a platform-independent pseudo-terminal master.
type PTY interface {
	// Read reads data from the PTY output.
	io.Reader

	// Write writes data to the PTY input.
	io.Writer

	// Close closes the PTY and releases resources.
	io.Closer

	// Resize changes the PTY window size to the specified dimensions.
	Resize(rows, cols uint16) error
}

// exitAware is implemented by PTYs that must be told when the child has been
// reaped before their output stream reaches end of file (ConPTY).
type exitAware interface {
	processExited()
}

// StartOptions contains options for starting a PTY process.
type StartOptions struct {
	// Command is the resolved path of the program to execute.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Env is the environment of the process.
	// If nil, the current process environment is used.
	Env []string

	// Dir is the working directory for the process.
	// If empty, the current directory is used.
	Dir string

	// InitialRows is the initial number of rows for the PTY.
	InitialRows uint16

	// InitialCols is the initial number of columns for the PTY.
	InitialCols uint16
}

// osProcess is the platform half of a running child.
type osProcess interface {
	// wait blocks until the child is reaped and returns its exit code,
	// -1 when it was terminated by a signal.
	wait() (int, error)

	// kill terminates the child and its process group. It returns nil when
	// the child has already finished.
	kill() error
}

// Process represents a running PTY process.
type Process struct {
	// PTY is the pseudo-terminal interface.
	PTY PTY

	proc osProcess
	pid  int

	closeOnce sync.Once
	closeErr  error
}

// PID returns the process ID of the running process.
func (p *Process) PID() int {
	return p.pid
}

// Wait waits for the process to exit and returns the exit code.
func (p *Process) Wait() (int, error) {
	return p.proc.wait()
}

// Kill terminates the process group.
func (p *Process) Kill() error {
	return p.proc.kill()
}

// Close closes the PTY. It is safe to call more than once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.PTY.Close()
	})
	return p.closeErr
}
