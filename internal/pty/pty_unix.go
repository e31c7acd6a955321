//go:build !windows

package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	creackpty "github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// unixPTY implements the PTY interface for Unix-like systems (Linux, macOS).
type unixPTY struct {
	master *os.File
}

func (p *unixPTY) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

func (p *unixPTY) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

// Close closes the PTY master file descriptor.
func (p *unixPTY) Close() error {
	return p.master.Close()
}

// Resize changes the PTY window size.
func (p *unixPTY) Resize(rows, cols uint16) error {
	return creackpty.Setsize(p.master, &creackpty.Winsize{Rows: rows, Cols: cols})
}

// unixProcess reaps the child via exec.Cmd and kills its whole session.
type unixProcess struct {
	cmd *exec.Cmd
}

func (u *unixProcess) wait() (int, error) {
	err := u.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// ExitCode is -1 when the child was terminated by a signal.
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

func (u *unixProcess) kill() error {
	if u.cmd.Process == nil {
		return nil
	}
	pid := u.cmd.Process.Pid

	// Setsid made the child a process group leader, so -pid addresses the
	// shell and everything it launched.
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}

	if err := u.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}

// Start starts a new PTY process with the given options.
func Start(opts StartOptions) (*Process, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var ws *creackpty.Winsize
	if opts.InitialRows > 0 && opts.InitialCols > 0 {
		ws = &creackpty.Winsize{Rows: opts.InitialRows, Cols: opts.InitialCols}
	}

	// New session with the pty slave as controlling terminal.
	master, err := creackpty.StartWithAttrs(cmd, ws, &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	return &Process{
		PTY:  &unixPTY{master: master},
		proc: &unixProcess{cmd: cmd},
		pid:  cmd.Process.Pid,
	}, nil
}
