// Package dialog opens the native folder picker of the host desktop.
package dialog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Runner runs a command and returns its standard output. exitCode is the
// process exit status; err is only set when the command could not run.
type Runner func(ctx context.Context, name string, args ...string) (stdout []byte, exitCode int, err error)

// ErrUnsupported is returned when no picker exists for the platform.
var ErrUnsupported = errors.New("no directory picker for this platform")

const windowsScript = `Add-Type -AssemblyName System.Windows.Forms
$d = New-Object System.Windows.Forms.FolderBrowserDialog
$d.ShowNewFolderButton = $true
if ($d.ShowDialog() -eq [System.Windows.Forms.DialogResult]::OK) { Write-Output $d.SelectedPath; exit 0 }
exit 1`

// Picker selects a directory through the platform dialog.
type Picker struct {
	goos   string
	runner Runner
}

// NewPicker creates a picker for the current platform.
func NewPicker() *Picker {
	return NewPickerWithRunner(runtime.GOOS, ExecRunner)
}

// NewPickerWithRunner creates a picker for goos using runner.
func NewPickerWithRunner(goos string, runner Runner) *Picker {
	return &Picker{goos: goos, runner: runner}
}

// Command returns the program and arguments that open the dialog.
func Command(goos string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", `POSIX path of (choose folder with prompt "Select working directory")`}, nil
	case "windows":
		return "powershell.exe", []string{"-NoProfile", "-STA", "-Command", windowsScript}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "zenity", []string{"--file-selection", "--directory", "--title=Select working directory"}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}

// SelectDirectory shows the dialog and returns the chosen path. ok is false
// when the user cancelled.
func (p *Picker) SelectDirectory(ctx context.Context) (path string, ok bool, err error) {
	name, args, err := Command(p.goos)
	if err != nil {
		return "", false, err
	}

	out, code, err := p.runner(ctx, name, args...)
	if err != nil {
		return "", false, fmt.Errorf("failed to run %s: %w", name, err)
	}
	if code != 0 {
		return "", false, nil
	}

	path = strings.TrimSpace(string(out))
	if path == "" {
		return "", false, nil
	}
	if p.goos == "darwin" && len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path, true, nil
}

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, -1, err
	}
	return stdout.Bytes(), 0, nil
}
