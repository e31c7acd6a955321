//go:build windows

package pty

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procCreatePseudoConsole = kernel32.NewProc("CreatePseudoConsole")
	procResizePseudoConsole = kernel32.NewProc("ResizePseudoConsole")
	procClosePseudoConsole  = kernel32.NewProc("ClosePseudoConsole")
)

const procThreadAttributePseudoConsole = 0x00020016

// coord packs a COORD passed by value to the pseudo console API.
func coord(cols, rows uint16) uintptr {
	return uintptr(uint32(cols) | uint32(rows)<<16)
}

// windowsPTY implements the PTY interface for Windows using ConPTY.
type windowsPTY struct {
	hPC    windows.Handle
	output *os.File // console output, read by us
	input  *os.File // console input, written by us

	mu       sync.Mutex
	consoled bool // pseudo console already closed
	closed   bool
}

func (p *windowsPTY) Read(b []byte) (int, error) {
	return p.output.Read(b)
}

func (p *windowsPTY) Write(b []byte) (int, error) {
	return p.input.Write(b)
}

// processExited closes the pseudo console so the output pipe drains to EOF.
func (p *windowsPTY) processExited() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeConsoleLocked()
}

func (p *windowsPTY) closeConsoleLocked() {
	if p.consoled || p.hPC == 0 {
		return
	}
	p.consoled = true
	procClosePseudoConsole.Call(uintptr(p.hPC))
}

// Close closes the pseudo console and both pipe ends.
func (p *windowsPTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.closeConsoleLocked()

	var firstErr error
	if err := p.input.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.output.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Resize changes the pseudo console size.
func (p *windowsPTY) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consoled {
		return nil
	}
	ret, _, _ := procResizePseudoConsole.Call(uintptr(p.hPC), coord(cols, rows))
	if ret != 0 {
		return fmt.Errorf("ResizePseudoConsole failed: HRESULT 0x%x", ret)
	}
	return nil
}

// windowsProcess owns the process handle returned by CreateProcess.
type windowsProcess struct {
	mu     sync.Mutex
	handle windows.Handle
	exited bool
}

func (w *windowsProcess) wait() (int, error) {
	if _, err := windows.WaitForSingleObject(w.handle, windows.INFINITE); err != nil {
		return -1, fmt.Errorf("failed to wait for process: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.exited = true

	var code uint32
	err := windows.GetExitCodeProcess(w.handle, &code)
	windows.CloseHandle(w.handle)
	if err != nil {
		return -1, fmt.Errorf("failed to get exit code: %w", err)
	}
	return int(code), nil
}

func (w *windowsProcess) kill() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exited {
		return nil
	}
	err := windows.TerminateProcess(w.handle, 1)
	if err != nil && !errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		return fmt.Errorf("failed to terminate process: %w", err)
	}
	return nil
}

// envBlock builds a double NUL terminated UTF-16 environment block.
func envBlock(env []string) *uint16 {
	if len(env) == 0 {
		return nil
	}
	var block []uint16
	for _, kv := range env {
		u, err := windows.UTF16FromString(kv)
		if err != nil {
			continue
		}
		block = append(block, u...)
	}
	block = append(block, 0)
	return &block[0]
}

// Start starts a new PTY process with the given options.
// This is the Windows implementation using ConPTY (Windows 10 1809+).
func Start(opts StartOptions) (*Process, error) {
	if err := procCreatePseudoConsole.Find(); err != nil {
		return nil, fmt.Errorf("ConPTY not available: %w", err)
	}

	// inRead/inWrite: our write -> console input
	// outRead/outWrite: console output -> our read
	var inRead, inWrite, outRead, outWrite windows.Handle
	if err := windows.CreatePipe(&inRead, &inWrite, nil, 0); err != nil {
		return nil, fmt.Errorf("failed to create input pipe: %w", err)
	}
	if err := windows.CreatePipe(&outRead, &outWrite, nil, 0); err != nil {
		windows.CloseHandle(inRead)
		windows.CloseHandle(inWrite)
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	rows, cols := opts.InitialRows, opts.InitialCols
	if rows == 0 {
		rows = 24
	}
	if cols == 0 {
		cols = 80
	}

	var hPC windows.Handle
	ret, _, _ := procCreatePseudoConsole.Call(
		coord(cols, rows),
		uintptr(inRead),
		uintptr(outWrite),
		0,
		uintptr(unsafe.Pointer(&hPC)),
	)
	// The console duplicates its ends of the pipes.
	windows.CloseHandle(inRead)
	windows.CloseHandle(outWrite)
	if ret != 0 {
		windows.CloseHandle(inWrite)
		windows.CloseHandle(outRead)
		return nil, fmt.Errorf("CreatePseudoConsole failed: HRESULT 0x%x", ret)
	}

	tty := &windowsPTY{
		hPC:    hPC,
		output: os.NewFile(uintptr(outRead), "conpty-output"),
		input:  os.NewFile(uintptr(inWrite), "conpty-input"),
	}

	proc, err := createProcess(opts, hPC)
	if err != nil {
		tty.Close()
		return nil, err
	}

	return &Process{
		PTY:  tty,
		proc: &windowsProcess{handle: proc.Process},
		pid:  int(proc.ProcessId),
	}, nil
}

func createProcess(opts StartOptions, hPC windows.Handle) (*windows.ProcessInformation, error) {
	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate attribute list: %w", err)
	}
	defer attrs.Delete()

	if err := attrs.Update(procThreadAttributePseudoConsole, unsafe.Pointer(hPC), unsafe.Sizeof(hPC)); err != nil {
		return nil, fmt.Errorf("failed to attach pseudo console: %w", err)
	}

	si := new(windows.StartupInfoEx)
	si.Cb = uint32(unsafe.Sizeof(*si))
	si.ProcThreadAttributeList = attrs.List()

	cmdLine, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(append([]string{opts.Command}, opts.Args...)))
	if err != nil {
		return nil, fmt.Errorf("invalid command line: %w", err)
	}

	var dir *uint16
	if opts.Dir != "" {
		if dir, err = windows.UTF16PtrFromString(opts.Dir); err != nil {
			return nil, fmt.Errorf("invalid working directory: %w", err)
		}
	}

	env := opts.Env
	if env == nil {
		env = os.Environ()
	}

	pi := new(windows.ProcessInformation)
	err = windows.CreateProcess(
		nil,
		cmdLine,
		nil,
		nil,
		false,
		windows.EXTENDED_STARTUPINFO_PRESENT|windows.CREATE_UNICODE_ENVIRONMENT,
		envBlock(env),
		dir,
		&si.StartupInfo,
		pi,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	windows.CloseHandle(pi.Thread)
	return pi, nil
}
