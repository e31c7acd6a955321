package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/remote-agent-terminal/claude-terminal/internal/buffer"
	"github.com/remote-agent-terminal/claude-terminal/internal/fifo"
	"github.com/remote-agent-terminal/claude-terminal/internal/model"
	"github.com/remote-agent-terminal/claude-terminal/internal/recording"
)

const (
	// DefaultReadBufferSize is the buffer size for reading PTY output.
	DefaultReadBufferSize = 4096

	// DefaultDrainTimeout bounds how long the exit notification waits for the
	// output stream to reach EOF after the child has been reaped. Descendants
	// that keep the slave open would otherwise delay it forever.
	DefaultDrainTimeout = 2 * time.Second

	// DefaultTerm is the terminal type exported to every child.
	DefaultTerm = "xterm-256color"
)

// SpawnOptions contains options for spawning a PTY process.
type SpawnOptions struct {
	// Shell is the program to start; it is resolved through PATH.
	Shell string

	// Args are passed to Shell.
	Args []string

	// Dir is the working directory. It must exist.
	Dir string

	// Env is the child environment. If nil, the host environment is used.
	// TERM is always set to Term.
	Env []string

	// Term defaults to DefaultTerm.
	Term string

	// Cols and Rows default to 80x24.
	Cols uint16
	Rows uint16

	// DrainTimeout defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration

	// History, if set, receives a copy of all output.
	History *buffer.RingBuffer

	// Recorder, if set, records output, input and resizes. The process
	// closes it after exit.
	Recorder *recording.Recorder
}

// Handlers receive the notifications of a PTYProcess.
type Handlers struct {
	// OnOutput is called sequentially, in production order, with chunks
	// owned by the receiver.
	OnOutput func(data []byte)

	// OnExit is called exactly once after the child has been reaped.
	// OnOutput is never called after it.
	OnExit func(exitCode int)
}

// PTYProcess owns one pseudo-terminal backed child process.
type PTYProcess struct {
	process      *Process
	history      *buffer.RingBuffer
	recorder     *recording.Recorder
	drainTimeout time.Duration
	input        *fifo.Queue[[]byte]

	mu       sync.RWMutex
	size     model.TerminalSize
	exited   bool
	exitCode int

	// deliverMu serialises output delivery against the exit transition.
	deliverMu sync.Mutex
	muted     bool

	notifyOnce sync.Once
	readDone   chan struct{}
	done       chan struct{}
}

// Spawn starts opts.Shell on a new pseudo terminal. No notification is
// delivered until Notify is called; output produced before that stays
// buffered in the pty.
//
// Failures are reported as *model.SpawnError.
func Spawn(opts SpawnOptions) (*PTYProcess, error) {
	spawnErr := func(err error) error {
		return &model.SpawnError{Shell: opts.Shell, Dir: opts.Dir, Err: err}
	}

	shellPath, err := exec.LookPath(opts.Shell)
	if err != nil {
		return nil, spawnErr(fmt.Errorf("%w: %v", model.ErrShellNotFound, err))
	}

	if err := checkDir(opts.Dir); err != nil {
		return nil, spawnErr(err)
	}

	size := model.TerminalSize{Cols: opts.Cols, Rows: opts.Rows}
	if size.Cols == 0 {
		size.Cols = model.DefaultCols
	}
	if size.Rows == 0 {
		size.Rows = model.DefaultRows
	}

	term := opts.Term
	if term == "" {
		term = DefaultTerm
	}
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	env = setEnv(env, "TERM", term)

	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}

	process, err := Start(StartOptions{
		Command:     shellPath,
		Args:        opts.Args,
		Env:         env,
		Dir:         opts.Dir,
		InitialRows: size.Rows,
		InitialCols: size.Cols,
	})
	if err != nil {
		return nil, spawnErr(err)
	}

	if opts.Recorder != nil {
		// A broken recording never fails the session.
		_ = opts.Recorder.WriteHeader(recording.Header{
			Width:   int(size.Cols),
			Height:  int(size.Rows),
			Command: strings.Join(append([]string{opts.Shell}, opts.Args...), " "),
			Env:     map[string]string{"TERM": term},
		})
	}

	p := &PTYProcess{
		process:      process,
		history:      opts.History,
		recorder:     opts.Recorder,
		drainTimeout: drain,
		input:        fifo.New[[]byte](),
		size:         size,
		readDone:     make(chan struct{}),
		done:         make(chan struct{}),
	}

	go p.writeLoop()

	return p, nil
}

func checkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidWorkdir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", model.ErrInvalidWorkdir, dir)
	}
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidWorkdir, err)
	}
	return f.Close()
}

// setEnv replaces or appends key=value in env without mutating env.
func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}

// Notify starts delivering output and exit notifications to h. Only the
// first call has an effect.
func (p *PTYProcess) Notify(h Handlers) {
	p.notifyOnce.Do(func() {
		go p.readLoop(h)
		go p.waitLoop(h)
	})
}

// readLoop reads output from the PTY and distributes it.
func (p *PTYProcess) readLoop(h Handlers) {
	defer close(p.readDone)

	buf := make([]byte, DefaultReadBufferSize)
	for {
		n, err := p.process.PTY.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.deliver(h, chunk)
		}
		if err != nil {
			// EOF, EIO once the slave side is gone, or a closed master.
			return
		}
	}
}

func (p *PTYProcess) deliver(h Handlers, chunk []byte) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	if p.muted {
		return
	}
	if p.history != nil {
		p.history.Write(chunk)
	}
	if p.recorder != nil {
		_ = p.recorder.WriteOutput(chunk)
	}
	if h.OnOutput != nil {
		h.OnOutput(chunk)
	}
}

// waitLoop reaps the child, drains output and fires the exit notification.
func (p *PTYProcess) waitLoop(h Handlers) {
	code, err := p.process.Wait()
	if err != nil {
		code = -1
	}

	if ea, ok := p.process.PTY.(exitAware); ok {
		ea.processExited()
	}

	select {
	case <-p.readDone:
	case <-time.After(p.drainTimeout):
	}

	p.deliverMu.Lock()
	p.muted = true
	p.deliverMu.Unlock()

	p.mu.Lock()
	p.exited = true
	p.exitCode = code
	p.mu.Unlock()

	p.input.Close()
	_ = p.process.Close()
	if p.recorder != nil {
		_ = p.recorder.Close()
	}

	if h.OnExit != nil {
		h.OnExit(code)
	}
	close(p.done)
}

// writeLoop drains the input queue into the PTY in submission order.
func (p *PTYProcess) writeLoop() {
	for {
		chunk, ok := p.input.Pop()
		if !ok {
			return
		}
		if _, err := p.process.PTY.Write(chunk); err != nil {
			p.input.Close()
			return
		}
		if p.recorder != nil {
			_ = p.recorder.WriteInput(chunk)
		}
	}
}

// Write enqueues data for the child's input. It never blocks on the child and
// is silently ignored once the process has exited.
func (p *PTYProcess) Write(data []byte) {
	if len(data) == 0 || p.Exited() {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	p.input.Push(chunk)
}

// Resize changes the PTY window size and records it as the last-known size.
// It is a no-op once the process has exited.
func (p *PTYProcess) Resize(cols, rows uint16) error {
	size := model.TerminalSize{Cols: cols, Rows: rows}
	if err := size.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exited {
		return nil
	}
	if err := p.process.PTY.Resize(rows, cols); err != nil {
		return fmt.Errorf("failed to resize PTY: %w", err)
	}
	p.size = size

	if p.recorder != nil {
		_ = p.recorder.WriteResize(cols, rows)
	}
	return nil
}

// Kill terminates the child and its process group. Killing an exited or
// already killed process is not an error.
func (p *PTYProcess) Kill() error {
	if p.Exited() {
		return nil
	}
	if err := p.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Size returns the last-known window size.
func (p *PTYProcess) Size() model.TerminalSize {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size
}

// Exited reports whether the exit notification has been produced.
func (p *PTYProcess) Exited() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exited
}

// ExitCode returns the exit code and whether the process has exited.
func (p *PTYProcess) ExitCode() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode, p.exited
}

// Done is closed after OnExit has returned.
func (p *PTYProcess) Done() <-chan struct{} {
	return p.done
}

// PID returns the process ID.
func (p *PTYProcess) PID() int {
	return p.process.PID()
}

// History returns the buffered output, or nil when no history is kept.
func (p *PTYProcess) History() []byte {
	if p.history == nil {
		return nil
	}
	return p.history.ReadAll()
}
