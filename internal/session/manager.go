// Package session implements the control API over the live terminal sessions.
package session

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remote-agent-terminal/claude-terminal/internal/bridge"
	"github.com/remote-agent-terminal/claude-terminal/internal/buffer"
	"github.com/remote-agent-terminal/claude-terminal/internal/metrics"
	"github.com/remote-agent-terminal/claude-terminal/internal/model"
	"github.com/remote-agent-terminal/claude-terminal/internal/pty"
	"github.com/remote-agent-terminal/claude-terminal/internal/recording"
	"github.com/remote-agent-terminal/claude-terminal/internal/registry"
)

// DefaultHistorySize is the per-session output history kept in memory (64KB).
const DefaultHistorySize = 64 * 1024

// storeTimeout bounds history writes made outside of a caller's context.
const storeTimeout = 5 * time.Second

// Store persists session history records. *repository.SessionRepository
// implements it.
type Store interface {
	Create(ctx context.Context, session *model.Session) error
	MarkExited(ctx context.Context, id string, exitCode *int) error
}

// Config holds configuration for the session manager.
type Config struct {
	// GOOS selects the shell invocation. Defaults to runtime.GOOS.
	GOOS string

	// Shell overrides the platform shell (bash or powershell.exe).
	Shell string

	// AgentCommand overrides the agent binary (claude).
	AgentCommand string

	// Env replaces the host environment of every child when non-nil.
	Env []string

	// HistorySize is the output history per session. Zero selects
	// DefaultHistorySize; a negative value disables history.
	HistorySize int

	// RecordDir enables asciinema recordings when set.
	RecordDir string

	// DrainTimeout bounds the wait for trailing output after exit.
	DrainTimeout time.Duration

	// HomeDir resolves the default working directory. Defaults to
	// os.UserHomeDir.
	HomeDir func() (string, error)
}

// Options holds the collaborators of a Manager. Only Registry and Bridge
// are required.
type Options struct {
	Registry *registry.Registry
	Bridge   *bridge.Bridge
	Store    Store
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	IDs      *IDGenerator
}

// Manager sequences create, write, resize and kill over the registry.
type Manager struct {
	cfg      Config
	registry *registry.Registry
	bridge   *bridge.Bridge
	store    Store
	logger   *zap.Logger
	metrics  *metrics.Metrics
	ids      *IDGenerator

	// lifecycle orders Create against Shutdown so no session can be
	// registered after teardown has begun.
	lifecycle sync.RWMutex
	closed    bool
}

// NewManager creates a new session manager.
func NewManager(opts Options, cfg Config) *Manager {
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.HomeDir == nil {
		cfg.HomeDir = os.UserHomeDir
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IDs == nil {
		opts.IDs = NewIDGenerator()
	}

	return &Manager{
		cfg:      cfg,
		registry: opts.Registry,
		bridge:   opts.Bridge,
		store:    opts.Store,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		ids:      opts.IDs,
	}
}

// Create spawns a new session and returns its snapshot. The session is
// registered and its notifications are flowing when Create returns; output
// may not have arrived yet. Spawn failures are returned as
// *model.SpawnError and register nothing.
func (m *Manager) Create(ctx context.Context, opts model.CreateOptions) (*model.Session, error) {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.closed {
		return nil, model.ErrShuttingDown
	}

	mode := opts.Mode
	if mode == "" {
		mode = model.ModeNormal
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidMode, mode)
	}

	dir := opts.WorkingDir
	if dir == "" {
		home, err := m.cfg.HomeDir()
		if err != nil {
			return nil, &model.SpawnError{Shell: m.cfg.Shell, Err: fmt.Errorf("%w: %v", model.ErrInvalidWorkdir, err)}
		}
		dir = home
	}

	cmd := pty.BuildCommand(m.cfg.GOOS, m.cfg.Shell, m.cfg.AgentCommand, mode)
	id := m.ids.New()
	logger := m.logger.With(zap.String("session_id", id))

	var history *buffer.RingBuffer
	if m.cfg.HistorySize > 0 {
		history = buffer.NewRingBuffer(m.cfg.HistorySize)
	}

	var recorder *recording.Recorder
	if m.cfg.RecordDir != "" {
		rec, err := recording.Create(m.cfg.RecordDir, id)
		if err != nil {
			logger.Warn("recording disabled", zap.Error(err))
		} else {
			recorder = rec
		}
	}

	proc, err := pty.Spawn(pty.SpawnOptions{
		Shell:        cmd.Shell,
		Args:         cmd.Args,
		Dir:          dir,
		Env:          m.cfg.Env,
		Cols:         model.DefaultCols,
		Rows:         model.DefaultRows,
		DrainTimeout: m.cfg.DrainTimeout,
		History:      history,
		Recorder:     recorder,
	})
	if err != nil {
		if recorder != nil {
			_ = recorder.Close()
			_ = os.Remove(recorder.Path())
		}
		m.metrics.IncSpawnFailures()
		logger.Warn("spawn failed",
			zap.String("shell", cmd.Shell),
			zap.String("working_dir", dir),
			zap.Error(err))
		return nil, err
	}

	now := time.Now()
	sess := model.Session{
		ID:         id,
		Mode:       mode,
		Shell:      cmd.Shell,
		Args:       cmd.Args,
		Command:    cmd.Invocation,
		WorkingDir: dir,
		Size:       proc.Size(),
		State:      model.SessionStateRunning,
		PID:        proc.PID(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if recorder != nil {
		sess.RecordingPath = recorder.Path()
	}

	if err := m.registry.Insert(id, &registry.Entry{Session: sess, Process: proc}); err != nil {
		_ = proc.Kill()
		proc.Notify(pty.Handlers{})
		logger.Error("session id collision", zap.Error(err))
		return nil, err
	}

	// The record must exist before the exit handler can mark it, and it is
	// written even if the caller goes away.
	if m.store != nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		err := m.store.Create(storeCtx, &sess)
		cancel()
		if err != nil {
			logger.Warn("failed to persist session", zap.Error(err))
		}
	}

	sink := m.bridge.Attach(id)
	proc.Notify(pty.Handlers{
		OnOutput: func(data []byte) {
			m.metrics.AddOutputBytes(len(data))
			sink.Data(data)
		},
		OnExit: func(exitCode int) {
			m.handleExit(id, sink, exitCode)
		},
	})

	m.metrics.IncSessionsCreated(string(mode))
	m.metrics.SetSessionsActive(m.registry.Len())
	logger.Info("session created",
		zap.String("mode", string(mode)),
		zap.String("command", cmd.Invocation),
		zap.String("working_dir", dir),
		zap.Int("pid", sess.PID))

	return &sess, nil
}

// handleExit delivers the exit event and then unregisters the session
// unless Kill already did.
func (m *Manager) handleExit(id string, sink *bridge.Sink, exitCode int) {
	sink.Exit(exitCode)

	logger := m.logger.With(zap.String("session_id", id), zap.Int("exit_code", exitCode))
	if m.registry.Remove(id) {
		m.metrics.IncSessionsRemoved(metrics.PathExit)
		logger.Info("session exited")
	} else {
		logger.Debug("killed session exited")
	}
	m.metrics.SetSessionsActive(m.registry.Len())

	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		code := exitCode
		if err := m.store.MarkExited(ctx, id, &code); err != nil {
			logger.Warn("failed to record exit", zap.Error(err))
		}
	}
}

// Write forwards data to the session's input. Unknown ids are ignored.
func (m *Manager) Write(id string, data []byte) {
	e, ok := m.registry.Get(id)
	if !ok {
		return
	}
	e.Process.Write(data)
	m.metrics.AddInputBytes(len(data))
}

// Resize changes the session's window size. Unknown ids and sizes with a
// zero dimension are ignored.
func (m *Manager) Resize(id string, cols, rows uint16) {
	if cols == 0 || rows == 0 {
		return
	}
	e, ok := m.registry.Get(id)
	if !ok {
		return
	}
	if err := e.Process.Resize(cols, rows); err != nil {
		m.logger.Warn("resize failed",
			zap.String("session_id", id),
			zap.Uint16("cols", cols),
			zap.Uint16("rows", rows),
			zap.Error(err))
	}
}

// Kill terminates the session and unregisters it without waiting for the
// exit notification. Unknown ids are ignored.
func (m *Manager) Kill(id string) {
	e, ok := m.registry.Get(id)
	if !ok {
		return
	}

	removed := m.registry.Remove(id)
	if err := e.Process.Kill(); err != nil {
		m.logger.Warn("kill failed", zap.String("session_id", id), zap.Error(err))
	}
	if removed {
		m.metrics.IncSessionsRemoved(metrics.PathKill)
		m.metrics.SetSessionsActive(m.registry.Len())
		m.logger.Info("session killed", zap.String("session_id", id))
	}
}

// Get returns a snapshot of a live session.
func (m *Manager) Get(id string) (model.Session, bool) {
	e, ok := m.registry.Get(id)
	if !ok {
		return model.Session{}, false
	}
	return e.Snapshot(), true
}

// List returns snapshots of every live session ordered by id, which is
// creation order.
func (m *Manager) List() []model.Session {
	entries := m.registry.List()
	result := make([]model.Session, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.Snapshot())
	}
	return result
}

// History returns the recent output of a live session.
func (m *Manager) History(id string) ([]byte, bool) {
	e, ok := m.registry.Get(id)
	if !ok {
		return nil, false
	}
	return e.Process.History(), true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.registry.Len()
}

// Shutdown kills every live session and waits for their processes to exit
// or for ctx to be done. It returns the number of sessions torn down.
// Create fails with model.ErrShuttingDown once Shutdown has been called.
func (m *Manager) Shutdown(ctx context.Context) (int, error) {
	m.lifecycle.Lock()
	m.closed = true
	m.lifecycle.Unlock()

	n, err := m.registry.RemoveAll(ctx)
	for i := 0; i < n; i++ {
		m.metrics.IncSessionsRemoved(metrics.PathShutdown)
	}
	m.metrics.SetSessionsActive(m.registry.Len())

	if err != nil {
		m.logger.Warn("shutdown incomplete", zap.Int("sessions", n), zap.Error(err))
		return n, fmt.Errorf("failed to stop all sessions: %w", err)
	}
	m.logger.Info("all sessions stopped", zap.Int("sessions", n))
	return n, nil
}
