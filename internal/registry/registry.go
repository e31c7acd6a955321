// Package registry holds the live terminal sessions of the host process.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/remote-agent-terminal/claude-terminal/internal/model"
)

// Process is the part of a pty process the registry and its callers use.
// *pty.PTYProcess implements it.
type Process interface {
	Write(data []byte)
	Resize(cols, rows uint16) error
	Kill() error
	Done() <-chan struct{}
	Size() model.TerminalSize
	History() []byte
}

// Entry is one registered session.
type Entry struct {
	// Session is the metadata captured at creation time.
	Session model.Session

	Process Process
}

// Snapshot returns the session metadata with the current window size.
func (e *Entry) Snapshot() model.Session {
	s := e.Session
	s.Size = e.Process.Size()
	s.State = model.SessionStateRunning
	return s
}

// Registry maps session ids to live entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Insert registers e under id.
func (r *Registry) Insert(id string, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("%w: %s", model.ErrDuplicateID, id)
	}
	r.entries[id] = e
	return nil
}

// Get returns the entry registered under id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	return e, ok
}

// Remove unregisters id. It reports whether this call removed the entry, so
// concurrent callers agree on which one did.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// List returns the registered entries ordered by id.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	result := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Session.ID < result[j].Session.ID
	})
	return result
}

// RemoveAll empties the registry, kills every process and waits until each
// one has exited or ctx is done. It returns the number of sessions removed
// and the first kill or context error.
func (r *Registry) RemoveAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		p := e.Process
		g.Go(func() error {
			killErr := p.Kill()
			select {
			case <-p.Done():
				return killErr
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	return len(entries), g.Wait()
}
