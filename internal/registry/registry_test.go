package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remote-agent-terminal/claude-terminal/internal/model"
)

// fakeProcess exits when killed unless stubborn is set.
type fakeProcess struct {
	mu       sync.Mutex
	size     model.TerminalSize
	kills    int
	stubborn bool
	done     chan struct{}
	once     sync.Once
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{size: model.DefaultTerminalSize(), done: make(chan struct{})}
}

func (f *fakeProcess) Write([]byte) {}

func (f *fakeProcess) Resize(cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = model.TerminalSize{Cols: cols, Rows: rows}
	return nil
}

func (f *fakeProcess) Kill() error {
	f.mu.Lock()
	f.kills++
	stubborn := f.stubborn
	f.mu.Unlock()
	if !stubborn {
		f.once.Do(func() { close(f.done) })
	}
	return nil
}

func (f *fakeProcess) Done() <-chan struct{} { return f.done }

func (f *fakeProcess) Size() model.TerminalSize {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

func (f *fakeProcess) History() []byte { return nil }

func (f *fakeProcess) killCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kills
}

func entry(id string, p Process) *Entry {
	return &Entry{Session: model.Session{ID: id}, Process: p}
}

func TestInsertGetRemove(t *testing.T) {
	r := New()
	p := newFakeProcess()

	require.NoError(t, r.Insert("session-a", entry("session-a", p)))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("session-a")
	require.True(t, ok)
	assert.Equal(t, "session-a", got.Session.ID)

	assert.True(t, r.Remove("session-a"))
	assert.False(t, r.Remove("session-a"), "second remove must be a no-op")
	assert.False(t, r.Remove("never-registered"))

	_, ok = r.Get("session-a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestInsertDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert("dup", entry("dup", newFakeProcess())))

	err := r.Insert("dup", entry("dup", newFakeProcess()))
	assert.True(t, errors.Is(err, model.ErrDuplicateID))
	assert.Equal(t, 1, r.Len())
}

func TestListOrderedByID(t *testing.T) {
	r := New()
	for _, id := range []string{"session-c", "session-a", "session-b"} {
		require.NoError(t, r.Insert(id, entry(id, newFakeProcess())))
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "session-a", list[0].Session.ID)
	assert.Equal(t, "session-b", list[1].Session.ID)
	assert.Equal(t, "session-c", list[2].Session.ID)
}

func TestSnapshotCarriesCurrentSize(t *testing.T) {
	p := newFakeProcess()
	e := entry("s", p)
	require.NoError(t, p.Resize(132, 50))

	snap := e.Snapshot()
	assert.Equal(t, model.TerminalSize{Cols: 132, Rows: 50}, snap.Size)
	assert.Equal(t, model.SessionStateRunning, snap.State)
}

func TestRemoveAllKillsEverySession(t *testing.T) {
	r := New()
	procs := make([]*fakeProcess, 3)
	for i := range procs {
		procs[i] = newFakeProcess()
		id := fmt.Sprintf("session-%d", i)
		require.NoError(t, r.Insert(id, entry(id, procs[i])))
	}

	n, err := r.RemoveAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, r.Len())

	for i, p := range procs {
		assert.Equal(t, 1, p.killCount(), "process %d", i)
		select {
		case <-p.Done():
		default:
			t.Errorf("process %d not done", i)
		}
	}
}

func TestRemoveAllHonoursContext(t *testing.T) {
	r := New()
	p := newFakeProcess()
	p.stubborn = true
	require.NoError(t, r.Insert("stuck", entry("stuck", p)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	n, err := r.RemoveAll(ctx)
	assert.Equal(t, 1, n)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, r.Len())
}

func TestRemoveAllEmpty(t *testing.T) {
	n, err := New().RemoveAll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

// Concurrent removers of the same id, the kill path and the exit path
// included, must see exactly one successful removal.
func TestRemoveExactlyOnceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one concurrent Remove succeeds", prop.ForAll(
		func(removers int) bool {
			r := New()
			if err := r.Insert("session-x", entry("session-x", newFakeProcess())); err != nil {
				return false
			}

			var wins atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < removers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					if r.Remove("session-x") {
						wins.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			return wins.Load() == 1 && r.Len() == 0
		},
		gen.IntRange(2, 16),
	))

	properties.TestingRun(t)
}

func TestInsertUniqueIDsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("Len equals the number of distinct inserted ids", prop.ForAll(
		func(ids []string) bool {
			r := New()
			distinct := make(map[string]struct{})
			for _, id := range ids {
				err := r.Insert(id, entry(id, newFakeProcess()))
				_, seen := distinct[id]
				if seen != errors.Is(err, model.ErrDuplicateID) {
					return false
				}
				distinct[id] = struct{}{}
			}
			return r.Len() == len(distinct)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
