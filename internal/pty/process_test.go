//go:build !windows

package pty

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/remote-agent-terminal/claude-terminal/internal/buffer"
	"github.com/remote-agent-terminal/claude-terminal/internal/model"
)

const testTimeout = 10 * time.Second

// collector records the notifications of one process.
type collector struct {
	mu        sync.Mutex
	out       bytes.Buffer
	exits     []int
	afterExit bool
	exited    chan struct{}
}

func newCollector() *collector {
	return &collector{exited: make(chan struct{})}
}

func (c *collector) handlers() Handlers {
	return Handlers{
		OnOutput: func(data []byte) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if len(c.exits) > 0 {
				c.afterExit = true
			}
			c.out.Write(data)
		},
		OnExit: func(code int) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.exits = append(c.exits, code)
			if len(c.exits) == 1 {
				close(c.exited)
			}
		},
	}
}

func (c *collector) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func (c *collector) waitExit(t *testing.T) int {
	t.Helper()
	select {
	case <-c.exited:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for exit notification")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exits[0]
}

func (c *collector) waitOutput(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if strings.Contains(c.output(), substr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, got %q", substr, c.output())
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func spawnSh(t *testing.T, script string, mutate ...func(*SpawnOptions)) (*PTYProcess, *collector) {
	t.Helper()
	requireShell(t)

	opts := SpawnOptions{Shell: "sh", Args: []string{"-c", script}}
	for _, m := range mutate {
		m(&opts)
	}

	p, err := Spawn(opts)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	t.Cleanup(func() {
		p.Kill()
		select {
		case <-p.Done():
		case <-time.After(testTimeout):
		}
	})

	c := newCollector()
	p.Notify(c.handlers())
	return p, c
}

func TestSpawn_ShellNotFound(t *testing.T) {
	_, err := Spawn(SpawnOptions{Shell: "definitely-not-a-shell-xyz"})
	if err == nil {
		t.Fatal("expected error for missing shell")
	}

	var se *model.SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("expected *model.SpawnError, got %T", err)
	}
	if !errors.Is(err, model.ErrShellNotFound) {
		t.Errorf("expected ErrShellNotFound, got %v", err)
	}
}

func TestSpawn_InvalidWorkingDirectory(t *testing.T) {
	requireShell(t)

	base := t.TempDir()
	file := filepath.Join(base, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  string
	}{
		{"missing", filepath.Join(base, "missing")},
		{"not a directory", file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Spawn(SpawnOptions{Shell: "sh", Dir: tt.dir})
			if !model.IsSpawnError(err) {
				t.Fatalf("expected SpawnError, got %v", err)
			}
			if !errors.Is(err, model.ErrInvalidWorkdir) {
				t.Errorf("expected ErrInvalidWorkdir, got %v", err)
			}
		})
	}
}

func TestPTYProcess_OutputThenSingleExit(t *testing.T) {
	_, c := spawnSh(t, "printf hello; exit 3")

	code := c.waitExit(t)
	if code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
	if !strings.Contains(c.output(), "hello") {
		t.Errorf("expected output to contain hello, got %q", c.output())
	}

	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.exits) != 1 {
		t.Errorf("expected exactly one exit notification, got %d", len(c.exits))
	}
	if c.afterExit {
		t.Error("output delivered after exit notification")
	}
}

func TestPTYProcess_WriteReachesChild(t *testing.T) {
	p, c := spawnSh(t, `read line; echo "got:$line"`)

	p.Write([]byte("abc\n"))

	c.waitOutput(t, "got:abc")
	if code := c.waitExit(t); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestPTYProcess_WritesKeepOrder(t *testing.T) {
	p, c := spawnSh(t, `read a; read b; echo "order:$a$b"`)

	p.Write([]byte("1\n"))
	p.Write([]byte("2\n"))

	c.waitOutput(t, "order:12")
}

func TestPTYProcess_ResizeUpdatesWindow(t *testing.T) {
	p, c := spawnSh(t, "read x; stty size")

	if got := p.Size(); got != model.DefaultTerminalSize() {
		t.Errorf("expected default size, got %+v", got)
	}

	if err := p.Resize(120, 40); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if got := p.Size(); got.Cols != 120 || got.Rows != 40 {
		t.Errorf("expected 120x40, got %+v", got)
	}

	p.Write([]byte("\n"))
	c.waitOutput(t, "40 120")
}

func TestPTYProcess_ResizeRejectsZero(t *testing.T) {
	p, _ := spawnSh(t, "sleep 30")

	if err := p.Resize(0, 10); !errors.Is(err, model.ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
}

func TestPTYProcess_KillIsIdempotent(t *testing.T) {
	p, c := spawnSh(t, "sleep 30")

	if err := p.Kill(); err != nil {
		t.Fatalf("first Kill failed: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Errorf("second Kill failed: %v", err)
	}

	if code := c.waitExit(t); code != -1 {
		t.Errorf("expected exit code -1 for a killed process, got %d", code)
	}
	<-p.Done()

	if err := p.Kill(); err != nil {
		t.Errorf("Kill after exit failed: %v", err)
	}
	p.Write([]byte("ignored\n"))
	if err := p.Resize(100, 30); err != nil {
		t.Errorf("Resize after exit should be a no-op, got %v", err)
	}
	if !p.Exited() {
		t.Error("expected Exited to be true")
	}
}

func TestPTYProcess_EnvironmentAndDirectory(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, c := spawnSh(t, `echo "term:$TERM"; pwd`, func(o *SpawnOptions) {
		o.Dir = dir
	})

	c.waitExit(t)
	out := c.output()
	if !strings.Contains(out, "term:"+DefaultTerm) {
		t.Errorf("expected TERM=%s, got %q", DefaultTerm, out)
	}
	if !strings.Contains(out, dir) {
		t.Errorf("expected working directory %s, got %q", dir, out)
	}
}

func TestPTYProcess_HistoryCapturesOutput(t *testing.T) {
	history := buffer.NewRingBuffer(1024)
	p, c := spawnSh(t, "printf recorded", func(o *SpawnOptions) {
		o.History = history
	})

	c.waitExit(t)
	if !strings.Contains(string(p.History()), "recorded") {
		t.Errorf("expected history to contain output, got %q", p.History())
	}
}
