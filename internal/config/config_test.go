package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Terminal.Shell)
	assert.Equal(t, "claude", cfg.Terminal.AgentCommand)
	assert.Equal(t, 2*time.Second, cfg.Terminal.DrainTimeout)
	assert.Equal(t, 64*1024, cfg.Terminal.HistorySize)
	assert.Equal(t, 4096, cfg.Terminal.EventBacklogWarning)
	assert.Equal(t, "data/sessions.db", cfg.Storage.DBPath)
	assert.Empty(t, cfg.Storage.RecordDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, DefaultSettings(), cfg.Settings)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CT_PORT", "9999")
	t.Setenv("CT_ALLOWED_ORIGINS", "app://ui,http://localhost:3000")
	t.Setenv("CT_SHELL", "/bin/zsh")
	t.Setenv("CT_DRAIN_TIMEOUT", "750ms")
	t.Setenv("CT_BYPASS_MODE", "true")
	t.Setenv("CT_WORKING_DIR", "/tmp")
	t.Setenv("CT_LOG_DEVELOPMENT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr())
	assert.Equal(t, []string{"app://ui", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/bin/zsh", cfg.Terminal.Shell)
	assert.Equal(t, 750*time.Millisecond, cfg.Terminal.DrainTimeout)
	assert.True(t, cfg.Settings.BypassMode)
	assert.Equal(t, "/tmp", cfg.Settings.WorkingDir)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unparsable duration", "CT_DRAIN_TIMEOUT", "soon"},
		{"zero backlog warning", "CT_EVENT_BACKLOG_WARNING", "0"},
		{"empty agent", "CT_AGENT_COMMAND", ""},
		{"no origins", "CT_ALLOWED_ORIGINS", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.False(t, s.BypassMode)
	assert.Empty(t, s.WorkingDir)
}
