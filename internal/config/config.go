// Package config holds the typed configuration of the session host.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable, e.g. CT_PORT.
// Logging variables use CT_LOG, e.g. CT_LOG_LEVEL.
const EnvPrefix = "CT"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Terminal TerminalConfig
	Storage  StorageConfig
	Logging  LogConfig
	Settings Settings
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `default:"127.0.0.1"`
	Port            string        `default:"8080"`
	AllowedOrigins  []string      `split_words:"true" default:"http://localhost:5173,http://127.0.0.1:5173"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// TerminalConfig holds session process configuration.
type TerminalConfig struct {
	// Shell overrides the platform shell. Empty selects bash or powershell.exe.
	Shell string

	// AgentCommand is the CLI agent started inside the shell.
	AgentCommand string `split_words:"true" default:"claude"`

	DrainTimeout time.Duration `split_words:"true" default:"2s"`
	HistorySize  int           `split_words:"true" default:"65536"`

	// EventBacklogWarning is the undelivered event count at which a lagging
	// UI subscriber is logged. Events are never dropped.
	EventBacklogWarning int `split_words:"true" default:"4096"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	DBPath string `split_words:"true" default:"data/sessions.db"`

	// RecordDir enables asciinema recordings when set.
	RecordDir string `split_words:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `default:"info"`
	Development bool   `default:"false"`
}

// Settings are the user preferences read when a session is created. They
// are owned by the UI's settings store; the host only reads them.
type Settings struct {
	BypassMode bool   `split_words:"true" default:"false" json:"bypassMode"`
	WorkingDir string `split_words:"true" json:"workingDir,omitempty"`
}

// DefaultSettings returns the settings used when the UI supplies none:
// normal mode in the user's home directory.
func DefaultSettings() Settings {
	return Settings{}
}

// Load loads configuration from CT_ prefixed environment variables.
func Load() (*Config, error) {
	var cfg Config
	sections := []struct {
		prefix string
		spec   any
	}{
		{EnvPrefix, &cfg.Server},
		{EnvPrefix, &cfg.Terminal},
		{EnvPrefix, &cfg.Storage},
		{EnvPrefix + "_LOG", &cfg.Logging},
		{EnvPrefix, &cfg.Settings},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.spec); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("invalid config: port is required")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("invalid config: at least one allowed origin is required")
	}
	if c.Terminal.AgentCommand == "" {
		return fmt.Errorf("invalid config: agent command is required")
	}
	if c.Terminal.EventBacklogWarning <= 0 {
		return fmt.Errorf("invalid config: event backlog warning must be positive, got %d", c.Terminal.EventBacklogWarning)
	}
	if c.Terminal.DrainTimeout <= 0 {
		return fmt.Errorf("invalid config: drain timeout must be positive, got %s", c.Terminal.DrainTimeout)
	}
	return nil
}
