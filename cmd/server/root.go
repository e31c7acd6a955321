package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/remote-agent-terminal/claude-terminal/internal/bridge"
	"github.com/remote-agent-terminal/claude-terminal/internal/config"
	"github.com/remote-agent-terminal/claude-terminal/internal/db"
	"github.com/remote-agent-terminal/claude-terminal/internal/dialog"
	"github.com/remote-agent-terminal/claude-terminal/internal/logging"
	"github.com/remote-agent-terminal/claude-terminal/internal/metrics"
	"github.com/remote-agent-terminal/claude-terminal/internal/registry"
	"github.com/remote-agent-terminal/claude-terminal/internal/repository"
	"github.com/remote-agent-terminal/claude-terminal/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "claude-terminal",
	Short: "PTY session host for the Claude desktop terminal",
	Long: `claude-terminal runs the Claude CLI inside pseudo-terminals and exposes
the sessions to the desktop UI over HTTP and a WebSocket event stream.

Configuration is read from CT_ prefixed environment variables; flags
override them.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.Flags()
	flags.String("host", "", "listen host (CT_HOST)")
	flags.String("port", "", "listen port (CT_PORT)")
	flags.String("shell", "", "shell override (CT_SHELL)")
	flags.String("agent", "", "agent command (CT_AGENT_COMMAND)")
	flags.String("db", "", "sqlite history path (CT_DB_PATH)")
	flags.String("record-dir", "", "asciinema recording directory (CT_RECORD_DIR)")
	flags.String("log-level", "", "debug, info, warn or error (CT_LOG_LEVEL)")
	flags.Bool("dev", false, "development logging (CT_LOG_DEVELOPMENT)")
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	overrides := []struct {
		name string
		dst  *string
	}{
		{"host", &cfg.Server.Host},
		{"port", &cfg.Server.Port},
		{"shell", &cfg.Terminal.Shell},
		{"agent", &cfg.Terminal.AgentCommand},
		{"db", &cfg.Storage.DBPath},
		{"record-dir", &cfg.Storage.RecordDir},
		{"log-level", &cfg.Logging.Level},
	}
	for _, o := range overrides {
		if flags.Changed(o.name) {
			*o.dst, _ = flags.GetString(o.name)
		}
	}
	if flags.Changed("dev") {
		cfg.Logging.Development, _ = flags.GetBool("dev")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve wires the host and blocks until ctx is done or the listener fails.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	database, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("failed to open database", zap.String("path", cfg.Storage.DBPath), zap.Error(err))
		return err
	}
	defer database.Close()

	sessionRepo := repository.NewSessionRepository(database)
	if n, err := sessionRepo.MarkStaleExited(ctx); err != nil {
		logger.Warn("failed to close stale session records", zap.Error(err))
	} else if n > 0 {
		logger.Info("closed stale session records", zap.Int64("count", n))
	}

	events := bridge.New(bridge.Options{
		BacklogWarning: cfg.Terminal.EventBacklogWarning,
		Logger:         logger.Named("bridge"),
		Metrics:        m,
	})
	defer events.Close()

	sessionManager := session.NewManager(session.Options{
		Registry: registry.New(),
		Bridge:   events,
		Store:    sessionRepo,
		Logger:   logger.Named("session"),
		Metrics:  m,
	}, session.Config{
		Shell:        cfg.Terminal.Shell,
		AgentCommand: cfg.Terminal.AgentCommand,
		HistorySize:  cfg.Terminal.HistorySize,
		RecordDir:    cfg.Storage.RecordDir,
		DrainTimeout: cfg.Terminal.DrainTimeout,
	})

	router := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		gatherer: prometheus.DefaultGatherer,
		sessions: sessionManager,
		bridge:   events,
		store:    sessionRepo,
		records:  sessionRepo,
		picker:   dialog.NewPicker(),
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first so no create can land after the
	// sessions are torn down.
	srvErr := srv.Shutdown(shutdownCtx)
	if srvErr != nil {
		logger.Warn("server shutdown failed", zap.Error(srvErr))
	}
	if _, err := sessionManager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sessions did not stop cleanly", zap.Error(err))
	}
	return srvErr
}
