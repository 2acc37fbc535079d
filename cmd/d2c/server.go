package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/shell/api"
	"github.com/artpar/d2c/internal/shell/backup"
	"github.com/artpar/d2c/internal/shell/docker"
	"github.com/artpar/d2c/internal/shell/output"
	"github.com/artpar/d2c/internal/shell/scheduler"
	"github.com/artpar/d2c/internal/shell/store"
	"github.com/artpar/d2c/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
	ExitRunFailed       = 5
	ExitCheckFailed     = 6
	ExitOutputError     = 7
)

// =============================================================================
// Components
// =============================================================================

// components are the collaborators shared by serve and run.
type components struct {
	store    *store.SQLiteStore
	docker   *docker.DockerClient
	writer   *output.Writer
	registry *prometheus.Registry
	backup   *backup.Service
}

func newComponents(cfg *Config, logger *slog.Logger) (*components, error) {
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	d, err := docker.NewDockerClient(docker.Options{Host: cfg.Docker.Host, All: cfg.Docker.All}, logger)
	if err != nil {
		s.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDockerError}
	}

	loc, err := scheduler.LoadLocation(cfg.Settings.Timezone)
	if err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
	}
	w, err := output.NewWriter(output.Config{Root: cfg.Output.Dir, Location: loc}, logger)
	if err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitOutputError}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := backup.NewService(d, w, s, cfg.BackupConfig(), logger,
		backup.WithMetrics(backup.NewMetrics(reg)))

	return &components{store: s, docker: d, writer: w, registry: reg, backup: svc}, nil
}

func (c *components) Close(logger *slog.Logger) {
	if err := c.docker.Close(); err != nil {
		logger.Error("Docker client close error", "error", err)
	}
	if err := c.store.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
}

// =============================================================================
// Server
// =============================================================================

// Server runs the scheduler and the control API.
type Server struct {
	config     *Config
	configPath string
	httpServer *http.Server
	components *components
	scheduler  *scheduler.Service
	monitor    *workers.EngineMonitor
	logger     *slog.Logger
}

// NewServer creates a new server with the given config. configPath is
// re-read on reload.
func NewServer(cfg *Config, configPath string, logger *slog.Logger) (*Server, error) {
	c, err := newComponents(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Verify Docker connection
	if err := c.docker.Ping(context.Background()); err != nil {
		c.Close(logger)
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDockerError}
	}

	monitor := workers.NewEngineMonitor(c.docker, workers.EngineMonitorConfig{
		Interval: cfg.Docker.PingInterval,
		Timeout:  cfg.Docker.PingTimeout,
	}, c.registry, logger)

	srv := &Server{
		config:     cfg,
		configPath: configPath,
		components: c,
		monitor:    monitor,
		logger:     logger,
	}
	srv.scheduler = scheduler.NewService(c.backup, cfg.SchedulerConfig(), srv.reloadConfig, logger)

	handler := api.NewHandler(api.Config{
		Backup:    c.backup,
		Scheduler: srv.scheduler,
		Store:     c.store,
		Engine:    monitor,
		Metrics:   promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}),
		OutputDir: c.writer.Root(),
		Version:   Version,
		Logger:    logger,
	})

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return srv, nil
}

// reloadConfig re-reads the configuration, applies the run settings and
// returns the new trigger. An invalid file leaves everything unchanged.
func (s *Server) reloadConfig(ctx context.Context) (scheduler.Config, error) {
	cfg, err := LoadConfig(s.configPath)
	if err != nil {
		return scheduler.Config{}, err
	}
	if cfg.Output.Dir != s.config.Output.Dir {
		s.logger.Warn("output.dir changes take effect after restart", "dir", cfg.Output.Dir)
	}
	s.components.backup.SetConfig(cfg.BackupConfig())
	s.logger.Info("configuration reloaded", "schedule", cfg.Schedule.Expression)
	return cfg.SchedulerConfig(), nil
}

// Start starts the server and blocks until shutdown. SIGHUP reloads the
// configuration.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	s.monitor.Start()

	if err := s.scheduler.Start(); err != nil {
		return &ServerError{Op: "Start", Err: err, ExitCode: ExitConfigError}
	}
	status := s.scheduler.Status()
	s.logger.Info("scheduler started", "mode", status.Mode, "expression", status.Expression, "next_run", status.NextRun)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := s.scheduler.Reload(); err != nil {
					s.logger.Error("reload failed", "error", err)
				}
				continue
			}
			s.logger.Info("received shutdown signal", "signal", sig)
		case err := <-errCh:
			s.Shutdown(context.Background())
			return &ServerError{Op: "Start", Err: err, ExitCode: ExitHTTPServerError}
		case <-ctx.Done():
			s.logger.Info("context cancelled")
		}
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Close cancels and waits for a run in progress.
	s.scheduler.Close()
	s.monitor.Stop()
	s.components.Close(s.logger)

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// One-shot Run
// =============================================================================

// runOnce executes a single backup and records it.
func runOnce(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	c, err := newComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close(logger)

	run, err := c.backup.Run(ctx, domain.RunTriggerManual)
	if run != nil {
		logger.Info("backup finished",
			"run_id", run.ID,
			"success", run.Success,
			"output_dir", run.OutputDir,
			"documents", run.DocumentCount,
			"skipped", run.SkippedCount,
		)
	}
	if err != nil {
		code := ExitRunFailed
		if errors.Is(err, backup.ErrSnapshotFailed) {
			code = ExitDockerError
		}
		return &ServerError{Op: "Run", Err: err, ExitCode: code}
	}
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
