package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/stackd/internal/shell/api"
	"github.com/artpar/stackd/internal/shell/docker"
	"github.com/artpar/stackd/internal/shell/edge"
	"github.com/artpar/stackd/internal/shell/store"
	"github.com/artpar/stackd/internal/shell/workers"
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
)

// =============================================================================
// Server
// =============================================================================

// Server represents the stackd application server.
type Server struct {
	config       *Config
	httpServer   *http.Server
	edgeServer   *edge.Server
	edgeHTTP     *http.Server
	edgeHTTPS    *http.Server
	store        store.Store
	docker       docker.Client
	driftWatcher *workers.DriftWatcher
	logger       *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Connect to Docker
	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Verify Docker connection
	if err := d.Ping(); err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Create API handler
	handler := api.NewHandler(s, d, logger, cfg.Edge.BaseDomain)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Create edge server
	var edgeServer *edge.Server
	if cfg.Edge.Enabled {
		edgeServer, err = edge.NewServer(edge.Config{
			Address:      cfg.Edge.Address(),
			BaseDomain:   cfg.Edge.BaseDomain,
			ReadTimeout:  cfg.Edge.ReadTimeout,
			WriteTimeout: cfg.Edge.WriteTimeout,
			IdleTimeout:  cfg.Edge.IdleTimeout,
		}, s, logger)
		if err != nil {
			s.Close()
			d.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}

		logger.Info("edge proxy enabled",
			"address", cfg.Edge.Address(),
			"base_domain", cfg.Edge.BaseDomain,
			"tls", cfg.Edge.TLS,
		)
	} else {
		logger.Info("edge proxy disabled")
	}

	// Create drift watcher
	var driftWatcher *workers.DriftWatcher
	if cfg.Drift.Enabled {
		driftWatcher = workers.NewDriftWatcher(s, docker.NewReconciler(d, logger), workers.DriftWatcherConfig{
			Interval:      cfg.Drift.Interval,
			StackTimeout:  cfg.Drift.StackTimeout,
			MaxConcurrent: cfg.Drift.MaxConcurrent,
		}, logger)

		logger.Info("drift watcher enabled", "interval", cfg.Drift.Interval)
	} else {
		logger.Info("drift watcher disabled")
	}

	return &Server{
		config:       cfg,
		httpServer:   httpServer,
		edgeServer:   edgeServer,
		store:        s,
		docker:       d,
		driftWatcher: driftWatcher,
		logger:       logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start drift watcher in background
	if s.driftWatcher != nil {
		s.driftWatcher.Start()
	}

	// Start edge server
	if s.edgeServer != nil {
		if s.config.Edge.TLS {
			s.edgeHTTPS, s.edgeHTTP = s.edgeServer.StartTLS(edge.TLSConfig{
				Enabled:  true,
				Address:  s.config.Edge.TLSAddress(),
				CacheDir: s.config.Edge.TLSCache,
				Email:    s.config.Edge.ACMEEmail,
			})
		} else {
			s.edgeHTTP = s.edgeServer.Start()
		}
	}

	// Start HTTP API server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP API server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Shutdown edge listeners
	if s.edgeHTTP != nil {
		if err := s.edgeHTTP.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("edge server shutdown error", "error", err)
		}
	}
	if s.edgeHTTPS != nil {
		if err := s.edgeHTTPS.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("edge TLS server shutdown error", "error", err)
		}
	}

	// Stop drift watcher
	if s.driftWatcher != nil {
		s.driftWatcher.Stop()
	}

	// Close Docker client
	if err := s.docker.Close(); err != nil {
		s.logger.Error("Docker client close error", "error", err)
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
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
