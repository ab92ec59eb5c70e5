package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/bootstrap"
	"github.com/yigit/educhat/internal/config"
	"github.com/yigit/educhat/internal/pkg/filestorage"
)

// Server holds the state for the HTTP server.
type Server struct {
	config *config.Config
	router *gin.Engine
	deps   *bootstrap.Dependencies
	logger zerolog.Logger
	http   *http.Server
	cancel context.CancelFunc
}

// NewServer creates and initializes a new server instance by calling bootstrap functions.
func NewServer(configPath string) (*Server, error) {
	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config or setup logger: %w", err)
	}

	deps, err := bootstrap.BuildDependencies(context.Background(), cfg, lgr)
	if err != nil {
		return nil, fmt.Errorf("failed to setup dependencies: %w", err)
	}

	router := bootstrap.SetupRouter(cfg, deps, lgr)
	setupStaticFileServing(router, deps.FileStorage, lgr)

	return &Server{
		config: cfg,
		router: router,
		deps:   deps,
		logger: lgr,
	}, nil
}

// setupStaticFileServing serves local attachments under /uploads
func setupStaticFileServing(router *gin.Engine, storage filestorage.FileStorage, lgr zerolog.Logger) {
	local, ok := storage.(*filestorage.LocalStorage)
	if !ok {
		return
	}
	router.Static("/uploads", local.Dir())
	lgr.Info().Str("path", local.Dir()).Msg("Static file serving configured for uploads directory")
}

// startBackground runs the event hub, the startup repair pass and the repair schedule
func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.deps.Hub.Run(ctx)

	go func() {
		report, err := s.deps.AttachmentService.RepairMissing(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("Startup attachment repair failed")
			return
		}
		s.logger.Info().
			Int("checked", report.Checked).
			Int("repaired", len(report.Repaired)).
			Int("failed", len(report.Failed)).
			Msg("Startup attachment repair finished")
	}()

	if s.deps.Repair != nil {
		s.deps.Repair.Start(ctx)
	}
}

// Run starts the HTTP server and handles graceful shutdown.
func (s *Server) Run() error {
	s.logger.Info().Str("port", s.config.Server.Port).Msg("Starting server...")
	s.startBackground()

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.config.Server.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)

	s.http = &http.Server{
		Addr:         ":" + s.config.Server.Port,
		Handler:      cors(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
		serverErrors <- s.http.ListenAndServe()
	}()

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("error starting server: %w", err)
		}
	case sig := <-osSignals:
		s.logger.Info().Str("signal", sig.String()).Msg("Received OS signal, initiating shutdown...")
	}

	return s.Shutdown(context.Background())
}

// Shutdown stops accepting requests, drains pending assistant turns and closes resources.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var errs []error

	if s.http != nil {
		s.logger.Info().Msg("Shutting down HTTP server...")
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server shutdown error")
			errs = append(errs, err)
		}
	}

	s.logger.Info().Msg("Waiting for assistant turns to finish...")
	if err := s.deps.Dispatcher.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Assistant dispatcher shutdown error")
		errs = append(errs, err)
	}

	// Stops the hub and the repair schedule
	if s.cancel != nil {
		s.cancel()
	}

	if err := s.deps.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to close store")
		errs = append(errs, err)
	}

	s.logger.Info().Msg("Server shutdown process complete.")
	return errors.Join(errs...)
}
