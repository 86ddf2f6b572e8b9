// Package server assembles the HTTP surface and owns its lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oidcgate/internal/cache"
	"oidcgate/internal/config"
	"oidcgate/internal/events"
	"oidcgate/internal/oidc"
	"oidcgate/internal/store"
	"oidcgate/internal/user"
)

type Server struct {
	cfg    *config.Config
	cache  cache.Cache
	store  store.Store
	oidc   *oidc.Client
	events events.Emitter
	hooks  user.Hooks
	logger *slog.Logger

	httpServer *http.Server
}

// New wires the collaborators together. store may be nil (store type
// "none"); sessions then carry claims-only users.
func New(cfg *config.Config, c cache.Cache, st store.Store, client *oidc.Client, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		cache:  c,
		store:  st,
		oidc:   client,
		events: &events.LogEmitter{Logger: logger},
		logger: logger,
	}
}

// SetEmitter replaces the default log-backed event emitter. Must be
// called before Start.
func (s *Server) SetEmitter(e events.Emitter) { s.events = e }

// SetHooks installs the provisioning enrichment hooks. Must be called
// before Start.
func (s *Server) SetHooks(h user.Hooks) { s.hooks = h }

func (s *Server) Start() error {
	router, err := s.setupRoutes()
	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"host", s.cfg.Server.Host,
			"port", s.cfg.Server.Port,
			"base_url", s.cfg.Server.BaseURL,
			"issuer", s.oidc.Issuer(),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig)
		return s.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	if err := s.cache.Close(); err != nil {
		s.logger.Error("error closing cache", "error", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing store", "error", err)
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
