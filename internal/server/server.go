/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server assembles the hub, settings store, catalog watcher, and
// HTTP surface into one runnable unit.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_cartwall/internal/api"
	"github.com/friendsincode/grimnir_cartwall/internal/catalog"
	"github.com/friendsincode/grimnir_cartwall/internal/config"
	"github.com/friendsincode/grimnir_cartwall/internal/events"
	"github.com/friendsincode/grimnir_cartwall/internal/hub"
	"github.com/friendsincode/grimnir_cartwall/internal/settings"
	"github.com/friendsincode/grimnir_cartwall/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	bus     *events.Bus
	store   *settings.Store
	lister  *catalog.FSLister
	watcher *catalog.Watcher
	hub     *hub.Hub
	api     *api.Handler

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Keep header deadline to protect against slowloris; WebSocket
		// sessions manage their own deadlines, so no write timeout.
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	s.store = settings.NewStore(s.cfg.SettingsPath, s.logger)
	s.store.Load()

	lister, err := catalog.NewFSLister(s.cfg.SoundsDir, s.logger)
	if err != nil {
		return err
	}
	s.lister = lister
	s.logger.Info().Str("path", s.cfg.SoundsDir).Msg("sound directory ready")

	s.watcher = catalog.NewWatcher(s.cfg.SoundsDir, s.lister, s.bus, s.cfg.WatchDebounce, s.cfg.WatchPoll, s.logger)
	s.hub = hub.New(s.store, s.bus, s.logger)
	s.api = api.New(s.store, s.lister, s.bus, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.watcher.Run(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.hub.Run(ctx)
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Get("/ws", s.hub.Handle)

	// Raw audio files for the player's asset fetches.
	fileServer := http.StripPrefix("/sounds/", http.FileServer(http.Dir(s.cfg.SoundsDir)))
	s.router.Handle("/sounds/*", fileServer)

	s.api.Routes(s.router)
}
