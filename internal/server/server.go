// Package server assembles the HTTP surface: routing, middleware, and the
// WebSocket hub, over the core pipeline.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/pharmasignal/evigraph/internal/config"
	"github.com/pharmasignal/evigraph/internal/pipeline"
	"github.com/pharmasignal/evigraph/web/handlers"
)

// Server is the evigraph HTTP server.
type Server struct {
	cfg     *config.Config
	service *pipeline.Service
	hub     *handlers.WebSocketHub
	httpSrv *http.Server
}

// New builds a server over the given pipeline.
func New(cfg *config.Config, service *pipeline.Service) *Server {
	hub := handlers.NewWebSocketHub()
	api := handlers.NewAPIHandlers(service, cfg, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ingest", api.HandleIngest)
	mux.HandleFunc("/api/conflicts", api.HandleConflicts)
	mux.HandleFunc("/api/ros", api.HandleROS)
	mux.HandleFunc("/api/graph", api.HandleGraph)
	mux.HandleFunc("/api/health", api.HandleHealth)
	mux.Handle("/ws", hub)

	rl := handlers.NewRateLimiter(50, 100)
	var handler http.Handler = mux
	handler = handlers.RateLimitMiddleware(handler, rl)
	handler = handlers.RequireAuth(handler, cfg)
	handler = handlers.SecurityHeaders(handler)

	return &Server{
		cfg:     cfg,
		service: service,
		hub:     hub,
		httpSrv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Run starts the hub and serves HTTP until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("evigraph listening on %s (engine: %s)", s.httpSrv.Addr, s.cfg.Storage.StorageEngine)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.hub.Stop()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return s.service.Close()
}
