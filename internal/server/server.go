// Package server exposes the keying session over HTTP: Prometheus metrics,
// status, control endpoints and a live event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/pkg/logger"
	"github.com/maximewewer/remotecw/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	registry *prometheus.Registry
	metrics  *metrics.KeyerMetrics
	keyer    Keyer
	clock    ClockStatus
	events   *Broadcaster
	server   *http.Server
}

// New creates a new HTTP server. clock may be nil.
func New(cfg *config.Config, registry *prometheus.Registry, m *metrics.KeyerMetrics, k Keyer, events *Broadcaster, clock ClockStatus) *Server {
	return &Server{
		config:   cfg,
		registry: registry,
		metrics:  m,
		keyer:    k,
		clock:    clock,
		events:   events,
	}
}

// Handler builds the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	h := NewHandlers(s.config, s.registry, s.keyer, s.clock)

	mux.HandleFunc("GET /metrics", h.MetricsHandler)
	mux.HandleFunc("GET /health", h.HealthHandler)
	mux.HandleFunc("GET /status", h.StatusHandler)
	mux.Handle("GET /ws/events", s.events)

	mux.HandleFunc("POST /api/connect", h.action(s.keyer.Connect))
	mux.HandleFunc("POST /api/disconnect", h.action(s.keyer.Disconnect))
	mux.HandleFunc("POST /api/keyline/open", h.action(s.keyer.OpenKeyLine))
	mux.HandleFunc("POST /api/keyline/close", h.action(s.keyer.CloseKeyLine))
	mux.HandleFunc("POST /api/calibrate", h.action(s.keyer.Calibrate))
	mux.HandleFunc("POST /api/ping", h.action(s.keyer.Ping))
	mux.HandleFunc("POST /api/delay", h.DelayHandler)
	mux.HandleFunc("POST /api/sidetone", h.SideToneHandler)
	mux.HandleFunc("POST /api/key", h.KeyHandler)

	mux.HandleFunc("GET /{$}", h.IndexHandler)

	return NewMiddleware(s.metrics).Apply(mux)
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Server.Address + ":" + strconv.Itoa(s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	logger.Infof("server", "Starting HTTP server on %s", addr)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("server", "Shutting down HTTP server")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server", "Server error", err)
			return fmt.Errorf("HTTP server failed on %s: %w", s.server.Addr, err)
		}
		return nil
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server", "Server shutdown failed", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("server shutdown timeout after 10s: %w", err)
		}
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server", "HTTP server stopped")
	return nil
}
