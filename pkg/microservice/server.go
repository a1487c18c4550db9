// Package microservice holds the HTTP surface shared by the relay binaries:
// health, readiness, Prometheus metrics and read-only status lookups.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// BaseConfig holds the fields every relay binary reads from its config file.
type BaseConfig struct {
	LogLevel    string `yaml:"log_level"`
	HTTPPort    string `yaml:"http_port"`
	ProjectID   string `yaml:"project_id"`
	ServiceName string `yaml:"service_name"`
}

// Server serves /healthz, /readyz and /metrics plus whatever routes the
// relay registers on Mux. /readyz answers 503 until SetReady(true) and again
// from the moment Shutdown begins.
type Server struct {
	logger zerolog.Logger
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
	ready  atomic.Bool
	bound  atomic.Pointer[net.Addr]
}

// NewServer creates a Server that will listen on addr (":0" picks a port).
func NewServer(logger zerolog.Logger, addr string) *Server {
	s := &Server{
		logger: logger.With().Str("component", "HTTPServer").Logger(),
		addr:   addr,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /healthz", HealthzHandler)
	s.mux.HandleFunc("GET /readyz", s.readyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Mux is where the relay registers its own routes.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// SetReady flips the /readyz answer.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Listen binds the address and serves in the background.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	bound := ln.Addr()
	s.bound.Store(&bound)
	s.logger.Info().Str("address", bound.String()).Msg("HTTP server listening.")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed.")
		}
	}()
	return nil
}

// Addr returns the bound address once Listen succeeded, the configured one
// before that.
func (s *Server) Addr() string {
	if a := s.bound.Load(); a != nil {
		return (*a).String()
	}
	return s.addr
}

// Shutdown reports not-ready, then drains open requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped.")
	return nil
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("OK"))
}

// HealthzHandler answers liveness checks.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("OK"))
}
