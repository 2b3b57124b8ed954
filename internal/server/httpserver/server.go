// Package httpserver wires the osforge HTTP API: build submission, status
// polling, build listing, health, daemon status and metrics.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/osforge/internal/config"
	derrors "git.home.luguber.info/inful/osforge/internal/errors"
	"git.home.luguber.info/inful/osforge/internal/server/handlers"
	smw "git.home.luguber.info/inful/osforge/internal/server/middleware"
)

// Options carries optional server collaborators.
type Options struct {
	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler
}

// Server manages the API HTTP endpoint.
type Server struct {
	cfg          *config.ServerConfig
	opts         Options
	errorAdapter *derrors.HTTPErrorAdapter

	buildHandlers      *handlers.BuildHandlers
	monitoringHandlers *handlers.MonitoringHandlers

	httpServer *http.Server
	listener   net.Listener
}

// New constructs the API server wiring.
func New(cfg *config.ServerConfig, submitter handlers.Submitter, records handlers.RecordReader, runtime handlers.Runtime, opts Options) *Server {
	adapter := derrors.NewHTTPErrorAdapter(slog.Default())
	return &Server{
		cfg:                cfg,
		opts:               opts,
		errorAdapter:       adapter,
		buildHandlers:      handlers.NewBuildHandlers(submitter, records, adapter),
		monitoringHandlers: handlers.NewMonitoringHandlers(runtime),
	}
}

// Handler returns the fully wired route tree, middleware applied. Exposed
// for httptest-based tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.monitoringHandlers.Health)
	mux.HandleFunc("GET /api/status", s.monitoringHandlers.DaemonStatus)
	mux.HandleFunc("POST /api/build/start", s.buildHandlers.StartBuild)
	mux.HandleFunc("GET /api/build/status/{buildId}", s.buildHandlers.BuildStatus)
	mux.HandleFunc("GET /api/builds", s.buildHandlers.ListBuilds)
	if s.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.opts.MetricsHandler)
	}

	chain := smw.Chain(slog.Default(), s.errorAdapter)
	return chain(mux)
}

// Start pre-binds the listener so startup fails fast on an occupied port,
// then serves in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("api port %d: %w", s.cfg.Port, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("API server listening", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("API server terminated", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
