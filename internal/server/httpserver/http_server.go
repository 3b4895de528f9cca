// Package httpserver wires the project API, health and metrics endpoints
// onto a single HTTP listener.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/server/handlers"
	smw "git.home.luguber.info/inful/projectbuilder/internal/server/middleware"
)

// Options carries optional endpoints.
type Options struct {
	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
}

// Server serves the REST API.
type Server struct {
	cfg          config.ServerConfig
	handler      http.Handler
	errorAdapter *ferrors.HTTPErrorAdapter

	projectHandlers    *handlers.ProjectHandlers
	monitoringHandlers *handlers.MonitoringHandlers

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New constructs the server and its routes. Nothing listens until Start.
func New(cfg config.ServerConfig, svc handlers.ProjectService, runtime handlers.RuntimeInfo, opts Options) *Server {
	s := &Server{
		cfg:                cfg,
		errorAdapter:       ferrors.NewHTTPErrorAdapter(slog.Default()),
		projectHandlers:    handlers.NewProjectHandlers(svc),
		monitoringHandlers: handlers.NewMonitoringHandlers(runtime),
	}
	s.handler = smw.Chain(slog.Default(), s.errorAdapter)(s.routes(opts))
	return s
}

func (s *Server) routes(opts Options) *http.ServeMux {
	mux := http.NewServeMux()
	p := s.projectHandlers

	mux.HandleFunc("POST /api/projects", p.HandleCreate)
	mux.HandleFunc("GET /api/projects", p.HandleList)
	mux.HandleFunc("GET /api/projects/select", p.HandleSelect)
	mux.HandleFunc("GET /api/projects/{id}", p.HandleGet)
	mux.HandleFunc("DELETE /api/projects/{id}", p.HandleDelete)
	mux.HandleFunc("POST /api/projects/{id}/build", p.HandleBuild)
	mux.HandleFunc("POST /api/projects/{id}/cancel", p.HandleCancel)
	mux.HandleFunc("GET /api/projects/{id}/files", p.HandleFiles)
	mux.HandleFunc("GET /api/projects/{id}/runs", p.HandleRuns)
	mux.HandleFunc("GET /api/projects/{id}/runs/{seq}/log", p.HandleLog)
	mux.HandleFunc("GET /api/projects/{id}/runs/{seq}/events", p.HandleEvents)
	mux.HandleFunc("GET /api/projects/{id}/events", p.HandleProjectEvents)

	mux.HandleFunc("GET /health", s.monitoringHandlers.HandleHealthCheck)
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, opts.MetricsHandler)
	}
	return mux
}

// Handler returns the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listener synchronously so address errors surface to the
// caller, then serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return ferrors.DaemonError("http server already started").Build()
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "http listen failed").
			WithContext("addr", s.cfg.Addr).Build()
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeoutDuration(),
		WriteTimeout: s.cfg.WriteTimeoutDuration(),
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.server = srv
	s.addr = ln.Addr()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", logfields.Error(err))
		}
	}()
	slog.Info("HTTP server started", slog.String("addr", s.addr.String()))
	return nil
}

// Addr is the bound address once Start returned.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
