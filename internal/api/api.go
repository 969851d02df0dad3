// Package api provides the engine's diagnostics HTTP surface.
//
// It exposes the manual sync trigger, pending/failed counts for UI badges,
// and the needs-attention listing. The domain CRUD API is served elsewhere;
// these endpoints belong to the sync engine alone.
package api

import (
	"log/slog"
	"net/http"

	"github.com/veridian-apps/ledgersync/internal/engine"
)

// DefaultAddr is the default listen address for the diagnostics server.
const DefaultAddr = ":8795"

// Opts holds configuration for the API server.
type Opts struct {
	Addr string
}

// Option configures API server construction.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server serves the engine's diagnostics endpoints.
type Server struct {
	engine *engine.Engine
	addr   string
}

// NewServer creates a diagnostics server for the given engine.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{engine: eng, addr: cfg.Addr}
}

// Handler returns the route table, separate from Run for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sync/{tenant}", s.syncNowHandler)
	mux.HandleFunc("GET /v1/sync/{tenant}/status", s.statusHandler)
	mux.HandleFunc("GET /v1/sync/{tenant}/attention", s.attentionHandler)
	return mux
}

// Run starts the HTTP server. It blocks until the server stops.
func (s *Server) Run() error {
	slog.Info("Server.Run: diagnostics API listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}
