// Package api exposes the read endpoints over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bezzelek/corronaservice/query"
	"github.com/bezzelek/corronaservice/store"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Server wires the query engine and cycle log into an HTTP router.
type Server struct {
	engine *query.Engine
	store  *store.Store
	logger *slog.Logger
}

// New creates an API server.
func New(e *query.Engine, s *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: e, store: s, logger: logger}
}

// Router builds the chi router with all routes mounted.
//
// Static segments (/world, /ingest) take precedence over the
// two-letter country wildcard, so chi resolves them first.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Get("/world", s.handleWorldTotal)
	r.Get("/world/{date}", s.handleWorldOnDate)
	r.Get("/ingest/log", s.handleIngestLog)
	r.Get("/{country}", s.handleCountryTotal)
	r.Get("/{country}/{date}", s.handleCountryOnDate)

	return r
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
