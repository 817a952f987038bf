// Package server provides the HTTP API for Veil: pseudonymization,
// identifier validation, and report retrieval.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dativo-io/veil/internal/checksum"
	"github.com/dativo-io/veil/internal/engine"
	"github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/internal/store"
)

const defaultTimeout = 30 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router      *chi.Mux
	engine      *engine.Pseudonymizer
	families    *checksum.Table
	reportStore *store.Store
	apiKeys     map[string]string
	corsOrigins []string
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithReportStore enables report persistence and the /v1/reports routes.
func WithReportStore(s *store.Store) Option {
	return func(srv *Server) { srv.reportStore = s }
}

// WithAPIKeys sets the accepted API keys. With no keys configured the
// API is open (single-user local use).
func WithAPIKeys(keys map[string]string) Option {
	return func(srv *Server) { srv.apiKeys = keys }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(srv *Server) { srv.corsOrigins = origins }
}

// NewServer builds a Server around a constructed pseudonymizer.
func NewServer(eng *engine.Pseudonymizer, families *checksum.Table, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		engine:      eng,
		families:    families,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.families == nil {
		s.families = checksum.DefaultTable()
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all
// middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/pseudonymize", s.handlePseudonymize)
		r.Post("/v1/validate", s.handleValidate)

		if s.reportStore != nil {
			r.Get("/v1/reports", s.handleReportsList)
			r.Get("/v1/reports/{id}", s.handleReportGet)
		}
	})

	return r
}
