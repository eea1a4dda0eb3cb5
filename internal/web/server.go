// Package web provides the HTTP surface of the ingestion service: CSV
// upload, webhook delivery, mapping administration, and run status.
//
// Tenant resolution and request authentication are owned by an upstream
// gateway; this layer trusts the X-Org-ID header it is handed and only
// verifies webhook bearer tokens, which are per-connection credentials.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clasak/compassiq/internal/config"
	"github.com/clasak/compassiq/internal/ingest"
	"github.com/clasak/compassiq/internal/web/middleware"
)

// Server is the HTTP server for the ingestion service.
type Server struct {
	coord  *ingest.Coordinator
	repo   ingest.Repository
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server around the coordinator and repository.
func NewServer(coord *ingest.Coordinator, repo ingest.Repository, cfg *config.Config) *Server {
	s := &Server{
		coord:  coord,
		repo:   repo,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Webhook deliveries authenticate with the connection's bearer token,
	// not the dashboard session, so they live outside /api.
	s.router.Post("/hooks/{connectionID}", s.handleWebhook)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireOrg)

		r.Post("/connections/{connectionID}/uploads", s.handleUpload)
		r.Get("/connections/{connectionID}/mapping", s.handleGetMapping)
		r.Put("/connections/{connectionID}/mapping", s.handleSaveMapping)
		r.Get("/runs/{runID}", s.handleGetRun)
	})
}

// Handler returns the root handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the configured address. Blocks until the
// server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
