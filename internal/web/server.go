// Package web provides the HTTP server and JSON API for the import service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dealpage/importer/internal/config"
	"github.com/dealpage/importer/internal/engine"
	mw "github.com/dealpage/importer/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// Server is the HTTP server for the import API.
type Server struct {
	service *engine.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *engine.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(securityHeaders)
	s.router.Use(httprate.LimitByIP(100, time.Minute))
}

// setupRoutes configures all HTTP routes.
//
// The progress endpoint is registered outside the request-timeout group:
// SSE connections stay open for the lifetime of an import run.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/import/{sessionID}/progress", s.handleProgress)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			// Flow catalog
			r.Get("/flows", s.handleListFlows)

			// Session lifecycle
			r.Post("/import/{flowKey}", s.handleCreateImport)
			r.Get("/import/{sessionID}", s.handleSessionView)
			r.Post("/import/{sessionID}/file", s.handleAttachFile)
			r.Put("/import/{sessionID}/mapping", s.handleSetMapping)
			r.Put("/import/{sessionID}/year", s.handleSetYear)

			// Run control
			r.Post("/import/{sessionID}/start", s.handleStart)
			r.Get("/import/{sessionID}/result", s.handleResult)
			r.Post("/import/{sessionID}/cancel", s.handleCancel)

			// Ledger flows
			r.Get("/import/{sessionID}/ledger", s.handleLedgerRows)
			r.Post("/import/{sessionID}/save", s.handleSaveLedger)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 for SSE
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
