// Package api exposes the HTTP monitoring interface for the crawl service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/beautelab/luxcrawl/internal/integrity"
	"github.com/beautelab/luxcrawl/internal/metrics"
	"github.com/beautelab/luxcrawl/internal/quality"
	"github.com/beautelab/luxcrawl/internal/robots"
)

// Server wires HTTP handlers to the gate runners and compliance state.
type Server struct {
	router     chi.Router
	logger     *zap.Logger
	gates      *quality.Gates
	checker    *integrity.Checker
	compliance *robots.Compliance
}

// NewServer constructs a Server with middleware and routes. Any of the
// gate/checker/compliance collaborators may be nil; their endpoints
// then answer 503.
func NewServer(
	logger *zap.Logger,
	gates *quality.Gates,
	checker *integrity.Checker,
	compliance *robots.Compliance,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:     logger,
		gates:      gates,
		checker:    checker,
		compliance: compliance,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/gates", s.runGates)
		r.Get("/integrity", s.runIntegrity)
		r.Get("/compliance/manifests", s.listManifests)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) runGates(w http.ResponseWriter, r *http.Request) {
	if s.gates == nil {
		s.writeError(w, http.StatusServiceUnavailable, "quality gates are not configured")
		return
	}
	results := s.gates.RunAll(r.Context())
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) runIntegrity(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.writeError(w, http.StatusServiceUnavailable, "integrity checker is not configured")
		return
	}
	report, err := s.checker.Run(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) listManifests(w http.ResponseWriter, _ *http.Request) {
	if s.compliance == nil {
		s.writeError(w, http.StatusServiceUnavailable, "compliance layer is not configured")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"manifests": s.compliance.Manifests()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
