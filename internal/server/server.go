package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/scheduler"
)

// BaselineLister reads the stored window baselines.
type BaselineLister interface {
	List(ctx context.Context) ([]model.Baseline, error)
}

// JobRunner exposes the scheduler's job table.
type JobRunner interface {
	Jobs() []scheduler.JobInfo
	Trigger(name string) error
}

// Server provides health, status and metrics endpoints.
type Server struct {
	baselines BaselineLister
	jobs      JobRunner
	gatherer  prometheus.Gatherer
	router    chi.Router
	logger    *slog.Logger
}

// NewServer creates an API server.
func NewServer(baselines BaselineLister, jobs JobRunner, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		baselines: baselines,
		jobs:      jobs,
		gatherer:  gatherer,
		router:    chi.NewRouter(),
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/baselines", s.handleBaselines)
		r.Get("/jobs", s.handleJobs)
		r.Post("/jobs/{name}/trigger", s.handleTrigger)
	})
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	baselines, err := s.baselines.List(ctx)
	if err != nil {
		s.logger.Error("list baselines", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, baselines)
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Jobs())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := s.jobs.Trigger(name)
	switch {
	case err == nil:
		s.logger.Info("job triggered over http", "job", name)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "job": name})
	case errors.Is(err, scheduler.ErrUnknownJob):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduler.ErrJobRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
