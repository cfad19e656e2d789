// Package api exposes the administrative HTTP endpoints: queue and agent
// provisioning, agent login/logout, health, and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sebas/acd/internal/router/metrics"
	"github.com/sebas/acd/internal/router/repository"
	"github.com/sebas/acd/internal/router/store"
)

// AgentNotifier is how the API tells the router an agent became
// available, so waiting calls are dispatched immediately.
type AgentNotifier interface {
	AgentAvailable(callCenterID, agentID string)
}

// Server serves the admin API.
type Server struct {
	addr     string
	repo     *repository.Repository
	store    store.Store
	notifier AgentNotifier
	metrics  *metrics.Metrics
	httpSrv  *http.Server
}

// NewServer creates an admin API server on addr.
func NewServer(addr string, repo *repository.Repository, st store.Store,
	notifier AgentNotifier, m *metrics.Metrics) *Server {
	s := &Server{addr: addr, repo: repo, store: st, notifier: notifier, metrics: m}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/callcenters/{cc}", func(r chi.Router) {
		r.Post("/queues", s.createQueue)
		r.Get("/queues", s.listQueues)
		r.Get("/queues/{queueID}", s.getQueue)

		r.Post("/agents", s.createAgent)
		r.Get("/agents", s.listAgents)
		r.Get("/agents/{agentID}", s.getAgent)
		r.Post("/agents/{agentID}/login", s.agentLogin)
		r.Post("/agents/{agentID}/logout", s.agentLogout)
	})

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Admin API listening", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// --- handlers ---

type createQueueRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
	Timings  string `json:"timings"`
}

func (s *Server) createQueue(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Strategy == "" {
		req.Strategy = repository.StrategyRoundRobin
	}
	err := s.repo.CreateQueue(r.Context(), chi.URLParam(r, "cc"), repository.Queue{
		ID:       req.ID,
		Name:     req.Name,
		Strategy: req.Strategy,
		Timings:  req.Timings,
	})
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (s *Server) listQueues(w http.ResponseWriter, r *http.Request) {
	ids, err := s.repo.ListQueues(r.Context(), chi.URLParam(r, "cc"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"queues": ids})
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.repo.GetQueue(r.Context(), chi.URLParam(r, "cc"), chi.URLParam(r, "queueID"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type createAgentRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Endpoint     string `json:"endpoint"`
	ShiftTimings string `json:"shiftTimings"`
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	err := s.repo.AddAgent(r.Context(), chi.URLParam(r, "cc"), repository.Agent{
		ID:           req.ID,
		Name:         req.Name,
		Endpoint:     req.Endpoint,
		ShiftTimings: req.ShiftTimings,
	})
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	ids, err := s.repo.ListAgents(r.Context(), chi.URLParam(r, "cc"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"agents": ids})
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.repo.GetAgent(r.Context(), chi.URLParam(r, "cc"), chi.URLParam(r, "agentID"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type loginRequest struct {
	Queues []string `json:"queues"`
	Force  bool     `json:"force"`
}

func (s *Server) agentLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cc := chi.URLParam(r, "cc")
	agentID := chi.URLParam(r, "agentID")
	if err := s.repo.AgentLogin(r.Context(), cc, agentID, req.Queues, req.Force); err != nil {
		writeRepoError(w, err)
		return
	}
	// Queued calls should not wait for the next availability event.
	if s.notifier != nil {
		s.notifier.AgentAvailable(cc, agentID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(repository.StatusAvailable)})
}

func (s *Server) agentLogout(w http.ResponseWriter, r *http.Request) {
	err := s.repo.AgentLogout(r.Context(), chi.URLParam(r, "cc"), chi.URLParam(r, "agentID"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(repository.StatusLoggedOut)})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeRepoError maps repository failures onto HTTP statuses.
func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrIllegalState), errors.Is(err, repository.ErrOffShift):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Admin API internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
