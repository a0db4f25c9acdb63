// Package server exposes the coordinator over HTTP: batch analysis plus
// health, stats, and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulseguard/internal/cache"
	"pulseguard/internal/delegate"
	"pulseguard/internal/logger"
	"pulseguard/internal/orchestrator"
	"pulseguard/pkg/models"
)

// Server is the caller-facing HTTP surface.
type Server struct {
	coordinator *orchestrator.Coordinator
	registry    *delegate.HealthRegistry
	scoreCache  *cache.ScoreCache
	httpServer  *http.Server
}

// NewServer builds the server listening on addr.
func NewServer(addr string, coordinator *orchestrator.Coordinator, registry *delegate.HealthRegistry, scoreCache *cache.ScoreCache) *Server {
	if addr == "" {
		addr = ":8080"
	}
	s := &Server{
		coordinator: coordinator,
		registry:    registry,
		scoreCache:  scoreCache,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/analyze-events", s.handleAnalyze)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events is empty")
		return
	}

	verdict := s.coordinator.Process(r.Context(), &req)
	status := http.StatusOK
	if verdict.Status == orchestrator.StateError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, verdict)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	workers := map[models.WorkerRole]models.WorkerHealth{
		models.RoleEventAnalyzer: s.registry.CheckHealth(r.Context(), models.RoleEventAnalyzer),
		models.RoleRiskAssessor:  s.registry.CheckHealth(r.Context(), models.RoleRiskAssessor),
	}

	overall := "ok"
	for _, h := range workers {
		if h.Status != models.HealthHealthy {
			overall = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  overall,
		"workers": workers,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"coordinator": s.coordinator.Snapshot(),
		"cache":       s.scoreCache.Snapshot(),
		"workers":     s.registry.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}
