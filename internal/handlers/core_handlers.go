package handlers

import (
	"context"
	"net/http"
	"time"

	"kick-haven/internal/forum"

	"github.com/go-chi/chi/v5"
)

// HealthResponse reports store reachability and reconciler progress.
type HealthResponse struct {
	Status      string      `json:"status"`
	Store       string      `json:"store"`
	Uptime      string      `json:"uptime"`
	Connections int         `json:"websocketConnections"`
	Reconciler  interface{} `json:"reconciler,omitempty"`
}

// HandleHealth pings the store and asks the engine for its stats.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()

		resp := HealthResponse{
			Status: "ok",
			Store:  "ok",
			Uptime: s.Metrics.Uptime().Round(time.Second).String(),
		}
		if s.Hub != nil {
			resp.Connections = s.Hub.ConnectionCount()
		}

		status := http.StatusOK
		if err := s.Store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Store = "unreachable"
			status = http.StatusServiceUnavailable
		}
		if s.Engine != nil {
			if stats, err := s.Engine.Stats(ctx); err == nil {
				resp.Reconciler = stats
			}
		}
		writeJSON(w, status, resp)
	}
}

// HandleReconcile recomputes one target's counters on demand.
func (s *Server) HandleReconcile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targetID, err := forum.ParseTargetID(chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.Engine.Reconcile(r.Context(), targetID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
