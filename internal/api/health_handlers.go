package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is stamped at build time.
var Version = "dev"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"ready": false,
				"error": err.Error(),
			})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
