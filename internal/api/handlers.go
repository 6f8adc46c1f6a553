package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/FairForge/dropsense/internal/events"
	"github.com/FairForge/dropsense/internal/logging"
	"github.com/FairForge/dropsense/internal/profile"
	"github.com/FairForge/dropsense/internal/queue"
	"github.com/FairForge/dropsense/internal/scoring"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ReasonManual marks analyses requested through the API.
const ReasonManual = "manual"

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.deps.Metrics.EventRejected("body")
		s.respondError(w, r, http.StatusBadRequest, errors.New("request body too large or unreadable"))
		return
	}

	payload, err := events.DecodePayload(body)
	if err != nil {
		if events.IsValidationError(err) {
			s.deps.Metrics.EventRejected("schema")
			s.respondError(w, r, http.StatusBadRequest, err)
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}

	event := payload.Event(userID)
	if err := s.deps.Events.Append(r.Context(), event); err != nil {
		if events.IsValidationError(err) {
			s.respondError(w, r, http.StatusBadRequest, err)
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     event.ID,
		"status": "accepted",
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Profiles.Snapshot(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	var answers scoring.RiskAnswers
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&answers); err != nil {
		s.respondError(w, r, http.StatusBadRequest, errors.New("invalid assessment body"))
		return
	}

	saved, err := s.deps.Analyzer.SubmitAssessment(r.Context(), logging.UserID(r.Context()), answers)
	if err != nil {
		if errors.Is(err, scoring.ErrInvalidAnswer) {
			s.respondError(w, r, http.StatusBadRequest, err)
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Profiles.ActiveInsights(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"insights": list,
		"count":    len(list),
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.deps.Profiles.MarkInsightRead(r.Context(), logging.UserID(r.Context()), id)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		s.respondError(w, r, http.StatusNotFound, errors.New("insight not found"))
	case err != nil:
		s.respondError(w, r, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Profiles.MarkAllInsightsRead(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (s *Server) handleRequestAnalysis(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserID(r.Context())
	if err := s.deps.Trigger.RequestAnalysis(r.Context(), userID, ReasonManual); err != nil {
		if errors.Is(err, queue.ErrFull) {
			s.respondError(w, r, http.StatusServiceUnavailable, err)
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.deps.Metrics.AnalysisTriggered(ReasonManual)
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := logging.FromContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("API error", zap.Error(err), zap.Int("status", status))
	} else {
		logger.Debug("request rejected", zap.Error(err), zap.Int("status", status))
	}
	s.respondJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}
