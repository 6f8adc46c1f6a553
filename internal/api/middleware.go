package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/FairForge/dropsense/internal/auth"
	"github.com/FairForge/dropsense/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// requireAuth binds the JWT user_id claim to the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			s.respondError(w, r, http.StatusUnauthorized, err)
			return
		}
		claims, err := s.deps.Tokens.ValidateJWT(token)
		if err != nil {
			s.respondError(w, r, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userKey charges rate limits to the authenticated user.
func userKey(r *http.Request) string {
	return logging.UserID(r.Context())
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	})
}
