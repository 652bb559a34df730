package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/emonklabs/emonk/internal/httputil"
	"github.com/go-chi/chi/v5/middleware"
)

// TriggerHeader is the platform cron trigger header checked by tick auth.
const TriggerHeader = "X-Emonk-Cron"

// requestLogger returns middleware that logs each request as structured JSON.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
					"bytes", ww.BytesWritten(),
					"request_id", middleware.GetReqID(r.Context()),
					"remote", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// requireTickAuth authenticates tick and admin requests: either the platform
// trigger header or a bearer token, compared in constant time. With neither
// configured, requests pass only when allow_unauthenticated is set (dev mode).
func (s *Server) requireTickAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerValue := s.cfg.Scheduler.TriggerHeaderValue
		secret := s.cfg.Scheduler.CronSecret

		if headerValue == "" && secret == "" {
			if s.cfg.Scheduler.AllowUnauthenticated {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteError(w, http.StatusUnauthorized, "tick auth is not configured")
			return
		}

		if headerValue != "" {
			if got := r.Header.Get(TriggerHeader); got != "" &&
				subtle.ConstantTimeCompare([]byte(got), []byte(headerValue)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		if secret != "" {
			if token, ok := httputil.ExtractBearerToken(r); ok &&
				subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
	})
}
