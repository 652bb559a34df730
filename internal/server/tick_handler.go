package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/emonklabs/emonk/internal/httputil"
	"github.com/emonklabs/emonk/internal/scheduler"
)

// tickRequest optionally bounds one tick. Absent fields fall back to the
// configured defaults.
type tickRequest struct {
	Limit       int `json:"limit"`
	Concurrency int `json:"concurrency"`
}

// handleTick runs one scheduler tick. The external pulse (platform cron,
// uptime monitor) is the only thing that calls this; the server never ticks
// itself.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodySize))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "reading request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	budget := scheduler.Budget{
		Limit:       s.cfg.Scheduler.TickLimit,
		Timeout:     s.cfg.Scheduler.TickTimeout(),
		Concurrency: s.cfg.Scheduler.Concurrency,
	}
	if req.Limit > 0 && req.Limit < budget.Limit {
		budget.Limit = req.Limit
	}
	if req.Concurrency > 0 && req.Concurrency < budget.Concurrency {
		budget.Concurrency = req.Concurrency
	}

	report, err := s.scheduler.Tick(r.Context(), budget)
	if err != nil {
		// Only the initial scan fails a tick; per-job faults are in the report.
		s.logger.Error("tick failed", "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "job store unreachable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// handleHealth reports liveness plus store and registry readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"store":    "ok",
		"registry": "ok",
	}
	status := http.StatusOK

	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if s.registry.Len() == 0 {
		checks["registry"] = "no handlers registered"
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}
