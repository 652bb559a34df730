package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/emonklabs/emonk/internal/httputil"
	"github.com/emonklabs/emonk/internal/scheduler"
	"github.com/go-chi/chi/v5"
)

type jobListResponse struct {
	Items []scheduler.Job `json:"items"`
	Count int             `json:"count"` // number of items returned (page size, not total)
}

// handleListJobs returns jobs with optional status/kind filters.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := scheduler.ListFilter{
		Kind: r.URL.Query().Get("kind"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		st := scheduler.Status(status)
		if !st.Valid() {
			httputil.WriteError(w, http.StatusBadRequest,
				"invalid status filter; must be one of: pending, running, completed, failed, cancelled")
			return
		}
		filter.Status = st
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	filter.Limit = limit

	items, err := s.jobs.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, jobListResponse{Items: items, Count: len(items)})
}

// handleGetJob returns a single job by id.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}

// handleCancelJob requests pending -> cancelled.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, err := s.jobs.Cancel(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	switch outcome {
	case scheduler.CancelOutcomeCancelled:
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
	case scheduler.CancelOutcomeNotFound:
		httputil.WriteError(w, http.StatusNotFound, "job not found")
	default:
		// Running or terminal: the record can no longer be cancelled.
		httputil.WriteError(w, http.StatusConflict, "job is "+string(outcome))
	}
}

// handleRetryJob resets a terminally failed job to pending, due now.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.jobs.Retry(r.Context(), id)
	switch {
	case err == nil:
		job, getErr := s.jobs.Get(r.Context(), id)
		if getErr != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to load retried job")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, job)
	case errors.Is(err, scheduler.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, scheduler.ErrNotFailed):
		httputil.WriteError(w, http.StatusConflict, "job is not in failed state")
	default:
		httputil.WriteError(w, http.StatusInternalServerError, "failed to retry job")
	}
}

// handleJobStats returns record counts by status.
func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get job stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
