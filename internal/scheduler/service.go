package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// DefaultMaxAttempts is the retry budget applied when a caller doesn't set one.
const DefaultMaxAttempts = 3

// CancelOutcome reports how a cancel request resolved.
type CancelOutcome string

const (
	CancelOutcomeCancelled CancelOutcome = "cancelled"
	CancelOutcomeNotFound  CancelOutcome = "not-found"
	CancelOutcomeTerminal  CancelOutcome = "already-terminal"
	CancelOutcomeRunning   CancelOutcome = "running"
)

// ScheduleOpts are optional parameters for Service.Schedule.
type ScheduleOpts struct {
	MaxAttempts int // 0 = service default
}

// Service is the programmatic Job API used by chat skills, startup code, and
// the admin HTTP surface. Validation happens here, before anything reaches
// the store.
type Service struct {
	store              Store
	registry           *Registry
	clock              Clock
	logger             *slog.Logger
	defaultMaxAttempts int
}

// NewService creates a Service. defaultMaxAttempts <= 0 selects the package
// default.
func NewService(store Store, registry *Registry, clock Clock, logger *slog.Logger, defaultMaxAttempts int) *Service {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = DefaultMaxAttempts
	}
	return &Service{
		store:              store,
		registry:           registry,
		clock:              clock,
		logger:             logger,
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// Schedule validates and persists a new pending job, returning the stored
// record. Unknown kinds and malformed schedules fail synchronously and are
// never written.
func (s *Service) Schedule(ctx context.Context, kind string, payload json.RawMessage, sched Schedule, opts ScheduleOpts) (*Job, error) {
	if kind == "" {
		return nil, fmt.Errorf("kind is required")
	}
	if !s.registry.Has(kind) {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	now := s.clock.Now()
	nextRunAt, err := sched.FirstRunAt(now)
	if err != nil {
		return nil, fmt.Errorf("computing first run: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.defaultMaxAttempts
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	job := &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		Schedule:    sched,
		NextRunAt:   nextRunAt,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("storing job: %w", err)
	}

	s.logger.Info("job scheduled",
		"job_id", job.ID, "kind", kind, "next_run", nextRunAt)
	return job, nil
}

// Cancel requests pending -> cancelled. Only pending jobs can be cancelled;
// a running execution always finishes (or fails) normally.
func (s *Service) Cancel(ctx context.Context, id string) (CancelOutcome, error) {
	err := s.store.Cancel(ctx, id, s.clock.Now())
	switch {
	case err == nil:
		s.logger.Info("job cancelled", "job_id", id)
		return CancelOutcomeCancelled, nil
	case err == ErrNotFound:
		return CancelOutcomeNotFound, nil
	case err == ErrNotPending:
		// Distinguish running from terminal for the caller.
		job, getErr := s.store.Get(ctx, id)
		if getErr != nil {
			return "", fmt.Errorf("cancel job %s: %w", id, getErr)
		}
		if job.Status == StatusRunning {
			return CancelOutcomeRunning, nil
		}
		return CancelOutcomeTerminal, nil
	default:
		return "", fmt.Errorf("cancel job %s: %w", id, err)
	}
}

// Retry resets a terminally failed job to pending, due immediately.
func (s *Service) Retry(ctx context.Context, id string) error {
	if err := s.store.Retry(ctx, id, s.clock.Now()); err != nil {
		return err
	}
	s.logger.Info("job reset for retry", "job_id", id)
	return nil
}

// Get returns a job by id.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

// List returns jobs matching the filter, for operator inspection.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	return s.store.List(ctx, filter)
}

// Stats aggregates record counts by status.
func (s *Service) Stats(ctx context.Context) (map[Status]int, error) {
	jobs, err := s.store.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	stats := map[Status]int{}
	for i := range jobs {
		stats[jobs[i].Status]++
	}
	return stats, nil
}

// NewOwnerID generates a fresh replica identifier. Owner ids only need to be
// unique among live replicas, not stable across restarts.
func NewOwnerID() string {
	return "emonk-" + uuid.NewString()[:8]
}
