package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTickLimit caps the number of jobs considered per tick.
	DefaultTickLimit = 100
	// DefaultTickTimeout caps the wall-clock time of one tick.
	DefaultTickTimeout = 60 * time.Second
	// DefaultConcurrency is the per-tick worker pool size.
	DefaultConcurrency = 8
	// MinLeaseDuration is the floor for the lease taken at claim time.
	MinLeaseDuration = 5 * time.Minute
	// safetyMargin is subtracted from lease_until to form the handler
	// deadline, leaving room to finalize before a peer can steal the lease.
	safetyMargin = 10 * time.Second
	// maxErrorLen truncates handler errors before they are persisted.
	maxErrorLen = 512
)

// Budget bounds one tick. Zero values fall back to the defaults.
type Budget struct {
	Limit       int           `json:"limit"`
	Timeout     time.Duration `json:"-"`
	Concurrency int           `json:"concurrency"`
}

// Scheduler runs the scan-claim-execute-finalize cycle. It is stateless
// between ticks and entirely driven by external pulses; concurrent ticks on
// this or other replicas coordinate only through the store's claim protocol.
type Scheduler struct {
	store         Store
	registry      *Registry
	clock         Clock
	logger        *slog.Logger
	ownerID       string
	leaseOverride time.Duration
}

// New creates a Scheduler. ownerID identifies this replica for lease
// attribution; it need not be stable across restarts.
func New(store Store, registry *Registry, clock Clock, logger *slog.Logger, ownerID string) *Scheduler {
	return &Scheduler{
		store:    store,
		registry: registry,
		clock:    clock,
		logger:   logger,
		ownerID:  ownerID,
	}
}

// OwnerID returns the replica identifier used for lease attribution.
func (s *Scheduler) OwnerID() string {
	return s.ownerID
}

// SetLeaseOverride fixes the claim lease duration instead of deriving it from
// the handler timeout. Zero restores the derived behavior.
func (s *Scheduler) SetLeaseOverride(d time.Duration) {
	s.leaseOverride = d
}

// Tick performs one bounded scan-claim-execute-finalize cycle and reports
// per-job outcomes. Per-job faults are aggregated in the report; only a
// store-level failure of the initial scan returns an error.
func (s *Scheduler) Tick(ctx context.Context, budget Budget) (*TickReport, error) {
	start := s.clock.Now()
	wallStart := time.Now()

	limit := budget.Limit
	if limit <= 0 {
		limit = DefaultTickLimit
	}
	timeout := budget.Timeout
	if timeout <= 0 {
		timeout = DefaultTickTimeout
	}
	workers := budget.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ids, err := s.store.ListDue(ctx, start, limit)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}

	report := &TickReport{Checked: len(ids), OwnerID: s.ownerID}
	var mu sync.Mutex

	// Workers pull ids from an ordered channel, so claims are issued in
	// ascending next_run_at order even with a pool.
	idCh := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idCh {
				s.runOne(ctx, id, report, &mu)
			}
		}()
	}

feed:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break feed
		case idCh <- id:
		}
	}
	close(idCh)
	wg.Wait()

	report.DurationMS = time.Since(wallStart).Milliseconds()
	s.logger.Info("tick complete",
		"owner", s.ownerID,
		"checked", report.Checked,
		"claimed", report.Claimed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"retried", report.Retried,
		"skipped", report.Skipped,
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

// runOne claims, executes, and finalizes a single candidate.
func (s *Scheduler) runOne(ctx context.Context, id string, report *TickReport, mu *sync.Mutex) {
	now := s.clock.Now()

	// Stale point-read to learn the kind; the claim below is the authority.
	var handlerTimeout time.Duration = DefaultHandlerTimeout
	if peek, err := s.store.Get(ctx, id); err == nil {
		handlerTimeout = s.registry.Timeout(peek.Kind)
	}
	lease := leaseDuration(handlerTimeout)
	if s.leaseOverride > 0 {
		lease = s.leaseOverride
	}

	job, err := s.store.Claim(ctx, id, s.ownerID, now, lease)
	if err != nil {
		if errors.Is(err, ErrLostLease) || errors.Is(err, ErrNotFound) {
			s.count(mu, func() { report.Skipped++ })
			return
		}
		s.logger.Error("claim failed", "job_id", id, "error", err)
		s.count(mu, func() { report.Skipped++ })
		return
	}
	s.count(mu, func() { report.Claimed++ })

	handler, ok := s.registry.Lookup(job.Kind)
	if !ok {
		s.finalize(ctx, job, FailedTerminal("unknown kind"), report, mu, func() { report.Failed++ })
		return
	}

	deadline := job.LeaseUntil.Add(-safetyMargin)
	hctx, hcancel := context.WithDeadline(ctx, deadline)
	runErr := runHandler(hctx, handler, job.Payload)
	timedOut := runErr != nil && errors.Is(hctx.Err(), context.DeadlineExceeded)
	hcancel()

	execStart := now
	now = s.clock.Now()

	if runErr == nil {
		if job.Schedule.Recurring() {
			next, nerr := job.Schedule.Next(execStart)
			if nerr != nil {
				// Schedules are validated at creation; a failure here means
				// the record was corrupted out-of-band.
				s.finalize(ctx, job, FailedTerminal(truncateError(nerr.Error())), report, mu, func() { report.Failed++ })
				return
			}
			s.finalize(ctx, job, Rescheduled(next), report, mu, func() { report.Succeeded++ })
			return
		}
		s.finalize(ctx, job, Completed(), report, mu, func() { report.Succeeded++ })
		return
	}

	msg := truncateError(runErr.Error())
	if timedOut {
		msg = "timeout"
	}
	if job.Attempts < job.MaxAttempts {
		next := now.Add(Backoff(job.Attempts))
		s.finalize(ctx, job, FailedRetry(next, msg), report, mu, func() { report.Retried++ })
		s.logger.Warn("job failed, will retry",
			"job_id", job.ID, "kind", job.Kind, "attempt", job.Attempts, "error", msg)
		return
	}
	s.finalize(ctx, job, FailedTerminal(msg), report, mu, func() { report.Failed++ })
	s.logger.Warn("job failed terminally",
		"job_id", job.ID, "kind", job.Kind, "attempt", job.Attempts, "error", msg)
}

// finalize applies the transition and records the outcome. A lost lease is
// logged at info and not retried: the record now belongs to whichever replica
// stole the expired lease.
func (s *Scheduler) finalize(ctx context.Context, job *Job, tr Transition, report *TickReport, mu *sync.Mutex, onOK func()) {
	err := s.store.Finalize(ctx, job.ID, s.ownerID, s.clock.Now(), tr)
	if err == nil {
		s.count(mu, onOK)
		return
	}
	if errors.Is(err, ErrLostLease) {
		s.logger.Info("lease lost during finalize, skipping",
			"job_id", job.ID, "kind", job.Kind)
		s.count(mu, func() { report.Skipped++ })
		return
	}
	s.logger.Error("finalize failed", "job_id", job.ID, "error", err)
	s.count(mu, func() { report.Skipped++ })
}

func (s *Scheduler) count(mu *sync.Mutex, f func()) {
	mu.Lock()
	f()
	mu.Unlock()
}

// runHandler invokes the handler with panic recovery; a panic is reported as
// a transient error like any other handler fault.
func runHandler(ctx context.Context, handler Handler, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, payload)
}

// leaseDuration derives the claim lease from the handler timeout, keeping
// enough slack that a slow handler finishes before its lease can be stolen.
func leaseDuration(handlerTimeout time.Duration) time.Duration {
	lease := handlerTimeout + handlerTimeout/2
	if lease < MinLeaseDuration {
		lease = MinLeaseDuration
	}
	return lease
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
