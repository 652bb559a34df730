package scheduler

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no job exists for the given id.
	ErrNotFound = errors.New("job not found")
	// ErrLostLease is returned when a claim or finalize loses to another
	// replica: the record is not claimable, or the caller no longer owns it.
	ErrLostLease = errors.New("lease lost")
	// ErrNotPending is returned by Cancel when the job is not pending.
	ErrNotPending = errors.New("job not in pending state")
	// ErrNotFailed is returned by Retry when the job is not terminally failed.
	ErrNotFailed = errors.New("job not in failed state")
)

// TransitionKind enumerates the finalize outcomes.
type TransitionKind string

const (
	// TransitionComplete marks a one-shot job completed.
	TransitionComplete TransitionKind = "complete"
	// TransitionFailRetry re-enters pending with a backed-off next_run_at.
	TransitionFailRetry TransitionKind = "fail-retry"
	// TransitionFailTerminal marks the job failed for good.
	TransitionFailTerminal TransitionKind = "fail-terminal"
	// TransitionReschedule re-enters pending at the next schedule point and
	// resets the attempt counter (recurring jobs after success).
	TransitionReschedule TransitionKind = "reschedule"
)

// Transition describes how a finalize call settles a running job.
type Transition struct {
	Kind      TransitionKind
	NextRunAt time.Time // fail-retry, reschedule
	LastError string    // fail-retry, fail-terminal
}

// Completed returns the transition for a successful one-shot execution.
func Completed() Transition {
	return Transition{Kind: TransitionComplete}
}

// FailedRetry returns the transition for a transient failure with attempts
// remaining.
func FailedRetry(nextRunAt time.Time, lastError string) Transition {
	return Transition{Kind: TransitionFailRetry, NextRunAt: nextRunAt, LastError: lastError}
}

// FailedTerminal returns the transition for a failure that exhausted the
// attempt budget.
func FailedTerminal(lastError string) Transition {
	return Transition{Kind: TransitionFailTerminal, LastError: lastError}
}

// Rescheduled returns the transition for a successful recurring execution.
func Rescheduled(nextRunAt time.Time) Transition {
	return Transition{Kind: TransitionReschedule, NextRunAt: nextRunAt}
}

// ListFilter narrows a List call. Zero values match everything.
type ListFilter struct {
	Status Status
	Kind   string
	Limit  int
}

// Store is the durable home of job records. Both backends (JSON file for
// development, PostgreSQL for production) implement this contract; the claim
// and finalize operations are the atomic primitives every correctness
// guarantee rests on.
type Store interface {
	// Put creates or fully replaces a record. Used only by the Job API.
	Put(ctx context.Context, job *Job) error

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// ListDue returns up to limit ids of pending jobs with next_run_at <= now,
	// ordered by next_run_at ascending. Stale reads are acceptable; Claim is
	// the authority.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)

	// Claim atomically takes ownership of a job for execution. A record is
	// claimable when pending, or when running with an expired lease (crash
	// recovery). On success the record becomes running with lease_owner=owner,
	// lease_until=now+lease, attempts+1. Returns ErrLostLease when another
	// replica holds it, ErrNotFound when the id does not exist.
	Claim(ctx context.Context, id, owner string, now time.Time, lease time.Duration) (*Job, error)

	// Finalize settles a running job. The write happens only when lease_owner
	// still equals owner; otherwise ErrLostLease is returned and nothing is
	// mutated. The lease fields are cleared by every transition.
	Finalize(ctx context.Context, id, owner string, now time.Time, tr Transition) error

	// Cancel transitions pending -> cancelled. Returns ErrNotPending when the
	// job is in any other state, so a cancel racing a claim cannot interrupt
	// a running execution.
	Cancel(ctx context.Context, id string, now time.Time) error

	// Retry resets a terminally failed job to pending with next_run_at=now
	// and attempts=0. Operator surface, not part of the tick path.
	Retry(ctx context.Context, id string, now time.Time) error

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Job, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
