package scheduler

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a job record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a final state. A failed job is only
// stored as failed once its attempt budget is exhausted, so failed is terminal
// here.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is the sole durable entity of the scheduler. The payload is opaque to
// the scheduler; each handler validates its own.
type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Schedule    Schedule        `json:"schedule"`
	NextRunAt   time.Time       `json:"nextRunAt"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	LeaseOwner  *string         `json:"leaseOwner,omitempty"`
	LeaseUntil  *time.Time      `json:"leaseUntil,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TickReport summarizes one scheduler tick for observability. Per-job faults
// are aggregated here rather than surfaced as errors.
type TickReport struct {
	Checked    int    `json:"checked"`
	Claimed    int    `json:"claimed"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Retried    int    `json:"retried"`
	Skipped    int    `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
	OwnerID    string `json:"owner_id"`
}
