package scheduler_test

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/emonklabs/emonk/internal/scheduler"
)

// fakeClock is a manually advanced Clock. The base time sits near the real
// wall clock so context deadlines derived from fake instants stay in the
// future while tests run.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestJob builds a pending job record for direct store manipulation.
func newTestJob(id, kind string, nextRunAt time.Time) *scheduler.Job {
	return &scheduler.Job{
		ID:          id,
		Kind:        kind,
		Payload:     json.RawMessage("{}"),
		Schedule:    scheduler.At(nextRunAt),
		NextRunAt:   nextRunAt.UTC(),
		Status:      scheduler.StatusPending,
		MaxAttempts: 3,
		CreatedAt:   nextRunAt.UTC(),
		UpdatedAt:   nextRunAt.UTC(),
	}
}
