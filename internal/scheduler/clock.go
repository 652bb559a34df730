package scheduler

import "time"

// Clock is the scheduler's single source of "now". Production code uses
// SystemClock; tests substitute a controllable implementation. Scheduler code
// never calls time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
