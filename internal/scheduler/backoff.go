package scheduler

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 30 * time.Second
	backoffCap  = 15 * time.Minute
)

// Backoff returns the delay before a failed job re-enters the queue.
// Formula: min(cap, base * 2^(attempt-1)) * U(0.5, 1.5).
func Backoff(attempt int) time.Duration {
	return BackoffWithRand(attempt, rand.Float64)
}

// BackoffWithRand computes the backoff using the provided uniform [0,1)
// source so tests can pin the jitter.
func BackoffWithRand(attempt int, randFloat func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := backoffBase
	for i := 1; i < attempt && delay < backoffCap; i++ {
		delay *= 2
		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}

	factor := 1.0
	if randFloat != nil {
		factor = 0.5 + randFloat()
	}
	return time.Duration(float64(delay) * factor)
}
