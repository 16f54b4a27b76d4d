package queue

import (
	"errors"
	"math/rand/v2"
	"time"
)

// DefaultRetrySchedule is the backoff used between attempts.
var DefaultRetrySchedule = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// RetryStrategy implements scheduled backoff with jitter for job retries.
type RetryStrategy struct {
	MaxAttempts int
	Schedule    []time.Duration
}

// NewRetryStrategy creates a RetryStrategy with the given attempt ceiling.
// A nil or empty schedule selects DefaultRetrySchedule.
func NewRetryStrategy(maxAttempts int, schedule []time.Duration) *RetryStrategy {
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	return &RetryStrategy{
		MaxAttempts: maxAttempts,
		Schedule:    schedule,
	}
}

// ShouldRetry reports whether a job that just failed its attempt-th try
// (1-based) may be attempted again.
func (r *RetryStrategy) ShouldRetry(attempt int) bool {
	return attempt < r.MaxAttempts
}

// NextBackoff returns the delay before retry n (0-based) with jitter applied.
// Jitter is calculated as: base * (0.5 + rand * 0.5).
func (r *RetryStrategy) NextBackoff(n int) time.Duration {
	idx := n
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.Schedule) {
		idx = len(r.Schedule) - 1
	}

	base := r.Schedule[idx]
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(base) * jitter)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the runtime dead-letters the job without further
// attempts. Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err or any error it wraps was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
