package queue

import (
	"context"
	"fmt"
	"time"
)

// runHandler invokes h with the per-job timeout and converts a panic into an
// error so one bad job cannot take the worker down.
func runHandler(ctx context.Context, h JobHandler, job *Job, timeout time.Duration) (err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panic: %v", p)
		}
		JobProcessingDuration.Observe(time.Since(start).Seconds())
	}()
	return h.HandleJob(ctx, job)
}

// nextAttempt decides what happens to a job whose current attempt failed.
// When retry is true the caller re-enqueues the job after delay with its
// Attempt already incremented; otherwise cause labels the dead letter.
func nextAttempt(rs *RetryStrategy, job *Job, err error) (delay time.Duration, cause string, retry bool) {
	if IsPermanent(err) {
		return 0, "permanent", false
	}
	if !rs.ShouldRetry(job.Attempt) {
		return 0, "exhausted", false
	}
	delay = rs.NextBackoff(job.Attempt - 1)
	job.Attempt++
	return delay, "", true
}
