package queue

import "context"

// Enqueuer publishes jobs to the queue and returns the job ID.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job, opts EnqueueOptions) (string, error)
}

// Dequeuer consumes jobs from the queue.
// Start begins consuming in background goroutines.
// Stop gracefully shuts down consumers.
type Dequeuer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DeadLetterQueue manages jobs that will not be attempted again.
type DeadLetterQueue interface {
	MoveToDLQ(ctx context.Context, job *Job, reason string) error
	Reprocess(ctx context.Context, ids []string) (int, error)
}

// Inspector reports job counts by state.
type Inspector interface {
	Status(ctx context.Context) (Status, error)
}

// JobHandler processes a single job. A returned error schedules a retry
// unless it is marked with Permanent or the attempt ceiling is reached.
type JobHandler interface {
	HandleJob(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to JobHandler.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) HandleJob(ctx context.Context, job *Job) error { return f(ctx, job) }
