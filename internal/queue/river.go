package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// riverMaxPriority is the lowest priority River accepts.
const riverMaxPriority = 4

// riverJobArgs carries a Job through River. The River job row supplies the
// ID, attempt and priority.
type riverJobArgs struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

func (riverJobArgs) Kind() string { return "email_queue_job" }

// riverWorker adapts a JobHandler to River.
type riverWorker struct {
	river.WorkerDefaults[riverJobArgs]
	handler JobHandler
	timeout time.Duration
	log     zerolog.Logger
}

func (w *riverWorker) Work(ctx context.Context, rj *river.Job[riverJobArgs]) error {
	job := &Job{
		ID:        strconv.FormatInt(rj.ID, 10),
		Name:      rj.Args.Name,
		Data:      rj.Args.Data,
		Priority:  rj.Priority,
		Attempt:   rj.Attempt,
		CreatedAt: rj.CreatedAt,
	}

	err := runHandler(ctx, w.handler, job, w.timeout)
	if err == nil {
		JobsProcessedTotal.WithLabelValues("completed").Inc()
		return nil
	}

	log := w.log.With().Str("job_id", job.ID).Str("job_name", job.Name).Int("attempt", job.Attempt).Logger()
	switch {
	case IsPermanent(err):
		log.Error().Err(err).Str("cause", "permanent").Msg("river job failed, cancelling")
		JobsProcessedTotal.WithLabelValues("dead").Inc()
		DLQJobsTotal.WithLabelValues("permanent").Inc()
		return river.JobCancel(err)
	case rj.Attempt >= rj.MaxAttempts:
		log.Error().Err(err).Str("cause", "exhausted").Msg("river job failed, discarding")
		JobsProcessedTotal.WithLabelValues("dead").Inc()
		DLQJobsTotal.WithLabelValues("exhausted").Inc()
	default:
		log.Warn().Err(err).Msg("river job failed, scheduling retry")
		JobsProcessedTotal.WithLabelValues("retried").Inc()
	}
	return err
}

// riverRetryPolicy schedules River retries from a RetryStrategy.
type riverRetryPolicy struct {
	retry *RetryStrategy
}

func (p *riverRetryPolicy) NextRetry(row *rivertype.JobRow) time.Time {
	return time.Now().Add(p.retry.NextBackoff(row.Attempt - 1))
}

// MigrateRiver applies River's schema migrations to the database.
func MigrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("migrate river schema: %w", err)
	}
	return nil
}

// RiverQueue is a Postgres-backed queue built on River. It implements
// Enqueuer, Dequeuer, DeadLetterQueue and Inspector. Jobs that River
// discards after the last attempt or cancels form the dead letter set.
type RiverQueue struct {
	pool        *pgxpool.Pool
	client      *river.Client[pgx.Tx]
	queueName   string
	maxAttempts int
	shutdown    time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	started bool
}

// NewRiverQueue creates a River client on pool. A nil handler builds an
// insert-only client that cannot Start.
func NewRiverQueue(pool *pgxpool.Pool, handler JobHandler, retry *RetryStrategy, cfg Config, log zerolog.Logger) (*RiverQueue, error) {
	cfg = cfg.withDefaults()

	riverCfg := &river.Config{
		Logger:      slog.New(slog.NewTextHandler(log, &slog.HandlerOptions{Level: slog.LevelWarn})),
		MaxAttempts: cfg.MaxAttempts,
		RetryPolicy: &riverRetryPolicy{retry: retry},
		JobTimeout:  cfg.ProcessTimeout,
	}
	if handler != nil {
		workers := river.NewWorkers()
		river.AddWorker(workers, &riverWorker{handler: handler, timeout: cfg.ProcessTimeout, log: log})
		riverCfg.Workers = workers
		riverCfg.Queues = map[string]river.QueueConfig{
			cfg.Name: {MaxWorkers: cfg.WorkerCount},
		}
	}

	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}

	return &RiverQueue{
		pool:        pool,
		client:      client,
		queueName:   cfg.Name,
		maxAttempts: cfg.MaxAttempts,
		shutdown:    cfg.ShutdownTimeout,
		log:         log,
	}, nil
}

// Enqueue inserts the job into River. Priority is clamped to River's 1..4
// range and Delay becomes the scheduled time. It returns River's job ID,
// which is also written to job.ID.
func (q *RiverQueue) Enqueue(ctx context.Context, job *Job, opts EnqueueOptions) (string, error) {
	prepare(job, opts, riverMaxPriority)

	insertOpts := &river.InsertOpts{
		Queue:       q.queueName,
		Priority:    job.Priority,
		MaxAttempts: q.maxAttempts,
	}
	if opts.Delay > 0 {
		insertOpts.ScheduledAt = time.Now().Add(opts.Delay)
	}

	res, err := q.client.Insert(ctx, riverJobArgs{Name: job.Name, Data: job.Data}, insertOpts)
	if err != nil {
		return "", fmt.Errorf("river insert: %w", err)
	}

	job.ID = strconv.FormatInt(res.Job.ID, 10)
	JobsEnqueuedTotal.WithLabelValues(BackendRiver).Inc()
	return job.ID, nil
}

// Start begins working jobs.
func (q *RiverQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return nil
	}
	if err := q.client.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	q.started = true
	q.log.Info().Str("queue", q.queueName).Msg("river dequeuer started")
	return nil
}

// Stop waits for running jobs to finish, bounded by the shutdown timeout.
func (q *RiverQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, q.shutdown)
	defer cancel()
	if err := q.client.Stop(ctx); err != nil {
		return fmt.Errorf("stop river client: %w", err)
	}
	q.started = false
	q.log.Info().Msg("river dequeuer stopped gracefully")
	return nil
}

// MoveToDLQ cancels the job so River stops attempting it.
func (q *RiverQueue) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	id, err := strconv.ParseInt(job.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("river job id %q: %w", job.ID, err)
	}
	if _, err := q.client.JobCancel(ctx, id); err != nil {
		return fmt.Errorf("cancel river job %d: %w", id, err)
	}
	q.log.Warn().Str("job_id", job.ID).Str("reason", reason).Msg("river job cancelled")
	return nil
}

// Reprocess makes the given jobs available again. IDs that are not River job
// IDs or no longer exist are skipped.
func (q *RiverQueue) Reprocess(ctx context.Context, ids []string) (int, error) {
	reprocessed := 0
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if _, err := q.client.JobRetry(ctx, id); err != nil {
			if errors.Is(err, rivertype.ErrNotFound) {
				continue
			}
			return reprocessed, fmt.Errorf("retry river job %d: %w", id, err)
		}
		reprocessed++
	}
	return reprocessed, nil
}

const riverStateCounts = `
SELECT state, count(*)
FROM river_job
WHERE queue = $1
GROUP BY state`

// Status counts this queue's river_job rows by state.
func (q *RiverQueue) Status(ctx context.Context) (Status, error) {
	rows, err := q.pool.Query(ctx, riverStateCounts, q.queueName)
	if err != nil {
		return Status{}, fmt.Errorf("query river job states: %w", err)
	}
	defer rows.Close()

	var s Status
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return Status{}, fmt.Errorf("scan river job state: %w", err)
		}
		addRiverState(&s, rivertype.JobState(state), n)
	}
	if err := rows.Err(); err != nil {
		return Status{}, fmt.Errorf("iterate river job states: %w", err)
	}

	recordStatus(s)
	return s, nil
}

func addRiverState(s *Status, state rivertype.JobState, n int64) {
	switch state {
	case rivertype.JobStateAvailable, rivertype.JobStatePending:
		s.Waiting += n
	case rivertype.JobStateRunning:
		s.Active += n
	case rivertype.JobStateScheduled, rivertype.JobStateRetryable:
		s.Delayed += n
	case rivertype.JobStateCompleted:
		s.Completed += n
	case rivertype.JobStateDiscarded, rivertype.JobStateCancelled:
		s.Failed += n
	}
}
