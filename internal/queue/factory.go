package queue

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Queue bundles the parts of one configured backend. Dequeuer is nil when
// the queue was built without a handler.
type Queue struct {
	Enqueuer
	DeadLetterQueue
	Inspector
	Dequeuer Dequeuer

	backend string
	ping    func(ctx context.Context) error
	close   func()
}

// Backend returns the backend name.
func (q *Queue) Backend() string { return q.backend }

// Ping checks connectivity to the backend.
func (q *Queue) Ping(ctx context.Context) error { return q.ping(ctx) }

// Close releases backend connections. Stop the Dequeuer first.
func (q *Queue) Close() {
	if q.close != nil {
		q.close()
	}
}

// NewQueue creates the Enqueuer, Dequeuer, DeadLetterQueue and Inspector for
// the configured backend. The handler defines the job processing logic used
// by the Dequeuer; pass nil for a producer-only queue.
func NewQueue(ctx context.Context, cfg Config, handler JobHandler, log zerolog.Logger) (*Queue, error) {
	cfg = cfg.withDefaults()
	retry := NewRetryStrategy(cfg.MaxAttempts, cfg.RetrySchedule)
	log = log.With().Str("component", "queue").Str("backend", cfg.Type).Logger()

	switch cfg.Type {
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return newRedisQueue(client, handler, retry, cfg, log), nil

	case BackendSQS:
		if cfg.SQSQueueURL == "" {
			return nil, fmt.Errorf("sqs queue requires sqs_queue_url")
		}
		client, err := newAWSSQSClient(ctx, cfg.SQSRegion, cfg.SQSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		return newSQSQueue(client, handler, retry, cfg, log), nil

	case BackendRiver:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("river queue requires database_url")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create river pool: %w", err)
		}
		if cfg.AutoMigrate {
			if err := MigrateRiver(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		rq, err := NewRiverQueue(pool, handler, retry, cfg, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		q := &Queue{
			Enqueuer:        rq,
			DeadLetterQueue: rq,
			Inspector:       rq,
			backend:         BackendRiver,
			ping:            pool.Ping,
			close:           pool.Close,
		}
		if handler != nil {
			q.Dequeuer = rq
		}
		return q, nil

	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}

func newRedisQueue(client *redis.Client, handler JobHandler, retry *RetryStrategy, cfg Config, log zerolog.Logger) *Queue {
	enqueuer := NewRedisEnqueuer(client, cfg.Name, cfg.PriorityLanes)
	dlq := NewRedisDLQ(client, cfg.Name, enqueuer)
	q := &Queue{
		Enqueuer:        enqueuer,
		DeadLetterQueue: dlq,
		Inspector:       NewRedisInspector(client, cfg.Name, cfg.ConsumerGroup, cfg.PriorityLanes),
		backend:         BackendRedis,
		ping:            func(ctx context.Context) error { return client.Ping(ctx).Err() },
		close:           func() { _ = client.Close() },
	}
	if handler != nil {
		q.Dequeuer = NewRedisDequeuer(client, enqueuer, dlq, handler, retry, cfg, log)
	}
	return q
}

func newSQSQueue(client sqsAPI, handler JobHandler, retry *RetryStrategy, cfg Config, log zerolog.Logger) *Queue {
	completed := new(atomic.Int64)
	enqueuer := NewSQSEnqueuer(client, cfg.SQSQueueURL, cfg.PriorityLanes, log)
	dlq := NewSQSDLQ(client, cfg.SQSDLQueueURL, enqueuer, log)
	q := &Queue{
		Enqueuer:        enqueuer,
		DeadLetterQueue: dlq,
		Inspector:       NewSQSInspector(client, cfg.SQSQueueURL, cfg.SQSDLQueueURL, completed),
		backend:         BackendSQS,
		ping: func(ctx context.Context) error {
			_, err := client.GetQueueAttributes(ctx, cfg.SQSQueueURL, []string{attrVisible})
			return err
		},
	}
	if handler != nil {
		q.Dequeuer = NewSQSDequeuer(client, cfg.SQSQueueURL, handler, dlq, retry, enqueuer, completed, cfg, log)
	}
	return q
}
