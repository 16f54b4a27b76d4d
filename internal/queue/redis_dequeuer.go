package queue

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDequeuer manages a pool of worker goroutines that consume jobs from
// the lane streams through a consumer group. It also promotes due delayed
// jobs and reclaims entries left pending by crashed consumers.
type RedisDequeuer struct {
	client   *redis.Client
	enqueuer *RedisEnqueuer
	dlq      DeadLetterQueue
	handler  JobHandler
	retry    *RetryStrategy
	config   Config
	log      zerolog.Logger
	keys     redisKeys
	consumer string
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewRedisDequeuer creates a RedisDequeuer for cfg.Name. The handler defines
// job processing logic.
func NewRedisDequeuer(
	client *redis.Client,
	enqueuer *RedisEnqueuer,
	dlq DeadLetterQueue,
	handler JobHandler,
	retry *RetryStrategy,
	cfg Config,
	log zerolog.Logger,
) *RedisDequeuer {
	cfg = cfg.withDefaults()
	host, _ := os.Hostname()
	return &RedisDequeuer{
		client:   client,
		enqueuer: enqueuer,
		dlq:      dlq,
		handler:  handler,
		retry:    retry,
		config:   cfg,
		log:      log,
		keys:     redisKeys{name: cfg.Name},
		consumer: fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

// Start creates the consumer groups (if they do not already exist) and
// launches the workers, the delayed-job promoter and the stalled-job reclaimer.
func (d *RedisDequeuer) Start(ctx context.Context) error {
	if err := ensureGroups(ctx, d.client, d.keys, d.config.ConsumerGroup, d.config.PriorityLanes); err != nil {
		return err
	}

	ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.config.WorkerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("%s-worker-%d", d.consumer, i))
	}
	d.wg.Add(2)
	go d.runPromoter(ctx)
	go d.runReclaimer(ctx, d.consumer+"-reclaimer")

	d.log.Info().
		Int("worker_count", d.config.WorkerCount).
		Int("priority_lanes", d.config.PriorityLanes).
		Str("queue", d.config.Name).
		Msg("redis dequeuer started")

	return nil
}

// Stop signals all goroutines to stop and waits up to the configured
// shutdown timeout for in-flight jobs to finish.
func (d *RedisDequeuer) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("redis dequeuer stopped gracefully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.config.ShutdownTimeout):
		d.log.Warn().Msg("redis dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.config.ShutdownTimeout)
	}
}

// runWorker is the main loop for a single worker goroutine. Lanes are
// polled one at a time in priority order so a backlog in a higher lane is
// drained before any lower lane is read. Only when every lane is empty
// does the worker block, across all lanes at once.
func (d *RedisDequeuer) runWorker(ctx context.Context, consumerName string) {
	defer d.wg.Done()

	lanes := d.keys.lanes(d.config.PriorityLanes)
	blockStreams := make([]string, 0, 2*len(lanes))
	blockStreams = append(blockStreams, lanes...)
	for range lanes {
		blockStreams = append(blockStreams, ">")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		found, err := d.readLanes(ctx, consumerName, lanes)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.log.Error().Err(err).Str("consumer", consumerName).Msg("xreadgroup error")
			sleepCtx(ctx, time.Second)
			continue
		}
		if found {
			continue
		}

		res, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.config.ConsumerGroup,
			Consumer: consumerName,
			Streams:  blockStreams,
			Count:    1,
			Block:    d.config.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			d.log.Error().Err(err).Str("consumer", consumerName).Msg("xreadgroup error")
			sleepCtx(ctx, time.Second)
			continue
		}

		// Entries that arrived while idle are already pending for this
		// consumer; process them in lane order.
		for _, stream := range res {
			for _, entry := range stream.Messages {
				d.processEntry(ctx, stream.Stream, entry)
			}
		}
	}
}

// readLanes reads at most one new entry, from the first non-empty lane, and
// processes it. It reports whether an entry was found.
func (d *RedisDequeuer) readLanes(ctx context.Context, consumerName string, lanes []string) (bool, error) {
	for _, lane := range lanes {
		res, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.config.ConsumerGroup,
			Consumer: consumerName,
			Streams:  []string{lane, ">"},
			Count:    1,
			Block:    -1,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return false, err
		}
		if len(res) == 0 || len(res[0].Messages) == 0 {
			continue
		}
		d.processEntry(ctx, res[0].Stream, res[0].Messages[0])
		return true, nil
	}
	return false, nil
}

func (d *RedisDequeuer) runPromoter(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.enqueuer.promoteDue(ctx, time.Now())
			if err != nil && ctx.Err() == nil {
				d.log.Error().Err(err).Msg("promote delayed jobs")
			}
			if n > 0 {
				d.log.Debug().Int("count", n).Msg("promoted delayed jobs")
			}
		}
	}
}

// runReclaimer takes over entries that stayed pending longer than the
// stalled timeout and processes them again.
func (d *RedisDequeuer) runReclaimer(ctx context.Context, consumerName string) {
	defer d.wg.Done()

	interval := d.config.StalledTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range d.keys.lanes(d.config.PriorityLanes) {
				d.reclaim(ctx, stream, consumerName)
			}
		}
	}
}

func (d *RedisDequeuer) reclaim(ctx context.Context, stream, consumerName string) {
	entries, _, err := d.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    d.config.ConsumerGroup,
		Consumer: consumerName,
		MinIdle:  d.config.StalledTimeout,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			d.log.Error().Err(err).Str("stream", stream).Msg("xautoclaim error")
		}
		return
	}
	for _, entry := range entries {
		d.log.Warn().Str("entry_id", entry.ID).Str("stream", stream).Msg("reclaimed stalled job")
		d.processEntry(ctx, stream, entry)
	}
}

// processEntry decodes a stream entry, invokes the handler, and then either
// acknowledges it, schedules a retry, or dead-letters it. The entry stays
// pending when the follow-up write fails so the reclaimer can retry it.
func (d *RedisDequeuer) processEntry(ctx context.Context, stream string, entry redis.XMessage) {
	bctx := context.WithoutCancel(ctx)

	data, ok := entry.Values["data"].(string)
	if !ok {
		d.log.Error().Str("entry_id", entry.ID).Msg("invalid job data type")
		_ = d.acknowledge(bctx, stream, entry.ID, false)
		return
	}
	job, err := decodeJob(data)
	if err != nil {
		d.log.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to decode job")
		_ = d.acknowledge(bctx, stream, entry.ID, false)
		return
	}

	log := d.log.With().
		Str("job_id", job.ID).
		Str("job_name", job.Name).
		Int("attempt", job.Attempt).
		Logger()

	err = runHandler(ctx, d.handler, job, d.config.ProcessTimeout)
	if err == nil {
		JobsProcessedTotal.WithLabelValues("completed").Inc()
		if ackErr := d.acknowledge(bctx, stream, entry.ID, true); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to acknowledge job")
		}
		return
	}

	delay, cause, retry := nextAttempt(d.retry, job, err)
	if retry {
		log.Warn().Err(err).Dur("backoff", delay).Msg("job failed, scheduling retry")
		if qErr := d.enqueuer.requeue(bctx, job, delay); qErr != nil {
			log.Error().Err(qErr).Msg("failed to schedule retry")
			return
		}
		JobsProcessedTotal.WithLabelValues("retried").Inc()
	} else {
		log.Error().Err(err).Str("cause", cause).Msg("job failed, moving to DLQ")
		if dlqErr := d.dlq.MoveToDLQ(bctx, job, err.Error()); dlqErr != nil {
			log.Error().Err(dlqErr).Msg("failed to move to DLQ")
			return
		}
		JobsProcessedTotal.WithLabelValues("dead").Inc()
		DLQJobsTotal.WithLabelValues(cause).Inc()
	}

	if ackErr := d.acknowledge(bctx, stream, entry.ID, false); ackErr != nil {
		log.Error().Err(ackErr).Msg("failed to acknowledge job")
	}
}

// acknowledge removes the entry from the group's pending list and the stream.
func (d *RedisDequeuer) acknowledge(ctx context.Context, stream, entryID string, completed bool) error {
	_, err := d.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.XAck(ctx, stream, d.config.ConsumerGroup, entryID)
		p.XDel(ctx, stream, entryID)
		if completed {
			p.Incr(ctx, d.keys.completed())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack entry %s on stream %s: %w", entryID, stream, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
