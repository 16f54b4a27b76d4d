package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeys names every Redis key used by one queue.
type redisKeys struct {
	name string
}

func (k redisKeys) lane(priority int) string { return fmt.Sprintf("queue:%s:p%d", k.name, priority) }
func (k redisKeys) delayed() string         { return "queue:" + k.name + ":delayed" }
func (k redisKeys) completed() string       { return "queue:" + k.name + ":completed" }
func (k redisKeys) dlq() string             { return "dlq:" + k.name }

// lanes returns the lane stream keys in delivery order.
func (k redisKeys) lanes(n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = k.lane(i + 1)
	}
	return out
}

// ensureGroups creates the consumer group on every lane stream. Existing
// groups are left alone.
func ensureGroups(ctx context.Context, client *redis.Client, keys redisKeys, group string, lanes int) error {
	for _, stream := range keys.lanes(lanes) {
		err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create consumer group %s on stream %s: %w", group, stream, err)
		}
	}
	return nil
}

// RedisEnqueuer publishes jobs to per-priority Redis Streams. Delayed jobs
// wait in a sorted set until a dequeuer promotes them.
type RedisEnqueuer struct {
	client *redis.Client
	keys   redisKeys
	lanes  int
}

// NewRedisEnqueuer creates a RedisEnqueuer for the named queue.
func NewRedisEnqueuer(client *redis.Client, name string, lanes int) *RedisEnqueuer {
	if lanes < 1 {
		lanes = 1
	}
	return &RedisEnqueuer{client: client, keys: redisKeys{name: name}, lanes: lanes}
}

// Enqueue adds the job to its priority lane with XADD, or to the delayed set
// when opts.Delay is positive. It returns the job ID.
func (e *RedisEnqueuer) Enqueue(ctx context.Context, job *Job, opts EnqueueOptions) (string, error) {
	prepare(job, opts, e.lanes)

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	if opts.Delay > 0 {
		err = e.schedule(ctx, data, time.Now().Add(opts.Delay))
	} else {
		err = e.push(ctx, job.Priority, data)
	}
	if err != nil {
		return "", err
	}

	JobsEnqueuedTotal.WithLabelValues(BackendRedis).Inc()

	return job.ID, nil
}

// requeue schedules another attempt of job after delay.
func (e *RedisEnqueuer) requeue(ctx context.Context, job *Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return e.schedule(ctx, data, time.Now().Add(delay))
}

func (e *RedisEnqueuer) push(ctx context.Context, priority int, data []byte) error {
	stream := e.keys.lane(clampPriority(priority, e.lanes))
	err := e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to stream %s: %w", stream, err)
	}
	return nil
}

func (e *RedisEnqueuer) schedule(ctx context.Context, data []byte, at time.Time) error {
	err := e.client.ZAdd(ctx, e.keys.delayed(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd to %s: %w", e.keys.delayed(), err)
	}
	return nil
}

// promoteDue moves delayed jobs that are due at now into their lanes and
// returns how many were moved. ZREM decides ownership, so concurrent
// promoters never push the same member twice.
func (e *RedisEnqueuer) promoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := e.client.ZRangeByScore(ctx, e.keys.delayed(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore %s: %w", e.keys.delayed(), err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := e.client.ZRem(ctx, e.keys.delayed(), member).Result()
		if err != nil {
			return promoted, fmt.Errorf("zrem %s: %w", e.keys.delayed(), err)
		}
		if removed == 0 {
			continue
		}

		priority := 1
		if job, err := decodeJob(member); err == nil {
			priority = job.Priority
		}
		if err := e.push(ctx, priority, []byte(member)); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}
