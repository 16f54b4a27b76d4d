package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDLQ stores dead letters in a Redis stream.
type RedisDLQ struct {
	client   *redis.Client
	keys     redisKeys
	enqueuer Enqueuer
}

// NewRedisDLQ creates a RedisDLQ for the named queue. Reprocess re-enqueues
// through enqueuer.
func NewRedisDLQ(client *redis.Client, name string, enqueuer Enqueuer) *RedisDLQ {
	return &RedisDLQ{client: client, keys: redisKeys{name: name}, enqueuer: enqueuer}
}

// MoveToDLQ appends the job and the failure reason to the dead letter stream.
func (d *RedisDLQ) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	data, err := json.Marshal(DeadLetter{
		Job:     job,
		Reason:  reason,
		MovedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.keys.dlq(),
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to dlq stream %s: %w", d.keys.dlq(), err)
	}
	return nil
}

// Reprocess re-enqueues the dead letters whose job ID (or stream entry ID)
// is in ids with a fresh attempt budget, then removes them from the DLQ.
// Unknown IDs are ignored. It returns the number of jobs re-enqueued.
func (d *RedisDLQ) Reprocess(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	entries, err := d.client.XRange(ctx, d.keys.dlq(), "-", "+").Result()
	if err != nil {
		return 0, fmt.Errorf("xrange dlq stream %s: %w", d.keys.dlq(), err)
	}

	reprocessed := 0
	for _, entry := range entries {
		data, ok := entry.Values["data"].(string)
		if !ok {
			continue
		}
		var dl DeadLetter
		if err := json.Unmarshal([]byte(data), &dl); err != nil || dl.Job == nil {
			continue
		}
		if !wanted[dl.Job.ID] && !wanted[entry.ID] {
			continue
		}

		dl.Job.Attempt = 1
		if _, err := d.enqueuer.Enqueue(ctx, dl.Job, EnqueueOptions{Priority: dl.Job.Priority}); err != nil {
			return reprocessed, fmt.Errorf("re-enqueue job %s: %w", dl.Job.ID, err)
		}
		if err := d.client.XDel(ctx, d.keys.dlq(), entry.ID).Err(); err != nil {
			return reprocessed, fmt.Errorf("xdel dlq entry %s: %w", entry.ID, err)
		}
		reprocessed++
	}

	return reprocessed, nil
}

// RedisInspector reports job counts for a Redis queue.
type RedisInspector struct {
	client *redis.Client
	keys   redisKeys
	group  string
	lanes  int
}

// NewRedisInspector creates a RedisInspector for the named queue and group.
func NewRedisInspector(client *redis.Client, name, group string, lanes int) *RedisInspector {
	if lanes < 1 {
		lanes = 1
	}
	return &RedisInspector{client: client, keys: redisKeys{name: name}, group: group, lanes: lanes}
}

// Status counts waiting and active entries across the lanes, delayed jobs in
// the sorted set, the completed counter and the dead letter stream length.
func (i *RedisInspector) Status(ctx context.Context) (Status, error) {
	if err := ensureGroups(ctx, i.client, i.keys, i.group, i.lanes); err != nil {
		return Status{}, err
	}

	var s Status
	for _, stream := range i.keys.lanes(i.lanes) {
		length, err := i.client.XLen(ctx, stream).Result()
		if err != nil {
			return Status{}, fmt.Errorf("xlen %s: %w", stream, err)
		}
		pending, err := i.client.XPending(ctx, stream, i.group).Result()
		if err != nil {
			return Status{}, fmt.Errorf("xpending %s: %w", stream, err)
		}
		s.Active += pending.Count
		s.Waiting += length - pending.Count
	}

	var err error
	if s.Delayed, err = i.client.ZCard(ctx, i.keys.delayed()).Result(); err != nil {
		return Status{}, fmt.Errorf("zcard %s: %w", i.keys.delayed(), err)
	}
	s.Completed, err = i.client.Get(ctx, i.keys.completed()).Int64()
	if err != nil && err != redis.Nil {
		return Status{}, fmt.Errorf("get %s: %w", i.keys.completed(), err)
	}
	if s.Failed, err = i.client.XLen(ctx, i.keys.dlq()).Result(); err != nil {
		return Status{}, fmt.Errorf("xlen %s: %w", i.keys.dlq(), err)
	}

	recordStatus(s)
	return s, nil
}
