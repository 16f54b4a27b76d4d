package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is a unit of work carried by the queue. Data holds the JSON payload
// the handler decodes; the queue never inspects it.
type Job struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJob marshals payload and returns a Job with a fresh ID.
func NewJob(name string, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EnqueueOptions control when and in which order a job is delivered.
// Lower Priority values are delivered first; zero means the default.
type EnqueueOptions struct {
	Priority int
	Delay    time.Duration
}

// Status is a point-in-time count of jobs by state.
type Status struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// DeadLetter wraps a job that exhausted its attempts or failed permanently.
type DeadLetter struct {
	Job     *Job      `json:"job"`
	Reason  string    `json:"reason"`
	MovedAt time.Time `json:"moved_at"`
}

// prepare fills the fields an enqueued job must carry.
func prepare(job *Job, opts EnqueueOptions, lanes int) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	job.Priority = clampPriority(opts.Priority, lanes)
}

func clampPriority(p, lanes int) int {
	if p < 1 {
		return 1
	}
	if lanes > 0 && p > lanes {
		return lanes
	}
	return p
}

func decodeJob(data string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}
