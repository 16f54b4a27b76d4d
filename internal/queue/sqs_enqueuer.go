package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// maxSQSDelay is the largest DelaySeconds SQS accepts.
const maxSQSDelay = 900

// SQSEnqueuer publishes jobs to an AWS SQS queue.
type SQSEnqueuer struct {
	client   sqsAPI
	queueURL string
	lanes    int
	log      zerolog.Logger
}

// NewSQSEnqueuer creates a new SQSEnqueuer targeting the given queue URL.
func NewSQSEnqueuer(client sqsAPI, queueURL string, lanes int, log zerolog.Logger) *SQSEnqueuer {
	return &SQSEnqueuer{
		client:   client,
		queueURL: queueURL,
		lanes:    lanes,
		log:      log,
	}
}

// Enqueue serializes the job to JSON and sends it via SQS SendMessage.
// Priority is recorded on the job but does not change SQS delivery order.
// It returns the job ID.
func (e *SQSEnqueuer) Enqueue(ctx context.Context, job *Job, opts EnqueueOptions) (string, error) {
	prepare(job, opts, e.lanes)
	if err := e.send(ctx, job, opts.Delay); err != nil {
		return "", err
	}
	JobsEnqueuedTotal.WithLabelValues(BackendSQS).Inc()
	return job.ID, nil
}

// send marshals job and sends it with delay rounded up to whole seconds and
// capped at the SQS maximum.
func (e *SQSEnqueuer) send(ctx context.Context, job *Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = e.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:     e.queueURL,
		MessageBody:  string(data),
		DelaySeconds: delaySeconds(delay),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

func delaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	secs := math.Ceil(d.Seconds())
	if secs > maxSQSDelay {
		return maxSQSDelay
	}
	return int32(secs)
}
