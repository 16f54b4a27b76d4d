package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SQSDequeuer manages a pool of worker goroutines that consume and process
// jobs from an AWS SQS queue.
type SQSDequeuer struct {
	client    sqsAPI
	queueURL  string
	handler   JobHandler
	dlq       DeadLetterQueue
	retry     *RetryStrategy
	enqueuer  *SQSEnqueuer
	completed *atomic.Int64
	log       zerolog.Logger
	config    Config
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewSQSDequeuer creates an SQSDequeuer configured from the given Config.
// completed is incremented for every job that succeeds; it may be shared
// with an SQSInspector.
func NewSQSDequeuer(
	client sqsAPI,
	queueURL string,
	handler JobHandler,
	dlq DeadLetterQueue,
	retry *RetryStrategy,
	enqueuer *SQSEnqueuer,
	completed *atomic.Int64,
	cfg Config,
	log zerolog.Logger,
) *SQSDequeuer {
	if completed == nil {
		completed = new(atomic.Int64)
	}
	return &SQSDequeuer{
		client:    client,
		queueURL:  queueURL,
		handler:   handler,
		dlq:       dlq,
		retry:     retry,
		enqueuer:  enqueuer,
		completed: completed,
		log:       log,
		config:    cfg.withDefaults(),
	}
}

// Start launches the configured number of goroutines that long-poll SQS.
func (d *SQSDequeuer) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.config.WorkerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("sqs-worker-%d", i))
	}

	d.log.Info().
		Int("worker_count", d.config.WorkerCount).
		Str("queue_url", d.queueURL).
		Msg("sqs dequeuer started")

	return nil
}

// Stop cancels the context and waits for workers to finish within the
// shutdown timeout.
func (d *SQSDequeuer) Stop(ctx context.Context) error {
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
		d.log.Info().Msg("sqs dequeuer stopped gracefully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.config.ShutdownTimeout):
		d.log.Warn().Msg("sqs dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.config.ShutdownTimeout)
	}
}

// runWorker is the main loop for a single worker goroutine. It long-polls
// SQS and processes received messages one at a time.
func (d *SQSDequeuer) runWorker(ctx context.Context, workerName string) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            d.queueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     d.config.SQSWaitTime,
			VisibilityTimeout:   d.config.SQSVisTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Str("worker", workerName).Msg("sqs receive error")
			sleepCtx(ctx, time.Second)
			continue
		}

		for _, sqsMsg := range out.Messages {
			d.processMessage(ctx, sqsMsg)
		}
	}
}

// processMessage decodes an SQS message body, invokes the handler, and then
// deletes the message once the job completed, was re-sent for retry, or was
// dead-lettered. When the follow-up send fails the message is left in place
// and SQS redelivers it after the visibility timeout.
func (d *SQSDequeuer) processMessage(ctx context.Context, sqsMsg sqsReceivedMessage) {
	bctx := context.WithoutCancel(ctx)

	job, err := decodeJob(sqsMsg.Body)
	if err != nil {
		d.log.Error().Err(err).
			Str("sqs_message_id", sqsMsg.MessageID).
			Msg("failed to decode sqs message")
		d.delete(bctx, sqsMsg)
		return
	}

	log := d.log.With().
		Str("job_id", job.ID).
		Str("job_name", job.Name).
		Int("attempt", job.Attempt).
		Logger()

	err = runHandler(ctx, d.handler, job, d.config.ProcessTimeout)
	if err == nil {
		d.completed.Add(1)
		JobsProcessedTotal.WithLabelValues("completed").Inc()
		d.delete(bctx, sqsMsg)
		return
	}

	delay, cause, retry := nextAttempt(d.retry, job, err)
	if retry {
		log.Warn().Err(err).Dur("backoff", delay).Msg("sqs job failed, scheduling retry")
		if qErr := d.enqueuer.send(bctx, job, delay); qErr != nil {
			log.Error().Err(qErr).Msg("failed to re-enqueue for retry")
			return
		}
		JobsProcessedTotal.WithLabelValues("retried").Inc()
	} else {
		log.Error().Err(err).Str("cause", cause).Msg("sqs job failed, moving to DLQ")
		if dlqErr := d.dlq.MoveToDLQ(bctx, job, err.Error()); dlqErr != nil {
			log.Error().Err(dlqErr).Msg("failed to move to DLQ")
			return
		}
		JobsProcessedTotal.WithLabelValues("dead").Inc()
		DLQJobsTotal.WithLabelValues(cause).Inc()
	}

	d.delete(bctx, sqsMsg)
}

func (d *SQSDequeuer) delete(ctx context.Context, sqsMsg sqsReceivedMessage) {
	if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      d.queueURL,
		ReceiptHandle: sqsMsg.ReceiptHandle,
	}); err != nil {
		d.log.Error().Err(err).
			Str("sqs_message_id", sqsMsg.MessageID).
			Msg("failed to delete sqs message")
	}
}
