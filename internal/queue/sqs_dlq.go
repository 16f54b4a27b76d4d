package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// sqsReprocessRounds bounds how many receive calls one Reprocess makes.
const sqsReprocessRounds = 5

// SQSDLQ manages dead letter queue operations backed by an AWS SQS queue.
type SQSDLQ struct {
	client   sqsAPI
	dlqURL   string
	enqueuer Enqueuer
	log      zerolog.Logger
}

// NewSQSDLQ creates a new SQSDLQ targeting the given DLQ URL. The enqueuer
// is used by Reprocess to send jobs back to the primary queue.
func NewSQSDLQ(client sqsAPI, dlqURL string, enqueuer Enqueuer, log zerolog.Logger) *SQSDLQ {
	return &SQSDLQ{
		client:   client,
		dlqURL:   dlqURL,
		enqueuer: enqueuer,
		log:      log,
	}
}

// MoveToDLQ wraps the failed job in a DeadLetter envelope and sends it to the
// dead letter queue.
func (d *SQSDLQ) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	data, err := json.Marshal(DeadLetter{
		Job:     job,
		Reason:  reason,
		MovedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:    d.dlqURL,
		MessageBody: string(data),
	})
	if err != nil {
		return fmt.Errorf("sqs send to dlq: %w", err)
	}
	return nil
}

// Reprocess polls the DLQ and re-enqueues dead letters whose job ID (or SQS
// message ID) is in ids. Messages that do not match are made visible again
// immediately. SQS cannot read by ID, so this is best effort over a bounded
// number of receive calls.
func (d *SQSDLQ) Reprocess(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	reprocessed := 0
	for round := 0; round < sqsReprocessRounds && reprocessed < len(ids); round++ {
		out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            d.dlqURL,
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     0,
			VisibilityTimeout:   30,
		})
		if err != nil {
			return reprocessed, fmt.Errorf("sqs receive from dlq: %w", err)
		}
		if len(out.Messages) == 0 {
			break
		}

		for _, sqsMsg := range out.Messages {
			var dl DeadLetter
			if err := json.Unmarshal([]byte(sqsMsg.Body), &dl); err != nil || dl.Job == nil {
				d.log.Warn().Str("sqs_message_id", sqsMsg.MessageID).Msg("skipping malformed dead letter")
				d.release(ctx, sqsMsg)
				continue
			}
			if !wanted[dl.Job.ID] && !wanted[sqsMsg.MessageID] {
				d.release(ctx, sqsMsg)
				continue
			}

			dl.Job.Attempt = 1
			if _, err := d.enqueuer.Enqueue(ctx, dl.Job, EnqueueOptions{Priority: dl.Job.Priority}); err != nil {
				return reprocessed, fmt.Errorf("re-enqueue job %s: %w", dl.Job.ID, err)
			}
			if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
				QueueURL:      d.dlqURL,
				ReceiptHandle: sqsMsg.ReceiptHandle,
			}); err != nil {
				return reprocessed, fmt.Errorf("delete dlq message: %w", err)
			}
			reprocessed++
		}
	}

	return reprocessed, nil
}

// release makes a received dead letter visible to the next receiver.
func (d *SQSDLQ) release(ctx context.Context, sqsMsg sqsReceivedMessage) {
	err := d.client.ChangeMessageVisibility(ctx, &sqsChangeVisibilityInput{
		QueueURL:          d.dlqURL,
		ReceiptHandle:     sqsMsg.ReceiptHandle,
		VisibilityTimeout: 0,
	})
	if err != nil {
		d.log.Warn().Err(err).Str("sqs_message_id", sqsMsg.MessageID).Msg("failed to release dead letter")
	}
}

// SQS queue attribute names read by SQSInspector.
const (
	attrVisible    = "ApproximateNumberOfMessages"
	attrNotVisible = "ApproximateNumberOfMessagesNotVisible"
	attrDelayed    = "ApproximateNumberOfMessagesDelayed"
)

// SQSInspector reports approximate job counts from queue attributes. The
// completed count is local to this process.
type SQSInspector struct {
	client    sqsAPI
	queueURL  string
	dlqURL    string
	completed *atomic.Int64
}

// NewSQSInspector creates an SQSInspector. completed is shared with the
// process's SQSDequeuer and may be nil for a producer-only process.
func NewSQSInspector(client sqsAPI, queueURL, dlqURL string, completed *atomic.Int64) *SQSInspector {
	if completed == nil {
		completed = new(atomic.Int64)
	}
	return &SQSInspector{client: client, queueURL: queueURL, dlqURL: dlqURL, completed: completed}
}

// Status reads the approximate message counts of the primary queue and DLQ.
func (i *SQSInspector) Status(ctx context.Context) (Status, error) {
	attrs, err := i.client.GetQueueAttributes(ctx, i.queueURL, []string{attrVisible, attrNotVisible, attrDelayed})
	if err != nil {
		return Status{}, fmt.Errorf("sqs get queue attributes: %w", err)
	}
	s := Status{
		Waiting:   parseCount(attrs[attrVisible]),
		Active:    parseCount(attrs[attrNotVisible]),
		Delayed:   parseCount(attrs[attrDelayed]),
		Completed: i.completed.Load(),
	}

	if i.dlqURL != "" {
		dlqAttrs, err := i.client.GetQueueAttributes(ctx, i.dlqURL, []string{attrVisible})
		if err != nil {
			return Status{}, fmt.Errorf("sqs get dlq attributes: %w", err)
		}
		s.Failed = parseCount(dlqAttrs[attrVisible])
	}

	recordStatus(s)
	return s, nil
}

func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
