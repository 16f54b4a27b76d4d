package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/email"
	"github.com/sungwon/email-queue/internal/logger"
	"github.com/sungwon/email-queue/internal/metrics"
	"github.com/sungwon/email-queue/internal/queue"
)

// DefaultPriority is used when a request does not set one. Lower values
// are delivered first.
const DefaultPriority = 1

// QueueEmailRequest is the input of the Queue-Email workflow.
type QueueEmailRequest struct {
	From        string
	To          string
	Subject     string
	TextContent string
	HTMLContent string
	// Priority of the send job; zero means DefaultPriority.
	Priority int
	// Delay before the job becomes visible to workers.
	Delay time.Duration
}

// EnqueueOptions are the queue options for RetryEmail.
type EnqueueOptions struct {
	Priority int
	Delay    time.Duration
}

// QueueService persists new emails as Pending and enqueues a send job
// for each.
type QueueService struct {
	repo        email.Repository
	enqueuer    queue.Enqueuer
	newID       func() email.ID
	defaultFrom string
	log         zerolog.Logger
}

// NewQueueService creates a QueueService. defaultFrom, if set, is used
// for requests without a sender.
func NewQueueService(repo email.Repository, enqueuer queue.Enqueuer, defaultFrom string, log zerolog.Logger) *QueueService {
	return &QueueService{
		repo:        repo,
		enqueuer:    enqueuer,
		newID:       email.NewID,
		defaultFrom: defaultFrom,
		log:         log,
	}
}

// WithIDFunc replaces the ID generator.
func (s *QueueService) WithIDFunc(fn func() email.ID) *QueueService {
	s.newID = fn
	return s
}

// QueueEmail validates req, saves a Pending email and enqueues its send
// job. Nothing is enqueued when validation or Save fails. If the enqueue
// fails the Pending record stays in the repository.
func (s *QueueService) QueueEmail(ctx context.Context, req QueueEmailRequest) (email.ID, error) {
	id := s.newID()

	fromRaw := req.From
	if fromRaw == "" {
		fromRaw = s.defaultFrom
	}
	from, err := email.NewAddress(fromRaw)
	if err != nil {
		return "", err
	}
	to, err := email.NewAddress(req.To)
	if err != nil {
		return "", err
	}
	content, err := email.NewContent(req.Subject, req.TextContent, req.HTMLContent)
	if err != nil {
		return "", err
	}

	e := email.New(id, from, to, content)
	if err := s.repo.Save(ctx, e); err != nil {
		return "", err
	}

	if err := s.enqueue(ctx, e, EnqueueOptions{Priority: req.Priority, Delay: req.Delay}); err != nil {
		return "", err
	}
	metrics.EmailsQueuedTotal.Inc()
	return id, nil
}

// RetryEmail moves a Failed email back to Pending and enqueues a new send
// job for it. It returns an *email.NotFoundError for unknown IDs and
// email.ErrInvalidTransition unless the email is Failed.
func (s *QueueService) RetryEmail(ctx context.Context, id email.ID, opts EnqueueOptions) error {
	e, ok, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &email.NotFoundError{ID: id}
	}
	if err := e.Retry(); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, e); err != nil {
		return err
	}
	return s.enqueue(ctx, e, opts)
}

func (s *QueueService) enqueue(ctx context.Context, e *email.Email, opts EnqueueOptions) error {
	payload := JobPayload{
		Type:        JobType,
		EmailID:     e.ID().String(),
		From:        e.From().String(),
		To:          e.To().String(),
		Subject:     e.Content().Subject(),
		TextContent: e.Content().Text(),
		HTMLContent: e.Content().HTML(),
	}
	job, err := queue.NewJob(JobName, payload)
	if err != nil {
		return err
	}

	priority := opts.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}

	jobID, err := s.enqueuer.Enqueue(ctx, job, queue.EnqueueOptions{Priority: priority, Delay: delay})
	if err != nil {
		s.log.Error().Err(err).
			Str("email_id", payload.EmailID).
			Str("correlation_id", logger.CorrelationIDFromContext(ctx)).
			Msg("failed to enqueue email")
		return fmt.Errorf("enqueue email %s: %w", payload.EmailID, err)
	}

	s.log.Info().
		Str("email_id", payload.EmailID).
		Str("job_id", jobID).
		Int("priority", priority).
		Dur("delay", delay).
		Str("correlation_id", logger.CorrelationIDFromContext(ctx)).
		Msg("email queued")
	return nil
}
