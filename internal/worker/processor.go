// Package worker turns queue jobs into Send-Email workflow runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/delivery"
	"github.com/sungwon/email-queue/internal/email"
	"github.com/sungwon/email-queue/internal/provider"
	"github.com/sungwon/email-queue/internal/queue"
)

// sendService is the part of delivery.SendService the processor uses.
type sendService interface {
	Send(ctx context.Context, cmd delivery.SendCommand) error
}

// Processor implements queue.JobHandler for send-domain-email jobs.
type Processor struct {
	sends sendService
	log   zerolog.Logger
}

// NewProcessor creates a Processor that runs each job through sends.
func NewProcessor(sends sendService, log zerolog.Logger) *Processor {
	return &Processor{sends: sends, log: log}
}

var _ queue.JobHandler = (*Processor)(nil)

// HandleJob implements queue.JobHandler. Malformed payloads, invalid
// addresses or content, and permanent provider rejections are returned
// wrapped with queue.Permanent; every other error is retried.
func (p *Processor) HandleJob(ctx context.Context, job *queue.Job) error {
	log := p.log.With().
		Str("job_id", job.ID).
		Str("job_name", job.Name).
		Int("attempt", job.Attempt).
		Logger()

	if job.Name != "" && job.Name != delivery.JobName {
		err := fmt.Errorf("%w: job name %q", delivery.ErrUnknownJobType, job.Name)
		log.Error().Err(err).Msg("rejecting job")
		return queue.Permanent(err)
	}

	payload, err := delivery.DecodePayload(job.Data)
	if err != nil {
		log.Error().Err(err).Msg("rejecting job")
		return queue.Permanent(err)
	}
	log = log.With().Str("email_id", payload.EmailID).Logger()

	start := time.Now()
	log.Info().Str("to", payload.To).Msg("processing email job")

	if err := p.sends.Send(ctx, payload.Command()); err != nil {
		permanent := isPermanent(err)
		log.Error().Err(err).
			Bool("permanent", permanent).
			Dur("elapsed", time.Since(start)).
			Msg("email job failed")
		if permanent {
			return queue.Permanent(err)
		}
		return err
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("email job completed")
	return nil
}

func isPermanent(err error) bool {
	if email.IsValidation(err) || errors.Is(err, email.ErrInvalidTransition) {
		return true
	}
	return provider.IsPermanent(err)
}
