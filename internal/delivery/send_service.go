package delivery

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/email"
)

// SendCommand carries everything needed to rebuild and send a queued
// email.
type SendCommand struct {
	EmailID     string
	From        string
	To          string
	Subject     string
	TextContent string
	HTMLContent string
}

// SendService runs the Send-Email workflow for one command.
type SendService struct {
	repo   email.Repository
	sender Sender
	log    zerolog.Logger
}

// NewSendService creates a SendService.
func NewSendService(repo email.Repository, sender Sender, log zerolog.Logger) *SendService {
	return &SendService{repo: repo, sender: sender, log: log}
}

// Send rebuilds the email from cmd, saves it as Pending, makes one
// delivery attempt and persists the outcome. On delivery failure the
// email is stored as Failed and the delivery error is returned so the
// queue can retry the job.
func (s *SendService) Send(ctx context.Context, cmd SendCommand) error {
	from, err := email.NewAddress(cmd.From)
	if err != nil {
		return err
	}
	to, err := email.NewAddress(cmd.To)
	if err != nil {
		return err
	}
	content, err := email.NewContent(cmd.Subject, cmd.TextContent, cmd.HTMLContent)
	if err != nil {
		return err
	}

	e := email.New(email.ID(cmd.EmailID), from, to, content)
	if err := s.repo.Save(ctx, e); err != nil {
		return err
	}

	sendErr := s.sender.Send(ctx, e)
	if sendErr == nil {
		if err := e.MarkAsSent(); err != nil {
			return err
		}
		return s.repo.UpdateStatus(ctx, e)
	}

	reason := email.FailureReason(sendErr)
	if err := e.MarkAsFailed(reason); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, e); err != nil {
		s.log.Error().Err(err).Str("email_id", cmd.EmailID).Msg("failed to record delivery failure")
		return err
	}
	s.log.Warn().
		Str("email_id", cmd.EmailID).
		Str("reason", reason).
		Msg("email delivery failed")
	return sendErr
}
