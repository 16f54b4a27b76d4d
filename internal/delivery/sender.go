// Package delivery holds the email workflows: queueing a new email,
// sending a queued one and the delivery port they share.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/email"
	"github.com/sungwon/email-queue/internal/metrics"
	"github.com/sungwon/email-queue/internal/provider"
)

// Sender is the delivery port. It performs exactly one outbound attempt
// and never changes the email's state.
type Sender interface {
	Send(ctx context.Context, e *email.Email) error
	// TotalSent is the number of successful sends by this instance.
	TotalSent() int64
}

const defaultSendTimeout = 30 * time.Second

// ProviderSender is a Sender backed by a single provider.Provider.
type ProviderSender struct {
	provider provider.Provider
	timeout  time.Duration
	sent     atomic.Int64
	log      zerolog.Logger
}

// NewProviderSender wraps p. A non-positive timeout uses 30s.
func NewProviderSender(p provider.Provider, timeout time.Duration, log zerolog.Logger) *ProviderSender {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &ProviderSender{
		provider: p,
		timeout:  timeout,
		log:      log,
	}
}

var _ Sender = (*ProviderSender)(nil)

// Send delivers e through the provider. Any failure, including the send
// timeout, is returned as an *email.DeliveryError.
func (s *ProviderSender) Send(ctx context.Context, e *email.Email) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name := s.provider.GetName()
	msg := &provider.Message{
		ID:       e.ID().String(),
		From:     e.From().String(),
		To:       e.To().String(),
		Subject:  e.Content().Subject(),
		TextBody: e.Content().Text(),
		HTMLBody: e.Content().HTML(),
	}

	start := time.Now()
	result, err := s.provider.Send(ctx, msg)
	metrics.DeliveryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		detail := err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			detail = fmt.Sprintf("timeout after %s: %s", s.timeout, detail)
		}

		kind := "transient"
		event := s.log.Error().Err(err).
			Str("provider", name).
			Str("email_id", msg.ID).
			Str("to", msg.To)
		var pe *provider.ProviderError
		if errors.As(err, &pe) {
			event = event.Int("status_code", pe.StatusCode).Bool("permanent", pe.Permanent)
			if pe.Permanent {
				kind = "permanent"
			}
		}
		event.Msg("provider send failed")
		metrics.EmailsFailedTotal.WithLabelValues(name, kind).Inc()

		return email.NewDeliveryError("failed to send email: "+detail, err)
	}

	total := s.sent.Add(1)
	metrics.EmailsSentTotal.WithLabelValues(name).Inc()

	providerID := ""
	if result != nil {
		providerID = result.ProviderMessageID
	}
	s.log.Info().
		Str("provider", name).
		Str("email_id", msg.ID).
		Str("provider_message_id", providerID).
		Int64("total_sent", total).
		Msg("email sent")
	return nil
}

func (s *ProviderSender) TotalSent() int64 { return s.sent.Load() }
