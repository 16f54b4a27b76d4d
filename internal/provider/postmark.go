package provider

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
)

const postmarkTag = "email-queue"

// postmarkAPI is the part of the Postmark client used here.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
	GetCurrentServer(ctx context.Context) (postmark.Server, error)
}

// Postmark delivers through the Postmark server API.
type Postmark struct {
	client postmarkAPI
}

func NewPostmark(cfg ProviderConfig) *Postmark {
	return &Postmark{client: postmark.NewClient(cfg.APIKey, cfg.AccountToken)}
}

func (p *Postmark) GetName() string { return TypePostmark }

func (p *Postmark) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	email := postmark.Email{
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.TextBody,
		HTMLBody: msg.HTMLBody,
		Tag:      postmarkTag,
	}

	resp, err := p.client.SendEmail(ctx, email)
	if err != nil {
		return nil, classifyMessageError(TypePostmark, err)
	}
	if resp.ErrorCode > 0 {
		return nil, &ProviderError{
			Provider:  TypePostmark,
			Message:   fmt.Sprintf("error %d: %s", resp.ErrorCode, resp.Message),
			Permanent: postmarkPermanent(int64(resp.ErrorCode)),
		}
	}
	return sentResult(resp.MessageID, nil), nil
}

func (p *Postmark) HealthCheck(ctx context.Context) error {
	if _, err := p.client.GetCurrentServer(ctx); err != nil {
		return fmt.Errorf("postmark: health check: %w", err)
	}
	return nil
}

// postmarkPermanent reports whether a Postmark API error code is a request
// or account problem rather than a transient failure. 10 is a bad server
// token, 300 an invalid request, 4xx codes sender and recipient problems.
func postmarkPermanent(code int64) bool {
	switch {
	case code == 10, code == 300:
		return true
	case code >= 400 && code < 500:
		return true
	default:
		return false
	}
}
