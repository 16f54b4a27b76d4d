package provider

import (
	"context"
	"errors"

	"github.com/resend/resend-go/v3"
)

// resendEmails is the part of the Resend client used here.
type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Resend delivers through the Resend Emails API.
type Resend struct {
	emails resendEmails
}

func NewResend(cfg ProviderConfig) *Resend {
	client := resend.NewClient(cfg.APIKey)
	return &Resend{emails: client.Emails}
}

func (r *Resend) GetName() string { return TypeResend }

func (r *Resend) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.TextBody,
		Html:    msg.HTMLBody,
		Headers: msg.Headers,
	}
	if msg.ID != "" {
		req.Tags = []resend.Tag{{Name: "email_id", Value: msg.ID}}
	}

	resp, err := r.emails.SendWithContext(ctx, req)
	if err != nil {
		return nil, classifyMessageError(TypeResend, err)
	}
	return sentResult(resp.Id, nil), nil
}

// HealthCheck only verifies the client was built; Resend has no cheap
// read-only endpoint for a sending-scoped key.
func (r *Resend) HealthCheck(context.Context) error {
	if r.emails == nil {
		return errors.New("resend: client not configured")
	}
	return nil
}
