// Package provider delivers a single outbound email through an email
// service provider (ESP) or a local sink.
package provider

import (
	"context"
	"time"
)

// Provider sends one message through an ESP.
type Provider interface {
	// Send delivers msg and returns the provider's acknowledgement.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName returns the provider type, e.g. "sendgrid".
	GetName() string
	// HealthCheck verifies the provider is reachable and configured.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP calls so API providers can be tested without
// a network.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest is an outgoing provider API call.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse is a provider API response with the body fully read.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is the logical outbound call: one sender, one recipient, a
// subject, a plain text body and an optional HTML alternative.
type Message struct {
	// ID is the email ID, used for idempotency headers and file names.
	ID       string
	From     string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Headers  map[string]string
}

// DeliveryResult is what a provider reports for an accepted message.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	Timestamp         time.Time
	Metadata          map[string]string
}

// DeliveryStatus is the provider-side outcome of a send.
type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusQueued DeliveryStatus = "queued"
)

func sentResult(id string, meta map[string]string) *DeliveryResult {
	return &DeliveryResult{
		ProviderMessageID: id,
		Status:            StatusSent,
		Timestamp:         time.Now().UTC(),
		Metadata:          meta,
	}
}
