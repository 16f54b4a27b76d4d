// Package email holds the email entity, its value objects, and the
// repository port used to persist it.
package email

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an Email.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusSent, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown email status %q", s)
	}
}

// Email is a single message moving through pending -> sent | failed.
//
// Allowed transitions:
//
//	pending -> sent    MarkAsSent
//	pending -> failed  MarkAsFailed
//	failed  -> pending Retry
//
// Only status, sentAt and failureReason change after construction.
type Email struct {
	id            ID
	from          Address
	to            Address
	content       Content
	createdAt     time.Time
	status        Status
	sentAt        *time.Time
	failureReason string
}

// New creates a pending Email.
func New(id ID, from, to Address, content Content) *Email {
	return &Email{
		id:        id,
		from:      from,
		to:        to,
		content:   content,
		createdAt: time.Now().UTC(),
		status:    StatusPending,
	}
}

func (e *Email) ID() ID               { return e.id }
func (e *Email) From() Address        { return e.from }
func (e *Email) To() Address          { return e.to }
func (e *Email) Content() Content     { return e.content }
func (e *Email) CreatedAt() time.Time { return e.createdAt }
func (e *Email) Status() Status       { return e.status }

// SentAt returns the delivery time, or nil unless the email is sent.
func (e *Email) SentAt() *time.Time {
	if e.sentAt == nil {
		return nil
	}
	t := *e.sentAt
	return &t
}

// FailureReason returns the last delivery failure, or "" unless the email
// is failed.
func (e *Email) FailureReason() string { return e.failureReason }

func (e *Email) IsPending() bool { return e.status == StatusPending }
func (e *Email) IsSent() bool    { return e.status == StatusSent }
func (e *Email) IsFailed() bool  { return e.status == StatusFailed }

// MarkAsSent records a successful delivery.
func (e *Email) MarkAsSent() error {
	if e.status != StatusPending {
		return &TransitionError{ID: e.id, From: e.status, To: StatusSent}
	}
	now := time.Now().UTC()
	e.status = StatusSent
	e.sentAt = &now
	e.failureReason = ""
	return nil
}

// MarkAsFailed records a failed delivery attempt. An empty reason is
// stored as "unknown error".
func (e *Email) MarkAsFailed(reason string) error {
	if e.status != StatusPending {
		return &TransitionError{ID: e.id, From: e.status, To: StatusFailed}
	}
	if reason == "" {
		reason = "unknown error"
	}
	e.status = StatusFailed
	e.failureReason = reason
	return nil
}

// Retry moves a failed email back to pending.
func (e *Email) Retry() error {
	if e.status != StatusFailed {
		return &TransitionError{ID: e.id, From: e.status, To: StatusPending}
	}
	e.status = StatusPending
	e.failureReason = ""
	return nil
}

// Record is the persisted shape of an Email.
type Record struct {
	ID            ID         `json:"id"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Subject       string     `json:"subject"`
	TextContent   string     `json:"textContent"`
	HTMLContent   string     `json:"htmlContent"`
	CreatedAt     time.Time  `json:"createdAt"`
	Status        Status     `json:"status"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
}

// Snapshot returns the persisted shape of e.
func (e *Email) Snapshot() Record {
	return Record{
		ID:            e.id,
		From:          e.from.String(),
		To:            e.to.String(),
		Subject:       e.content.Subject(),
		TextContent:   e.content.Text(),
		HTMLContent:   e.content.HTML(),
		CreatedAt:     e.createdAt,
		Status:        e.status,
		SentAt:        e.SentAt(),
		FailureReason: e.failureReason,
	}
}

// Restore rebuilds an Email from a stored record, re-validating its value
// objects and status fields.
func Restore(r Record) (*Email, error) {
	from, err := NewAddress(r.From)
	if err != nil {
		return nil, err
	}
	to, err := NewAddress(r.To)
	if err != nil {
		return nil, err
	}
	content, err := NewContent(r.Subject, r.TextContent, r.HTMLContent)
	if err != nil {
		return nil, err
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return nil, err
	}
	if (r.Status == StatusSent) != (r.SentAt != nil) {
		return nil, fmt.Errorf("email %s: sentAt must be set exactly when status is sent", r.ID)
	}
	if (r.Status == StatusFailed) != (r.FailureReason != "") {
		return nil, fmt.Errorf("email %s: failureReason must be set exactly when status is failed", r.ID)
	}

	e := &Email{
		id:            r.ID,
		from:          from,
		to:            to,
		content:       content,
		createdAt:     r.CreatedAt,
		status:        r.Status,
		failureReason: r.FailureReason,
	}
	if r.SentAt != nil {
		t := *r.SentAt
		e.sentAt = &t
	}
	return e, nil
}
