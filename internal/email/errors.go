package email

import (
	"errors"
	"fmt"
)

// Sentinel errors for the email domain. Concrete error types below match
// their sentinel with errors.Is.
var (
	ErrInvalidAddress    = errors.New("invalid email address")
	ErrInvalidContent    = errors.New("invalid email content")
	ErrInvalidTransition = errors.New("invalid email status transition")
	ErrNotFound          = errors.New("email not found")
	ErrDeliveryFailed    = errors.New("email delivery failed")
)

// Error codes returned to API clients.
const (
	CodeInvalidAddress    = "INVALID_EMAIL_ADDRESS"
	CodeInvalidContent    = "EMAIL_CONTENT_VALIDATION"
	CodeInvalidTransition = "INVALID_STATUS_TRANSITION"
	CodeNotFound          = "EMAIL_NOT_FOUND"
	CodeDeliveryFailed    = "EMAIL_DELIVERY_FAILED"
)

// AddressError reports a malformed or denylisted address.
type AddressError struct {
	Address string
	Reason  string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid email address %q: %s", e.Address, e.Reason)
}

func (e *AddressError) Is(target error) bool { return target == ErrInvalidAddress }

// ContentError reports an empty subject or text body.
type ContentError struct {
	Field  string
	Reason string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("invalid email content: %s %s", e.Field, e.Reason)
}

func (e *ContentError) Is(target error) bool { return target == ErrInvalidContent }

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	ID   ID
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("email %s: cannot transition from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NotFoundError is returned by repository operations that require an
// existing record.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("email %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DeliveryError is returned by a delivery port when the provider call fails.
// Reason is the single-line text recorded on the entity; Err is the
// underlying provider or network error.
type DeliveryError struct {
	Reason string
	Err    error
}

// NewDeliveryError builds a DeliveryError with the given reason and cause.
func NewDeliveryError(reason string, cause error) *DeliveryError {
	return &DeliveryError{Reason: reason, Err: cause}
}

func (e *DeliveryError) Error() string { return e.Reason }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

func (e *DeliveryError) Unwrap() error { return e.Err }

// Code maps a domain error to its API error code. Non-domain errors map to "".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAddress):
		return CodeInvalidAddress
	case errors.Is(err, ErrInvalidContent):
		return CodeInvalidContent
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDeliveryFailed):
		return CodeDeliveryFailed
	default:
		return ""
	}
}

// IsValidation reports whether err is an address or content validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrInvalidContent)
}

// IsDomain reports whether err belongs to the email error taxonomy.
func IsDomain(err error) bool {
	return Code(err) != ""
}

// FailureReason returns the text to record on a failed email for err.
func FailureReason(err error) string {
	var de *DeliveryError
	if errors.As(err, &de) && de.Reason != "" {
		return de.Reason
	}
	return err.Error()
}
