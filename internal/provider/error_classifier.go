package provider

import (
	"errors"
	"strings"
)

// ProviderError is a provider failure classified as permanent or transient.
type ProviderError struct {
	// Provider is the provider type that failed.
	Provider string
	// StatusCode is the HTTP or SMTP status code, 0 when not applicable.
	StatusCode int
	Message    string
	// Permanent means a retry of the same message cannot succeed.
	Permanent bool
	Err       error
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a ProviderError marked permanent.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}

// IsTransient reports whether err may succeed on retry. Unclassified
// errors are transient.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Permanent
	}
	return true
}

// ClassifyHTTPError builds a ProviderError from an API status code and
// body. It returns nil for 2xx.
func ClassifyHTTPError(providerName string, statusCode int, body string) *ProviderError {
	pe := &ProviderError{
		Provider:   providerName,
		StatusCode: statusCode,
		Message:    body,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == 400:
		pe.Permanent = containsAny(body, permanentRequestPatterns)
	case statusCode == 401, statusCode == 403, statusCode == 404:
		pe.Permanent = true
	case statusCode == 408, statusCode == 429:
		pe.Permanent = false
	case statusCode >= 500:
		pe.Permanent = containsAny(body, permanentAccountPatterns)
	default:
		pe.Permanent = statusCode >= 400 && statusCode < 500
	}
	return pe
}

// classifyMessageError classifies SDK errors that only expose a message.
func classifyMessageError(providerName string, err error) *ProviderError {
	msg := err.Error()
	return &ProviderError{
		Provider:  providerName,
		Message:   msg,
		Permanent: containsAny(msg, permanentRequestPatterns) || containsAny(msg, permanentAccountPatterns),
		Err:       err,
	}
}

var permanentRequestPatterns = []string{
	"invalid recipient",
	"invalid email",
	"does not exist",
	"mailbox not found",
	"recipient rejected",
	"bad request",
	"validation error",
	"invalid address",
	"domain is not verified",
}

var permanentAccountPatterns = []string{
	"invalid api key",
	"authentication failed",
	"account suspended",
	"account disabled",
	"unauthorized",
}

func containsAny(s string, patterns []string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
