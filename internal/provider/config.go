package provider

import (
	"errors"
	"time"
)

// Provider type names.
const (
	TypeSendGrid = "sendgrid"
	TypeMailgun  = "mailgun"
	TypeSES      = "ses"
	TypeResend   = "resend"
	TypePostmark = "postmark"
	TypeSMTP     = "smtp"
	TypeStdout   = "stdout"
	TypeFile     = "file"
)

// ProviderConfig configures the delivery provider.
type ProviderConfig struct {
	// Type is one of the Type* constants.
	Type string

	// APIKey authenticates API providers. For ses it is the access key ID;
	// for postmark it is the server token.
	APIKey string
	// SecretKey is the SES secret access key.
	SecretKey string
	// AccountToken is the Postmark account token, used for health checks.
	AccountToken string

	// Endpoint overrides the provider's base URL.
	Endpoint string
	// Region is the AWS region for ses.
	Region string
	// Domain is the Mailgun sending domain.
	Domain string

	// SMTP relay settings.
	Host     string
	Port     int
	Username string
	Password string
	StartTLS bool

	Timeout time.Duration
}

const defaultTimeout = 30 * time.Second

// Validate checks the fields the configured type requires and fills in
// defaults.
func (c *ProviderConfig) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	switch c.Type {
	case TypeSendGrid:
		if c.APIKey == "" {
			return errors.New("sendgrid: api_key is required")
		}
	case TypeMailgun:
		if c.APIKey == "" {
			return errors.New("mailgun: api_key is required")
		}
		if c.Domain == "" {
			return errors.New("mailgun: domain is required")
		}
	case TypeSES:
		if c.Region == "" {
			return errors.New("ses: region is required")
		}
		if (c.APIKey == "") != (c.SecretKey == "") {
			return errors.New("ses: api_key and secret_key must be set together")
		}
	case TypeResend:
		if c.APIKey == "" {
			return errors.New("resend: api_key is required")
		}
	case TypePostmark:
		if c.APIKey == "" {
			return errors.New("postmark: api_key (server token) is required")
		}
	case TypeSMTP:
		if c.Host == "" {
			return errors.New("smtp: host is required")
		}
		if c.Port == 0 {
			c.Port = 587
		}
		if c.Username != "" && c.Password == "" {
			return errors.New("smtp: password is required when username is set")
		}
	case TypeStdout, TypeFile:
	default:
		return errors.New("unknown provider type: " + c.Type)
	}
	return nil
}
