package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// JobName is the queue job name for sending a queued email.
	JobName = "send-domain-email"
	// JobType is the payload discriminator for domain emails.
	JobType = "domain-email"
)

// ErrUnknownJobType is returned for payloads whose type is not JobType.
var ErrUnknownJobType = errors.New("unknown email job type")

// JobPayload is the job data written by QueueService and read by the
// worker.
type JobPayload struct {
	Type        string `json:"type"`
	EmailID     string `json:"emailId"`
	From        string `json:"from"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	TextContent string `json:"textContent"`
	HTMLContent string `json:"htmlContent,omitempty"`
}

// DecodePayload parses data and checks the type and required fields.
func DecodePayload(data []byte) (*JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	if p.Type != JobType {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, p.Type)
	}
	missing := ""
	switch {
	case p.EmailID == "":
		missing = "emailId"
	case p.From == "":
		missing = "from"
	case p.To == "":
		missing = "to"
	case p.Subject == "":
		missing = "subject"
	case p.TextContent == "":
		missing = "textContent"
	}
	if missing != "" {
		return nil, fmt.Errorf("job payload missing %s", missing)
	}
	return &p, nil
}

// Command converts the payload into a SendCommand.
func (p *JobPayload) Command() SendCommand {
	return SendCommand{
		EmailID:     p.EmailID,
		From:        p.From,
		To:          p.To,
		Subject:     p.Subject,
		TextContent: p.TextContent,
		HTMLContent: p.HTMLContent,
	}
}
