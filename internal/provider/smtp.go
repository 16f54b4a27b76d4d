package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// SMTP relays messages to an upstream SMTP server with optional STARTTLS
// and AUTH PLAIN.
type SMTP struct {
	addr      string
	host      string
	username  string
	password  string
	startTLS  bool
	tlsConfig *tls.Config
	dialer    net.Dialer
	now       func() time.Time
}

func NewSMTP(cfg ProviderConfig) *SMTP {
	return &SMTP{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:      cfg.Host,
		username:  cfg.Username,
		password:  cfg.Password,
		startTLS:  cfg.StartTLS,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		dialer:    net.Dialer{Timeout: cfg.Timeout},
		now:       time.Now,
	}
}

func (s *SMTP) GetName() string { return TypeSMTP }

func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	raw, err := renderMessage(msg, s.now())
	if err != nil {
		return nil, fmt.Errorf("smtp: render message: %w", err)
	}

	c, closeConn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	if err := c.Mail(msg.From, nil); err != nil {
		return nil, classifySMTPError("MAIL FROM", err)
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return nil, classifySMTPError("RCPT TO", err)
	}
	w, err := c.Data()
	if err != nil {
		return nil, classifySMTPError("DATA", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, classifySMTPError("DATA", err)
	}
	if err := w.Close(); err != nil {
		return nil, classifySMTPError("DATA", err)
	}
	// The relay accepted the message at the end of DATA; a failed QUIT
	// does not change that.
	_ = c.Quit()

	return sentResult(fmt.Sprintf("<%s@%s>", msg.ID, messageIDDomain), map[string]string{"relay": s.addr}), nil
}

// HealthCheck opens a session and issues NOOP.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, closeConn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer closeConn()
	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp: noop: %w", err)
	}
	return c.Quit()
}

// connect dials, greets, upgrades and authenticates. The returned func
// closes the connection and releases the context watcher.
func (s *SMTP) connect(ctx context.Context) (*gosmtp.Client, func(), error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, nil, &ProviderError{Provider: TypeSMTP, Message: "dial " + s.addr + ": " + err.Error(), Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	var c *gosmtp.Client
	if s.startTLS {
		// NewClientStartTLS sends EHLO and upgrades before returning.
		c, err = gosmtp.NewClientStartTLS(conn, s.tlsConfig)
		if err != nil {
			stop()
			conn.Close()
			return nil, nil, classifySMTPError("STARTTLS", err)
		}
	} else {
		c = gosmtp.NewClient(conn)
		if err := c.Hello("localhost"); err != nil {
			stop()
			c.Close()
			return nil, nil, classifySMTPError("EHLO", err)
		}
	}
	closeConn := func() {
		stop()
		c.Close()
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			closeConn()
			return nil, nil, classifySMTPError("AUTH", err)
		}
	}
	return c, closeConn, nil
}

// classifySMTPError maps SMTP reply codes: 5xx is permanent, 4xx transient.
// Network errors are transient.
func classifySMTPError(stage string, err error) error {
	var se *gosmtp.SMTPError
	if errors.As(err, &se) {
		return &ProviderError{
			Provider:   TypeSMTP,
			StatusCode: se.Code,
			Message:    fmt.Sprintf("%s: %d %s", stage, se.Code, se.Message),
			Permanent:  se.Code >= 500,
			Err:        err,
		}
	}
	return &ProviderError{Provider: TypeSMTP, Message: stage + ": " + err.Error(), Err: err}
}
