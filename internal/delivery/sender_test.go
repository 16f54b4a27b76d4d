package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/email"
	"github.com/sungwon/email-queue/internal/provider"
)

type mockProvider struct {
	err   error
	block bool
	msgs  []*provider.Message
}

func (p *mockProvider) Send(ctx context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	p.msgs = append(p.msgs, msg)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &provider.DeliveryResult{ProviderMessageID: "pm-" + msg.ID, Status: provider.StatusSent}, nil
}

func (p *mockProvider) GetName() string                   { return "mock" }
func (p *mockProvider) HealthCheck(context.Context) error { return nil }

func testEmail(t *testing.T, html string) *email.Email {
	t.Helper()
	content, err := email.NewContent("Hello", "Hi there", html)
	if err != nil {
		t.Fatalf("NewContent() error = %v", err)
	}
	return email.New(fixedID, email.MustAddress("sender@example.com"), email.MustAddress("user@example.com"), content)
}

func TestProviderSender_Success(t *testing.T) {
	p := &mockProvider{}
	s := NewProviderSender(p, time.Second, zerolog.Nop())
	e := testEmail(t, "<p>Hi</p>")

	for i := 0; i < 2; i++ {
		if err := s.Send(context.Background(), e); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	if s.TotalSent() != 2 {
		t.Errorf("TotalSent() = %d, want 2", s.TotalSent())
	}
	msg := p.msgs[0]
	if msg.ID != string(fixedID) || msg.From != "sender@example.com" || msg.To != "user@example.com" ||
		msg.Subject != "Hello" || msg.TextBody != "Hi there" || msg.HTMLBody != "<p>Hi</p>" {
		t.Errorf("message = %+v", msg)
	}
	if !e.IsPending() {
		t.Errorf("Send() changed status to %s", e.Status())
	}
}

func TestProviderSender_Failure(t *testing.T) {
	cause := &provider.ProviderError{Provider: "mock", StatusCode: 401, Message: "bad key", Permanent: true}
	p := &mockProvider{err: cause}
	s := NewProviderSender(p, time.Second, zerolog.Nop())
	e := testEmail(t, "")

	err := s.Send(context.Background(), e)

	var de *email.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("error = %T, want *email.DeliveryError", err)
	}
	if de.Reason != "failed to send email: mock: bad key" {
		t.Errorf("Reason = %q", de.Reason)
	}
	if !errors.Is(err, email.ErrDeliveryFailed) {
		t.Error("errors.Is(err, ErrDeliveryFailed) = false")
	}
	if !provider.IsPermanent(err) {
		t.Error("provider classification lost through DeliveryError")
	}
	if s.TotalSent() != 0 {
		t.Errorf("TotalSent() = %d after failure", s.TotalSent())
	}
	if len(p.msgs) != 1 {
		t.Errorf("provider called %d times, want exactly 1", len(p.msgs))
	}
	if !e.IsPending() {
		t.Errorf("Send() changed status to %s", e.Status())
	}
}

func TestProviderSender_Timeout(t *testing.T) {
	p := &mockProvider{block: true}
	s := NewProviderSender(p, 20*time.Millisecond, zerolog.Nop())

	err := s.Send(context.Background(), testEmail(t, ""))
	if err == nil {
		t.Fatal("Send() error = nil, want timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded in chain", err)
	}
	if reason := email.FailureReason(err); !strings.HasPrefix(reason, "failed to send email: timeout after 20ms") {
		t.Errorf("reason = %q", reason)
	}
}

func TestNewProviderSender_DefaultTimeout(t *testing.T) {
	s := NewProviderSender(&mockProvider{}, 0, zerolog.Nop())
	if s.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", s.timeout)
	}
}
