package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/email"
)

func validCommand() SendCommand {
	return SendCommand{
		EmailID:     string(fixedID),
		From:        "sender@example.com",
		To:          "user@example.com",
		Subject:     "Hello",
		TextContent: "Hi there",
	}
}

func TestSendService_Success(t *testing.T) {
	repo := newMockRepo()
	sender := &mockSender{}
	svc := NewSendService(repo, sender, zerolog.Nop())

	if err := svc.Send(context.Background(), validCommand()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(sender.statuses) != 1 || sender.statuses[0] != email.StatusPending {
		t.Errorf("sender saw %v, want one pending email", sender.statuses)
	}
	e := repo.mustFind(fixedID)
	if !e.IsSent() || e.SentAt() == nil || e.FailureReason() != "" {
		t.Errorf("stored = %s sentAt=%v reason=%q", e.Status(), e.SentAt(), e.FailureReason())
	}
}

func TestSendService_DeliveryFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantReason string
	}{
		{"delivery error reason", email.NewDeliveryError("timeout", errBoom), "timeout"},
		{"plain error", errors.New("connection refused"), "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			sender := &mockSender{err: tt.err}
			svc := NewSendService(repo, sender, zerolog.Nop())

			err := svc.Send(context.Background(), validCommand())
			if err != tt.err {
				t.Fatalf("Send() error = %v, want the sender's error", err)
			}
			e := repo.mustFind(fixedID)
			if !e.IsFailed() || e.FailureReason() != tt.wantReason || e.SentAt() != nil {
				t.Errorf("stored = %s reason=%q sentAt=%v", e.Status(), e.FailureReason(), e.SentAt())
			}
		})
	}
}

func TestSendService_InvalidCommand(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*SendCommand)
		want   error
	}{
		{"bad sender", func(c *SendCommand) { c.From = "nope" }, email.ErrInvalidAddress},
		{"bad recipient", func(c *SendCommand) { c.To = "x@guerrillamail.com" }, email.ErrInvalidAddress},
		{"no subject", func(c *SendCommand) { c.Subject = "" }, email.ErrInvalidContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			sender := &mockSender{}
			svc := NewSendService(repo, sender, zerolog.Nop())

			cmd := validCommand()
			tt.modify(&cmd)
			if err := svc.Send(context.Background(), cmd); !errors.Is(err, tt.want) {
				t.Fatalf("Send() error = %v, want %v", err, tt.want)
			}
			if len(sender.ids) != 0 || repo.saves != 0 {
				t.Errorf("sender calls = %d saves = %d, want none", len(sender.ids), repo.saves)
			}
		})
	}
}

func TestSendService_RepositoryErrors(t *testing.T) {
	t.Run("save", func(t *testing.T) {
		repo := newMockRepo()
		repo.saveErr = errBoom
		sender := &mockSender{}
		svc := NewSendService(repo, sender, zerolog.Nop())

		if err := svc.Send(context.Background(), validCommand()); !errors.Is(err, errBoom) {
			t.Fatalf("Send() error = %v, want errBoom", err)
		}
		if len(sender.ids) != 0 {
			t.Error("sender called after save failure")
		}
	})

	t.Run("update after success", func(t *testing.T) {
		repo := newMockRepo()
		repo.updateErr = errBoom
		svc := NewSendService(repo, &mockSender{}, zerolog.Nop())

		if err := svc.Send(context.Background(), validCommand()); !errors.Is(err, errBoom) {
			t.Fatalf("Send() error = %v, want errBoom", err)
		}
	})
}

// A job that fails and is attempted again ends Sent: each attempt saves
// the email as Pending before sending.
func TestSendService_RetryAfterFailure(t *testing.T) {
	repo := newMockRepo()
	sender := &mockSender{err: email.NewDeliveryError("timeout", nil)}
	svc := NewSendService(repo, sender, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Send(ctx, validCommand()); err == nil {
		t.Fatal("first Send() error = nil")
	}
	if e := repo.mustFind(fixedID); !e.IsFailed() {
		t.Fatalf("after first attempt status = %s", e.Status())
	}

	sender.err = nil
	if err := svc.Send(ctx, validCommand()); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
	if e := repo.mustFind(fixedID); !e.IsSent() || e.FailureReason() != "" {
		t.Errorf("after retry status = %s reason = %q", e.Status(), e.FailureReason())
	}
	if len(sender.statuses) != 2 || sender.statuses[1] != email.StatusPending {
		t.Errorf("sender saw %v", sender.statuses)
	}
}

// Queue then send through the payload, as a worker would.
func TestQueueThenSend(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	enq := &mockEnqueuer{}
	sender := &mockSender{}
	queueSvc := newTestQueueService(repo, enq, "")
	sendSvc := NewSendService(repo, sender, zerolog.Nop())

	req := validRequest()
	req.HTMLContent = "<b>Hi</b>"
	id, err := queueSvc.QueueEmail(ctx, req)
	if err != nil {
		t.Fatalf("QueueEmail() error = %v", err)
	}

	payload, err := DecodePayload(enq.jobs[0].job.Data)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if err := sendSvc.Send(ctx, payload.Command()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	e := repo.mustFind(id)
	if !e.IsSent() || e.Content().HTML() != "<b>Hi</b>" {
		t.Errorf("stored = %s html=%q", e.Status(), e.Content().HTML())
	}
	if sender.TotalSent() != 1 {
		t.Errorf("TotalSent() = %d", sender.TotalSent())
	}
	if repo.Len() != 1 {
		t.Errorf("repository holds %d emails, want 1", repo.Len())
	}
}
