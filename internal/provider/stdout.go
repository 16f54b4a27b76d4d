package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Stdout prints a summary of each message instead of delivering it.
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdout writes to w, or os.Stdout when w is nil.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{writer: w}
}

func (s *Stdout) GetName() string { return TypeStdout }

func (s *Stdout) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	var b strings.Builder
	b.WriteString("--- email ---\n")
	fmt.Fprintf(&b, "ID:      %s\n", msg.ID)
	fmt.Fprintf(&b, "From:    %s\n", msg.From)
	fmt.Fprintf(&b, "To:      %s\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "Text:    %d bytes\n", len(msg.TextBody))
	if msg.HTMLBody != "" {
		fmt.Fprintf(&b, "HTML:    %d bytes\n", len(msg.HTMLBody))
	}
	b.WriteString("--- end ---\n")

	s.mu.Lock()
	_, err := io.WriteString(s.writer, b.String())
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}
	return sentResult("stdout-"+msg.ID, nil), nil
}

func (s *Stdout) HealthCheck(context.Context) error { return nil }
