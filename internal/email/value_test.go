package email

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"
)

func TestNewAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", "user@example.com", "user@example.com", false},
		{"normalized", "  User@Example.COM ", "user@example.com", false},
		{"subdomain", "ops@mail.example.co.uk", "ops@mail.example.co.uk", false},
		{"not an email", "not-an-email", "", true},
		{"missing tld", "user@example", "", true},
		{"whitespace inside", "us er@example.com", "", true},
		{"empty", "   ", "", true},
		{"denylisted tempmail", "a@tempmail.org", "", true},
		{"denylisted case insensitive", "a@10MinuteMail.com", "", true},
		{"denylisted guerrilla", "a@guerrillamail.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAddress(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Fatalf("NewAddress(%q) error = %v, want ErrInvalidAddress", tt.input, err)
				}
				var ae *AddressError
				if !errors.As(err, &ae) {
					t.Fatalf("error type = %T, want *AddressError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAddress(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("String() = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestAddress_EqualAndDomain(t *testing.T) {
	a := MustAddress("User@Example.com")
	b := MustAddress("user@example.com")
	if !a.Equal(b) {
		t.Errorf("%s should equal %s", a, b)
	}
	if a.Domain() != "example.com" {
		t.Errorf("Domain() = %q, want example.com", a.Domain())
	}
}

func TestNewContent(t *testing.T) {
	tests := []struct {
		name      string
		subject   string
		text      string
		html      string
		wantErr   bool
		wantField string
	}{
		{"plain", "Hi", "Body", "", false, ""},
		{"with html", " Hi ", " Body ", " <p>Body</p> ", false, ""},
		{"empty subject", "", "Body", "", true, "subject"},
		{"whitespace text", "Hi", "   ", "", true, "textContent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewContent(tt.subject, tt.text, tt.html)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidContent) {
					t.Fatalf("NewContent() error = %v, want ErrInvalidContent", err)
				}
				var ce *ContentError
				if !errors.As(err, &ce) || ce.Field != tt.wantField {
					t.Errorf("ContentError field = %v, want %s", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewContent() error = %v", err)
			}
			if c.Subject() != strings.TrimSpace(tt.subject) || c.Text() != strings.TrimSpace(tt.text) {
				t.Errorf("content = %q/%q, want trimmed values", c.Subject(), c.Text())
			}
			if c.HasHTML() != (strings.TrimSpace(tt.html) != "") {
				t.Errorf("HasHTML() = %v", c.HasHTML())
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	rnd := rand.New(rand.NewPCG(1, 2))

	id := GenerateID(now, rnd)
	if !IsValidID(id.String()) {
		t.Fatalf("GenerateID() = %q, does not match ID format", id)
	}
	if !strings.HasPrefix(id.String(), "email_1700000000123_") {
		t.Errorf("GenerateID() = %q, want timestamp prefix", id)
	}

	again := GenerateID(now, rand.New(rand.NewPCG(1, 2)))
	if again != id {
		t.Errorf("GenerateID() with same inputs = %q, want %q", again, id)
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[ID]struct{})
	for range 1000 {
		id := NewID()
		if !IsValidID(id.String()) {
			t.Fatalf("NewID() = %q, invalid format", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("NewID() returned duplicate %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIsValidID(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"email_1700000000000_abc123xyz", true},
		{"email_1_000000000", true},
		{"email_abc_abc123xyz", false},
		{"email_1700000000000_abc123xy", false},
		{"email_1700000000000_ABC123XYZ", false},
		{"job_1700000000000_abc123xyz", false},
	}
	for _, tt := range tests {
		if got := IsValidID(tt.input); got != tt.want {
			t.Errorf("IsValidID(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"address", &AddressError{Address: "x", Reason: "bad"}, CodeInvalidAddress},
		{"content", &ContentError{Field: "subject", Reason: "is required"}, CodeInvalidContent},
		{"transition", &TransitionError{From: StatusSent, To: StatusFailed}, CodeInvalidTransition},
		{"not found", &NotFoundError{ID: "x"}, CodeNotFound},
		{"delivery", NewDeliveryError("timeout", errors.New("ctx deadline")), CodeDeliveryFailed},
		{"other", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeliveryError_UnwrapAndReason(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(NewDeliveryError("failed to send email: connection reset", cause))

	if !errors.Is(err, ErrDeliveryFailed) {
		t.Error("errors.Is(err, ErrDeliveryFailed) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if got := FailureReason(err); got != "failed to send email: connection reset" {
		t.Errorf("FailureReason() = %q", got)
	}
	if got := FailureReason(errors.New("plain")); got != "plain" {
		t.Errorf("FailureReason(plain) = %q", got)
	}
}
