package delivery

import (
	"errors"
	"testing"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
		unknown bool
	}{
		{
			name: "valid",
			data: `{"type":"domain-email","emailId":"email_1_abcdefghi","from":"a@example.com","to":"b@example.com","subject":"s","textContent":"t"}`,
		},
		{
			name:    "unknown type",
			data:    `{"type":"newsletter","emailId":"e","from":"a","to":"b","subject":"s","textContent":"t"}`,
			wantErr: `unknown email job type: "newsletter"`,
			unknown: true,
		},
		{
			name:    "missing type",
			data:    `{"emailId":"e"}`,
			wantErr: `unknown email job type: ""`,
			unknown: true,
		},
		{
			name:    "missing emailId",
			data:    `{"type":"domain-email","from":"a","to":"b","subject":"s","textContent":"t"}`,
			wantErr: "job payload missing emailId",
		},
		{
			name:    "missing textContent",
			data:    `{"type":"domain-email","emailId":"e","from":"a","to":"b","subject":"s"}`,
			wantErr: "job payload missing textContent",
		},
		{
			name:    "not json",
			data:    `{`,
			wantErr: "decode job payload: unexpected end of JSON input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayload([]byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("DecodePayload() error = %v", err)
				}
				if cmd := p.Command(); cmd.EmailID != "email_1_abcdefghi" || cmd.TextContent != "t" {
					t.Errorf("Command() = %+v", cmd)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("DecodePayload() error = %v, want %q", err, tt.wantErr)
			}
			if errors.Is(err, ErrUnknownJobType) != tt.unknown {
				t.Errorf("errors.Is(ErrUnknownJobType) = %v, want %v", !tt.unknown, tt.unknown)
			}
		})
	}
}
