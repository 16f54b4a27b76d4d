// Package main provides a standalone CLI tool for exercising the email queue
// API. It queues test emails with optional batch rate limiting and mints the
// credentials the API accepts.
//
// Usage:
//
//	test-client send --token $TOKEN --to recipient@example.com --subject "Test" --body "Hello"
//	test-client send --token $TOKEN --to recipient@example.com --count 10 --rate 5
//	test-client token --signing-key secret --client ops --role admin
//	test-client apikey --client billing --role client
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sungwon/email-queue/internal/auth"
)

type sendConfig struct {
	url      string
	token    string
	from     string
	to       stringSlice
	subject  string
	body     string
	html     string
	priority int
	delay    time.Duration
	count    int
	rate     float64
}

// stringSlice implements flag.Value for repeatable --to flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "apikey":
		err = runAPIKey(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: test-client <send|token|apikey> [options]\n\n")
	fmt.Fprintf(os.Stderr, "  send    queue test emails through the API\n")
	fmt.Fprintf(os.Stderr, "  token   mint a JWT for a client\n")
	fmt.Fprintf(os.Stderr, "  apikey  generate an API key and its config entry\n")
}

func runSend(args []string) error {
	var cfg sendConfig
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	fs.StringVar(&cfg.url, "url", "http://localhost:3000", "API base URL")
	fs.StringVar(&cfg.token, "token", os.Getenv("EMAIL_QUEUE_TOKEN"), "Bearer token or API key")
	fs.StringVar(&cfg.from, "from", "", "Sender email address (server default when empty)")
	fs.Var(&cfg.to, "to", "Recipient email address (can be specified multiple times)")
	fs.StringVar(&cfg.subject, "subject", "Test Email", "Email subject")
	fs.StringVar(&cfg.body, "body", "This is a test email sent by the email-queue test-client.", "Text body")
	fs.StringVar(&cfg.html, "html", "", "HTML body")
	fs.IntVar(&cfg.priority, "priority", 1, "Job priority, lower runs first")
	fs.DurationVar(&cfg.delay, "delay", 0, "Delay before the job runs")
	fs.IntVar(&cfg.count, "count", 1, "Number of emails to send (for batch testing)")
	fs.Float64Var(&cfg.rate, "rate", 1, "Emails per second for batch sending")
	_ = fs.Parse(args)

	if cfg.token == "" {
		return fmt.Errorf("--token is required")
	}
	if len(cfg.to) == 0 {
		return fmt.Errorf("at least one --to is required")
	}

	fmt.Printf("Email Queue Test Client\n")
	fmt.Printf("  API:      %s\n", cfg.url)
	fmt.Printf("  To:       %s\n", strings.Join(cfg.to, ", "))
	fmt.Printf("  Count:    %d\n", cfg.count)
	if cfg.count > 1 {
		fmt.Printf("  Rate:     %.1f emails/sec\n", cfg.rate)
	}
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}
	var (
		successCount int
		failCount    int
		totalSend    time.Duration
	)

	interval := time.Duration(0)
	if cfg.count > 1 && cfg.rate > 0 {
		interval = time.Duration(float64(time.Second) / cfg.rate)
	}

	for i := 0; i < cfg.count; i++ {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}

		seq := i + 1
		subject := cfg.subject
		body := cfg.body
		if cfg.count > 1 {
			subject = fmt.Sprintf("%s [%d/%d]", cfg.subject, seq, cfg.count)
			body = fmt.Sprintf("%s\n\n-- Email %d of %d --", cfg.body, seq, cfg.count)
		}

		for _, to := range cfg.to {
			sendStart := time.Now()
			id, err := queueEmail(client, cfg, to, subject, body)
			sendDuration := time.Since(sendStart)
			totalSend += sendDuration

			if err != nil {
				failCount++
				fmt.Printf("  [%d/%d] FAIL %s (%s): %v\n", seq, cfg.count, to, sendDuration, err)
			} else {
				successCount++
				fmt.Printf("  [%d/%d] OK   %s %s (%s)\n", seq, cfg.count, to, id, sendDuration)
			}
		}
	}

	fmt.Println()
	fmt.Printf("Results: %d queued, %d failed, total time %s\n", successCount, failCount, totalSend)

	if failCount > 0 {
		return fmt.Errorf("%d emails failed", failCount)
	}
	return nil
}

func queueEmail(client *http.Client, cfg sendConfig, to, subject, body string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"from":        cfg.from,
		"to":          to,
		"subject":     subject,
		"textContent": body,
		"htmlContent": cfg.html,
		"priority":    cfg.priority,
		"delay":       cfg.delay.Milliseconds(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(cfg.url, "/")+"/api/v1/emails", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		EmailID string `json:"emailId"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.EmailID, nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	key := fs.String("signing-key", os.Getenv("EMAIL_QUEUE_AUTH_JWT_SIGNING_KEY"), "JWT signing key")
	client := fs.String("client", "", "Client ID (token subject)")
	role := fs.String("role", auth.RoleClient, "Role: admin or client")
	expiry := fs.Duration("expiry", 24*time.Hour, "Token lifetime")
	issuer := fs.String("issuer", "email-queue", "Token issuer")
	audience := fs.String("audience", "email-queue-api", "Token audience")
	_ = fs.Parse(args)

	if *key == "" || *client == "" {
		return fmt.Errorf("--signing-key and --client are required")
	}

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey:  *key,
		TokenExpiry: *expiry,
		Issuer:      *issuer,
		Audience:    *audience,
	})
	token, err := svc.GenerateToken(*client, *role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runAPIKey(args []string) error {
	fs := flag.NewFlagSet("apikey", flag.ExitOnError)
	client := fs.String("client", "", "Client ID")
	role := fs.String("role", auth.RoleClient, "Role: admin or client")
	_ = fs.Parse(args)

	if *client == "" {
		return fmt.Errorf("--client is required")
	}
	if !auth.ValidRole(*role) {
		return fmt.Errorf("unknown role %q", *role)
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}

	fmt.Printf("API key (shown once): %s\n\n", key)
	fmt.Printf("Add to config.yaml under auth.api_keys:\n")
	fmt.Printf("  - client_id: %s\n    role: %s\n    hash: %q\n", *client, *role, hash)
	return nil
}
