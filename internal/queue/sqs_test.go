package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const (
	testQueueURL = "https://sqs.example.com/queue"
	testDLQURL   = "https://sqs.example.com/dlq"
)

// mockSQSClient implements sqsAPI for testing.
type mockSQSClient struct {
	mu            sync.Mutex
	messages      []sqsReceivedMessage // messages to return from ReceiveMessage
	sent          []sqsSendInput
	deleted       []sqsDeleteInput
	released      []sqsChangeVisibilityInput
	attrs         map[string]map[string]string
	sendErr       error
	receiveErr    error
	receiveCount  int
	receiveOnce   bool // if true, return messages only on first call then empty
	receiveCalled chan struct{}
}

func newMockSQSClient() *mockSQSClient {
	return &mockSQSClient{
		receiveCalled: make(chan struct{}, 100),
		attrs:         make(map[string]map[string]string),
	}
}

func (m *mockSQSClient) SendMessage(_ context.Context, input *sqsSendInput) (*sqsSendOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, *input)
	return &sqsSendOutput{MessageID: "mock-msg-id"}, nil
}

func (m *mockSQSClient) ReceiveMessage(_ context.Context, _ *sqsReceiveInput) (*sqsReceiveOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveCount++

	select {
	case m.receiveCalled <- struct{}{}:
	default:
	}

	if m.receiveErr != nil {
		return nil, m.receiveErr
	}
	if m.receiveOnce && m.receiveCount > 1 {
		return &sqsReceiveOutput{}, nil
	}
	msgs := make([]sqsReceivedMessage, len(m.messages))
	copy(msgs, m.messages)
	return &sqsReceiveOutput{Messages: msgs}, nil
}

func (m *mockSQSClient) DeleteMessage(_ context.Context, input *sqsDeleteInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, *input)
	return nil
}

func (m *mockSQSClient) ChangeMessageVisibility(_ context.Context, input *sqsChangeVisibilityInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, *input)
	return nil
}

func (m *mockSQSClient) GetQueueAttributes(_ context.Context, queueURL string, _ []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attrs[queueURL], nil
}

func (m *mockSQSClient) getSent() []sqsSendInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sqsSendInput, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockSQSClient) getDeleted() []sqsDeleteInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sqsDeleteInput, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// mockHandler implements JobHandler for testing.
type mockHandler struct {
	err   error
	calls atomic.Int32
}

func (h *mockHandler) HandleJob(_ context.Context, _ *Job) error {
	h.calls.Add(1)
	return h.err
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testSQSConfig() Config {
	return Config{
		WorkerCount:     1,
		SQSWaitTime:     1,
		SQSVisTimeout:   30,
		ProcessTimeout:  5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func jobBody(t *testing.T, job *Job) string {
	t.Helper()
	b, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return string(b)
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSQSEnqueuer_Enqueue(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	enqueuer := NewSQSEnqueuer(mock, testQueueURL, 3, testLogger())

	job := &Job{ID: "job-001", Name: "send-domain-email", Data: json.RawMessage(`{"k":"v"}`)}
	id, err := enqueuer.Enqueue(context.Background(), job, EnqueueOptions{Priority: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "job-001" {
		t.Errorf("Enqueue() id = %q, want job-001", id)
	}

	sent := mock.getSent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	if sent[0].QueueURL != testQueueURL || sent[0].DelaySeconds != 0 {
		t.Errorf("sent = %+v", sent[0])
	}

	decoded, err := decodeJob(sent[0].MessageBody)
	if err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if decoded.Name != "send-domain-email" || decoded.Priority != 2 || decoded.Attempt != 1 {
		t.Errorf("decoded job = %+v", decoded)
	}
	if string(decoded.Data) != `{"k":"v"}` {
		t.Errorf("decoded data = %s", decoded.Data)
	}
}

func TestSQSEnqueuer_Enqueue_Error(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	mock.sendErr = errors.New("sqs unavailable")
	enqueuer := NewSQSEnqueuer(mock, testQueueURL, 3, testLogger())

	_, err := enqueuer.Enqueue(context.Background(), &Job{Name: "x"}, EnqueueOptions{})
	if !errors.Is(err, mock.sendErr) {
		t.Fatalf("Enqueue() error = %v, want wrapped sendErr", err)
	}
}

func TestDelaySeconds(t *testing.T) {
	tests := []struct {
		delay time.Duration
		want  int32
	}{
		{0, 0},
		{-time.Second, 0},
		{1500 * time.Millisecond, 2},
		{60 * time.Second, 60},
		{20 * time.Minute, 900},
	}
	for _, tt := range tests {
		if got := delaySeconds(tt.delay); got != tt.want {
			t.Errorf("delaySeconds(%v) = %d, want %d", tt.delay, got, tt.want)
		}
	}
}

func TestSQSDequeuer_StartStop(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	enqueuer := NewSQSEnqueuer(mock, testQueueURL, 3, testLogger())
	cfg := testSQSConfig()
	cfg.WorkerCount = 2
	dequeuer := NewSQSDequeuer(mock, testQueueURL, &mockHandler{}, nil, NewRetryStrategy(3, nil), enqueuer, nil, cfg, testLogger())

	ctx := context.Background()
	if err := dequeuer.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	select {
	case <-mock.receiveCalled:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for workers to start polling")
	}

	if err := dequeuer.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
}

func TestSQSDequeuer_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		attempt     int
		handlerErr  error
		wantSentURL string // "" means nothing sent
		wantAttempt int
		wantDelay   bool
		wantDone    int64
	}{
		{name: "success deletes", attempt: 1, wantDone: 1},
		{name: "transient failure retries", attempt: 1, handlerErr: errors.New("temporary failure"),
			wantSentURL: testQueueURL, wantAttempt: 2, wantDelay: true},
		{name: "last attempt dead-letters", attempt: 3, handlerErr: errors.New("still failing"),
			wantSentURL: testDLQURL},
		{name: "permanent failure dead-letters early", attempt: 1, handlerErr: Permanent(errors.New("bad payload")),
			wantSentURL: testDLQURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job := &Job{ID: "job-010", Name: "send-domain-email", Attempt: tt.attempt, Priority: 1}
			mock := newMockSQSClient()
			mock.messages = []sqsReceivedMessage{{MessageID: "sqs-1", ReceiptHandle: "receipt-1", Body: jobBody(t, job)}}
			mock.receiveOnce = true

			completed := new(atomic.Int64)
			enqueuer := NewSQSEnqueuer(mock, testQueueURL, 3, testLogger())
			dlq := NewSQSDLQ(mock, testDLQURL, enqueuer, testLogger())
			dequeuer := NewSQSDequeuer(mock, testQueueURL, &mockHandler{err: tt.handlerErr}, dlq,
				NewRetryStrategy(3, nil), enqueuer, completed, testSQSConfig(), testLogger())

			ctx := context.Background()
			if err := dequeuer.Start(ctx); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			waitFor(t, 5*time.Second, func() bool { return len(mock.getDeleted()) > 0 })
			if err := dequeuer.Stop(ctx); err != nil {
				t.Fatalf("Stop() error = %v", err)
			}

			if got := mock.getDeleted()[0].ReceiptHandle; got != "receipt-1" {
				t.Errorf("deleted receipt = %q", got)
			}
			if completed.Load() != tt.wantDone {
				t.Errorf("completed = %d, want %d", completed.Load(), tt.wantDone)
			}

			sent := mock.getSent()
			if tt.wantSentURL == "" {
				if len(sent) != 0 {
					t.Fatalf("sent %d messages, want none", len(sent))
				}
				return
			}
			if len(sent) != 1 || sent[0].QueueURL != tt.wantSentURL {
				t.Fatalf("sent = %+v, want one to %s", sent, tt.wantSentURL)
			}
			if tt.wantDelay && sent[0].DelaySeconds <= 0 {
				t.Errorf("retry DelaySeconds = %d, want > 0", sent[0].DelaySeconds)
			}

			if tt.wantSentURL == testQueueURL {
				retried, err := decodeJob(sent[0].MessageBody)
				if err != nil {
					t.Fatalf("decode retry: %v", err)
				}
				if retried.Attempt != tt.wantAttempt {
					t.Errorf("retried Attempt = %d, want %d", retried.Attempt, tt.wantAttempt)
				}
				return
			}

			var dl DeadLetter
			if err := json.Unmarshal([]byte(sent[0].MessageBody), &dl); err != nil {
				t.Fatalf("unmarshal dead letter: %v", err)
			}
			if dl.Job == nil || dl.Job.ID != "job-010" || dl.Reason != tt.handlerErr.Error() {
				t.Errorf("dead letter = %+v", dl)
			}
		})
	}
}

func TestSQSDLQ_Reprocess(t *testing.T) {
	t.Parallel()

	wantedBody, _ := json.Marshal(DeadLetter{
		Job:    &Job{ID: "job-050", Name: "send-domain-email", Attempt: 3, Priority: 2},
		Reason: "some error",
	})
	otherBody, _ := json.Marshal(DeadLetter{
		Job:    &Job{ID: "job-051", Name: "send-domain-email", Attempt: 3},
		Reason: "other error",
	})

	mock := newMockSQSClient()
	mock.messages = []sqsReceivedMessage{
		{MessageID: "dlq-sqs-1", ReceiptHandle: "dlq-receipt-1", Body: string(wantedBody)},
		{MessageID: "dlq-sqs-2", ReceiptHandle: "dlq-receipt-2", Body: string(otherBody)},
	}
	enqueuer := NewSQSEnqueuer(mock, testQueueURL, 3, testLogger())
	dlq := NewSQSDLQ(mock, testDLQURL, enqueuer, testLogger())

	count, err := dlq.Reprocess(context.Background(), []string{"job-050"})
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Reprocess() = %d, want 1", count)
	}

	sent := mock.getSent()
	if len(sent) != 1 || sent[0].QueueURL != testQueueURL {
		t.Fatalf("sent = %+v", sent)
	}
	requeued, _ := decodeJob(sent[0].MessageBody)
	if requeued.ID != "job-050" || requeued.Attempt != 1 || requeued.Priority != 2 {
		t.Errorf("requeued = %+v", requeued)
	}

	deleted := mock.getDeleted()
	if len(deleted) != 1 || deleted[0].ReceiptHandle != "dlq-receipt-1" {
		t.Errorf("deleted = %+v", deleted)
	}
	mock.mu.Lock()
	released := len(mock.released)
	mock.mu.Unlock()
	if released == 0 {
		t.Error("non-matching dead letter was not released")
	}
}

func TestSQSDLQ_ReprocessEmpty(t *testing.T) {
	mock := newMockSQSClient()
	dlq := NewSQSDLQ(mock, testDLQURL, NewSQSEnqueuer(mock, testQueueURL, 3, testLogger()), testLogger())
	n, err := dlq.Reprocess(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("Reprocess(nil) = %d, %v", n, err)
	}
	if mock.receiveCount != 0 {
		t.Error("Reprocess(nil) polled the DLQ")
	}
}

func TestSQSInspector_Status(t *testing.T) {
	mock := newMockSQSClient()
	mock.attrs[testQueueURL] = map[string]string{
		attrVisible:    "7",
		attrNotVisible: "2",
		attrDelayed:    "3",
	}
	mock.attrs[testDLQURL] = map[string]string{attrVisible: "4"}

	completed := new(atomic.Int64)
	completed.Store(11)
	s, err := NewSQSInspector(mock, testQueueURL, testDLQURL, completed).Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	want := Status{Waiting: 7, Active: 2, Delayed: 3, Completed: 11, Failed: 4}
	if s != want {
		t.Errorf("Status() = %+v, want %+v", s, want)
	}
}
