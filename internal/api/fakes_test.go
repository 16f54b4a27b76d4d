package api

import (
	"context"
	"errors"
	"sync"

	"github.com/sungwon/email-queue/internal/delivery"
	"github.com/sungwon/email-queue/internal/email"
	"github.com/sungwon/email-queue/internal/queue"
)

var errBoom = errors.New("boom")

type fakeQueuer struct {
	mu       sync.Mutex
	id       email.ID
	err      error
	retryErr error
	queued   []delivery.QueueEmailRequest
	retried  []email.ID
	opts     []delivery.EnqueueOptions
}

func (f *fakeQueuer) QueueEmail(_ context.Context, req delivery.QueueEmailRequest) (email.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.queued = append(f.queued, req)
	return f.id, nil
}

func (f *fakeQueuer) RetryEmail(_ context.Context, id email.ID, opts delivery.EnqueueOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retryErr != nil {
		return f.retryErr
	}
	f.retried = append(f.retried, id)
	f.opts = append(f.opts, opts)
	return nil
}

type fakeLimiter struct {
	remaining int
	err       error
	clients   []string
}

func (f *fakeLimiter) Allow(_ context.Context, clientID string) (int, error) {
	f.clients = append(f.clients, clientID)
	return f.remaining, f.err
}

type fakeQueueOps struct {
	status      queue.Status
	statusErr   error
	reprocessed int
	reprocErr   error
	ids         []string
}

func (f *fakeQueueOps) MoveToDLQ(context.Context, *queue.Job, string) error { return nil }

func (f *fakeQueueOps) Reprocess(_ context.Context, ids []string) (int, error) {
	f.ids = ids
	return f.reprocessed, f.reprocErr
}

func (f *fakeQueueOps) Status(context.Context) (queue.Status, error) {
	return f.status, f.statusErr
}

type fakeCounter int64

func (c fakeCounter) TotalSent() int64 { return int64(c) }
