package delivery

import (
	"context"
	"errors"
	"sync"

	"github.com/sungwon/email-queue/internal/email"
	"github.com/sungwon/email-queue/internal/queue"
	"github.com/sungwon/email-queue/internal/storage"
)

var errBoom = errors.New("boom")

// mockRepo wraps the in-memory repository and can fail Save or
// UpdateStatus.
type mockRepo struct {
	*storage.MemoryRepository
	saveErr   error
	updateErr error
	saves     int
}

func newMockRepo() *mockRepo {
	return &mockRepo{MemoryRepository: storage.NewMemoryRepository()}
}

func (r *mockRepo) Save(ctx context.Context, e *email.Email) error {
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.MemoryRepository.Save(ctx, e)
}

func (r *mockRepo) UpdateStatus(ctx context.Context, e *email.Email) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.MemoryRepository.UpdateStatus(ctx, e)
}

func (r *mockRepo) mustFind(id email.ID) *email.Email {
	e, ok, err := r.FindByID(context.Background(), id)
	if err != nil || !ok {
		return nil
	}
	return e
}

// mockSender records the status each email had when it was sent.
type mockSender struct {
	err      error
	statuses []email.Status
	ids      []email.ID
	sent     int64
}

func (s *mockSender) Send(_ context.Context, e *email.Email) error {
	s.statuses = append(s.statuses, e.Status())
	s.ids = append(s.ids, e.ID())
	if s.err != nil {
		return s.err
	}
	s.sent++
	return nil
}

func (s *mockSender) TotalSent() int64 { return s.sent }

type enqueued struct {
	job  *queue.Job
	opts queue.EnqueueOptions
}

type mockEnqueuer struct {
	mu   sync.Mutex
	err  error
	jobs []enqueued
}

func (m *mockEnqueuer) Enqueue(_ context.Context, job *queue.Job, opts queue.EnqueueOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.jobs = append(m.jobs, enqueued{job: job, opts: opts})
	return job.ID, nil
}
