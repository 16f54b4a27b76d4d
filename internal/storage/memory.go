package storage

import (
	"context"
	"sync"

	"github.com/sungwon/email-queue/internal/email"
)

// MemoryRepository is an in-process email.Repository. Records are stored by
// value so callers never share state with the store.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[email.ID]email.Record
	order   []email.ID
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[email.ID]email.Record)}
}

var _ email.Repository = (*MemoryRepository)(nil)

// Save inserts or overwrites the email. An overwrite keeps the original
// insertion position.
func (r *MemoryRepository) Save(_ context.Context, e *email.Email) error {
	rec := e.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; !exists {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = rec
	return nil
}

// FindByID returns a copy of the stored email.
func (r *MemoryRepository) FindByID(_ context.Context, id email.ID) (*email.Email, bool, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	e, err := email.Restore(rec)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (r *MemoryRepository) FindByRecipient(_ context.Context, to email.Address) ([]*email.Email, error) {
	return r.filter(func(rec email.Record) bool { return rec.To == to.String() })
}

func (r *MemoryRepository) FindPending(_ context.Context) ([]*email.Email, error) {
	return r.filter(func(rec email.Record) bool { return rec.Status == email.StatusPending })
}

func (r *MemoryRepository) FindFailed(_ context.Context) ([]*email.Email, error) {
	return r.filter(func(rec email.Record) bool { return rec.Status == email.StatusFailed })
}

// UpdateStatus overwrites an existing record with the email's current state.
func (r *MemoryRepository) UpdateStatus(_ context.Context, e *email.Email) error {
	rec := e.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.ID]; !ok {
		return &email.NotFoundError{ID: rec.ID}
	}
	r.records[rec.ID] = rec
	return nil
}

// Delete removes the email. Missing IDs are ignored.
func (r *MemoryRepository) Delete(_ context.Context, id email.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return nil
	}
	delete(r.records, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored emails.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *MemoryRepository) Close() {}

func (r *MemoryRepository) filter(match func(email.Record) bool) ([]*email.Email, error) {
	r.mu.RLock()
	matched := make([]email.Record, 0)
	for _, id := range r.order {
		if rec := r.records[id]; match(rec) {
			matched = append(matched, rec)
		}
	}
	r.mu.RUnlock()

	out := make([]*email.Email, 0, len(matched))
	for _, rec := range matched {
		e, err := email.Restore(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
