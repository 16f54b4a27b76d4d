package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/email"
)

func newEmail(t *testing.T, id, to string) *email.Email {
	t.Helper()
	content, err := email.NewContent("Subject", "Body", "")
	if err != nil {
		t.Fatalf("NewContent() error = %v", err)
	}
	return email.New(email.ID(id), email.MustAddress("sender@example.com"), email.MustAddress(to), content)
}

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	e := newEmail(t, "email_1_aaaaaaaaa", "user@example.com")

	if err := repo.Save(ctx, e); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := repo.FindByID(ctx, e.ID())
	if err != nil || !ok {
		t.Fatalf("FindByID() = %v, %v, want found", ok, err)
	}
	if got.ID() != e.ID() || got.To().String() != "user@example.com" {
		t.Errorf("FindByID() = %s/%s", got.ID(), got.To())
	}

	_, ok, err = repo.FindByID(ctx, "email_1_missing00")
	if err != nil {
		t.Fatalf("FindByID(missing) error = %v", err)
	}
	if ok {
		t.Error("FindByID(missing) ok = true")
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	e := newEmail(t, "email_1_aaaaaaaaa", "user@example.com")
	_ = repo.Save(ctx, e)

	got, _, _ := repo.FindByID(ctx, e.ID())
	if err := got.MarkAsSent(); err != nil {
		t.Fatalf("MarkAsSent() error = %v", err)
	}

	stored, _, _ := repo.FindByID(ctx, e.ID())
	if !stored.IsPending() {
		t.Errorf("stored status = %s, want pending until UpdateStatus", stored.Status())
	}

	if err := repo.UpdateStatus(ctx, got); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	stored, _, _ = repo.FindByID(ctx, e.ID())
	if !stored.IsSent() || stored.SentAt() == nil {
		t.Errorf("stored status = %s, want sent with sentAt", stored.Status())
	}
}

func TestMemoryRepository_UpdateStatusMissing(t *testing.T) {
	repo := NewMemoryRepository()
	e := newEmail(t, "email_1_aaaaaaaaa", "user@example.com")

	err := repo.UpdateStatus(context.Background(), e)
	if !errors.Is(err, email.ErrNotFound) {
		t.Fatalf("UpdateStatus() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	first := newEmail(t, "email_1_aaaaaaaaa", "alice@example.com")
	second := newEmail(t, "email_2_bbbbbbbbb", "bob@example.com")
	third := newEmail(t, "email_3_ccccccccc", "alice@example.com")
	for _, e := range []*email.Email{first, second, third} {
		if err := repo.Save(ctx, e); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	_ = second.MarkAsFailed("bounce")
	_ = repo.UpdateStatus(ctx, second)
	_ = third.MarkAsSent()
	_ = repo.UpdateStatus(ctx, third)

	tests := []struct {
		name  string
		query func() ([]*email.Email, error)
		want  []email.ID
	}{
		{"by recipient", func() ([]*email.Email, error) {
			return repo.FindByRecipient(ctx, email.MustAddress("ALICE@example.com"))
		}, []email.ID{first.ID(), third.ID()}},
		{"pending", func() ([]*email.Email, error) { return repo.FindPending(ctx) }, []email.ID{first.ID()}},
		{"failed", func() ([]*email.Email, error) { return repo.FindFailed(ctx) }, []email.ID{second.ID()}},
		{"no match", func() ([]*email.Email, error) {
			return repo.FindByRecipient(ctx, email.MustAddress("nobody@example.com"))
		}, []email.ID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query()
			if err != nil {
				t.Fatalf("query error = %v", err)
			}
			if got == nil {
				t.Fatal("query returned nil slice")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.ID() != tt.want[i] {
					t.Errorf("[%d] = %s, want %s", i, e.ID(), tt.want[i])
				}
			}
		})
	}
}

func TestMemoryRepository_SaveOverwriteKeepsOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	a := newEmail(t, "email_1_aaaaaaaaa", "user@example.com")
	b := newEmail(t, "email_2_bbbbbbbbb", "user@example.com")
	_ = repo.Save(ctx, a)
	_ = repo.Save(ctx, b)
	_ = repo.Save(ctx, a)

	got, _ := repo.FindPending(ctx)
	if len(got) != 2 || got[0].ID() != a.ID() || got[1].ID() != b.ID() {
		t.Errorf("FindPending() order changed after overwrite")
	}
}

func TestMemoryRepository_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	e := newEmail(t, "email_1_aaaaaaaaa", "user@example.com")
	_ = repo.Save(ctx, e)

	for i := 0; i < 2; i++ {
		if err := repo.Delete(ctx, e.ID()); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}
	if _, ok, _ := repo.FindByID(ctx, e.ID()); ok {
		t.Error("FindByID() found deleted email")
	}
	if repo.Len() != 0 {
		t.Errorf("Len() = %d, want 0", repo.Len())
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	emails := make([]*email.Email, 50)
	for i := range emails {
		emails[i] = newEmail(t, fmt.Sprintf("email_%d_aaaaaaaaa", i), "user@example.com")
	}

	var wg sync.WaitGroup
	for _, e := range emails {
		wg.Add(1)
		go func(e *email.Email) {
			defer wg.Done()
			_ = repo.Save(ctx, e)
			_ = e.MarkAsSent()
			_ = repo.UpdateStatus(ctx, e)
			_, _ = repo.FindPending(ctx)
		}(e)
	}
	wg.Wait()

	if repo.Len() != 50 {
		t.Errorf("Len() = %d, want 50", repo.Len())
	}
	pending, _ := repo.FindPending(ctx)
	if len(pending) != 0 {
		t.Errorf("FindPending() = %d, want 0", len(pending))
	}
}

func TestNewRepository(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	repo, err := NewRepository(ctx, Config{Backend: BackendMemory}, log)
	if err != nil {
		t.Fatalf("NewRepository(memory) error = %v", err)
	}
	if _, ok := repo.(*MemoryRepository); !ok {
		t.Errorf("NewRepository(memory) = %T", repo)
	}

	if _, err := NewRepository(ctx, Config{Backend: BackendPostgres}, log); err == nil {
		t.Error("NewRepository(postgres without URL) error = nil")
	}
	if _, err := NewRepository(ctx, Config{Backend: "dynamo"}, log); err == nil {
		t.Error("NewRepository(unknown) error = nil")
	}
}
