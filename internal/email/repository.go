package email

import "context"

// Repository persists emails keyed by ID.
//
// Query methods return results in insertion order and an empty (non-nil)
// slice when nothing matches. Returned emails are copies of stored state.
type Repository interface {
	// Save inserts or overwrites the email.
	Save(ctx context.Context, e *Email) error
	// FindByID returns ok=false, not an error, when no email has that ID.
	FindByID(ctx context.Context, id ID) (e *Email, ok bool, err error)
	FindByRecipient(ctx context.Context, to Address) ([]*Email, error)
	FindPending(ctx context.Context) ([]*Email, error)
	FindFailed(ctx context.Context) ([]*Email, error)
	// UpdateStatus overwrites the stored record with e's current fields.
	// It returns a *NotFoundError if the email was never saved.
	UpdateStatus(ctx context.Context, e *Email) error
	// Delete removes the email. Deleting a missing email is not an error.
	Delete(ctx context.Context, id ID) error
}
