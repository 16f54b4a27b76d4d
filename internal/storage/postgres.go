package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sungwon/email-queue/internal/email"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the subset of pgxpool.Pool used by PostgresRepository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate creates the emails table and its indexes if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresRepository is an email.Repository backed by the emails table.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository wraps db. Call Migrate first on a fresh database.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ email.Repository = (*PostgresRepository)(nil)

const emailColumns = `id, from_address, to_address, subject, text_content, html_content,
	status, created_at, sent_at, failure_reason`

const upsertEmail = `
INSERT INTO emails (` + emailColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	from_address   = EXCLUDED.from_address,
	to_address     = EXCLUDED.to_address,
	subject        = EXCLUDED.subject,
	text_content   = EXCLUDED.text_content,
	html_content   = EXCLUDED.html_content,
	status         = EXCLUDED.status,
	created_at     = EXCLUDED.created_at,
	sent_at        = EXCLUDED.sent_at,
	failure_reason = EXCLUDED.failure_reason,
	updated_at     = now()`

const updateEmailStatus = `
UPDATE emails
SET status = $2, sent_at = $3, failure_reason = $4, updated_at = now()
WHERE id = $1`

func (r *PostgresRepository) Save(ctx context.Context, e *email.Email) error {
	rec := e.Snapshot()
	_, err := r.db.Exec(ctx, upsertEmail,
		string(rec.ID), rec.From, rec.To, rec.Subject, rec.TextContent, rec.HTMLContent,
		string(rec.Status), rec.CreatedAt, rec.SentAt, rec.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("save email %s: %w", rec.ID, err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id email.ID) (*email.Email, bool, error) {
	row := r.db.QueryRow(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = $1`, string(id))
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find email %s: %w", id, err)
	}
	e, err := email.Restore(rec)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (r *PostgresRepository) FindByRecipient(ctx context.Context, to email.Address) ([]*email.Email, error) {
	return r.list(ctx, `SELECT `+emailColumns+` FROM emails WHERE to_address = $1 ORDER BY seq`, to.String())
}

func (r *PostgresRepository) FindPending(ctx context.Context) ([]*email.Email, error) {
	return r.list(ctx, `SELECT `+emailColumns+` FROM emails WHERE status = $1 ORDER BY seq`, string(email.StatusPending))
}

func (r *PostgresRepository) FindFailed(ctx context.Context) ([]*email.Email, error) {
	return r.list(ctx, `SELECT `+emailColumns+` FROM emails WHERE status = $1 ORDER BY seq`, string(email.StatusFailed))
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, e *email.Email) error {
	rec := e.Snapshot()
	tag, err := r.db.Exec(ctx, updateEmailStatus, string(rec.ID), string(rec.Status), rec.SentAt, rec.FailureReason)
	if err != nil {
		return fmt.Errorf("update email %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &email.NotFoundError{ID: rec.ID}
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id email.ID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM emails WHERE id = $1`, string(id)); err != nil {
		return fmt.Errorf("delete email %s: %w", id, err)
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*email.Email, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query emails: %w", err)
	}
	defer rows.Close()

	out := make([]*email.Email, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		e, err := email.Restore(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emails: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (email.Record, error) {
	var (
		rec       email.Record
		id        string
		status    string
		createdAt time.Time
		sentAt    *time.Time
	)
	err := row.Scan(&id, &rec.From, &rec.To, &rec.Subject, &rec.TextContent, &rec.HTMLContent,
		&status, &createdAt, &sentAt, &rec.FailureReason)
	if err != nil {
		return email.Record{}, err
	}
	rec.ID = email.ID(id)
	rec.Status = email.Status(status)
	rec.CreatedAt = createdAt.UTC()
	if sentAt != nil {
		t := sentAt.UTC()
		rec.SentAt = &t
	}
	return rec, nil
}
