package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/email"
)

// Backend names accepted by NewRepository.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config selects and configures the repository backend.
type Config struct {
	Backend        string
	DatabaseURL    string
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
	AutoMigrate    bool
}

// Repository is an email.Repository that can be health-checked and closed.
type Repository interface {
	email.Repository
	Ping(ctx context.Context) error
	Close()
}

// pgRepository ties a PostgresRepository to the pool it owns.
type pgRepository struct {
	*PostgresRepository
	db *DB
}

func (r *pgRepository) Ping(ctx context.Context) error { return r.db.Ping(ctx) }
func (r *pgRepository) Close()                         { r.db.Close() }

// NewRepository builds the configured repository backend.
func NewRepository(ctx context.Context, cfg Config, log zerolog.Logger) (Repository, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		log.Info().Str("backend", BackendMemory).Msg("using in-memory email repository")
		return NewMemoryRepository(), nil

	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres repository requires a database URL")
		}
		db, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := Migrate(ctx, db.Pool); err != nil {
				db.Close()
				return nil, err
			}
			log.Info().Msg("email schema applied")
		}
		log.Info().Str("backend", BackendPostgres).Msg("using postgres email repository")
		return &pgRepository{PostgresRepository: NewPostgresRepository(db.Pool), db: db}, nil

	default:
		return nil, fmt.Errorf("unknown repository backend %q", cfg.Backend)
	}
}
