// Package msgstore keeps rendered outbound messages (RFC 5322 .eml files)
// written by the file delivery provider.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no message is stored under a key.
var ErrNotFound = errors.New("msgstore: message not found")

// Store saves and loads rendered messages by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Location returns a human-readable location for key (a path or s3 URI).
	Location(key string) string
}

// Config selects the backend. Type is "local" or "s3".
type Config struct {
	Type       string
	Path       string
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
	S3Region   string
}

// New builds the configured Store. An empty Type means local.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "", "local":
		path := cfg.Path
		if path == "" {
			path = "./mail_output"
		}
		log.Debug().Str("path", path).Msg("using local message store")
		return NewLocal(path)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("msgstore: s3 bucket is required")
		}
		log.Debug().Str("bucket", cfg.S3Bucket).Str("prefix", cfg.S3Prefix).Msg("using s3 message store")
		return NewS3FromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("msgstore: unsupported store type %q", cfg.Type)
	}
}

// validateKey rejects keys that would escape the store's namespace.
func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("msgstore: invalid key %q", key)
	}
	return nil
}
