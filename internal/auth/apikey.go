package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

const apiKeyBytes = 32

// ErrUnknownAPIKey is returned when no configured hash matches a key.
var ErrUnknownAPIKey = errors.New("unknown api key")

// GenerateAPIKey generates a cryptographically secure API key.
// The key is 32 random bytes, hex-encoded to 64 characters.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// APIKey is a configured client credential. Only the bcrypt hash of the
// key is stored.
type APIKey struct {
	ClientID string `mapstructure:"client_id"`
	Role     string `mapstructure:"role"`
	Hash     string `mapstructure:"hash"`
}

// KeyStore resolves API keys against configured bcrypt hashes. Keys that
// verified once are remembered by SHA-256 digest.
type KeyStore struct {
	keys []APIKey

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]Principal
}

// NewKeyStore validates keys and returns a store for them.
func NewKeyStore(keys []APIKey) (*KeyStore, error) {
	for i, k := range keys {
		if k.ClientID == "" || k.Hash == "" {
			return nil, fmt.Errorf("api key %d: client_id and hash are required", i)
		}
		if !ValidRole(k.Role) {
			return nil, fmt.Errorf("api key %s: %w %q", k.ClientID, ErrUnknownRole, k.Role)
		}
	}
	return &KeyStore{
		keys:     keys,
		verified: make(map[[sha256.Size]byte]Principal),
	}, nil
}

// Lookup returns the principal owning key.
func (s *KeyStore) Lookup(key string) (Principal, error) {
	digest := sha256.Sum256([]byte(key))

	s.mu.RLock()
	p, ok := s.verified[digest]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	for _, k := range s.keys {
		if VerifyAPIKey(k.Hash, key) == nil {
			p := Principal{ClientID: k.ClientID, Role: k.Role}
			s.mu.Lock()
			s.verified[digest] = p
			s.mu.Unlock()
			return p, nil
		}
	}
	return Principal{}, ErrUnknownAPIKey
}

// Len is the number of configured keys.
func (s *KeyStore) Len() int { return len(s.keys) }
