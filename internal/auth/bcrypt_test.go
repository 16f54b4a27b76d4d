package auth

import (
	"testing"
)

func TestHashAPIKey(t *testing.T) {
	hash, err := HashAPIKey("testkey123")
	if err != nil {
		t.Fatalf("HashAPIKey() error = %v", err)
	}

	if hash == "" {
		t.Fatal("HashAPIKey() returned empty hash")
	}

	// bcrypt hashes start with $2a$ or $2b$
	if hash[0] != '$' {
		t.Errorf("HashAPIKey() hash does not start with $, got %q", hash[:4])
	}
}

func TestVerifyAPIKey(t *testing.T) {
	hash, err := HashAPIKey("correctkey")
	if err != nil {
		t.Fatalf("HashAPIKey() error = %v", err)
	}

	if err := VerifyAPIKey(hash, "correctkey"); err != nil {
		t.Errorf("VerifyAPIKey() with correct key returned error: %v", err)
	}
	if err := VerifyAPIKey(hash, "wrongkey"); err == nil {
		t.Error("VerifyAPIKey() with wrong key returned nil error")
	}
}

func TestHashAPIKey_DifferentHashesForSameInput(t *testing.T) {
	hash1, _ := HashAPIKey("samekey")
	hash2, _ := HashAPIKey("samekey")

	if hash1 == hash2 {
		t.Error("HashAPIKey() produced identical hashes for same input")
	}
}
