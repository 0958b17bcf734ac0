package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if len(salt) != SaltSize {
		t.Fatalf("salt length = %d, want %d", len(salt), SaltSize)
	}

	k1, err := DeriveKey("hunter2", salt, MinPBKDF2Iterations, 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := DeriveKey("hunter2", salt, MinPBKDF2Iterations, 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("derived keys differ for identical inputs")
	}

	k3, err := DeriveKey("different password", salt, MinPBKDF2Iterations, 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if bytes.Equal(k1, k3) {
		t.Fatalf("derived keys match for different passwords")
	}
}

func TestDeriveKey_RejectsWeakIterationCount(t *testing.T) {
	salt := bytes.Repeat([]byte{0}, SaltSize)
	if _, err := DeriveKey("pw", salt, MinPBKDF2Iterations-1, 32); err == nil {
		t.Fatalf("expected error for below-floor iteration count")
	}
}
