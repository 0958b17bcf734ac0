package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// SaltSize is the length, in bytes, of the random salt stored in an
// archive's SALT chunk.
const SaltSize = 64

// MinPBKDF2Iterations is the floor below which a password-derived key is
// rejected as too weak to use.
const MinPBKDF2Iterations = 100000

// NewSalt generates a fresh random salt for password-based key derivation.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a keyLen-byte DEK from password and salt using
// PBKDF2-HMAC-SHA256. iterations below MinPBKDF2Iterations is rejected.
func DeriveKey(password string, salt []byte, iterations, keyLen int) ([]byte, error) {
	if iterations < MinPBKDF2Iterations {
		return nil, fmt.Errorf("crypto: pbkdf2 iteration count %d below floor %d", iterations, MinPBKDF2Iterations)
	}
	return pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New), nil
}
