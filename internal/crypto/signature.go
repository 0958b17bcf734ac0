package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// VerifyState is the four-valued result of checking an archive's trailing
// SIGN chunk against its content hash.
type VerifyState int

const (
	// VerifyNoSignature means the archive carries no SIGN chunk at all.
	VerifyNoSignature VerifyState = iota
	// VerifyOK means a signature was present and matched the public key.
	VerifyOK
	// VerifyInvalid means a signature was present but did not match.
	VerifyInvalid
	// VerifyNoPublicKey means a signature was present but no public key
	// was supplied to check it against.
	VerifyNoPublicKey
)

func (s VerifyState) String() string {
	switch s {
	case VerifyNoSignature:
		return "no-signature"
	case VerifyOK:
		return "ok"
	case VerifyInvalid:
		return "invalid"
	case VerifyNoPublicKey:
		return "no-public-key"
	default:
		return "unknown"
	}
}

// GenerateSigningKey creates a new Ed25519 key pair for archive signing.
func GenerateSigningKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: generate signing key: %w", err)
	}
	return pub, priv, nil
}

// SignDigest signs a detached content digest (the SHA-256 over every
// preceding chunk) for storage in the archive's trailing SIGN chunk.
func SignDigest(priv ed25519.PrivateKey, digest []byte) []byte {
	return ed25519.Sign(priv, digest)
}

// VerifyDigest checks sig against digest using pub, collapsing the result
// into the archive engine's four-valued verify state.
func VerifyDigest(pub ed25519.PublicKey, digest, sig []byte) VerifyState {
	if len(pub) == 0 {
		return VerifyNoPublicKey
	}
	if ed25519.Verify(pub, digest, sig) {
		return VerifyOK
	}
	return VerifyInvalid
}
