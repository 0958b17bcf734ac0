package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// LocalRSAKeyManager wraps/unwraps DEKs with RSA-OAEP against a recipient
// key pair held entirely on the local machine, for the offline case where
// no KMS is reachable. Its health check only confirms that a public key
// is loaded, and there is nothing to close; it exists to satisfy the same KeyManager contract as the networked backends
// so the archive engine never special-cases "no KMS configured".
type LocalRSAKeyManager struct {
	pub  *rsa.PublicKey
	priv *rsa.PrivateKey // nil on a wrap-only (public-key-only) instance
}

// NewLocalRSAKeyManager builds a manager able to wrap (encrypt) DEKs under
// pub, and unwrap them if priv is also supplied.
func NewLocalRSAKeyManager(pub *rsa.PublicKey, priv *rsa.PrivateKey) *LocalRSAKeyManager {
	return &LocalRSAKeyManager{pub: pub, priv: priv}
}

func (m *LocalRSAKeyManager) Provider() string { return "local-rsa" }

func (m *LocalRSAKeyManager) WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*KeyEnvelope, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, m.pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa-oaep wrap: %w", err)
	}
	return &KeyEnvelope{
		Provider:   m.Provider(),
		KeyVersion: 1,
		Ciphertext: ct,
	}, nil
}

func (m *LocalRSAKeyManager) UnwrapKey(ctx context.Context, envelope *KeyEnvelope, metadata map[string]string) ([]byte, error) {
	if m.priv == nil {
		return nil, fmt.Errorf("crypto: local-rsa: no private key loaded, cannot unwrap")
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, m.priv, envelope.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa-oaep unwrap: %w", err)
	}
	return pt, nil
}

func (m *LocalRSAKeyManager) ActiveKeyVersion(ctx context.Context) (int, error) { return 1, nil }

func (m *LocalRSAKeyManager) HealthCheck(ctx context.Context) error {
	if m.pub == nil {
		return fmt.Errorf("crypto: local-rsa: no public key loaded")
	}
	return nil
}

func (m *LocalRSAKeyManager) Close(ctx context.Context) error { return nil }
