package archive

import (
	"context"
	cryptorand "crypto/rand"
	"errors"
	"fmt"

	"github.com/rtanaka/barchive/internal/crypto"
)

// KeyParams configures how WriterOptions' Transform.Cipher key is
// established for a new archive, spec §4.B's "KEY and passphrase are
// mutually exclusive" rule.
type KeyParams struct {
	Suite      crypto.Suite
	Iterations int // PBKDF2 iterations, passphrase mode only

	// Passphrase mode: Password is non-empty, KeyManager is nil.
	Password string

	// Asymmetric mode: KeyManager is non-nil, Password is empty. The
	// symmetric key is generated fresh and wrapped by KeyManager.
	KeyManager KeyManager
	KeyID      string
}

// KeyManager is the subset of crypto.KeyManager archive needs, named
// locally so callers can pass a crypto.KeyManager directly.
type KeyManager = crypto.KeyManager

// EstablishKey derives or wraps a fresh symmetric key for a new archive
// and returns the WriterOptions fields (Salt xor KeyEnvelope) plus a
// ready-to-use entry.Transform-compatible crypto.Cipher.
func EstablishKey(ctx context.Context, p KeyParams) (cipher crypto.Cipher, salt []byte, envelope *crypto.KeyEnvelope, keyVersion int, err error) {
	keySize := crypto.KeySize(p.Suite)

	switch {
	case p.Password != "" && p.KeyManager == nil:
		salt, err = crypto.NewSalt()
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("archive: generate salt: %w", err)
		}
		iterations := p.Iterations
		if iterations <= 0 {
			iterations = crypto.MinPBKDF2Iterations
		}
		key, err := crypto.DeriveKey(p.Password, salt, iterations, keySize)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("archive: derive key: %w", err)
		}
		cipher, err = crypto.NewCipher(p.Suite, key)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		return cipher, salt, nil, 0, nil

	case p.KeyManager != nil && p.Password == "":
		key := make([]byte, keySize)
		if _, err := cryptorand.Read(key); err != nil {
			return nil, nil, nil, 0, fmt.Errorf("archive: generate data key: %w", err)
		}
		cipher, err = crypto.NewCipher(p.Suite, key)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		env, err := p.KeyManager.WrapKey(ctx, key, map[string]string{"key-id": p.KeyID})
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("archive: wrap key: %w", err)
		}
		keyVersion, err = p.KeyManager.ActiveKeyVersion(ctx)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("archive: active key version: %w", err)
		}
		return cipher, nil, env, keyVersion, nil

	default:
		return nil, nil, nil, 0, fmt.Errorf("archive: exactly one of Password or KeyManager must be set")
	}
}

// ResolveKey establishes the cipher used to read an already-opened
// archive, from whichever of Salt/KeyEnvelope Reader found. A wrong
// passphrase and an unsupported cipher both fail to produce a plausible
// plaintext, so the caller distinguishes them by first confirming the
// cipher suite itself is supported (ErrUnsupportedCipher). For the
// passphrase case, the returned Cipher probes its own first Open call:
// since the archive stream is forward-only there is no chunk to test
// decryption against before the caller actually reads one, so the first
// real decrypt doubles as the probe and reports ErrInvalidPassword
// instead of the generic ErrCryptFail if it fails.
func ResolveKey(ctx context.Context, r *Reader, suite crypto.Suite, password string, km KeyManager) (crypto.Cipher, error) {
	keySize := crypto.KeySize(suite)
	if keySize == 0 && suite != crypto.SuiteNone {
		return nil, ErrUnsupportedCipher
	}

	if salt, ok := r.Salt(); ok {
		if password == "" {
			return nil, ErrNoPassword
		}
		iterations := r.SaltIterations()
		if iterations <= 0 {
			iterations = crypto.MinPBKDF2Iterations
		}
		key, err := crypto.DeriveKey(password, salt, iterations, keySize)
		if err != nil {
			return nil, fmt.Errorf("archive: derive key: %w", err)
		}
		cipher, err := crypto.NewCipher(suite, key)
		if err != nil {
			return nil, err
		}
		return &probingCipher{Cipher: cipher}, nil
	}

	if keyID, keyVersion, provider, ciphertext, ok := r.KeyEnvelope(); ok {
		if km == nil {
			return nil, fmt.Errorf("archive: archive requires a key manager (provider %q)", provider)
		}
		envelope := &crypto.KeyEnvelope{KeyID: keyID, KeyVersion: keyVersion, Provider: provider, Ciphertext: ciphertext}
		key, err := km.UnwrapKey(ctx, envelope, map[string]string{"key-id": keyID})
		if err != nil {
			return nil, fmt.Errorf("archive: unwrap key: %w", err)
		}
		return crypto.NewCipher(suite, key)
	}

	return crypto.NewCipher(crypto.SuiteNone, nil)
}

// probingCipher wraps a passphrase-derived crypto.Cipher so its first
// failed Open is reported as ErrInvalidPassword. Once one Open call has
// gone through (success or failure), later failures are assumed to be
// genuine tampering and pass through as ErrCryptFail unchanged.
type probingCipher struct {
	crypto.Cipher
	probed bool
}

func (p *probingCipher) Open(sealed []byte) ([]byte, error) {
	plain, err := p.Cipher.Open(sealed)
	if err != nil && !p.probed && errors.Is(err, crypto.ErrCryptFail) {
		p.probed = true
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	p.probed = true
	return plain, err
}
