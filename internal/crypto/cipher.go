package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/twofish"
)

// Suite identifies a symmetric cipher used to protect chunk payloads.
// Identifiers are stable across archive versions; an archive written with
// an unsupported suite must fail with ErrUnsupportedCipher rather than
// silently falling back to NONE.
type Suite string

const (
	SuiteNone        Suite = "NONE"
	SuiteAES128CBC   Suite = "AES128-CBC"
	SuiteAES256CBC   Suite = "AES256-CBC"
	SuiteTwofish128  Suite = "TWOFISH128"
	SuiteTwofish256  Suite = "TWOFISH256"
	SuiteSerpent128  Suite = "SERPENT128"
	SuiteSerpent256  Suite = "SERPENT256"
	SuiteCamellia128 Suite = "CAMELLIA128"
	SuiteCamellia256 Suite = "CAMELLIA256"
	SuiteChacha20    Suite = "CHACHA20"
)

// ErrUnsupportedCipher is returned by NewCipher for suites this build
// recognizes but does not implement (SERPENT*, CAMELLIA*).
var ErrUnsupportedCipher = fmt.Errorf("crypto: unsupported cipher suite")

// ErrCryptFail is returned (wrapped) by Cipher.Open when a sealed chunk
// fails to authenticate or unpad: a wrong key, a tampered ciphertext, or
// corrupt storage all land here, since none are distinguishable from the
// cipher alone.
var ErrCryptFail = fmt.Errorf("crypto: decryption failed")

// KeySize returns the DEK size in bytes required by suite.
func KeySize(suite Suite) int {
	switch suite {
	case SuiteNone:
		return 0
	case SuiteAES128CBC, SuiteTwofish128, SuiteSerpent128, SuiteCamellia128:
		return 16
	case SuiteAES256CBC, SuiteTwofish256, SuiteSerpent256, SuiteCamellia256, SuiteChacha20:
		return 32
	default:
		return 0
	}
}

// Cipher encrypts or decrypts one chunk payload at a time. Block-mode
// suites (AES-CBC, Twofish-CBC) operate on PKCS#7-padded plaintext with a
// fresh random IV per call; AEAD suites (CHACHA20) additionally bind and
// verify an authentication tag, matching the teacher's AEAD-by-default
// discipline in chunked.go.
type Cipher interface {
	Suite() Suite
	// IVSize returns the number of random bytes Seal expects to be given
	// (and will prepend to its output) for each chunk.
	IVSize() int
	// Seal encrypts plaintext, returning iv||ciphertext (and, for AEAD
	// suites, an appended authentication tag).
	Seal(plaintext []byte) ([]byte, error)
	// Open reverses Seal.
	Open(sealed []byte) ([]byte, error)
}

// NewCipher constructs a Cipher for suite bound to key, a suite-appropriate
// length DEK. Unimplemented-but-recognized suites return
// ErrUnsupportedCipher, exactly as an implementation choosing to support a
// subset of the enumerated suites is permitted to.
func NewCipher(suite Suite, key []byte) (Cipher, error) {
	switch suite {
	case SuiteNone:
		return noneCipher{}, nil
	case SuiteAES128CBC, SuiteAES256CBC:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("crypto: aes key: %w", err)
		}
		return &cbcCipher{suite: suite, block: block}, nil
	case SuiteTwofish128, SuiteTwofish256:
		block, err := twofish.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("crypto: twofish key: %w", err)
		}
		return &cbcCipher{suite: suite, block: block}, nil
	case SuiteChacha20:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("crypto: chacha20poly1305 key: %w", err)
		}
		return &aeadCipher{suite: suite, aead: aead}, nil
	case SuiteSerpent128, SuiteSerpent256, SuiteCamellia128, SuiteCamellia256:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCipher, suite)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCipher, suite)
	}
}

type noneCipher struct{}

func (noneCipher) Suite() Suite               { return SuiteNone }
func (noneCipher) IVSize() int                 { return 0 }
func (noneCipher) Seal(p []byte) ([]byte, error) { return p, nil }
func (noneCipher) Open(p []byte) ([]byte, error) { return p, nil }

// cbcCipher implements the block-mode suites (AES-CBC, Twofish-CBC) with
// PKCS#7 padding and a per-chunk random IV, block.BlockSize() bytes long.
type cbcCipher struct {
	suite Suite
	block cipher.Block
}

func (c *cbcCipher) Suite() Suite { return c.suite }
func (c *cbcCipher) IVSize() int  { return c.block.BlockSize() }

func (c *cbcCipher) Seal(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, c.block.BlockSize())
	iv := make([]byte, c.block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("crypto: iv: %w", err)
	}
	out := make([]byte, len(iv)+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[len(iv):], padded)
	return out, nil
}

func (c *cbcCipher) Open(sealed []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(sealed) < bs || (len(sealed)-bs)%bs != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrCryptFail)
	}
	iv, ct := sealed[:bs], sealed[bs:]
	if len(ct) == 0 {
		return nil, nil
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ct)
	opened, err := pkcs7Unpad(plain, bs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptFail, err)
	}
	return opened, nil
}

// aeadCipher implements AEAD suites (CHACHA20-Poly1305): every chunk
// carries its own authentication tag, so tampering with stored ciphertext
// is detected on Open rather than silently accepted.
type aeadCipher struct {
	suite Suite
	aead  cipher.AEAD
}

func (c *aeadCipher) Suite() Suite { return c.suite }
func (c *aeadCipher) IVSize() int  { return c.aead.NonceSize() }

func (c *aeadCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	out := make([]byte, len(nonce), len(nonce)+len(plaintext)+c.aead.Overhead())
	copy(out, nonce)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

func (c *aeadCipher) Open(sealed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("%w: sealed chunk shorter than nonce", ErrCryptFail)
	}
	nonce, ct := sealed[:n], sealed[n:]
	plain, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptFail, err)
	}
	return plain, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("crypto: invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("crypto: invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("crypto: invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
