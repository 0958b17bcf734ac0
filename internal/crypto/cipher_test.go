package crypto

import (
	"bytes"
	"testing"
)

func TestCipher_RoundTrip(t *testing.T) {
	cases := []struct {
		suite   Suite
		keySize int
	}{
		{SuiteNone, 0},
		{SuiteAES128CBC, 16},
		{SuiteAES256CBC, 32},
		{SuiteTwofish128, 16},
		{SuiteTwofish256, 32},
		{SuiteChacha20, 32},
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog, 0123456789")

	for _, tc := range cases {
		t.Run(string(tc.suite), func(t *testing.T) {
			key := bytes.Repeat([]byte{0xAB}, tc.keySize)
			c, err := NewCipher(tc.suite, key)
			if err != nil {
				t.Fatalf("NewCipher: %v", err)
			}
			if c.Suite() != tc.suite {
				t.Fatalf("Suite() = %q, want %q", c.Suite(), tc.suite)
			}
			sealed, err := c.Seal(plaintext)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			opened, err := c.Open(sealed)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Fatalf("Open = %q, want %q", opened, plaintext)
			}
		})
	}
}

func TestCipher_UnsupportedSuite(t *testing.T) {
	for _, suite := range []Suite{SuiteSerpent128, SuiteSerpent256, SuiteCamellia128, SuiteCamellia256} {
		if _, err := NewCipher(suite, make([]byte, KeySize(suite))); err == nil {
			t.Fatalf("%s: expected ErrUnsupportedCipher, got nil", suite)
		}
	}
}

func TestAEADCipher_TamperDetected(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 32)
	c, err := NewCipher(SuiteChacha20, key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	sealed, err := c.Seal([]byte("authenticated payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := c.Open(sealed); err == nil {
		t.Fatalf("expected tamper detection to fail Open")
	}
}

func TestCBCCipher_TruncatedCiphertextRejected(t *testing.T) {
	c, err := NewCipher(SuiteAES128CBC, bytes.Repeat([]byte{0x02}, 16))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	if _, err := c.Open([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Fatalf("expected error opening undersized ciphertext")
	}
}
