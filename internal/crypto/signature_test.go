package crypto

import (
	"crypto/sha256"
	"testing"
)

func TestSignVerifyDigest(t *testing.T) {
	pub, priv, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	digest := sha256.Sum256([]byte("archive content"))
	sig := SignDigest(priv, digest[:])

	if state := VerifyDigest(pub, digest[:], sig); state != VerifyOK {
		t.Fatalf("VerifyDigest = %v, want VerifyOK", state)
	}

	tampered := sha256.Sum256([]byte("tampered content"))
	if state := VerifyDigest(pub, tampered[:], sig); state != VerifyInvalid {
		t.Fatalf("VerifyDigest = %v, want VerifyInvalid", state)
	}

	if state := VerifyDigest(nil, digest[:], sig); state != VerifyNoPublicKey {
		t.Fatalf("VerifyDigest = %v, want VerifyNoPublicKey", state)
	}
}
