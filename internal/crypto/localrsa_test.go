package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestLocalRSAKeyManager_WrapUnwrap(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	mgr := NewLocalRSAKeyManager(&priv.PublicKey, priv)

	env, err := mgr.WrapKey(context.Background(), []byte("dek-material-32-bytes-long!!!!!"), nil)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	plain, err := mgr.UnwrapKey(context.Background(), env, nil)
	if err != nil {
		t.Fatalf("UnwrapKey: %v", err)
	}
	if string(plain) != "dek-material-32-bytes-long!!!!!" {
		t.Fatalf("UnwrapKey = %q", plain)
	}
}

func TestLocalRSAKeyManager_PublicKeyOnlyCannotUnwrap(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	wrapOnly := NewLocalRSAKeyManager(&priv.PublicKey, nil)

	env, err := wrapOnly.WrapKey(context.Background(), []byte("secret"), nil)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	if _, err := wrapOnly.UnwrapKey(context.Background(), env, nil); err == nil {
		t.Fatalf("expected error unwrapping without a private key")
	}
}
