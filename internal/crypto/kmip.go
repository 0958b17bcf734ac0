package crypto

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ovh/kmip-go/kmipclient"
	"github.com/ovh/kmip-go/payloads"
)

// KMIPKeyReference names one wrapping key known to a KMIP server, by its
// unique identifier and an archive-facing version number (the value
// recorded on KeyEnvelope.KeyVersion and persisted in an archive's KEY
// chunk metadata).
type KMIPKeyReference struct {
	ID      string
	Version int
}

// KMIPOptions configures a KMIPKeyManager.
type KMIPOptions struct {
	Endpoint  string
	Keys      []KMIPKeyReference
	TLSConfig *tls.Config
	Timeout   time.Duration
	// Provider is the diagnostics identifier returned by Provider(); it
	// does not need to name the KMIP server vendor.
	Provider string
	// DualReadWindow is stored on the manager but not consulted:
	// UnwrapKey accepts an envelope under any key listed in Keys, however
	// many versions behind the active key it is.
	DualReadWindow int
}

// KMIPKeyManager wraps/unwraps DEKs through a KMIP 1.4 server, reached via
// github.com/ovh/kmip-go/kmipclient. The active key is Keys[0]; older
// entries serve unwraps of envelopes that carry only a Version.
type KMIPKeyManager struct {
	client   *kmipclient.Client
	keys     []KMIPKeyReference
	provider string
	window   int
}

// NewKMIPKeyManager dials a KMIP server and returns a ready KeyManager.
func NewKMIPKeyManager(opts KMIPOptions) (*KMIPKeyManager, error) {
	if len(opts.Keys) == 0 {
		return nil, fmt.Errorf("crypto: kmip: at least one key reference required")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client, err := kmipclient.Dial(opts.Endpoint,
		kmipclient.WithTlsConfig(opts.TLSConfig),
		kmipclient.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("crypto: kmip: dial %s: %w", opts.Endpoint, err)
	}
	provider := opts.Provider
	if provider == "" {
		provider = "kmip"
	}
	return &KMIPKeyManager{
		client:   client,
		keys:     append([]KMIPKeyReference(nil), opts.Keys...),
		provider: provider,
		window:   opts.DualReadWindow,
	}, nil
}

func (m *KMIPKeyManager) Provider() string { return m.provider }

func (m *KMIPKeyManager) active() KMIPKeyReference { return m.keys[0] }

func (m *KMIPKeyManager) byVersion(version int) (KMIPKeyReference, bool) {
	for _, k := range m.keys {
		if k.Version == version {
			return k, true
		}
	}
	return KMIPKeyReference{}, false
}

func (m *KMIPKeyManager) WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*KeyEnvelope, error) {
	active := m.active()
	resp, err := m.client.Encrypt(ctx, &payloads.EncryptRequestPayload{
		UniqueIdentifier: active.ID,
		Data:             plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: kmip encrypt: %w", err)
	}
	return &KeyEnvelope{
		KeyID:      active.ID,
		KeyVersion: active.Version,
		Provider:   m.provider,
		Ciphertext: resp.Data,
	}, nil
}

func (m *KMIPKeyManager) UnwrapKey(ctx context.Context, envelope *KeyEnvelope, metadata map[string]string) ([]byte, error) {
	keyID := envelope.KeyID
	if keyID == "" {
		ref, ok := m.byVersion(envelope.KeyVersion)
		if !ok {
			return nil, fmt.Errorf("crypto: kmip: no key reference for version %d", envelope.KeyVersion)
		}
		keyID = ref.ID
	}
	resp, err := m.client.Decrypt(ctx, &payloads.DecryptRequestPayload{
		UniqueIdentifier: keyID,
		Data:             envelope.Ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: kmip decrypt: %w", err)
	}
	return resp.Data, nil
}

func (m *KMIPKeyManager) ActiveKeyVersion(ctx context.Context) (int, error) {
	return m.active().Version, nil
}

func (m *KMIPKeyManager) HealthCheck(ctx context.Context) error {
	_, err := m.client.Get(ctx, &payloads.GetRequestPayload{
		UniqueIdentifier: m.active().ID,
	})
	if err != nil {
		return fmt.Errorf("crypto: kmip health check: %w", err)
	}
	return nil
}

func (m *KMIPKeyManager) Close(ctx context.Context) error {
	return m.client.Close()
}
