package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
)

// EnvelopeKey is the only variable an encrypted instance exposes to the underlying store.
const EnvelopeKey = "__encrypted__"

// ErrNotEncrypted is returned when a stored instance carries no encrypted envelope.
var ErrNotEncrypted = errors.New("instance is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// sealed is the part of an instance that is encrypted. Routing fields (flow, canal,
// usuario, estado, nodo) stay in clear so the store can still index and filter.
type sealed struct {
	Variables       map[string]string `json:"variables"`
	UltimaRespuesta string            `json:"ultima_respuesta,omitempty"`
}

type encryptionMiddleware struct {
	next   ports.InstanceStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts instance variables and the
// last reply using AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) (InstanceMiddleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return func(next ports.InstanceStore) ports.InstanceStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, inst *domain.Instance) error {
	plainText, err := json.Marshal(sealed{Variables: inst.Variables, UltimaRespuesta: inst.UltimaRespuesta})
	if err != nil {
		return fmt.Errorf("failed to marshal instance data: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt instance data: %w", err)
	}

	envelope := inst.Clone()
	envelope.Variables = map[string]string{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}
	envelope.UltimaRespuesta = ""

	if err := m.next.Save(ctx, envelope); err != nil {
		return err
	}
	inst.Version = envelope.Version
	return nil
}

func (m *encryptionMiddleware) Get(ctx context.Context, id string) (*domain.Instance, error) {
	envelope, err := m.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) List(ctx context.Context, filter ports.InstanceFilter) ([]*domain.Instance, error) {
	envelopes, err := m.next.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Instance, len(envelopes))
	for i, e := range envelopes {
		if out[i], err = m.open(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *encryptionMiddleware) open(envelope *domain.Instance) (*domain.Instance, error) {
	encoded, ok := envelope.Variables[EnvelopeKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEncrypted, envelope.ID)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt instance %s: %w", envelope.ID, err)
	}

	var s sealed
	if err := json.Unmarshal(plainText, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted instance data: %w", err)
	}
	inst := envelope.Clone()
	inst.Variables = s.Variables
	inst.UltimaRespuesta = s.UltimaRespuesta
	return inst, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
