package signature

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrKeyDecrypt marks private-key material that failed to open. Issuance must
// treat this as fatal: signing proceeds only with a successfully opened key,
// never with raw ciphertext.
var ErrKeyDecrypt = errors.New("private key decryption failed")

// KeyCipher seals concert private keys for storage at rest. The cipher key is
// derived from a deployment secret, so rotating the secret invalidates every
// stored ciphertext.
type KeyCipher struct {
	key [32]byte
}

func NewKeyCipher(deploymentSecret string) *KeyCipher {
	return &KeyCipher{key: sha256.Sum256([]byte(deploymentSecret))}
}

// Seal encrypts a PEM-encoded private key and returns base64 ciphertext with
// the nonce prepended.
func (c *KeyCipher) Seal(privateKeyPEM string) (string, error) {
	const op = "signature.KeyCipher.Seal"

	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(privateKeyPEM), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts ciphertext produced by Seal. Any failure — bad base64, short
// input, wrong secret, tampered data — returns ErrKeyDecrypt so callers fail
// closed instead of signing with garbage.
func (c *KeyCipher) Open(ciphertext string) (string, error) {
	const op = "signature.KeyCipher.Open"

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrKeyDecrypt)
	}

	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrKeyDecrypt)
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%s: %w", op, ErrKeyDecrypt)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrKeyDecrypt)
	}

	return string(plain), nil
}
