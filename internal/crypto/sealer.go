// Package crypto seals secrets that must be recoverable in cleartext later,
// currently the per-user TOTP secrets. AES-256-GCM gives confidentiality and
// tamper detection in one pass.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks stored values as ciphertext so a misconfigured deploy
// can't silently read plaintext as sealed data or vice versa.
const sealedPrefix = "enc:"

var ErrNotSealed = errors.New("value is not sealed")

// Sealer converts secrets between cleartext and their stored form.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// AESGCMSealer seals with a single process-wide key. The key is fixed for the
// process lifetime; rotation means re-sealing under a new process key.
type AESGCMSealer struct {
	aead cipher.AEAD
}

// NewAESGCMSealer builds a sealer from a 64-character hex key (32 bytes).
func NewAESGCMSealer(keyHex string) (*AESGCMSealer, error) {
	if len(keyHex) != 64 {
		return nil, fmt.Errorf("sealer key must be 32 bytes (64 hex characters), got %d characters", len(keyHex))
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("sealer key is not valid hex: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &AESGCMSealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce. The nonce is prepended
// to the ciphertext; reusing one under the same key would break GCM, so it is
// never derived from the input.
func (s *AESGCMSealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open authenticates and decrypts a sealed value. Tampered input fails.
func (s *AESGCMSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrNotSealed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("sealed value too short")
	}
	plaintext, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plaintext), nil
}

// NoopSealer stores values as-is. Development only; cmd/api refuses it in
// production.
type NoopSealer struct{}

func (NoopSealer) Seal(plaintext string) (string, error) { return plaintext, nil }
func (NoopSealer) Open(sealed string) (string, error)    { return sealed, nil }

// GenerateKey returns a fresh 32-byte key in hex, for cmd/keygen and initial
// setup.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
