package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Cipher seals cookie values with AES-256-GCM.
//
// Output is URL-safe base64 of nonce || ciphertext || tag, so it can be used
// directly as a cookie value. With no key the value is only base64 encoded;
// that mode is meant for tests and local development.
type Cipher struct {
	key     []byte
	enabled bool
}

// NewCipher creates a Cipher. A nil or empty key disables encryption.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return &Cipher{}, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes (256 bits), got %d bytes", KeySize, len(key))
	}
	return &Cipher{key: key, enabled: true}, nil
}

// Enabled reports whether values are encrypted.
func (c *Cipher) Enabled() bool {
	return c.enabled
}

// Seal encrypts and encodes plaintext.
func (c *Cipher) Seal(plaintext []byte) (string, error) {
	if !c.enabled {
		return base64.RawURLEncoding.EncodeToString(plaintext), nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	// Nonce must be unique for each encryption with the same key.
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decodes and decrypts a value produced by Seal. Tampered values fail
// authentication.
func (c *Cipher) Open(encoded string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	if !c.enabled {
		return data, nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateKey returns a random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// KeyToBase64 encodes a key for MEETINGBRIEF_SESSION_KEY.
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
