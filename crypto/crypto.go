// Package crypto encrypts exchange API credentials before they reach the database.
// Values are AES-256-GCM sealed with a key loaded from the environment and stored
// with a versioned prefix so unencrypted legacy values pass through untouched.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
)

const storagePrefix = "ENC:v1:"

// EnvDataEncryptionKey holds the base64-encoded 32-byte AES key
const EnvDataEncryptionKey = "DATA_ENCRYPTION_KEY"

// Service seals and opens credential strings
type Service struct {
	dataKey []byte
}

// NewService creates the crypto service from the environment.
// DATA_ENCRYPTION_KEY must be a base64-encoded 32-byte key.
func NewService() (*Service, error) {
	raw := os.Getenv(EnvDataEncryptionKey)
	if raw == "" {
		return nil, fmt.Errorf("environment variable %s is not set", EnvDataEncryptionKey)
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvDataEncryptionKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid %s: expected 32 bytes, got %d", EnvDataEncryptionKey, len(key))
	}

	return &Service{dataKey: key}, nil
}

// NewServiceWithKey creates the crypto service from raw key material.
// The key is hashed to 32 bytes, so any non-empty string works (used in tests).
func NewServiceWithKey(key string) *Service {
	sum := sha256.Sum256([]byte(key))
	return &Service{dataKey: sum[:]}
}

// Encrypt seals plaintext for storage. Empty input stays empty.
func (s *Service) Encrypt(plain string) string {
	if plain == "" {
		return ""
	}

	block, err := aes.NewCipher(s.dataKey)
	if err != nil {
		return plain
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return plain
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return plain
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return storagePrefix + base64.StdEncoding.EncodeToString(sealed)
}

// Decrypt opens a stored value. Values without the storage prefix are
// returned as-is so pre-encryption rows keep working.
func (s *Service) Decrypt(stored string) string {
	if len(stored) <= len(storagePrefix) || stored[:len(storagePrefix)] != storagePrefix {
		return stored
	}

	sealed, err := base64.StdEncoding.DecodeString(stored[len(storagePrefix):])
	if err != nil {
		return ""
	}

	block, err := aes.NewCipher(s.dataKey)
	if err != nil {
		return ""
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}
	if len(sealed) < gcm.NonceSize() {
		return ""
	}

	plain, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return ""
	}
	return string(plain)
}
