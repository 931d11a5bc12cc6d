package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ConfigurationError means the encryption key is missing or malformed. The
// service cannot start without a usable key.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "encryption misconfigured: " + e.Message
}

var ErrDecrypt = errors.New("stored secret could not be decrypted")

// Cipher seals short secrets such as user API keys with XChaCha20-Poly1305.
// Ciphertexts are base64url(nonce || sealed).
type Cipher struct {
	key []byte
}

// NewCipher takes the ENCRYPTION_KEY value: 32 bytes, base64url encoded.
func NewCipher(encodedKey string) (*Cipher, error) {
	if encodedKey == "" {
		return nil, &ConfigurationError{Message: "ENCRYPTION_KEY is not set"}
	}
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("ENCRYPTION_KEY is not valid base64: %v", err)}
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, &ConfigurationError{Message: fmt.Sprintf("ENCRYPTION_KEY must decode to %d bytes, got %d", chacha20poly1305.KeySize, len(key))}
	}
	return &Cipher{key: key}, nil
}

// GenerateKey returns a fresh key in the format NewCipher expects.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrDecrypt
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func decodeKey(s string) ([]byte, error) {
	if key, err := base64.URLEncoding.DecodeString(s); err == nil {
		return key, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
