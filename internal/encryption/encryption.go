// Package encryption provides field-level encryption for sensitive data
// at rest: user ids, device ids, and sensitive-keyed payload fields.
//
// The cipher is AES-256-GCM serialized as URL-safe base64. Failures are
// soft on both sides: a value that cannot be encrypted is stored as-is,
// and a value that was never encrypted decrypts to itself, so data
// written before encryption was enabled stays readable.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/pbkdf2"
)

// KDF parameters for password-derived keys.
const (
	keyLength     = 32
	kdfIterations = 100000
)

// Config selects the key material. Key wins over Password+Salt.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Key      string `yaml:"key"`      // URL-safe base64, 32 bytes decoded
	Password string `yaml:"password"` // PBKDF2 input when Key is empty
	Salt     string `yaml:"salt"`
}

// Cipher encrypts and decrypts individual string fields.
type Cipher struct {
	aead    cipher.AEAD
	enabled bool
}

// SensitiveFields is the fixed set of payload key names whose string
// values are encrypted on write.
var SensitiveFields = map[string]bool{
	"email":                  true,
	"emails":                 true,
	"phone":                  true,
	"phones":                 true,
	"phone_number":           true,
	"phone_number_formatted": true,
	"caller_id":              true,
	"from":                   true,
	"to":                     true,
	"user_id":                true,
	"device_id":              true,
	"account_number":         true,
	"ssn":                    true,
}

// New builds a Cipher from config. An explicit key must be URL-safe
// base64 of exactly 32 bytes; otherwise the key is derived from the
// password and salt via PBKDF2-SHA256.
func New(cfg Config) (*Cipher, error) {
	var key []byte
	if cfg.Key != "" {
		decoded, err := base64.URLEncoding.DecodeString(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key format: %w", err)
		}
		if len(decoded) != keyLength {
			return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keyLength, len(decoded))
		}
		key = decoded
	} else {
		password := cfg.Password
		if password == "" {
			password = "default-password-change-in-production"
		}
		salt := cfg.Salt
		if salt == "" {
			salt = "default-salt-change-in-production"
		}
		key = pbkdf2.Key([]byte(password), []byte(salt), kdfIterations, keyLength, sha256.New)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Cipher{aead: aead, enabled: cfg.Enabled}, nil
}

// Enabled reports whether values are actually transformed.
func (c *Cipher) Enabled() bool {
	return c.enabled
}

// Encrypt seals a single value. Disabled ciphers and empty values pass
// through; so does any encryption failure, after a warning.
func (c *Cipher) Encrypt(value string) string {
	if !c.enabled || value == "" {
		return value
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		slog.Warn("encryption failed, storing value unencrypted", "error", err)
		return value
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.URLEncoding.EncodeToString(sealed)
}

// Decrypt opens a value sealed by Encrypt. Values that do not parse as
// ciphertext are returned unchanged for backward compatibility.
func (c *Cipher) Decrypt(value string) string {
	if !c.enabled || value == "" {
		return value
	}

	sealed, err := base64.URLEncoding.DecodeString(value)
	if err != nil || len(sealed) <= c.aead.NonceSize() {
		return value
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return value
	}
	return string(plaintext)
}

// EncryptPayload returns a copy of the payload with every sensitive-keyed
// string (or string sequence) encrypted. Non-sensitive keys and
// non-string values are copied through untouched.
func (c *Cipher) EncryptPayload(payload map[string]any) map[string]any {
	return c.transformPayload(payload, c.Encrypt)
}

// DecryptPayload is the symmetric inverse of EncryptPayload.
func (c *Cipher) DecryptPayload(payload map[string]any) map[string]any {
	return c.transformPayload(payload, c.Decrypt)
}

func (c *Cipher) transformPayload(payload map[string]any, apply func(string) string) map[string]any {
	if payload == nil {
		return nil
	}
	result := make(map[string]any, len(payload))
	for key, value := range payload {
		if !SensitiveFields[key] {
			result[key] = value
			continue
		}
		switch v := value.(type) {
		case string:
			result[key] = apply(v)
		case []string:
			items := make([]string, len(v))
			for i, item := range v {
				items[i] = apply(item)
			}
			result[key] = items
		case []any:
			items := make([]any, len(v))
			for i, item := range v {
				if s, ok := item.(string); ok {
					items[i] = apply(s)
				} else {
					items[i] = item
				}
			}
			result[key] = items
		default:
			result[key] = value
		}
	}
	return result
}
