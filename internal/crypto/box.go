// Package crypto seals chat content at rest. Message bodies and uploaded
// files are encrypted before they ever touch a store; the key derives from
// the server's content secret.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/scrypt"
)

// Box performs AES-GCM sealing with a key derived from a shared secret. A
// nil Box passes data through unchanged, so callers need no secret checks.
type Box struct {
	gcm cipher.AEAD
}

// NewBox derives a box from secret via scrypt. An empty secret yields a nil
// box, which disables encryption rather than failing startup.
func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, nil
	}
	salt := sha256.Sum256([]byte("social-chat/" + secret))
	key, err := scrypt.Key([]byte(secret), salt[:], 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{gcm: gcm}, nil
}

// Seal encrypts plain and prepends the nonce.
func (b *Box) Seal(plain []byte) ([]byte, error) {
	if b == nil {
		return plain, nil
	}
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return b.gcm.Seal(nonce, nonce, plain, nil), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if b == nil {
		return sealed, nil
	}
	if len(sealed) < b.gcm.NonceSize() {
		return nil, errors.New("sealed payload too short")
	}
	nonce, ciphertext := sealed[:b.gcm.NonceSize()], sealed[b.gcm.NonceSize():]
	return b.gcm.Open(nil, nonce, ciphertext, nil)
}

// SealString seals a message body for column storage, base64-encoded.
func (b *Box) SealString(s string) (string, error) {
	if b == nil {
		return s, nil
	}
	sealed, err := b.Seal([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenString reverses SealString.
func (b *Box) OpenString(s string) (string, error) {
	if b == nil {
		return s, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	plain, err := b.Open(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
