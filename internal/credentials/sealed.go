package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "sealed.v1:"

var ErrSealedCorrupt = errors.New("credentials: sealed value is corrupt or was sealed with another secret")

// SealedBackend encrypts values with XChaCha20-Poly1305 before handing them
// to the wrapped backend. The key is derived from a passphrase with
// HKDF-SHA256; the storage key is bound as additional data.
type SealedBackend struct {
	inner  Backend
	secret []byte
}

func NewSealedBackend(inner Backend, passphrase string) (*SealedBackend, error) {
	if passphrase == "" {
		return nil, errors.New("credentials: empty session secret")
	}
	key, err := deriveKey([]byte(passphrase))
	if err != nil {
		return nil, err
	}
	return &SealedBackend{inner: inner, secret: key}, nil
}

func deriveKey(passphrase []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, passphrase, nil, []byte("casedash-session"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}
	return key, nil
}

func (s *SealedBackend) Load(key string) ([]byte, error) {
	raw, err := s.inner.Load(key)
	if err != nil {
		return nil, err
	}
	return s.open(key, raw)
}

func (s *SealedBackend) Save(key string, data []byte) error {
	sealed, err := s.seal(key, data)
	if err != nil {
		return err
	}
	return s.inner.Save(key, sealed)
}

func (s *SealedBackend) Delete(key string) error {
	return s.inner.Delete(key)
}

func (s *SealedBackend) seal(key string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, plaintext, []byte(key))
	return []byte(sealedPrefix + base64.StdEncoding.EncodeToString(out)), nil
}

func (s *SealedBackend) open(key string, raw []byte) ([]byte, error) {
	text := string(raw)
	if !strings.HasPrefix(text, sealedPrefix) {
		return nil, ErrSealedCorrupt
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(text, sealedPrefix))
	if err != nil {
		return nil, ErrSealedCorrupt
	}
	aead, err := chacha20poly1305.NewX(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return nil, ErrSealedCorrupt
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, ErrSealedCorrupt
	}
	return plaintext, nil
}
