// Package sealed encrypts values before they reach another storage.Backend.
// Keys stay in the clear so namespacing and prefix listing keep working; each
// value is bound to its key as additional data, so a value copied under a
// different key will not open.
package sealed

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	apperrors "github.com/jrsteele09/go-agent-client/internal/errors"
	"github.com/jrsteele09/go-agent-client/storage"
	"golang.org/x/crypto/chacha20poly1305"
)

var _ storage.Backend = (*Backend)(nil)

type Backend struct {
	inner storage.Backend
	key   []byte
}

// New wraps inner with XChaCha20-Poly1305 using a 32 byte key.
func New(inner storage.Backend, key []byte) (*Backend, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealed: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Backend{inner: inner, key: append([]byte(nil), key...)}, nil
}

// NewFromHex is New with a hex encoded key, as found in configuration.
func NewFromHex(inner storage.Backend, hexKey string) (*Backend, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("sealed: decode key: %w", err)
	}
	return New(inner, key)
}

func (b *Backend) Get(key string) ([]byte, error) {
	data, err := b.inner.Get(key)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return nil, apperrors.ErrSealedValue
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrSealedValue, "sealed: open %s", key)
	}
	return plain, nil
}

func (b *Backend) Set(key string, value []byte) error {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return fmt.Errorf("sealed: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("sealed: nonce: %w", err)
	}
	return b.inner.Set(key, aead.Seal(nonce, nonce, value, []byte(key)))
}

func (b *Backend) Delete(key string) error {
	return b.inner.Delete(key)
}

func (b *Backend) Keys(prefix string) ([]string, error) {
	return b.inner.Keys(prefix)
}
