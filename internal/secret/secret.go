// Package secret seals sensitive values at rest.
//
// An Encrypted value can only be produced by Encrypt or by rehydrating
// ciphertext that was previously produced by Encrypt (FromCiphertext), so
// there is no need to guess whether a stored string is already encrypted.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey is returned when the key is not 32 bytes.
	ErrInvalidKey = errors.New("secret: key must be 32 bytes")

	// ErrMalformed is returned when ciphertext cannot be decoded or opened.
	ErrMalformed = errors.New("secret: malformed ciphertext")

	// ErrEmpty is returned when decrypting a zero Encrypted value.
	ErrEmpty = errors.New("secret: empty value")
)

// Encrypted holds the sealed form of a T. The zero value is empty.
type Encrypted[T ~string] struct {
	ciphertext string
}

// FromCiphertext wraps ciphertext loaded from storage.
func FromCiphertext[T ~string](ciphertext string) Encrypted[T] {
	return Encrypted[T]{ciphertext: ciphertext}
}

// Ciphertext returns the storable representation.
func (e Encrypted[T]) Ciphertext() string {
	return e.ciphertext
}

// IsZero reports whether nothing has been sealed.
func (e Encrypted[T]) IsZero() bool {
	return e.ciphertext == ""
}

// String never reveals the plaintext.
func (e Encrypted[T]) String() string {
	if e.IsZero() {
		return ""
	}
	return "[encrypted]"
}

// Cipher seals values with XChaCha20-Poly1305 and a random nonce per value.
type Cipher struct {
	key []byte
}

// NewCipher creates a Cipher from a 32 byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Cipher{key: k}, nil
}

// NewCipherFromHex creates a Cipher from a hex-encoded 32 byte key.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("secret: decode key: %w", err)
	}
	return NewCipher(key)
}

func (c *Cipher) seal(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) open(ciphertext string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrMalformed
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformed
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrMalformed
	}
	return plaintext, nil
}

// Encrypt seals v.
func Encrypt[T ~string](c *Cipher, v T) (Encrypted[T], error) {
	ct, err := c.seal([]byte(v))
	if err != nil {
		return Encrypted[T]{}, err
	}
	return Encrypted[T]{ciphertext: ct}, nil
}

// Decrypt opens e.
func Decrypt[T ~string](c *Cipher, e Encrypted[T]) (T, error) {
	var zero T
	if e.IsZero() {
		return zero, ErrEmpty
	}
	pt, err := c.open(e.ciphertext)
	if err != nil {
		return zero, err
	}
	return T(pt), nil
}
