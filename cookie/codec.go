package cookie

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrCorruptCookie covers every way a cookie value can fail to open: wrong key,
// tampering, truncation or a malformed payload.
var ErrCorruptCookie = errors.New("corrupt session cookie")

// MinSecretLength is the minimum secret size accepted by NewCodec.
const MinSecretLength = 32

var (
	hkdfInfo       = []byte("yoto-session-cookie v1")
	additionalData = []byte("yoto_session")
	cookieEncoding = base64.RawURLEncoding.Strict()
)

// Codec seals payloads with XChaCha20-Poly1305 under a key derived from the
// process-wide secret. It holds no mutable state and is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the AEAD key from secret with HKDF-SHA256.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("cookie secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive cookie key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cookie cipher: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encode returns base64url(nonce || ciphertext) for the payload.
func (c *Codec) Encode(p Payload) (string, error) {
	plaintext, err := p.MarshalBinary()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate cookie nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, additionalData)
	return cookieEncoding.EncodeToString(sealed), nil
}

// Decode opens a cookie value. Every failure is reported as ErrCorruptCookie.
func (c *Codec) Decode(value string) (Payload, error) {
	sealed, err := cookieEncoding.DecodeString(value)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrCorruptCookie, err)
	}
	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return Payload{}, fmt.Errorf("%w: value too short", ErrCorruptCookie)
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrCorruptCookie, err)
	}

	var p Payload
	if err := p.UnmarshalBinary(plaintext); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrCorruptCookie, err)
	}
	return p, nil
}
