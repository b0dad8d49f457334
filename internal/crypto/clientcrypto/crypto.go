// Package clientcrypto contains the client-side primitives protecting the local backup cache at rest.
package clientcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Params
const (
	DEKLen  = 32
	KEKLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// ErrShortCiphertext is returned for blobs that cannot hold a nonce.
var ErrShortCiphertext = errors.New("ciphertext too short")

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKEK derives a key-encryption key from a passphrase using Argon2id.
func DeriveKEK(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KEKLen)
}

// WrapDEK encrypts the data key with the KEK.
func WrapDEK(kek, dek []byte) ([]byte, error) {
	return seal(kek, dek, nil)
}

// UnwrapDEK decrypts a wrapped data key.
func UnwrapDEK(kek, wrapped []byte) ([]byte, error) {
	return open(kek, wrapped, nil)
}

// DeriveNoteKey derives a per-note key via HKDF-SHA256 with the note id as info.
func DeriveNoteKey(dek []byte, noteID uuid.UUID) ([]byte, error) {
	r := hkdf.New(sha256.New, dek, nil, noteID.Bytes())
	key := make([]byte, DEKLen)
	_, err := r.Read(key)
	return key, err
}

// NoteCipher seals backup payloads under per-note keys bound to scope, note id and local version.
type NoteCipher struct {
	dek   []byte
	scope []byte
}

// NewNoteCipher builds a cipher from an unwrapped data key.
func NewNoteCipher(dek []byte, scope string) (*NoteCipher, error) {
	if len(dek) != DEKLen {
		return nil, errors.New("data key must be 32 bytes")
	}
	return &NoteCipher{dek: dek, scope: []byte(scope)}, nil
}

// Seal encrypts plaintext for the note at the given local version.
func (c *NoteCipher) Seal(noteID uuid.UUID, ver int64, plaintext []byte) ([]byte, error) {
	key, err := DeriveNoteKey(c.dek, noteID)
	if err != nil {
		return nil, err
	}
	return seal(key, plaintext, c.aad(noteID, ver))
}

// Open decrypts a blob produced by Seal with the same note id and version.
func (c *NoteCipher) Open(noteID uuid.UUID, ver int64, blob []byte) ([]byte, error) {
	key, err := DeriveNoteKey(c.dek, noteID)
	if err != nil {
		return nil, err
	}
	return open(key, blob, c.aad(noteID, ver))
}

func (c *NoteCipher) aad(noteID uuid.UUID, ver int64) []byte {
	aad := make([]byte, 0, len(c.scope)+uuid.Size+8)
	aad = append(aad, c.scope...)
	aad = append(aad, noteID.Bytes()...)
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(ver))
	return append(aad, v[:]...)
}

// seal is XChaCha20-Poly1305 with a random nonce prefixed to the output.
func seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

func open(key, blob, aad []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, ErrShortCiphertext
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	return aead.Open(nil, nonce, blob[chacha20poly1305.NonceSizeX:], aad)
}
