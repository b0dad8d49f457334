package clientcrypto

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// ErrBadPassphrase is returned when the wrapped data key cannot be opened.
var ErrBadPassphrase = errors.New("wrong passphrase or corrupted key file")

// Keyring is the on-disk form of the wrapped data key.
type Keyring struct {
	Salt       []byte `yaml:"salt"`
	WrappedDEK []byte `yaml:"wrapped_dek"`
}

// NewKeyring generates a fresh data key and wraps it under the passphrase.
func NewKeyring(passphrase []byte) (*Keyring, error) {
	salt, err := Rand(SaltLen)
	if err != nil {
		return nil, err
	}
	dek, err := Rand(DEKLen)
	if err != nil {
		return nil, err
	}
	wrapped, err := WrapDEK(DeriveKEK(passphrase, salt), dek)
	if err != nil {
		return nil, err
	}
	return &Keyring{Salt: salt, WrappedDEK: wrapped}, nil
}

// Unlock unwraps the data key and returns a note cipher for scope.
func (k *Keyring) Unlock(passphrase []byte, scope string) (*NoteCipher, error) {
	dek, err := UnwrapDEK(DeriveKEK(passphrase, k.Salt), k.WrappedDEK)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return NewNoteCipher(dek, scope)
}

// ReadKeyring loads a keyring file.
func ReadKeyring(path string) (*Keyring, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	var k Keyring
	if err := yaml.Unmarshal(b, &k); err != nil {
		return nil, fmt.Errorf("unmarshal keyring: %w", err)
	}
	if len(k.Salt) == 0 || len(k.WrappedDEK) == 0 {
		return nil, errors.New("keyring is incomplete")
	}
	return &k, nil
}

// Write stores the keyring with owner-only permissions.
func (k *Keyring) Write(path string) error {
	b, err := yaml.Marshal(k)
	if err != nil {
		return fmt.Errorf("marshal keyring: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keyring dir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}
