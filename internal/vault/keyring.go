package vault

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "gtdmail"

// SecretStore is the encrypted-at-rest storage the vault persists
// credential blobs into.
type SecretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// KeyringStore backs SecretStore with the system keyring, falling back
// to an encrypted file backend in credentialDir.
type KeyringStore struct {
	credentialDir string
}

// NewKeyringStore returns a keyring-backed secret store.
func NewKeyringStore(credentialDir string) *KeyringStore {
	return &KeyringStore{credentialDir: credentialDir}
}

func (s *KeyringStore) open() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  s.credentialDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("gtdmail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential blob by key.
func (s *KeyringStore) Get(key string) (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential blob by key.
func (s *KeyringStore) Set(key, value string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential blob by key.
func (s *KeyringStore) Delete(key string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
