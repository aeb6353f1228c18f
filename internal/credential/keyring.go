// Package credential keeps API tokens in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/99designs/keyring"

	"github.com/nhle/worknotify/internal/model"
)

const serviceName = "worknotify"

// TokenEnv overrides the keyring when set.
const TokenEnv = model.EnvPrefix + "_API_TOKEN"

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = keyring.ErrKeyNotFound

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(model.ConfigDir(), "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("worknotify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Vault reads and writes credentials in one keyring.
type Vault struct {
	ring   keyring.Keyring
	getenv func(string) string
}

// Open opens the system keyring.
func Open() (*Vault, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return NewVault(ring), nil
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring, getenv: os.Getenv}
}

// tokenKey is the keyring key holding the API token of userID.
func tokenKey(userID int64) string {
	return "api-token:" + strconv.FormatInt(userID, 10)
}

// Get retrieves a credential value by key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (v *Vault) Set(key string, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (v *Vault) Delete(key string) error {
	if err := v.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Token returns the API token for userID: the environment override first,
// then the keyring. A missing token is not an error; the backend may not
// require one.
func (v *Vault) Token(userID int64) (string, error) {
	if tok := v.getenv(TokenEnv); tok != "" {
		return tok, nil
	}
	tok, err := v.Get(tokenKey(userID))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return tok, err
}

// SetToken stores the API token for userID.
func (v *Vault) SetToken(userID int64, token string) error {
	return v.Set(tokenKey(userID), token)
}

// DeleteToken forgets the API token for userID.
func (v *Vault) DeleteToken(userID int64) error {
	err := v.Delete(tokenKey(userID))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
