// SPDX-License-Identifier: GPL-3.0-or-later
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const ServiceName = "go-imap-triage"

var ErrNoPassword = errors.New("no password stored")

// Keyring stores imap account passwords keyed by account id.
type Keyring struct {
	ring keyring.Keyring
}

// OpenKeyring opens the system keyring, falling back to an encrypted file in fileDir.
func OpenKeyring(fileDir string, filePassword keyring.PromptFunc) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         filePassword,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open keyring: %w", err)
	}

	return NewKeyring(ring), nil
}

func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

func (k *Keyring) Password(accountID string) (string, error) {
	item, err := k.ring.Get(accountID)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w for account %s", ErrNoPassword, accountID)
	}
	if err != nil {
		return "", fmt.Errorf("could not get password of account %s: %w", accountID, err)
	}

	return string(item.Data), nil
}

func (k *Keyring) SetPassword(accountID, password string) error {
	err := k.ring.Set(keyring.Item{
		Key:         accountID,
		Data:        []byte(password),
		Label:       fmt.Sprintf("%s: %s", ServiceName, accountID),
		Description: "imap password",
	})
	if err != nil {
		return fmt.Errorf("could not store password of account %s: %w", accountID, err)
	}

	return nil
}

func (k *Keyring) RemovePassword(accountID string) error {
	err := k.ring.Remove(accountID)
	if err != nil {
		return fmt.Errorf("could not remove password of account %s: %w", accountID, err)
	}

	return nil
}
