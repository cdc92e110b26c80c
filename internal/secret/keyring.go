package secret

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name passphrases are stored under
const KeyringService = "borgctl"

// ErrNotInKeyring is returned when the keyring holds no passphrase for a config file
var ErrNotInKeyring = errors.New("passphrase not found in keyring")

// Keyring stores passphrases by account, the absolute config file path
type Keyring interface {
	Get(account string) (string, error)
	Set(account, passphrase string) error
}

// SystemKeyring uses the keyring of the operating system
type SystemKeyring struct{}

func (SystemKeyring) Get(account string) (string, error) {
	passphrase, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotInKeyring
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return passphrase, nil
}

func (SystemKeyring) Set(account, passphrase string) error {
	if err := keyring.Set(KeyringService, account, passphrase); err != nil {
		return fmt.Errorf("failed to store passphrase in keyring: %w", err)
	}
	return nil
}
