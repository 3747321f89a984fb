// Package credential stores mailbox and relay secrets in the system
// keyring, with environment variables taking precedence.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "threadreply"

// Credential keys.
const (
	KeyIMAPPassword = "imap-password"
	KeySMTPPassword = "smtp-password"
	KeySESSecret    = "ses-secret-access-key"
)

// ErrNotFound is returned when a credential is neither in the
// environment nor in the keyring.
var ErrNotFound = errors.New("credential not found")

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
		FileDir:                  "~/.config/threadreply/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("threadreply-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// open is replaced in tests.
var open = openKeyring

// EnvVar returns the environment variable that overrides key, e.g.
// THREADREPLY_IMAP_PASSWORD for "imap-password".
func EnvVar(key string) string {
	return "THREADREPLY_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Resolve returns the credential for key, preferring its environment
// variable over the keyring.
func Resolve(key string) (string, error) {
	if v, ok := os.LookupEnv(EnvVar(key)); ok && v != "" {
		return v, nil
	}
	v, err := Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: set %s or run the login command", ErrNotFound, EnvVar(key))
	}
	return v, err
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
