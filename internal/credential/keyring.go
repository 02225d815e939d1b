package credential

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "sheetmailer"

// refPrefix marks a config value that points into the keyring.
const refPrefix = "keyring:"

// openKeyring returns a configured keyring instance.
var openKeyring = func() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/sheetmailer/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("sheetmailer-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
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
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(value),
		Label:       serviceName + " " + key,
		Description: "sheetmailer mail password",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Ref formats key as a config reference, e.g. "keyring:smtp".
func Ref(key string) string {
	return refPrefix + key
}

// Resolve returns plain when it is set. Otherwise ref must be a
// "keyring:<key>" reference, which is looked up. Both empty yields "".
func Resolve(plain, ref string) (string, error) {
	if plain != "" {
		return plain, nil
	}
	if ref == "" {
		return "", nil
	}

	key, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || key == "" {
		return "", fmt.Errorf("unsupported credential reference %q", ref)
	}

	return Get(key)
}
