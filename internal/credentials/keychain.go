package credentials

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// securityItemNotFound is the exit status of `security` for a missing item.
const securityItemNotFound = 44

// commandRunner runs a command and returns its stdout.
type commandRunner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// KeychainBackend stores values as generic passwords in the macOS keychain,
// one item per key under the service "<prefix>-<key>".
type KeychainBackend struct {
	Prefix  string
	Account string
	run     commandRunner
}

func NewKeychainBackend() *KeychainBackend {
	return &KeychainBackend{Prefix: "casedash", Account: "casedash", run: execRunner}
}

func (k *KeychainBackend) service(key string) string {
	return k.Prefix + "-" + key
}

func (k *KeychainBackend) Load(key string) ([]byte, error) {
	out, err := k.run("security", "find-generic-password", "-s", k.service(key), "-w")
	if isItemNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve password from Keychain: %w", err)
	}
	return []byte(strings.TrimRight(string(out), "\n")), nil
}

func (k *KeychainBackend) Save(key string, data []byte) error {
	_, err := k.run("security", "add-generic-password", "-s", k.service(key), "-a", k.Account, "-w", string(data), "-U")
	if err != nil {
		return fmt.Errorf("failed to update keychain: %w", err)
	}
	return nil
}

func (k *KeychainBackend) Delete(key string) error {
	_, err := k.run("security", "delete-generic-password", "-s", k.service(key))
	if err != nil && !isItemNotFound(err) {
		return fmt.Errorf("failed to delete keychain item: %w", err)
	}
	return nil
}

func isItemNotFound(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == securityItemNotFound
}
