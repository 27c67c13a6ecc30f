// Package keyring holds the credential sealing key in the OS keychain, with a
// key file fallback for headless hosts.
package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	zkr "github.com/zalando/go-keyring"

	"github.com/neboloop/sessionkeeper/internal/logging"
)

const (
	serviceName = "sessionkeeper"
	accountName = "bundle-sealing-key"
)

// KeySize is the length of the sealing key in bytes.
const KeySize = 32

// Get retrieves the sealing key from the OS keychain.
func Get() ([]byte, error) {
	hexKey, err := zkr.Get(serviceName, accountName)
	if err != nil {
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return hex.DecodeString(hexKey)
}

// Set stores the sealing key in the OS keychain.
func Set(key []byte) error {
	return zkr.Set(serviceName, accountName, hex.EncodeToString(key))
}

// Delete removes the sealing key from the OS keychain.
func Delete() error {
	return zkr.Delete(serviceName, accountName)
}

// Available returns true if the OS keychain is functional.
// Returns false if KEEPER_KEYRING_DISABLED=1 is set (headless/CI/Docker).
// Otherwise probes the keychain with a test write/read/delete cycle.
func Available() bool {
	if os.Getenv("KEEPER_KEYRING_DISABLED") == "1" {
		return false
	}
	testService := "sessionkeeper-keyring-probe"
	testAccount := "probe"
	if err := zkr.Set(testService, testAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, testAccount)
	return true
}

// MasterKey returns the sealing key, generating and persisting one on first
// use. The keychain is preferred; fallbackPath is used when it is unavailable.
func MasterKey(fallbackPath string) ([]byte, error) {
	if Available() {
		key, err := Get()
		switch {
		case err == nil && len(key) == KeySize:
			return key, nil
		case err != nil && !errors.Is(err, zkr.ErrNotFound):
			return nil, err
		}
		key, err = newKey()
		if err != nil {
			return nil, err
		}
		if err := Set(key); err != nil {
			return nil, fmt.Errorf("keychain set: %w", err)
		}
		return key, nil
	}
	logging.Debugf("keychain unavailable, using key file %s", fallbackPath)
	return fileKey(fallbackPath)
}

func fileKey(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("keychain unavailable and no key file configured")
	}
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(key) != KeySize {
			return nil, fmt.Errorf("key file %s is malformed", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err := newKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

func newKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}
