// Package defaults resolves the keeper's data directory and seeds it with the
// embedded user config template on first run.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/SessionKeeper/
//	Windows: %AppData%\SessionKeeper\
//	Linux:   ~/.config/sessionkeeper/
//
// Override with KEEPER_DATA_DIR environment variable.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

//go:embed dotkeeper/*
var defaultFiles embed.FS

// UserConfigFile is the name of the user override file inside the data directory.
const UserConfigFile = "config.yaml"

// DataDir returns the platform-appropriate data directory.
// Set KEEPER_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("KEEPER_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "sessionkeeper"), nil
	}
	return filepath.Join(configDir, "SessionKeeper"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist
// and copies default files if they're missing.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := copyDefaults(dir, false); err != nil {
		return "", err
	}

	return dir, nil
}

// Resolve returns p unchanged when absolute, otherwise joined onto dir.
func Resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// copyDefaults copies embedded default files to the data directory.
// If overwrite is true, existing files are replaced.
func copyDefaults(dir string, overwrite bool) error {
	return fs.WalkDir(defaultFiles, "dotkeeper", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "dotkeeper" {
			return nil
		}

		// embed.FS always uses forward slashes.
		relPath := strings.TrimPrefix(path, "dotkeeper/")
		destPath := filepath.Join(dir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}

		if !overwrite {
			if _, err := os.Stat(destPath); err == nil {
				return nil
			}
		}

		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}
		if err := os.WriteFile(destPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}
		return nil
	})
}

// GetDefault returns the content of a default file by name.
func GetDefault(name string) ([]byte, error) {
	return defaultFiles.ReadFile("dotkeeper/" + name)
}
