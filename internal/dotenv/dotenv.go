package dotenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// UserFile is the dotenv file saved credentials and per-user settings live in.
func UserFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "vinyasa", ".env"), nil
}

// EnsureUserFile creates the directory holding UserFile and returns its path.
func EnsureUserFile() (string, error) {
	path, err := UserFile()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create %q: %w", filepath.Dir(path), err)
	}
	return path, nil
}

// LoadFiles loads KEY=VALUE pairs from each file in order. Missing files are
// skipped; variables already in the environment, or set by an earlier file,
// are preserved.
func LoadFiles(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file %q: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return nil
}

// LoadDefault loads ./.env and then the user file.
func LoadDefault() error {
	paths := []string{".env"}
	if user, err := UserFile(); err == nil {
		paths = append(paths, user)
	}
	return LoadFiles(paths...)
}
