// Package credentials finds, prompts for and persists the single API key the
// generative service needs.
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/vango-go/vinyasa/pkg/core"
)

const (
	EnvKey       = "GEMINI_API_KEY"
	EnvGoogleKey = "GOOGLE_API_KEY"
)

var ErrNoCredential = errors.New("no API key entered")

// Key returns the configured key, preferring GEMINI_API_KEY.
func Key() string {
	if k := strings.TrimSpace(os.Getenv(EnvKey)); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv(EnvGoogleKey))
}

// HasCredential reports whether a key is available to the process.
func HasCredential() bool {
	return Key() != ""
}

// SelectCredential asks for a key and stores it in the process environment.
// Input from a terminal is read without echo.
func SelectCredential(in io.Reader, out io.Writer) error {
	fmt.Fprint(out, "Enter your Gemini API key: ")
	key, err := readSecret(in)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNoCredential
	}
	if err := os.Setenv(EnvKey, key); err != nil {
		return fmt.Errorf("set %s: %w", EnvKey, err)
	}
	return nil
}

func readSecret(in io.Reader) (string, error) {
	if f, ok := in.(interface{ Fd() uintptr }); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			b, err := term.ReadPassword(fd)
			return string(b), err
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	return line, err
}

// Save writes the current key into the dotenv file at path, keeping any other
// entries already there.
func Save(path string) error {
	key := Key()
	if key == "" {
		return ErrNoCredential
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		env = map[string]string{}
	}
	env[EnvKey] = key
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// IsAuthError reports whether err means the service rejected the key, either
// as an API status or as a live channel close reason.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return core.Classify("", err).IsAuth()
}
