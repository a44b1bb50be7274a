package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoToken = errors.New("auth: no stored token")

// TokenStore persists one bearer token in a user-only file.
type TokenStore struct {
	Path string
}

func NewTokenStore(path string) TokenStore {
	return TokenStore{Path: path}
}

// DefaultTokenPath is <user config dir>/urigallery/token.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "urigallery", "token"), nil
}

func (s TokenStore) Load() (string, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("auth: read token %s: %w", s.Path, err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s TokenStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("auth: refusing to store empty token")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("auth: token dir: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("auth: write token: %w", err)
	}
	return os.Rename(tmp, s.Path)
}

// Clear removes the stored token. A missing file is not an error.
func (s TokenStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("auth: clear token: %w", err)
	}
	return nil
}
