package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "titlegen"
	apiKeyUser  = "api_key"
)

// Store keeps the completion API key in the OS keyring.
type Store struct {
	service string
}

func NewStore() *Store {
	return &Store{service: serviceName}
}

// SetAPIKey saves key, replacing any existing one.
func (s *Store) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key is empty")
	}
	if err := keyring.Set(s.service, apiKeyUser, key); err != nil {
		return fmt.Errorf("store API key: %w", err)
	}
	return nil
}

// APIKey returns the stored key, or "" when none is stored.
func (s *Store) APIKey() (string, error) {
	key, err := keyring.Get(s.service, apiKeyUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}
	return key, nil
}

// DeleteAPIKey removes the stored key. Deleting a missing key is not an error.
func (s *Store) DeleteAPIKey() error {
	err := keyring.Delete(s.service, apiKeyUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete API key: %w", err)
	}
	return nil
}
